package service

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/lixenwraith/tickgate/core"
)

// Hub is the runtime container for service instances
// Manages lifecycle in dependency order and provides type-safe access
type Hub struct {
	mu       sync.RWMutex
	services map[string]Service
	sorted   []string // Topological order, computed on InitAll
	started  []string // Services that completed Start(), for rollback

	log *slog.Logger
}

// NewHub creates an empty service hub; nil logger uses the shared logger
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		services: make(map[string]Service),
		log:      core.LoggerOr(log),
	}
}

// Register adds a service instance to the hub
// Clears cached sort order to force recomputation
func (h *Hub) Register(svc Service) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	name := svc.Name()
	if _, exists := h.services[name]; exists {
		return fmt.Errorf("service already registered: %s", name)
	}

	h.services[name] = svc
	h.sorted = nil
	return nil
}

// Get retrieves a service by name
func (h *Hub) Get(name string) (Service, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	svc, ok := h.services[name]
	return svc, ok
}

// MustGet retrieves a service and casts to type T
// Panics if service not found or type mismatch
func MustGet[T any](h *Hub, name string) T {
	h.mu.RLock()
	svc, ok := h.services[name]
	h.mu.RUnlock()

	if !ok {
		panic(fmt.Sprintf("service not found: %s", name))
	}

	typed, ok := svc.(T)
	if !ok {
		panic(fmt.Sprintf("service %s: type mismatch, got %T", name, svc))
	}
	return typed
}

// InitAll resolves dependencies and calls Init on all services
// On failure, calls Stop on already-initialized services in reverse order; those were
// never started, so their Stop errors are expected and only logged at debug
func (h *Hub) InitAll(host any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sorted == nil {
		order, err := h.topologicalSort()
		if err != nil {
			return err
		}
		h.sorted = order
	}

	var initialized []string
	for _, name := range h.sorted {
		if err := h.services[name].Init(host); err != nil {
			for i := len(initialized) - 1; i >= 0; i-- {
				if serr := h.services[initialized[i]].Stop(); serr != nil {
					h.log.Debug("stop after failed init", "service", initialized[i], "error", serr)
				}
			}
			return fmt.Errorf("service %s init failed: %w", name, err)
		}
		initialized = append(initialized, name)
	}

	return nil
}

// StartAll calls Start on all services in topological order
// On failure, calls Stop on already-started services in reverse order
func (h *Hub) StartAll() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.started = nil

	for _, name := range h.sorted {
		if err := h.services[name].Start(); err != nil {
			for i := len(h.started) - 1; i >= 0; i-- {
				h.stopOne(h.started[i], h.services[h.started[i]])
			}
			h.started = nil
			return fmt.Errorf("service %s start failed: %w", name, err)
		}
		h.started = append(h.started, name)
		h.log.Debug("service started", "service", name)
	}

	return nil
}

// UpdateAll calls Update on started services implementing Updater, in start order
func (h *Hub) UpdateAll(tick Tick) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, name := range h.started {
		if u, ok := h.services[name].(Updater); ok {
			u.Update(tick)
		}
	}
}

// StopAll calls Stop on all started services in reverse topological order
// Every service gets Stop called; failures are logged and returned joined
// The hub lock is released first: a Stop that joins a thread must not block that thread's
// final hub lookups
func (h *Hub) StopAll() error {
	h.mu.Lock()
	started := h.started
	svcs := make([]Service, len(started))
	for i, name := range started {
		svcs[i] = h.services[name]
	}
	h.started = nil
	h.mu.Unlock()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		if err := h.stopOne(started[i], svcs[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// stopOne stops a service, logging the failure
func (h *Hub) stopOne(name string, svc Service) error {
	if err := svc.Stop(); err != nil {
		h.log.Warn("service stop failed", "service", name, "error", err)
		return fmt.Errorf("service %s stop failed: %w", name, err)
	}
	h.log.Debug("service stopped", "service", name)
	return nil
}

// topologicalSort computes initialization order using Kahn's algorithm
// Ties are broken by registration-independent name order for deterministic startup
func (h *Hub) topologicalSort() ([]string, error) {
	inDegree := make(map[string]int)
	dependents := make(map[string][]string) // dep -> services that depend on it

	for name := range h.services {
		inDegree[name] = 0
	}

	for name, svc := range h.services {
		for _, dep := range svc.Dependencies() {
			if _, exists := h.services[dep]; !exists {
				return nil, fmt.Errorf("service %s depends on unregistered service: %s", name, dep)
			}
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, name)
		}
	}
	slices.Sort(ready)

	var result []string
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		result = append(result, name)

		var next []string
		for _, dependent := range dependents[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				next = append(next, dependent)
			}
		}
		slices.Sort(next)
		ready = append(ready, next...)
	}

	if len(result) != len(h.services) {
		return nil, fmt.Errorf("circular dependency detected in services")
	}

	return result, nil
}

// Names returns all registered service names, sorted
func (h *Hub) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.services))
	for name := range h.services {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
