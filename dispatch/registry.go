// Package dispatch routes work to the engine's main and render threads
//
// A Registry is owned by one engine instance and handed to collaborators that need to reach a
// thread-affine context; there is no process-wide state, so independent engines (tests,
// multiple windows) do not interfere
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lixenwraith/tickgate/core"
	"github.com/lixenwraith/tickgate/schedule"
	"github.com/lixenwraith/tickgate/status"
	"github.com/lixenwraith/tickgate/thread"
)

var (
	// ErrIdentityAlreadySet is returned on a second registration of a thread role
	ErrIdentityAlreadySet = errors.New("dispatch: thread identity already set")

	// ErrInvalidIdentity is returned when registering thread.None
	ErrInvalidIdentity = errors.New("dispatch: invalid thread identity")
)

// Registry is a pair of identity-routed queues, "run on main" and "run on render"
type Registry struct {
	main   *schedule.Scheduler
	render *schedule.Scheduler

	mu       sync.RWMutex
	mainID   thread.ID
	renderID thread.ID

	log *slog.Logger
}

// Option configures a Registry
type Option func(*options)

type options struct {
	log    *slog.Logger
	status *status.Registry
}

// WithLogger sets the logger for both queues
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithStatus publishes queue counters as schedule.main.* and schedule.render.*
func WithStatus(reg *status.Registry) Option {
	return func(o *options) { o.status = reg }
}

// New creates a registry with no thread identities registered
func New(opts ...Option) *Registry {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log := core.LoggerOr(o.log)

	schedOpts := []schedule.Option{schedule.WithLogger(log)}
	if o.status != nil {
		schedOpts = append(schedOpts, schedule.WithStatus(o.status))
	}

	return &Registry{
		main:   schedule.New(thread.RoleMain.String(), thread.None, schedOpts...),
		render: schedule.New(thread.RoleRender.String(), thread.None, schedOpts...),
		log:    log,
	}
}

// SetMainThreadIdentity registers the main thread, exactly once, before any ExecuteOnMain
func (r *Registry) SetMainThreadIdentity(id thread.ID) error {
	return r.setIdentity(thread.RoleMain, id)
}

// SetRenderThreadIdentity registers the render thread, exactly once, before any ExecuteOnRender
// In synchronous window modes the render identity is the main identity
func (r *Registry) SetRenderThreadIdentity(id thread.ID) error {
	return r.setIdentity(thread.RoleRender, id)
}

func (r *Registry) setIdentity(role thread.Role, id thread.ID) error {
	if !id.Valid() {
		return fmt.Errorf("%w for %s thread", ErrInvalidIdentity, role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	slot, queue := &r.mainID, r.main
	if role == thread.RoleRender {
		slot, queue = &r.renderID, r.render
	}
	if slot.Valid() {
		return fmt.Errorf("%w: %s thread is %s", ErrIdentityAlreadySet, role, *slot)
	}
	if err := queue.Bind(id); err != nil {
		return err
	}
	*slot = id
	r.log.Debug("thread identity registered", "role", role.String(), "thread", id.String())
	return nil
}

// MainThreadIdentity returns the registered main thread, thread.None before registration
func (r *Registry) MainThreadIdentity() thread.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mainID
}

// RenderThreadIdentity returns the registered render thread, thread.None before registration
func (r *Registry) RenderThreadIdentity() thread.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.renderID
}

// IsMainThread reports whether the caller is the registered main thread
func (r *Registry) IsMainThread() bool {
	id := r.MainThreadIdentity()
	return id.Valid() && id == thread.Current()
}

// IsRenderThread reports whether the caller is the registered render thread
func (r *Registry) IsRenderThread() bool {
	id := r.RenderThreadIdentity()
	return id.Valid() && id == thread.Current()
}

// ExecuteOnMain runs action inline when called from the main thread, otherwise defers it to
// the next ProcessMainThread
func (r *Registry) ExecuteOnMain(action func()) *schedule.Handle[struct{}] {
	return r.execute(r.MainThreadIdentity(), r.main, action)
}

// ExecuteOnRender runs action inline when called from the render thread, otherwise defers it to
// the next ProcessRenderThread
func (r *Registry) ExecuteOnRender(action func()) *schedule.Handle[struct{}] {
	return r.execute(r.RenderThreadIdentity(), r.render, action)
}

func (r *Registry) execute(target thread.ID, queue *schedule.Scheduler, action func()) *schedule.Handle[struct{}] {
	if target.Valid() && target == thread.Current() {
		// Inline fast path: no deferral, no queue involvement
		h := schedule.Invoke(func() (struct{}, error) {
			action()
			return struct{}{}, nil
		})
		if _, ok, err := h.TryResult(); ok && err != nil {
			r.log.Warn("inline action faulted", "scheduler", queue.Name(), "error", err)
		}
		return h
	}
	return queue.Schedule(action)
}

// ProcessMainThread drains the main queue, must be called on the main thread once per tick
func (r *Registry) ProcessMainThread() (int, error) {
	return r.main.RunOnCurrentThread()
}

// ProcessRenderThread drains the render queue, must be called on the render thread once per cycle
func (r *Registry) ProcessRenderThread() (int, error) {
	return r.render.RunOnCurrentThread()
}

// Pending returns the queued action counts per role
func (r *Registry) Pending() (main, render int) {
	return r.main.Len(), r.render.Len()
}

// Close faults every action still queued on either thread with schedule.ErrClosed
// Call after the final ProcessMainThread at shutdown; returns the number of dropped actions
func (r *Registry) Close() int {
	return r.main.Close(schedule.ErrClosed) + r.render.Close(schedule.ErrClosed)
}
