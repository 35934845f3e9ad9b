package service

import "time"

// Service defines the lifecycle interface for engine subsystems
// Services own long-lived, often thread-affine resources: windows, audio devices, GPU contexts
//
// Lifecycle:
//  1. Construction (via factory)
//  2. Init(host) - dependency injection from the engine
//  3. Start() - launch dedicated threads if any
//  4. [per-tick Update on the main thread for services implementing Updater]
//  5. Stop() - join threads, then release resources
type Service interface {
	// Name returns the unique identifier for this service
	Name() string

	// Dependencies returns names of services that must Init and Start before this one
	// Return nil or empty slice if no dependencies
	Dependencies() []string

	// Init receives the engine host for dependency injection
	// Called on the main thread after the main thread identity is registered
	Init(host any) error

	// Start begins service operation
	// Called after all services have initialized
	Start() error

	// Stop halts service operation and releases resources
	// Must be safe to call after a successful Stop
	Stop() error
}

// Tick describes one simulation step
type Tick struct {
	Number uint64        // 1-based tick counter
	Time   time.Time     // Deadline the tick was scheduled for
	Delta  time.Duration // Fixed tick interval
}

// Updater is implemented by services with per-tick work on the main thread
// Optional interface - services not implementing it are skipped by Hub.UpdateAll
// Typical use: pumping the service's own main-affine scheduler
type Updater interface {
	Update(tick Tick)
}
