package window

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lixenwraith/tickgate/core"
	"github.com/lixenwraith/tickgate/dispatch"
	"github.com/lixenwraith/tickgate/gate"
	"github.com/lixenwraith/tickgate/schedule"
	"github.com/lixenwraith/tickgate/service"
	"github.com/lixenwraith/tickgate/status"
	"github.com/lixenwraith/tickgate/thread"
)

// Name is the hub name of the window service
const Name = "window"

var (
	// ErrAlreadyStarted is returned by a second Start
	ErrAlreadyStarted = errors.New("window: already started")

	// ErrNotStarted is returned by Stop before Start
	ErrNotStarted = errors.New("window: not started")

	// ErrNotInitialized is returned by Start before Init
	ErrNotInitialized = errors.New("window: not initialized")
)

type lifecycle int32

const (
	stateIdle lifecycle = iota
	stateRunning
	stateStopped
)

// Service owns the window backend and, in ModeThreadLoop, the render thread and its FrameGate
//
// The per-cycle work is always: pump the service scheduler, drain the dispatch render queue,
// run one backend cycle. Tick is the simulation-side entry point, called once per tick
type Service struct {
	mode     Mode
	maxFrame time.Duration
	backend  Backend

	dispatch *dispatch.Registry
	gate     *gate.FrameGate
	sched    *schedule.Scheduler
	status   *status.Registry
	log      *slog.Logger

	mu    sync.Mutex
	state lifecycle

	// Render thread exit, closed by the thread itself
	done chan struct{}

	closed    chan struct{}
	closeOnce sync.Once

	cycles atomic.Int64

	observerMu sync.Mutex
	observers  []func(skipping bool)
}

// Option configures a Service
type Option func(*Service)

// WithMaxFrameDuration bounds how long a tick waits on the render thread, ThreadLoop only
func WithMaxFrameDuration(d time.Duration) Option {
	return func(s *Service) { s.maxFrame = d }
}

// WithLogger overrides the host logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// New creates a window service around backend
func New(mode Mode, backend Backend, opts ...Option) *Service {
	s := &Service{
		mode:    mode,
		backend: backend,
		done:    make(chan struct{}),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements service.Service
func (s *Service) Name() string {
	return Name
}

// Dependencies implements service.Service
func (s *Service) Dependencies() []string {
	return nil
}

// Init implements service.Service, capturing the dispatch registry and building the gate
func (s *Service) Init(host any) error {
	h, err := service.AsHost(Name, host)
	if err != nil {
		return err
	}

	s.dispatch = h.Dispatch()
	s.status = h.Status()
	if s.log == nil {
		s.log = h.Logger()
	}
	s.log = core.LoggerOr(s.log).With("service", Name, "mode", s.mode.String())

	s.sched = schedule.New(Name, thread.None,
		schedule.WithLogger(s.log),
		schedule.WithStatus(s.status),
	)

	if s.mode.Threaded() {
		s.gate = gate.NewFrameGate(s.maxFrame,
			gate.WithLogger(s.log),
			gate.WithStatus(s.status, "gate"),
			gate.WithSkipObserver(s.notifySkip),
		)
	}
	return nil
}

// Start implements service.Service
// ThreadLoop returns once the render thread has registered itself and initialized the backend
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dispatch == nil {
		return ErrNotInitialized
	}
	if s.state != stateIdle {
		return ErrAlreadyStarted
	}

	var err error
	if s.mode.Threaded() {
		err = s.startThread()
	} else {
		err = s.startInline()
	}
	if err != nil {
		// A failed start is terminal: thread identities are registered once per engine
		s.state = stateStopped
		return err
	}

	s.state = stateRunning
	s.log.Debug("window started")
	return nil
}

// startInline makes the simulation thread the render thread
func (s *Service) startInline() error {
	main := s.dispatch.MainThreadIdentity()
	if !main.Valid() {
		return fmt.Errorf("window: main thread identity not registered")
	}
	if err := s.dispatch.SetRenderThreadIdentity(main); err != nil {
		return err
	}
	if err := s.sched.Bind(main); err != nil {
		return err
	}
	if err := s.backend.Init(); err != nil {
		return fmt.Errorf("window backend init: %w", err)
	}
	close(s.done)
	return nil
}

// startThread launches the dedicated render thread and waits for its setup to finish
func (s *Service) startThread() error {
	ready := make(chan error, 1)

	core.Go(func() {
		defer close(s.done)

		// Never unlocked: the runtime terminates the OS thread when this goroutine exits,
		// so joining on done joins the thread
		id := thread.Lock()

		if err := s.dispatch.SetRenderThreadIdentity(id); err != nil {
			ready <- err
			return
		}
		if err := s.sched.Bind(id); err != nil {
			ready <- err
			return
		}
		if err := s.backend.Init(); err != nil {
			ready <- fmt.Errorf("window backend init: %w", err)
			return
		}
		s.log.Debug("render thread running", "thread", id)
		ready <- nil

		s.gate.Run(s.cycle)
		s.log.Debug("render thread exiting", "cycles", s.cycles.Load())
	})

	return <-ready
}

// cycle is one window pass on the render-affine thread
func (s *Service) cycle() {
	if _, err := s.sched.Pump(); err != nil {
		s.log.Error("window scheduler pump", "error", err)
	}
	if _, err := s.dispatch.ProcessRenderThread(); err != nil {
		s.log.Error("render queue drain", "error", err)
	}

	if err := s.backend.Cycle(); err != nil {
		s.log.Error("window cycle failed", "error", err)
		s.markClosed()
	}
	if s.backend.Closed() {
		s.markClosed()
	}
	s.cycles.Add(1)
}

func (s *Service) markClosed() {
	s.closeOnce.Do(func() {
		s.log.Info("window closed")
		close(s.closed)
	})
}

// Tick runs the simulation side of one frame, on the simulation thread
// Returns false when the frame was skipped (ThreadLoop under contention) or the service is not running
func (s *Service) Tick() bool {
	if !s.running() {
		return false
	}
	if s.mode.Threaded() {
		return s.gate.Sync()
	}
	s.cycle()
	return true
}

func (s *Service) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

// Stop implements service.Service
// ThreadLoop: releases the gate and joins the render thread before finalizing the backend
// A second Stop is a no-op
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateIdle:
		return ErrNotStarted
	case stateStopped:
		return nil
	}
	s.state = stateStopped

	if s.mode.Threaded() {
		s.gate.Release()
	}
	<-s.done

	s.backend.Fini()
	if n := s.sched.Close(schedule.ErrClosed); n > 0 {
		s.log.Warn("window actions dropped at shutdown", "count", n)
	}

	s.log.Debug("window stopped", "cycles", s.cycles.Load())
	return nil
}

// Schedule queues action for the window thread, from any goroutine
func (s *Service) Schedule(action func()) *schedule.Handle[struct{}] {
	return s.sched.Schedule(action)
}

// Call queues fn for the window thread and returns a handle to its result
func Call[T any](s *Service, fn func() (T, error)) *schedule.Handle[T] {
	return schedule.Call(s.sched, fn)
}

// Closed is closed once the backend asks to quit or a cycle fails
func (s *Service) Closed() <-chan struct{} {
	return s.closed
}

// OnSkip registers an observer for frame-skip transitions, called on the simulation thread
func (s *Service) OnSkip(fn func(skipping bool)) {
	s.observerMu.Lock()
	s.observers = append(s.observers, fn)
	s.observerMu.Unlock()
}

func (s *Service) notifySkip(skipping bool) {
	s.observerMu.Lock()
	observers := s.observers
	s.observerMu.Unlock()

	for _, fn := range observers {
		fn(skipping)
	}
}

// Mode returns the configured mode
func (s *Service) Mode() Mode {
	return s.mode
}

// Cycles returns the number of completed window cycles
func (s *Service) Cycles() int64 {
	return s.cycles.Load()
}

// Stats returns gate counters; inline modes report every cycle as granted
func (s *Service) Stats() gate.Stats {
	if s.gate != nil {
		return s.gate.Stats()
	}
	n := s.cycles.Load()
	return gate.Stats{Granted: n, Cycles: n}
}
