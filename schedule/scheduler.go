package schedule

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/lixenwraith/tickgate/core"
	"github.com/lixenwraith/tickgate/status"
	"github.com/lixenwraith/tickgate/thread"
)

// pending is one queued action; run executes it and resolves its handle, fault resolves the
// handle without running it
type pending struct {
	run   func() error
	fault func(error)
}

// Scheduler is a FIFO queue of actions owned by exactly one thread
// Any goroutine may append; only the owner pumps, executing each action synchronously and
// resolving its completion handle
type Scheduler struct {
	name  string
	owner atomic.Uint64

	mu     sync.Mutex
	queue  []pending
	closed bool

	executed *atomic.Int64
	faulted  *atomic.Int64
	pumps    *atomic.Int64

	log *slog.Logger
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLogger sets the logger used to report faulted actions
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithStatus publishes scheduler counters as schedule.<name>.{executed,faulted,pumps}
func WithStatus(reg *status.Registry) Option {
	return func(s *Scheduler) {
		prefix := "schedule." + s.name
		s.executed = reg.Counter(prefix + ".executed")
		s.faulted = reg.Counter(prefix + ".faulted")
		s.pumps = reg.Counter(prefix + ".pumps")
	}
}

// New creates a scheduler; owner may be thread.None and bound later with Bind or on first pump
func New(name string, owner thread.ID, opts ...Option) *Scheduler {
	s := &Scheduler{
		name:     name,
		queue:    make([]pending, 0, 64),
		executed: new(atomic.Int64),
		faulted:  new(atomic.Int64),
		pumps:    new(atomic.Int64),
	}
	s.owner.Store(uint64(owner))
	for _, opt := range opts {
		opt(s)
	}
	s.log = core.LoggerOr(s.log).With("scheduler", name)
	return s
}

// Name returns the scheduler label used in logs and metrics
func (s *Scheduler) Name() string {
	return s.name
}

// Owner returns the owning thread, thread.None while unbound
func (s *Scheduler) Owner() thread.ID {
	return thread.ID(s.owner.Load())
}

// Bind sets the owning thread once; used by services whose thread starts after construction
func (s *Scheduler) Bind(owner thread.ID) error {
	if !owner.Valid() {
		return fmt.Errorf("schedule %q: bind to invalid thread", s.name)
	}
	if !s.owner.CompareAndSwap(uint64(thread.None), uint64(owner)) {
		return fmt.Errorf("schedule %q: %w (owner %s)", s.name, ErrOwnerAlreadyBound, s.Owner())
	}
	return nil
}

// Schedule appends action to the queue and returns its completion handle
// Callable from any thread including the owner, never blocks beyond the append
func (s *Scheduler) Schedule(action func()) *Handle[struct{}] {
	return Call(s, func() (struct{}, error) {
		action()
		return struct{}{}, nil
	})
}

// Call schedules fn on s; the handle carries fn's value or error
func Call[T any](s *Scheduler, fn func() (T, error)) *Handle[T] {
	h := newHandle[T]()
	p := pending{
		run: func() error {
			v, err := invoke(fn)
			s.continuationFault(h.resolve(v, err))
			return err
		},
		fault: func(err error) {
			var zero T
			s.continuationFault(h.resolve(zero, err))
		},
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		p.fault(ErrClosed)
		return h
	}
	s.queue = append(s.queue, p)
	s.mu.Unlock()
	return h
}

// continuationFault logs panics raised by Then continuations; draining continues
func (s *Scheduler) continuationFault(err error) {
	if err != nil {
		s.log.Warn("continuation panicked", "error", err)
	}
}

// Invoke runs fn synchronously on the calling thread with the pump's fault policy and
// returns the already resolved handle
func Invoke[T any](fn func() (T, error)) *Handle[T] {
	h := newHandle[T]()
	h.resolve(invoke(fn))
	return h
}

// invoke runs fn, converting a panic into a PanicError fault
func invoke[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// pop removes the head; the vacated slot is cleared so executed closures can be collected
func (s *Scheduler) pop() (pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return pending{}, false
	}
	p := s.queue[0]
	s.queue[0] = pending{}
	if len(s.queue) == 1 {
		s.queue = s.queue[:0]
	} else {
		s.queue = s.queue[1:]
	}
	return p, true
}

// RunOnCurrentThread drains the queue on the owning thread until it is observed empty
// Actions scheduled while the pump runs, including by the running action, execute in the
// same call. A faulted action is recorded on its handle and draining continues
// Returns the number of actions executed, or ErrWrongThread without executing anything
func (s *Scheduler) RunOnCurrentThread() (int, error) {
	me := thread.Current()
	owner := s.Owner()
	if owner == thread.None {
		if s.owner.CompareAndSwap(uint64(thread.None), uint64(me)) {
			owner = me
		} else {
			owner = s.Owner()
		}
	}
	if owner != me {
		return 0, fmt.Errorf("schedule %q: %w (owner %s, caller %s)", s.name, ErrWrongThread, owner, me)
	}

	s.pumps.Add(1)
	n := 0
	for {
		p, ok := s.pop()
		if !ok {
			break
		}
		if err := p.run(); err != nil {
			s.faulted.Add(1)
			s.log.Warn("action faulted", "error", err)
		}
		n++
	}
	s.executed.Add(int64(n))
	return n, nil
}

// Pump is an alias of RunOnCurrentThread
func (s *Scheduler) Pump() (int, error) {
	return s.RunOnCurrentThread()
}

// Close faults every pending action with err (ErrClosed when nil) and rejects new ones
// Returns the number of actions dropped; safe to call from any thread, repeated calls drop nothing
func (s *Scheduler) Close(err error) int {
	if err == nil {
		err = ErrClosed
	}

	s.mu.Lock()
	s.closed = true
	dropped := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, p := range dropped {
		p.fault(err)
	}
	if len(dropped) > 0 {
		s.log.Warn("pending actions dropped", "count", len(dropped), "error", err)
	}
	return len(dropped)
}

// Len returns the number of queued actions
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
