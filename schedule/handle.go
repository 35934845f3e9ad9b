package schedule

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

// State is the lifecycle of a completion handle
type State uint8

const (
	StatePending State = iota
	StateCompleted
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateCompleted:
		return "Completed"
	case StateFaulted:
		return "Faulted"
	default:
		return "Unknown"
	}
}

// PanicError is the fault recorded for an action that panicked
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("action panicked: %v", e.Value)
}

// Unwrap exposes a panicked error value to errors.Is/As
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Handle is the completion handle of a scheduled action
// Transitions Pending -> Completed(value) or Pending -> Faulted(err) exactly once, written
// only by the pump of the owning thread; any goroutine may wait or poll
type Handle[T any] struct {
	done chan struct{}

	mu    sync.Mutex
	state State
	value T
	err   error
	then  []func(T, error)
}

func newHandle[T any]() *Handle[T] {
	return &Handle[T]{done: make(chan struct{})}
}

// Completed returns an already resolved handle carrying v
func Completed[T any](v T) *Handle[T] {
	h := newHandle[T]()
	h.resolve(v, nil)
	return h
}

// Faulted returns an already faulted handle
func Faulted[T any](err error) *Handle[T] {
	h := newHandle[T]()
	var zero T
	h.resolve(zero, err)
	return h
}

// resolve records the outcome and runs continuations on the calling thread
// A panicking continuation does not stop the others; the panics are returned joined
// A second resolve is a pump bug and panics
func (h *Handle[T]) resolve(v T, err error) error {
	h.mu.Lock()
	if h.state != StatePending {
		h.mu.Unlock()
		panic("schedule: handle resolved twice")
	}
	if err != nil {
		h.state = StateFaulted
		h.err = err
	} else {
		h.state = StateCompleted
		h.value = v
	}
	then := h.then
	h.then = nil
	h.mu.Unlock()

	close(h.done)
	var errs []error
	for _, fn := range then {
		if perr := runContinuation(fn, v, err); perr != nil {
			errs = append(errs, perr)
		}
	}
	return errors.Join(errs...)
}

// runContinuation calls fn, converting a panic into a PanicError
func runContinuation[T any](fn func(T, error), v T, err error) (perr error) {
	defer func() {
		if r := recover(); r != nil {
			perr = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	fn(v, err)
	return nil
}

// Done is closed once the handle leaves Pending
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// State reports the current state without blocking
func (h *Handle[T]) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// TryResult polls the handle, ok is false while Pending
func (h *Handle[T]) TryResult() (value T, ok bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StatePending {
		return value, false, nil
	}
	return h.value, true, h.err
}

// Wait blocks until the action ran on its owning thread
// Waiting from the owning thread itself before it pumps deadlocks
func (h *Handle[T]) Wait() (T, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value, h.err
}

// WaitContext is Wait with cancellation; ctx.Err is returned if ctx ends first
func (h *Handle[T]) WaitContext(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		return h.Wait()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then registers a continuation run on the resolving thread, or inline if already resolved
func (h *Handle[T]) Then(fn func(T, error)) {
	h.mu.Lock()
	if h.state == StatePending {
		h.then = append(h.then, fn)
		h.mu.Unlock()
		return
	}
	v, err := h.value, h.err
	h.mu.Unlock()
	fn(v, err)
}
