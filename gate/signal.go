package gate

import (
	"context"
	"time"
)

// Forever disables the timeout of Signal.Wait
const Forever time.Duration = -1

// Signal is a cross-thread binary flag with auto-reset on consume
// Set is idempotent: pulses are not queued, a signal set twice before a successful Wait
// releases exactly one waiter once
type Signal struct {
	ch chan struct{}
}

// NewSignal creates an unset signal
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Set raises the signal, never blocks
func (s *Signal) Set() {
	select {
	case s.ch <- struct{}{}:
	default:
		// Already set, coalesce
	}
}

// Wait blocks until the signal is set or timeout elapses, consuming it on success
// timeout < 0 waits forever, timeout == 0 is a non-blocking check
func (s *Signal) Wait(timeout time.Duration) bool {
	switch {
	case timeout < 0:
		<-s.ch
		return true
	case timeout == 0:
		select {
		case <-s.ch:
			return true
		default:
			return false
		}
	}

	// Fast path avoids a timer allocation when already set
	select {
	case <-s.ch:
		return true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.ch:
		return true
	case <-timer.C:
		return false
	}
}

// WaitContext blocks until the signal is set or ctx is done
func (s *Signal) WaitContext(ctx context.Context) bool {
	select {
	case <-s.ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// IsSet reports the current state without consuming it, diagnostics only
func (s *Signal) IsSet() bool {
	return len(s.ch) == 1
}
