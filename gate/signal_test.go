package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignalCoalescesPulses(t *testing.T) {
	s := NewSignal()
	s.Set()
	s.Set()
	assert.True(t, s.IsSet())

	assert.True(t, s.Wait(0), "first wait consumes the signal")
	assert.False(t, s.Wait(0), "second set before consume must not queue a pulse")
	assert.False(t, s.IsSet())
}

func TestSignalWaitTimeout(t *testing.T) {
	s := NewSignal()
	start := time.Now()
	assert.False(t, s.Wait(15*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)

	// A timed-out wait consumes nothing
	s.Set()
	assert.True(t, s.Wait(15*time.Millisecond))
}

func TestSignalWaitForeverReleasedBySet(t *testing.T) {
	s := NewSignal()
	woke := make(chan bool, 1)
	go func() { woke <- s.Wait(Forever) }()

	time.Sleep(5 * time.Millisecond)
	s.Set()

	select {
	case ok := <-woke:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("waiter not released")
	}
}

func TestSignalWaitContext(t *testing.T) {
	s := NewSignal()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.False(t, s.WaitContext(ctx))

	s.Set()
	assert.True(t, s.WaitContext(context.Background()))
}
