package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixenwraith/tickgate/status"
	"github.com/lixenwraith/tickgate/thread"
)

// lockOwner pins the test goroutine so it can own a scheduler
func lockOwner(t *testing.T) thread.ID {
	t.Helper()
	id := thread.Lock()
	t.Cleanup(thread.Unlock)
	return id
}

func TestSchedulerFIFO(t *testing.T) {
	owner := lockOwner(t)
	s := New("fifo", owner)

	var got []int
	for i := 0; i < 100; i++ {
		s.Schedule(func() { got = append(got, i) })
	}
	assert.Equal(t, 100, s.Len())

	n, err := s.RunOnCurrentThread()
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	for i, v := range got {
		require.Equal(t, i, v)
	}
	assert.Zero(t, s.Len())
}

func TestSchedulerConcurrentProducersExactlyOnce(t *testing.T) {
	owner := lockOwner(t)
	s := New("producers", owner)

	const producers, perProducer = 8, 500
	var mu sync.Mutex
	seen := make(map[[2]int]int)
	lastSeq := make([]int, producers)
	for i := range lastSeq {
		lastSeq[i] = -1
	}

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				s.Schedule(func() {
					mu.Lock()
					defer mu.Unlock()
					seen[[2]int{p, i}]++
					// Per-producer enqueue order is preserved
					assert.Equal(t, lastSeq[p]+1, i)
					lastSeq[p] = i
				})
			}
		}()
	}

	// Pump concurrently with producers, then drain the rest
	total := 0
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		n, err := s.RunOnCurrentThread()
		require.NoError(t, err)
		total += n
	}
	n, err := s.RunOnCurrentThread()
	require.NoError(t, err)
	total += n

	assert.Equal(t, producers*perProducer, total)
	assert.Len(t, seen, producers*perProducer)
	for key, count := range seen {
		require.Equal(t, 1, count, "action %v executed %d times", key, count)
	}
}

func TestSchedulerLiveDrain(t *testing.T) {
	owner := lockOwner(t)
	s := New("live", owner)

	var order []string
	s.Schedule(func() {
		order = append(order, "first")
		s.Schedule(func() {
			order = append(order, "follow-up")
			s.Schedule(func() { order = append(order, "nested") })
		})
	})
	s.Schedule(func() { order = append(order, "second") })

	n, err := s.Pump()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"first", "second", "follow-up", "nested"}, order)
}

func TestSchedulerFaultIsolation(t *testing.T) {
	owner := lockOwner(t)
	reg := status.NewRegistry()
	s := New("faults", owner, WithStatus(reg))

	boom := errors.New("boom")
	ran := 0
	h1 := Call(s, func() (int, error) { return 0, boom })
	h2 := s.Schedule(func() { panic("kaboom") })
	h3 := Call(s, func() (string, error) { ran++; return "ok", nil })

	n, err := s.RunOnCurrentThread()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, ran, "draining continues after a fault")

	_, err = h1.Wait()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateFaulted, h1.State())

	_, err = h2.Wait()
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.NotEmpty(t, pe.Stack)

	v, err := h3.Wait()
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, StateCompleted, h3.State())

	snap := reg.Snapshot()
	assert.Equal(t, int64(3), snap["schedule.faults.executed"])
	assert.Equal(t, int64(2), snap["schedule.faults.faulted"])
	assert.Equal(t, int64(1), snap["schedule.faults.pumps"])
}

func TestSchedulerPanicErrorUnwraps(t *testing.T) {
	owner := lockOwner(t)
	s := New("unwrap", owner)
	sentinel := errors.New("inner")
	h := s.Schedule(func() { panic(sentinel) })

	_, err := s.Pump()
	require.NoError(t, err)
	_, err = h.Wait()
	assert.ErrorIs(t, err, sentinel)
}

func TestSchedulerWrongThread(t *testing.T) {
	owner := lockOwner(t)
	s := New("owned", owner)
	executed := false
	s.Schedule(func() { executed = true })

	errc := make(chan error, 1)
	go func() {
		thread.Lock()
		defer thread.Unlock()
		_, err := s.RunOnCurrentThread()
		errc <- err
	}()

	assert.ErrorIs(t, <-errc, ErrWrongThread)
	assert.False(t, executed)
	assert.Equal(t, 1, s.Len(), "misuse must not consume the queue")

	n, err := s.RunOnCurrentThread()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSchedulerBind(t *testing.T) {
	s := New("late", thread.None)
	assert.Equal(t, thread.None, s.Owner())
	assert.Error(t, s.Bind(thread.None))

	owner := lockOwner(t)
	require.NoError(t, s.Bind(owner))
	assert.ErrorIs(t, s.Bind(owner), ErrOwnerAlreadyBound)
	assert.Equal(t, owner, s.Owner())
}

func TestSchedulerBindsOnFirstPump(t *testing.T) {
	s := New("lazy", thread.None)
	owner := lockOwner(t)

	_, err := s.Pump()
	require.NoError(t, err)
	assert.Equal(t, owner, s.Owner())
}

func TestSchedulerClose(t *testing.T) {
	owner := lockOwner(t)
	s := New("closing", owner)

	h := s.Schedule(func() { t.Error("dropped action must not run") })
	assert.Equal(t, 1, s.Close(nil))
	_, err := h.Wait()
	assert.ErrorIs(t, err, ErrClosed)

	late := s.Schedule(func() { t.Error("late action must not run") })
	assert.Equal(t, StateFaulted, late.State())

	n, err := s.Pump()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, s.Close(nil))
}

func TestHandleCrossThreadWait(t *testing.T) {
	owner := lockOwner(t)
	s := New("wait", owner)

	h := Call(s, func() (int, error) { return 42, nil })
	result := make(chan int, 1)
	go func() {
		v, err := h.Wait()
		assert.NoError(t, err)
		result <- v
	}()

	_, resolved, _ := h.TryResult()
	assert.False(t, resolved)

	_, err := s.Pump()
	require.NoError(t, err)
	assert.Equal(t, 42, <-result)
}

func TestHandleWaitContext(t *testing.T) {
	s := New("ctx", thread.None)
	h := s.Schedule(func() {})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := h.WaitContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatePending, h.State())
}

func TestHandleThen(t *testing.T) {
	owner := lockOwner(t)
	s := New("then", owner)

	var calls []string
	h := Call(s, func() (string, error) { return "v", nil })
	h.Then(func(v string, err error) {
		assert.Equal(t, owner, thread.Current(), "continuation runs on the resolving thread")
		calls = append(calls, "pending:"+v)
	})

	_, err := s.Pump()
	require.NoError(t, err)

	h.Then(func(v string, err error) { calls = append(calls, "resolved:"+v) })
	assert.Equal(t, []string{"pending:v", "resolved:v"}, calls)
}

func TestPanickingContinuationKeepsDraining(t *testing.T) {
	owner := lockOwner(t)
	reg := status.NewRegistry()
	s := New("then-panic", owner, WithStatus(reg))

	var calls []string
	first := s.Schedule(func() { calls = append(calls, "first") })
	first.Then(func(struct{}, error) { panic("continuation") })
	first.Then(func(struct{}, error) { calls = append(calls, "then") })
	second := s.Schedule(func() { calls = append(calls, "second") })

	var (
		n   int
		err error
	)
	require.NotPanics(t, func() { n, err = s.Pump() })
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"first", "then", "second"}, calls)
	assert.Zero(t, s.Len())

	// The action itself succeeded; only its continuation panicked
	_, err = first.Wait()
	assert.NoError(t, err)
	assert.Equal(t, StateCompleted, second.State())

	snap := reg.Snapshot()
	assert.Equal(t, int64(2), snap["schedule.then-panic.executed"])
	assert.Equal(t, int64(0), snap["schedule.then-panic.faulted"])
}

func TestPreResolvedHandles(t *testing.T) {
	v, err := Completed(7).Wait()
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	boom := errors.New("boom")
	_, err = Faulted[int](boom).Wait()
	assert.ErrorIs(t, err, boom)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Pending", StatePending.String())
	assert.Equal(t, "Completed", StateCompleted.String())
	assert.Equal(t, "Faulted", StateFaulted.String())
	assert.Equal(t, "Unknown", State(9).String())
}

func TestInvokeRunsSynchronously(t *testing.T) {
	ran := false
	h := Invoke(func() (bool, error) { ran = true; return true, nil })
	assert.True(t, ran)
	v, ok, err := h.TryResult()
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.True(t, v)

	faulted := Invoke(func() (int, error) { panic("inline") })
	assert.Equal(t, StateFaulted, faulted.State())
}
