package window

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/lixenwraith/tickgate/dispatch"
	"github.com/lixenwraith/tickgate/schedule"
	"github.com/lixenwraith/tickgate/status"
	"github.com/lixenwraith/tickgate/thread"
)

type testHost struct {
	reg *dispatch.Registry
	st  *status.Registry
}

func (h testHost) Dispatch() *dispatch.Registry { return h.reg }
func (h testHost) Status() *status.Registry     { return h.st }
func (h testHost) Logger() *slog.Logger         { return nil }

// newMain pins the test goroutine as the main thread and returns a registered host
func newMain(t *testing.T) (testHost, thread.ID) {
	t.Helper()
	id := thread.Lock()
	t.Cleanup(thread.Unlock)

	h := testHost{reg: dispatch.New(), st: status.NewRegistry()}
	require.NoError(t, h.reg.SetMainThreadIdentity(id))
	return h, id
}

func startService(t *testing.T, mode Mode, backend Backend, opts ...Option) (*Service, testHost, thread.ID) {
	t.Helper()
	h, main := newMain(t)
	svc := New(mode, backend, opts...)
	require.NoError(t, svc.Init(h))
	require.NoError(t, svc.Start())
	return svc, h, main
}

// tickUntil ticks until a frame is granted or the deadline passes
func tickUntil(svc *Service, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if svc.Tick() {
			return true
		}
	}
	return false
}

func TestModeEquivalence(t *testing.T) {
	const ticks = 50

	for _, mode := range []Mode{ModeNone, ModeSync, ModeThreadLoop} {
		t.Run(mode.String(), func(t *testing.T) {
			var counter atomic.Int64
			backend := NewHeadless(func(uint64) { counter.Add(1) })
			svc, _, _ := startService(t, mode, backend, WithMaxFrameDuration(time.Second))

			for i := 0; i < ticks; i++ {
				require.True(t, svc.Tick(), "tick %d skipped without contention", i)
			}
			require.NoError(t, svc.Stop())

			assert.EqualValues(t, ticks, counter.Load())
			assert.EqualValues(t, ticks, backend.Frames())
			stats := svc.Stats()
			assert.EqualValues(t, ticks, stats.Granted)
			assert.EqualValues(t, ticks, stats.Cycles)
			assert.Zero(t, stats.Skips)
		})
	}
}

func TestThreadLoopRunsOnRenderThread(t *testing.T) {
	var drawThread atomic.Uint64
	backend := NewHeadless(func(uint64) { drawThread.Store(uint64(thread.Current())) })
	svc, h, main := startService(t, ModeThreadLoop, backend, WithMaxFrameDuration(time.Second))
	defer svc.Stop()

	render := h.reg.RenderThreadIdentity()
	require.True(t, render.Valid())
	assert.NotEqual(t, main, render)

	// Main thread is not the render thread: deferred until the next granted cycle
	var ranOn atomic.Uint64
	handle := h.reg.ExecuteOnRender(func() { ranOn.Store(uint64(thread.Current())) })
	assert.Equal(t, schedule.StatePending, handle.State())

	require.True(t, svc.Tick())
	_, err := handle.Wait()
	require.NoError(t, err)

	assert.Equal(t, uint64(render), ranOn.Load())

	// Cycle may still be finishing concurrently with this tick
	require.True(t, svc.Tick())
	assert.Equal(t, uint64(render), drawThread.Load())
}

func TestInlineModeRenderIsMain(t *testing.T) {
	svc, h, main := startService(t, ModeSync, NewHeadless(nil))
	defer svc.Stop()

	assert.Equal(t, main, h.reg.RenderThreadIdentity())
	assert.True(t, h.reg.IsRenderThread())

	var ran bool
	handle := h.reg.ExecuteOnRender(func() { ran = true })
	assert.True(t, ran, "render work on the main thread runs inline")
	assert.Equal(t, schedule.StateCompleted, handle.State())
}

func TestCallReturnsValueFromWindowThread(t *testing.T) {
	svc, h, _ := startService(t, ModeThreadLoop, NewHeadless(nil), WithMaxFrameDuration(time.Second))
	defer svc.Stop()

	handle := Call(svc, func() (thread.ID, error) { return thread.Current(), nil })
	scheduled := svc.Schedule(func() {})

	require.True(t, svc.Tick())

	id, err := handle.Wait()
	require.NoError(t, err)
	assert.Equal(t, h.reg.RenderThreadIdentity(), id)

	_, err = scheduled.Wait()
	assert.NoError(t, err)
}

func TestServiceLifecycle(t *testing.T) {
	for _, mode := range []Mode{ModeSync, ModeThreadLoop} {
		t.Run(mode.String(), func(t *testing.T) {
			h, _ := newMain(t)
			backend := NewHeadless(nil)
			svc := New(mode, backend, WithMaxFrameDuration(time.Second))

			assert.ErrorIs(t, svc.Start(), ErrNotInitialized)
			require.NoError(t, svc.Init(h))
			assert.ErrorIs(t, svc.Stop(), ErrNotStarted)

			require.NoError(t, svc.Start())
			assert.ErrorIs(t, svc.Start(), ErrAlreadyStarted)

			// Never executed: no cycle is granted before Stop
			pending := svc.Schedule(func() { t.Error("ran after stop") })

			require.NoError(t, svc.Stop())
			require.NoError(t, svc.Stop(), "second stop is a no-op")

			inits, finis := backend.Lifecycle()
			assert.Equal(t, 1, inits)
			assert.Equal(t, 1, finis)

			_, err := pending.Wait()
			assert.ErrorIs(t, err, schedule.ErrClosed)

			assert.False(t, svc.Tick(), "no frames after stop")
			late := svc.Schedule(func() {})
			assert.Equal(t, schedule.StateFaulted, late.State())
		})
	}
}

func TestThreadLoopStopJoinsRenderThread(t *testing.T) {
	var inCycle atomic.Bool
	backend := NewHeadless(func(uint64) {
		inCycle.Store(true)
		time.Sleep(20 * time.Millisecond)
		inCycle.Store(false)
	})
	svc, _, _ := startService(t, ModeThreadLoop, backend, WithMaxFrameDuration(time.Second))

	require.True(t, svc.Tick())
	require.NoError(t, svc.Stop())

	// The granted cycle completed before Stop returned
	assert.False(t, inCycle.Load())
	assert.EqualValues(t, 1, backend.Frames())
	select {
	case <-svc.done:
	default:
		t.Fatal("render thread still running after Stop")
	}
}

func TestClosedOnBackendQuit(t *testing.T) {
	backend := NewHeadless(nil)
	svc, _, _ := startService(t, ModeSync, backend)
	defer svc.Stop()

	svc.Tick()
	select {
	case <-svc.Closed():
		t.Fatal("closed before quit")
	default:
	}

	backend.Quit()
	svc.Tick()
	select {
	case <-svc.Closed():
	default:
		t.Fatal("quit not observed")
	}
}

type failingBackend struct{ Headless }

func (f *failingBackend) Cycle() error { return errors.New("device lost") }

func TestCycleErrorClosesWindow(t *testing.T) {
	svc, _, _ := startService(t, ModeThreadLoop, &failingBackend{}, WithMaxFrameDuration(time.Second))
	defer svc.Stop()

	require.True(t, svc.Tick())
	select {
	case <-svc.Closed():
	case <-time.After(time.Second):
		t.Fatal("cycle error did not close the window")
	}
}

type initFailBackend struct{ Headless }

func (f *initFailBackend) Init() error { return errors.New("no display") }

func TestStartFailureIsTerminal(t *testing.T) {
	for _, mode := range []Mode{ModeSync, ModeThreadLoop} {
		t.Run(mode.String(), func(t *testing.T) {
			h, _ := newMain(t)
			svc := New(mode, &initFailBackend{})
			require.NoError(t, svc.Init(h))

			err := svc.Start()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "no display")

			assert.ErrorIs(t, svc.Start(), ErrAlreadyStarted)
			assert.NoError(t, svc.Stop())
		})
	}
}

func TestSkipObserver(t *testing.T) {
	backend := NewHeadless(func(frame uint64) {
		if frame == 1 {
			time.Sleep(60 * time.Millisecond)
		}
	})
	h, _ := newMain(t)
	svc := New(ModeThreadLoop, backend, WithMaxFrameDuration(5*time.Millisecond))

	var transitions []bool
	svc.OnSkip(func(skipping bool) { transitions = append(transitions, skipping) })

	require.NoError(t, svc.Init(h))
	require.NoError(t, svc.Start())
	defer svc.Stop()

	require.True(t, tickUntil(svc, time.Second), "first frame never granted")
	before := svc.Stats()
	transitions = nil

	// Render thread is stuck in frame 1, the next tick times out
	assert.False(t, svc.Tick())
	require.True(t, tickUntil(svc, time.Second), "render thread never recovered")

	assert.Equal(t, []bool{true, false}, transitions)

	stats := svc.Stats()
	assert.Greater(t, stats.Skips, before.Skips)
	assert.Equal(t, before.SkipRuns+1, stats.SkipRuns)

	snap := h.st.Snapshot()
	assert.Equal(t, stats.Skips, snap["gate.skips"])
	assert.Equal(t, int64(0), snap["gate.skipping"])
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"none":          ModeNone,
		"Sync":          ModeSync,
		"threadloop":    ModeThreadLoop,
		"thread-loop":   ModeThreadLoop,
		" THREAD_LOOP ": ModeThreadLoop,
	}
	for in, want := range cases {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMode("vsync")
	assert.Error(t, err)
	assert.Equal(t, "Mode(9)", Mode(9).String())
}

func TestModeYAML(t *testing.T) {
	type doc struct {
		Mode Mode `yaml:"mode"`
	}

	out, err := yaml.Marshal(doc{Mode: ModeThreadLoop})
	require.NoError(t, err)
	assert.Equal(t, "mode: threadloop\n", string(out))

	var d doc
	require.NoError(t, yaml.Unmarshal([]byte("mode: sync\n"), &d))
	assert.Equal(t, ModeSync, d.Mode)

	assert.Error(t, yaml.Unmarshal([]byte("mode: turbo\n"), &d))
}
