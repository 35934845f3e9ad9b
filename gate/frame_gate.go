package gate

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/lixenwraith/tickgate/core"
	"github.com/lixenwraith/tickgate/status"
)

// DefaultMaxFrameDuration bounds how long a simulation tick waits for the render thread, ~30Hz
const DefaultMaxFrameDuration = 33 * time.Millisecond

// FrameGate keeps a simulation thread and a dedicated render thread in lock-step one cycle at
// a time, degrading a slow render cycle into a skipped handshake instead of a stalled tick
//
// Render thread:     RenderReady.Set -> MainDone.Wait(forever) -> cycle -> repeat
// Simulation thread: RenderReady.Wait(MaxFrameDuration) -> MainDone.Set on success
//
// Every RenderReady.Set is consumed by exactly one successful Wait, so render cycles are
// delayed under load but never dropped or duplicated
type FrameGate struct {
	renderReady *Signal
	mainDone    *Signal

	maxFrame time.Duration
	stopping atomic.Bool

	// granted - cycles is 0 or 1 at all times: a grant needs a RenderReady which the loop
	// raises only after finishing the previous cycle
	granted  *atomic.Int64
	cycles   *atomic.Int64
	skips    *atomic.Int64
	skipRuns *atomic.Int64
	skipping *atomic.Bool

	// Owned by the simulation thread, rate-limits skip logging only
	lastSkipped bool
	onSkip      func(skipping bool)

	log *slog.Logger
}

// Stats is a point-in-time copy of gate counters
type Stats struct {
	Granted  int64 // Successful handshakes
	Cycles   int64 // Render cycles completed
	Skips    int64 // Ticks that timed out waiting for RenderReady
	SkipRuns int64 // Consecutive-skip runs, one log line each
}

// Option configures a FrameGate
type Option func(*FrameGate)

// WithLogger sets the logger used for skip transitions
func WithLogger(l *slog.Logger) Option {
	return func(g *FrameGate) { g.log = l }
}

// WithStatus mirrors gate counters into a metrics registry under prefix
func WithStatus(reg *status.Registry, prefix string) Option {
	return func(g *FrameGate) {
		g.granted = reg.Counter(prefix + ".granted")
		g.cycles = reg.Counter(prefix + ".cycles")
		g.skips = reg.Counter(prefix + ".skips")
		g.skipRuns = reg.Counter(prefix + ".skip_runs")
		g.skipping = reg.Flag(prefix + ".skipping")
	}
}

// WithSkipObserver registers a callback for skip-run transitions, invoked on the
// simulation thread with true when a run starts and false when it ends
func WithSkipObserver(fn func(skipping bool)) Option {
	return func(g *FrameGate) { g.onSkip = fn }
}

// NewFrameGate creates an idle gate; maxFrame <= 0 selects DefaultMaxFrameDuration
func NewFrameGate(maxFrame time.Duration, opts ...Option) *FrameGate {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameDuration
	}
	g := &FrameGate{
		renderReady: NewSignal(),
		mainDone:    NewSignal(),
		maxFrame:    maxFrame,
		granted:     new(atomic.Int64),
		cycles:      new(atomic.Int64),
		skips:       new(atomic.Int64),
		skipRuns:    new(atomic.Int64),
		skipping:    new(atomic.Bool),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = core.LoggerOr(g.log)
	return g
}

// MaxFrameDuration returns the per-tick wait bound
func (g *FrameGate) MaxFrameDuration() time.Duration {
	return g.maxFrame
}

// Run is the render-thread loop, returns after Release once any granted cycle has completed
func (g *FrameGate) Run(cycle func()) {
	for {
		g.renderReady.Set()
		g.mainDone.Wait(Forever)

		// A grant racing with Release still gets its cycle, otherwise grants and cycles
		// would disagree after shutdown
		if g.granted.Load() > g.cycles.Load() {
			cycle()
			g.cycles.Add(1)
		}

		if g.stopping.Load() {
			return
		}
	}
}

// Sync performs the simulation side of one tick's handshake
// Returns true when the render thread was released for one cycle, false on a frame skip
// Never blocks longer than MaxFrameDuration
func (g *FrameGate) Sync() bool {
	if g.stopping.Load() {
		return false
	}

	if !g.renderReady.Wait(g.maxFrame) {
		g.skips.Add(1)
		if !g.lastSkipped {
			g.lastSkipped = true
			g.skipping.Store(true)
			g.skipRuns.Add(1)
			g.log.Warn("frame skip: render thread behind",
				"max_frame", g.maxFrame,
				"granted", g.granted.Load(),
				"cycles", g.cycles.Load(),
			)
			if g.onSkip != nil {
				g.onSkip(true)
			}
		}
		return false
	}

	g.granted.Add(1)
	g.mainDone.Set()

	if g.lastSkipped {
		g.lastSkipped = false
		g.skipping.Store(false)
		g.log.Info("frame skip run recovered", "skips", g.skips.Load())
		if g.onSkip != nil {
			g.onSkip(false)
		}
	}
	return true
}

// Release requests the render loop to stop and wakes it from its unbounded wait
// The caller must still join the render thread before tearing down shared resources
func (g *FrameGate) Release() {
	g.stopping.Store(true)
	g.mainDone.Set()
}

// Stopping reports whether Release was called
func (g *FrameGate) Stopping() bool {
	return g.stopping.Load()
}

// Stats returns a snapshot of the gate counters
func (g *FrameGate) Stats() Stats {
	return Stats{
		Granted:  g.granted.Load(),
		Cycles:   g.cycles.Load(),
		Skips:    g.skips.Load(),
		SkipRuns: g.skipRuns.Load(),
	}
}
