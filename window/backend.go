package window

import "sync/atomic"

// Backend is the thread-affine window collaborator
// Every method is called on the thread that owns the window: the render thread in
// ModeThreadLoop, the simulation thread otherwise. Fini runs only after that thread
// has stopped cycling
type Backend interface {
	// Init creates the window
	Init() error
	// Cycle performs one input-poll and render pass
	Cycle() error
	// Fini releases the window
	Fini()
	// Closed reports whether the window asked to quit
	Closed() bool
}

// Headless is a Backend with no window, used for tests and servers
// Draw, when set, runs once per cycle
type Headless struct {
	Draw func(frame uint64)

	frames atomic.Uint64
	inits  atomic.Int32
	finis  atomic.Int32
	quit   atomic.Bool
}

// NewHeadless creates a headless backend calling draw every cycle
func NewHeadless(draw func(frame uint64)) *Headless {
	return &Headless{Draw: draw}
}

func (h *Headless) Init() error {
	h.inits.Add(1)
	return nil
}

func (h *Headless) Cycle() error {
	n := h.frames.Add(1)
	if h.Draw != nil {
		h.Draw(n)
	}
	return nil
}

func (h *Headless) Fini() {
	h.finis.Add(1)
}

func (h *Headless) Closed() bool {
	return h.quit.Load()
}

// Quit makes Closed report true from the next cycle
func (h *Headless) Quit() {
	h.quit.Store(true)
}

// Frames returns the number of completed cycles
func (h *Headless) Frames() uint64 {
	return h.frames.Load()
}

// Lifecycle returns how many times Init and Fini ran
func (h *Headless) Lifecycle() (inits, finis int) {
	return int(h.inits.Load()), int(h.finis.Load())
}
