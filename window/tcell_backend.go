package window

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
)

// DrawFunc renders one frame onto the screen; the screen is cleared before and shown after
type DrawFunc func(screen tcell.Screen, frame uint64)

// KeyFunc receives key events not consumed by the quit bindings
type KeyFunc func(ev *tcell.EventKey)

// TcellBackend drives a terminal screen from the window thread
// Input is polled without blocking: pending events are drained at the start of each cycle
type TcellBackend struct {
	screen tcell.Screen
	draw   DrawFunc
	onKey  KeyFunc

	width, height int
	frame         uint64
	closed        atomic.Bool

	inited   atomic.Bool
	finiOnce sync.Once
}

// NewTcellBackend wraps screen, nil opens the controlling terminal on Init
func NewTcellBackend(screen tcell.Screen, draw DrawFunc) *TcellBackend {
	return &TcellBackend{screen: screen, draw: draw}
}

// OnKey registers a key handler, must be called before Start
func (b *TcellBackend) OnKey(fn KeyFunc) {
	b.onKey = fn
}

func (b *TcellBackend) Init() error {
	if b.screen == nil {
		screen, err := tcell.NewScreen()
		if err != nil {
			return fmt.Errorf("tcell screen: %w", err)
		}
		b.screen = screen
	}

	if err := b.screen.Init(); err != nil {
		return fmt.Errorf("tcell init: %w", err)
	}
	b.screen.HideCursor()
	b.screen.Clear()
	b.width, b.height = b.screen.Size()
	b.inited.Store(true)
	return nil
}

func (b *TcellBackend) Cycle() error {
	for b.screen.HasPendingEvent() {
		ev := b.screen.PollEvent()
		if ev == nil {
			// Screen finalized underneath us
			b.closed.Store(true)
			return nil
		}
		b.handleEvent(ev)
	}

	b.frame++
	b.screen.Clear()
	if b.draw != nil {
		b.draw(b.screen, b.frame)
	}
	b.screen.Show()
	return nil
}

func (b *TcellBackend) handleEvent(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if quitKey(ev) {
			b.closed.Store(true)
			return
		}
		if b.onKey != nil {
			b.onKey(ev)
		}

	case *tcell.EventResize:
		b.width, b.height = b.screen.Size()
		b.screen.Sync()
	}
}

// quitKey reports Esc, Ctrl-C, Ctrl-Q or a plain q
func quitKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC, tcell.KeyCtrlQ:
		return true
	case tcell.KeyRune:
		return ev.Rune() == 'q' && ev.Modifiers()&(tcell.ModCtrl|tcell.ModAlt) == 0
	}
	return false
}

// Fini restores the terminal once; safe from any goroutine, including a crash handler
func (b *TcellBackend) Fini() {
	if !b.inited.Load() {
		return
	}
	b.finiOnce.Do(b.screen.Fini)
}

func (b *TcellBackend) Closed() bool {
	return b.closed.Load()
}

// Size returns the screen size observed on the window thread
func (b *TcellBackend) Size() (int, int) {
	return b.width, b.height
}

// Screen exposes the wrapped screen, only safe to touch from the window thread
func (b *TcellBackend) Screen() tcell.Screen {
	return b.screen
}
