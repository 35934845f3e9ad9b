package window

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode selects how the window cycle is driven
type Mode int

const (
	// ModeNone drives the window inline on the simulation thread, gate never constructed
	ModeNone Mode = iota
	// ModeSync is ModeNone made explicit
	ModeSync
	// ModeThreadLoop runs the window on a dedicated OS thread behind a FrameGate
	ModeThreadLoop
)

var modeNames = [...]string{
	ModeNone:       "none",
	ModeSync:       "sync",
	ModeThreadLoop: "threadloop",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// Threaded reports whether the mode uses a dedicated render thread
func (m Mode) Threaded() bool {
	return m == ModeThreadLoop
}

// ParseMode accepts the String form case-insensitively, plus "thread-loop" and "thread_loop"
func ParseMode(s string) (Mode, error) {
	norm := strings.NewReplacer("-", "", "_", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	for m, name := range modeNames {
		if norm == name {
			return Mode(m), nil
		}
	}
	return ModeNone, fmt.Errorf("unknown window mode %q", s)
}

// MarshalYAML implements yaml.Marshaler
func (m Mode) MarshalYAML() (any, error) {
	return m.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (m *Mode) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
