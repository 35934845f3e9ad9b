package audio

import (
	"fmt"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
)

// Cue is a short diagnostic sound
type Cue int

const (
	// CueSkip marks the start of a frame-skip run
	CueSkip Cue = iota
	// CueRecover marks the end of a frame-skip run
	CueRecover
	// CueTick is a metronome click
	CueTick
)

func (c Cue) String() string {
	switch c {
	case CueSkip:
		return "skip"
	case CueRecover:
		return "recover"
	case CueTick:
		return "tick"
	default:
		return fmt.Sprintf("Cue(%d)", int(c))
	}
}

// Cue lengths, also the upper bound a cue stays in the mixer
const (
	skipDuration    = 120 * time.Millisecond
	recoverDuration = 60 * time.Millisecond // Per note
	tickDuration    = 25 * time.Millisecond
)

// Duration returns how long the cue plays
func (c Cue) Duration() time.Duration {
	switch c {
	case CueSkip:
		return skipDuration
	case CueRecover:
		return 2 * recoverDuration
	case CueTick:
		return tickDuration
	default:
		return 0
	}
}

// build returns a fresh streamer for the cue at master volume vol
func (c Cue) build(rate beep.SampleRate, vol float64) (beep.Streamer, error) {
	switch c {
	case CueSkip:
		// Low saw buzz
		return newVolume(tone(110, skipDuration, WaveSaw, rate), 0.4*vol), nil

	case CueRecover:
		// Rising two-note chime
		return newVolume(beep.Seq(
			tone(660, recoverDuration, WaveSine, rate),
			tone(990, recoverDuration, WaveSine, rate),
		), 0.5*vol), nil

	case CueTick:
		sine, err := generators.SineTone(rate, 1320)
		if err != nil {
			return nil, fmt.Errorf("tick cue: %w", err)
		}
		return newVolume(beep.Take(rate.N(tickDuration), sine), 0.2*vol), nil

	default:
		return nil, fmt.Errorf("unknown cue %d", int(c))
	}
}
