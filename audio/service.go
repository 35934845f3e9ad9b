// Package audio plays short cues through a beep mixer owned by the main thread
package audio

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"

	"github.com/lixenwraith/tickgate/core"
	"github.com/lixenwraith/tickgate/schedule"
	"github.com/lixenwraith/tickgate/service"
	"github.com/lixenwraith/tickgate/thread"
)

// Name is the hub name of the audio service
const Name = "audio"

// Service mixes cues requested from any goroutine
// Requests are marshalled onto the main thread through the service scheduler and
// applied when the engine calls Update, so the mixer has a single writer
// Handles graceful degradation when no audio device is available: the mixer is still
// fed and can be drained with Stream
type Service struct {
	rate       beep.SampleRate
	volume     float64
	useSpeaker bool

	mixer *beep.Mixer
	sched *schedule.Scheduler
	log   *slog.Logger

	// Main thread only after Start
	speakerOn bool

	cues    *atomic.Int64
	started atomic.Bool
}

// Option configures a Service
type Option func(*Service)

// WithSpeaker plays the mixer on the default output device when available
func WithSpeaker(enabled bool) Option {
	return func(s *Service) { s.useSpeaker = enabled }
}

// WithVolume sets master volume, 0 silent and 1 full scale
func WithVolume(vol float64) Option {
	return func(s *Service) { s.volume = min(max(vol, 0), 1) }
}

// New creates an audio service at sampleRate Hz
func New(sampleRate int, opts ...Option) *Service {
	s := &Service{
		rate:   beep.SampleRate(sampleRate),
		volume: 1,
		mixer:  &beep.Mixer{},
		cues:   new(atomic.Int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements service.Service
func (s *Service) Name() string {
	return Name
}

// Dependencies implements service.Service
func (s *Service) Dependencies() []string {
	return nil
}

// Init implements service.Service
func (s *Service) Init(host any) error {
	h, err := service.AsHost(Name, host)
	if err != nil {
		return err
	}

	s.log = core.LoggerOr(h.Logger()).With("service", Name)
	s.cues = h.Status().Counter("audio.cues")
	s.sched = schedule.New(Name, h.Dispatch().MainThreadIdentity(),
		schedule.WithLogger(s.log),
		schedule.WithStatus(h.Status()),
	)
	return nil
}

// Start implements service.Service, on the main thread
// A missing output device is logged and the service continues headless
func (s *Service) Start() error {
	if s.sched == nil {
		return fmt.Errorf("audio: not initialized")
	}
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("audio: already started")
	}
	if !s.sched.Owner().Valid() {
		if err := s.sched.Bind(thread.Current()); err != nil {
			return err
		}
	}

	if s.useSpeaker {
		if err := speaker.Init(s.rate, s.rate.N(100*time.Millisecond)); err != nil {
			s.log.Warn("audio device unavailable, mixing headless", "error", err)
		} else {
			speaker.Play(s.mixer)
			s.speakerOn = true
		}
	}
	s.log.Debug("audio started", "sample_rate", int(s.rate), "speaker", s.speakerOn)
	return nil
}

// Update implements service.Updater, applying queued cue requests
func (s *Service) Update(service.Tick) {
	if _, err := s.sched.Pump(); err != nil {
		s.log.Error("audio pump", "error", err)
	}
}

// PlayCue requests cue playback from any goroutine
// The handle resolves once the cue is in the mixer, or faults after Stop
func (s *Service) PlayCue(c Cue) *schedule.Handle[struct{}] {
	if s.sched == nil {
		return schedule.Faulted[struct{}](fmt.Errorf("audio: not initialized"))
	}
	return schedule.Call(s.sched, func() (struct{}, error) {
		st, err := c.build(s.rate, s.volume)
		if err != nil {
			return struct{}{}, err
		}
		s.add(st)
		s.cues.Add(1)
		return struct{}{}, nil
	})
}

// add mutates the mixer, taking the speaker lock while the device is streaming it
func (s *Service) add(st beep.Streamer) {
	if s.speakerOn {
		speaker.Lock()
		defer speaker.Unlock()
	}
	s.mixer.Add(st)
}

// Active returns the number of cues still sounding
func (s *Service) Active() int {
	if s.speakerOn {
		speaker.Lock()
		defer speaker.Unlock()
	}
	return s.mixer.Len()
}

// Stream pulls samples from the mixer when no device is attached
func (s *Service) Stream(samples [][2]float64) (int, bool) {
	if s.speakerOn {
		return 0, false
	}
	return s.mixer.Stream(samples)
}

// Stop implements service.Service
// Unapplied cue requests fault with schedule.ErrClosed
func (s *Service) Stop() error {
	if !s.started.CompareAndSwap(true, false) {
		return nil
	}

	if n := s.sched.Close(schedule.ErrClosed); n > 0 {
		s.log.Debug("audio cues dropped at shutdown", "count", n)
	}

	if s.speakerOn {
		speaker.Clear()
		speaker.Close()
		s.speakerOn = false
	}
	s.mixer.Clear()
	return nil
}

// SampleRate returns the mixer sample rate
func (s *Service) SampleRate() beep.SampleRate {
	return s.rate
}
