// Package engine runs the fixed-tick main loop and owns the thread-routing context
// shared by its services
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/lixenwraith/tickgate/audio"
	"github.com/lixenwraith/tickgate/config"
	"github.com/lixenwraith/tickgate/core"
	"github.com/lixenwraith/tickgate/dispatch"
	"github.com/lixenwraith/tickgate/service"
	"github.com/lixenwraith/tickgate/status"
	"github.com/lixenwraith/tickgate/thread"
	"github.com/lixenwraith/tickgate/window"
)

// ErrAlreadyRunning is returned by a second Run
var ErrAlreadyRunning = errors.New("engine: already running")

// Engine is one instance of the tick loop with its services
// Each engine has its own dispatch registry, so several can run in one process
type Engine struct {
	id  uuid.UUID
	cfg config.Config
	log *slog.Logger

	dispatch *dispatch.Registry
	hub      *service.Hub
	status   *status.Registry

	window *window.Service
	audio  *audio.Service
	clock  *Clock

	simulate func(service.Tick)

	running atomic.Bool
	ticks   *atomic.Int64
}

type options struct {
	backend  window.Backend
	simulate func(service.Tick)
	services []service.Service
	log      *slog.Logger
	audio    *audio.Service
	source   TimeSource
}

// Option configures an Engine
type Option func(*options)

// WithBackend replaces the backend selected by config
func WithBackend(b window.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithSimulation sets the per-tick callback, run on the main thread after service updates
func WithSimulation(fn func(service.Tick)) Option {
	return func(o *options) { o.simulate = fn }
}

// WithService registers an additional service with the hub
func WithService(svc service.Service) Option {
	return func(o *options) { o.services = append(o.services, svc) }
}

// WithLogger sets the engine logger, shared with services through the host
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithAudio supplies the audio service, enabling cues regardless of config
func WithAudio(a *audio.Service) Option {
	return func(o *options) { o.audio = a }
}

// WithTimeSource replaces the clock time source
func WithTimeSource(src TimeSource) Option {
	return func(o *options) { o.source = src }
}

// New builds an engine from validated configuration
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.New()
	log := core.LoggerOr(o.log).With("engine", id.String())
	reg := status.NewRegistry()

	e := &Engine{
		id:       id,
		cfg:      cfg,
		log:      log,
		dispatch: dispatch.New(dispatch.WithLogger(log), dispatch.WithStatus(reg)),
		hub:      service.NewHub(log),
		status:   reg,
		clock:    NewClock(cfg.TickInterval, o.source),
		simulate: o.simulate,
		ticks:    reg.Counter("engine.ticks"),
	}
	e.clock.resyncs = reg.Counter("clock.resyncs")

	backend := o.backend
	if backend == nil {
		backend = newBackend(cfg.Window.Backend)
	}
	e.window = window.New(cfg.Window.Mode, backend, window.WithMaxFrameDuration(cfg.Window.MaxFrameDuration))

	e.audio = o.audio
	if e.audio == nil && cfg.Audio.Enabled {
		e.audio = audio.New(cfg.Audio.SampleRate, audio.WithSpeaker(true))
	}
	if e.audio != nil {
		e.window.OnSkip(e.skipCue)
	}

	svcs := append([]service.Service{e.window}, o.services...)
	if e.audio != nil {
		svcs = append(svcs, e.audio)
	}
	for _, svc := range svcs {
		if err := e.hub.Register(svc); err != nil {
			return nil, err
		}
	}

	return e, nil
}

func newBackend(name string) window.Backend {
	if name == config.BackendTcell {
		return window.NewTcellBackend(nil, nil)
	}
	return window.NewHeadless(nil)
}

// skipCue sounds frame-skip transitions, called on the main thread
func (e *Engine) skipCue(skipping bool) {
	cue := audio.CueRecover
	if skipping {
		cue = audio.CueSkip
	}
	e.audio.PlayCue(cue)
}

// Run drives the tick loop on the calling goroutine, which becomes the main thread
// Returns when ctx ends, the window closes, or MaxTicks is reached, after shutting down
// every service. A context cancellation is a normal exit
func (e *Engine) Run(ctx context.Context) (err error) {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	main := thread.Lock()
	defer thread.Unlock()

	if err := e.dispatch.SetMainThreadIdentity(main); err != nil {
		return err
	}

	if err := e.hub.InitAll(e); err != nil {
		e.dispatch.Close()
		return fmt.Errorf("engine init: %w", err)
	}
	if err := e.hub.StartAll(); err != nil {
		e.dispatch.Close()
		return fmt.Errorf("engine start: %w", err)
	}

	e.log.Info("engine running",
		"main_thread", main,
		"render_thread", e.dispatch.RenderThreadIdentity(),
		"mode", e.cfg.Window.Mode.String(),
		"tick", e.cfg.TickInterval,
		"services", e.hub.Names(),
	)

	defer func() {
		err = errors.Join(err, e.shutdown())
	}()

	return e.loop(ctx)
}

func (e *Engine) loop(ctx context.Context) error {
	e.clock.Start()
	defer e.clock.Stop()

	maxTicks := e.cfg.MaxTicks
	for maxTicks == 0 || uint64(e.ticks.Load()) < maxTicks {
		tick, err := e.clock.Wait(ctx)
		if err != nil {
			e.log.Info("engine cancelled", "ticks", e.ticks.Load())
			return nil
		}

		if _, err := e.dispatch.ProcessMainThread(); err != nil {
			return err
		}
		e.hub.UpdateAll(tick)
		if e.simulate != nil {
			e.simulate(tick)
		}
		e.window.Tick()
		e.ticks.Add(1)

		select {
		case <-e.window.Closed():
			e.log.Info("window closed, stopping", "ticks", e.ticks.Load())
			return nil
		default:
		}
	}

	e.log.Info("tick limit reached", "ticks", e.ticks.Load())
	return nil
}

// shutdown stops services in reverse order, pumps what they left for the main thread,
// and faults anything still queued
func (e *Engine) shutdown() error {
	stopErr := e.hub.StopAll()

	n, pumpErr := e.dispatch.ProcessMainThread()
	dropped := e.dispatch.Close()

	stats := e.window.Stats()
	e.log.Info("engine stopped",
		"ticks", e.ticks.Load(),
		"final_main_actions", n,
		"dropped_actions", dropped,
		"frames", stats.Cycles,
		"skips", stats.Skips,
		"clock_resyncs", e.clock.Resyncs(),
	)
	return errors.Join(stopErr, pumpErr)
}

// ID returns the engine instance id
func (e *Engine) ID() uuid.UUID {
	return e.id
}

// Dispatch implements service.Host
func (e *Engine) Dispatch() *dispatch.Registry {
	return e.dispatch
}

// Status implements service.Host
func (e *Engine) Status() *status.Registry {
	return e.status
}

// Logger implements service.Host
func (e *Engine) Logger() *slog.Logger {
	return e.log
}

// Hub returns the service hub
func (e *Engine) Hub() *service.Hub {
	return e.hub
}

// Window returns the window service
func (e *Engine) Window() *window.Service {
	return e.window
}

// Audio returns the audio service, nil when disabled
func (e *Engine) Audio() *audio.Service {
	return e.audio
}

// Ticks returns the number of completed ticks
func (e *Engine) Ticks() int64 {
	return e.ticks.Load()
}
