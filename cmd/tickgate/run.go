package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"github.com/lixenwraith/tickgate/config"
	"github.com/lixenwraith/tickgate/core"
	"github.com/lixenwraith/tickgate/engine"
	"github.com/lixenwraith/tickgate/window"
)

// RunOptions holds flags for the run command
type RunOptions struct {
	Mode     string
	Backend  string
	Ticks    uint64
	Tick     time.Duration
	MaxFrame time.Duration
	Audio    bool
	Debug    bool
}

// NewRunCommand creates the run command
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine until the window closes, the tick limit is reached, or interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, opts, &cfg); err != nil {
				return err
			}
			return runEngine(cmd, cfg, opts.Debug)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.Mode, "mode", "m", "", "window mode: none, sync, threadloop")
	flags.StringVarP(&opts.Backend, "backend", "b", "", "window backend: headless, tcell")
	flags.Uint64VarP(&opts.Ticks, "ticks", "n", 0, "stop after this many ticks, 0 runs until stopped")
	flags.DurationVar(&opts.Tick, "tick", 0, "simulation tick interval")
	flags.DurationVar(&opts.MaxFrame, "max-frame", 0, "max wait for the render thread per tick")
	flags.BoolVar(&opts.Audio, "audio", false, "enable audio cues")
	flags.BoolVarP(&opts.Debug, "debug", "d", false, "debug logging")

	return cmd
}

// applyRunFlags overlays explicitly set flags onto the loaded config
func applyRunFlags(cmd *cobra.Command, opts *RunOptions, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("mode") {
		mode, err := window.ParseMode(opts.Mode)
		if err != nil {
			return err
		}
		cfg.Window.Mode = mode
	}
	if flags.Changed("backend") {
		cfg.Window.Backend = opts.Backend
	}
	if flags.Changed("ticks") {
		cfg.MaxTicks = opts.Ticks
	}
	if flags.Changed("tick") {
		cfg.TickInterval = opts.Tick
	}
	if flags.Changed("max-frame") {
		cfg.Window.MaxFrameDuration = opts.MaxFrame
	}
	if flags.Changed("audio") {
		cfg.Audio.Enabled = opts.Audio
	}
	return cfg.Validate()
}

func runEngine(cmd *cobra.Command, cfg config.Config, debug bool) error {
	// A terminal backend owns the screen, so logs must not go to stderr
	if cfg.Window.Backend == config.BackendTcell && cfg.Log.File == "" {
		cfg.Log.File = "logs/tickgate.log"
	}

	logFile, err := setupLogging(cfg.Log, debug, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}

	var (
		e    *engine.Engine
		opts []engine.Option
	)
	opts = append(opts, engine.WithLogger(core.Logger()))
	if cfg.Window.Backend == config.BackendTcell {
		term, err := tcell.NewScreen()
		if err != nil {
			return fmt.Errorf("tcell screen: %w", err)
		}
		backend := window.NewTcellBackend(term, func(screen tcell.Screen, frame uint64) {
			drawStatus(screen, e, frame)
		})

		// A panic on the render thread must not leave the terminal in raw mode
		core.SetCrashHandler(terminalCrashHandler(backend.Fini, logFile, cmd.ErrOrStderr(), os.Exit))
		defer core.SetCrashHandler(nil)

		opts = append(opts, engine.WithBackend(backend))
	}

	e, err = engine.New(cfg, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := e.Run(ctx); err != nil {
		return err
	}

	stats := e.Window().Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "engine %s: mode=%s ticks=%d frames=%d skips=%d skip_runs=%d\n",
		e.ID(), cfg.Window.Mode, e.Ticks(), stats.Cycles, stats.Skips, stats.SkipRuns)
	return nil
}

// drawStatus renders live counters, on the window thread
func drawStatus(screen tcell.Screen, e *engine.Engine, frame uint64) {
	snap := e.Status().Snapshot()
	lines := []string{
		fmt.Sprintf("tickgate  engine %s", e.ID()),
		fmt.Sprintf("tick %-8d frame %-8d", snap["engine.ticks"], frame),
		fmt.Sprintf("granted %-6d skips %-6d skip runs %-4d", snap["gate.granted"], snap["gate.skips"], snap["gate.skip_runs"]),
		"q, esc or ctrl-c to quit",
	}

	style := tcell.StyleDefault.Foreground(tcell.ColorGreen)
	if snap["gate.skipping"] != 0 {
		style = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	}
	for y, line := range lines {
		for x, r := range line {
			screen.SetContent(x+1, y+1, r, nil, style)
		}
	}
}
