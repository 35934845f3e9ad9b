// Package config loads engine settings from yaml
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lixenwraith/tickgate/gate"
	"github.com/lixenwraith/tickgate/window"
)

// Backend names accepted in window.backend
const (
	BackendHeadless = "headless"
	BackendTcell    = "tcell"
)

// Config is the complete engine configuration
type Config struct {
	// TickInterval is the fixed simulation step
	TickInterval time.Duration `yaml:"tick_interval"`

	// MaxTicks stops the engine after this many ticks, 0 runs until cancelled or the window closes
	MaxTicks uint64 `yaml:"max_ticks"`

	Window Window `yaml:"window"`
	Audio  Audio  `yaml:"audio"`
	Log    Log    `yaml:"log"`
}

// Window configures the window service
type Window struct {
	Mode window.Mode `yaml:"mode"`

	// MaxFrameDuration bounds the per-tick wait on the render thread in threadloop mode
	MaxFrameDuration time.Duration `yaml:"max_frame_duration"`

	// Backend is "headless" or "tcell"
	Backend string `yaml:"backend"`
}

// Audio configures the cue mixer
type Audio struct {
	Enabled    bool `yaml:"enabled"`
	SampleRate int  `yaml:"sample_rate"`
}

// Log configures the process logger
type Log struct {
	// Level is a slog level name: debug, info, warn, error
	Level string `yaml:"level"`

	// File enables file logging when set, stderr otherwise
	File string `yaml:"file,omitempty"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		TickInterval: 16 * time.Millisecond,
		Window: Window{
			Mode:             window.ModeThreadLoop,
			MaxFrameDuration: gate.DefaultMaxFrameDuration,
			Backend:          BackendHeadless,
		},
		Audio: Audio{
			Enabled:    false,
			SampleRate: 44100,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads and parses a yaml config file
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes yaml over Default, rejecting unknown fields, and validates the result
func Parse(data []byte) (Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges
func (c Config) Validate() error {
	var errs []error

	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval))
	}
	if c.Window.MaxFrameDuration < 0 {
		errs = append(errs, fmt.Errorf("window.max_frame_duration must not be negative, got %s", c.Window.MaxFrameDuration))
	}
	switch c.Window.Backend {
	case BackendHeadless, BackendTcell:
	default:
		errs = append(errs, fmt.Errorf("window.backend must be %q or %q, got %q", BackendHeadless, BackendTcell, c.Window.Backend))
	}
	if c.Audio.Enabled && c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SlogLevel parses Level
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Marshal renders the configuration as yaml with two-space indentation
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
