package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lixenwraith/tickgate/config"
	"github.com/lixenwraith/tickgate/core"
)

// Rotate the log file on startup once it exceeds 10MB
const maxLogSize = 10 * 1024 * 1024

// setupLogging installs the process logger
// With cfg.File set, logs go to that file (rotated on startup when oversized) and the file is
// returned for closing; otherwise they go to stderr. debug forces the debug level
func setupLogging(cfg config.Log, debug bool, stderr io.Writer) (*os.File, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	if debug {
		level = slog.LevelDebug
	}

	var (
		out  = stderr
		file *os.File
	)
	if cfg.File != "" {
		file, err = openLogFile(cfg.File)
		if err != nil {
			return nil, err
		}
		out = file
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	core.SetLogger(logger)
	slog.SetDefault(logger)
	return file, nil
}

// openLogFile opens path for appending, first moving an oversized file aside with a timestamp
func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	if info, err := os.Stat(path); err == nil && info.Size() > maxLogSize {
		ext := filepath.Ext(path)
		rotated := fmt.Sprintf("%s-%s%s", path[:len(path)-len(ext)], time.Now().Format("20060102-150405"), ext)
		if err := os.Rename(path, rotated); err != nil {
			return nil, fmt.Errorf("rotate log file: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}
