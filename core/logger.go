package core

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards all records; Enabled returns false so callers skip formatting
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the logger shared by all tickgate packages
// By default nothing is logged; pass nil to restore the silent default
//
// Levels used:
//   - Debug: per-pump and per-cycle diagnostics
//   - Info: lifecycle (thread started, joined, skip run recovered)
//   - Warn: frame skip runs, faulted actions, dropped actions at shutdown
//   - Error: crashed goroutines
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the current shared logger, safe for concurrent use
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// LoggerOr returns l when non-nil, otherwise the shared logger
func LoggerOr(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return Logger()
}
