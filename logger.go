package fxstream

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/fxstream/internal/gpu"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for fxstream and its GPU layer.
// By default, fxstream produces no log output. Pass nil to restore the
// silent default.
//
// Log levels used by fxstream:
//   - [slog.LevelDebug]: buffer allocation, compositor draws
//   - [slog.LevelInfo]: lifecycle events (effect created, streams found)
//   - [slog.LevelError]: fatal pipeline errors
//
// Frame-local failures are not written here; they are posted to the host
// through its diagnostic sink.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	gpu.SetLogger(l)
}

// Logger returns the current logger used by fxstream.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
