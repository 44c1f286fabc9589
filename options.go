package fxstream

import (
	"log/slog"
	"time"

	"github.com/gogpu/fxstream/scene"
)

// DefaultTimeout bounds how long Step waits for a frame request.
const DefaultTimeout = 5 * time.Second

// Option configures a Pipeline during creation.
//
// Example:
//
//	p, err := fxstream.New(cfg,
//	    fxstream.WithTimeout(2*time.Second),
//	    fxstream.WithDiagnostics(slog.LevelDebug),
//	)
type Option func(*options)

type options struct {
	timeout   time.Duration
	logger    *slog.Logger
	diagLevel slog.Leveler
	slots     []scene.Slot
	memoryMB  int
	spirv     bool
}

func defaultOptions() options {
	return options{
		timeout:   DefaultTimeout,
		diagLevel: slog.LevelInfo,
	}
}

// WithTimeout sets how long each Step waits for the host. Non-positive
// values keep DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the logger for lifecycle and fatal events. The package
// logger from [Logger] is used by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithDiagnostics sets the lowest level posted to the host diagnostic
// sink. The default is [slog.LevelInfo].
func WithDiagnostics(level slog.Leveler) Option {
	return func(o *options) {
		if level != nil {
			o.diagLevel = level
		}
	}
}

// WithScenes replaces the scene slots the pipeline serves. The slots are
// copied; the default is [scene.Table].
//
// Example:
//
//	slots := scene.Table()
//	slots[3].Strength = 0
//	p, err := fxstream.New(cfg, fxstream.WithScenes(slots...))
func WithScenes(slots ...scene.Slot) Option {
	return func(o *options) {
		o.slots = append([]scene.Slot(nil), slots...)
	}
}

// WithMemoryBudget limits the GPU memory held by buffers and render
// targets, in megabytes.
func WithMemoryBudget(mb int) Option {
	return func(o *options) {
		o.memoryMB = mb
	}
}

// WithSPIRV makes the compositor load its shader as SPIR-V instead of
// WGSL. Backends that only accept SPIR-V need it.
func WithSPIRV() Option {
	return func(o *options) {
		o.spirv = true
	}
}
