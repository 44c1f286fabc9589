package fxstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/fxstream/accel"
	"github.com/gogpu/fxstream/effect"
	"github.com/gogpu/fxstream/host"
	"github.com/gogpu/fxstream/internal/gpu"
	"github.com/gogpu/fxstream/scene"
)

// DefaultEngine names the pipeline in the published schema.
const DefaultEngine = "fxstream"

// Config holds the collaborators a Pipeline is built from.
type Config struct {
	Device hal.Device
	Queue  hal.Queue
	Host   host.Integration

	// Effects creates one effect per scene slot.
	Effects *effect.Registry

	// Engine names the schema; DefaultEngine when empty.
	Engine string

	// SchemaPath, when set, is where the published schema is saved.
	SchemaPath string
}

// Outcome classifies one Step.
type Outcome uint8

// Step outcomes.
const (
	// Processed means a frame was sent to the streams.
	Processed Outcome = iota
	// Rebuilt means the stream topology was re-enumerated.
	Rebuilt
	// Timeout means the host sent nothing within the timeout.
	Timeout
	// Skipped means a frame was requested but dropped.
	Skipped
	// Fatal means the pipeline must stop; StepResult.Err is a *FatalError.
	Fatal
	// Shutdown means the host ended the session.
	Shutdown
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Processed:
		return "processed"
	case Rebuilt:
		return "rebuilt"
	case Timeout:
		return "timeout"
	case Skipped:
		return "skipped"
	case Fatal:
		return "fatal"
	case Shutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// StepResult is the result of one loop iteration.
type StepResult struct {
	Outcome Outcome
	// Err is why a frame was skipped or the pipeline stopped.
	Err error
	// Sent is the number of streams that received the frame.
	Sent int
}

// Stats counts Step outcomes.
type Stats struct {
	Processed int
	Rebuilt   int
	Timeouts  int
	Skipped   int
}

// Pipeline is the per-frame loop between a host and the scene effects.
type Pipeline struct {
	host host.Integration
	opts options
	log  *slog.Logger
	diag *slog.Logger

	aqueue     *accel.Queue
	interop    *accel.Context
	memory     *gpu.MemoryManager
	compositor *gpu.Compositor
	effects    []*effectSlot
	schema     *scene.Schema

	cache   *ResourceCache
	bridge  *FormatBridge
	targets *targetPool

	lastScene int
	stats     Stats
	closed    bool
}

// New acquires every long-lived resource: the accelerator queue, the
// compositor, one effect per scene slot and the published schema. On
// failure everything acquired so far is released and a *FatalError is
// returned.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if cfg.Device == nil || cfg.Queue == nil {
		return nil, fatal(ExitDevice, "new pipeline", errors.New("nil device or queue"))
	}
	if cfg.Host == nil {
		return nil, fatal(ExitHostInit, "new pipeline", errors.New("nil host"))
	}
	if cfg.Effects == nil {
		return nil, fatal(ExitEffect, "new pipeline", errors.New("nil effect registry"))
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.slots == nil {
		o.slots = scene.Table()
	}
	if o.logger == nil {
		o.logger = Logger()
	}
	if cfg.Engine == "" {
		cfg.Engine = DefaultEngine
	}

	p := &Pipeline{
		host:      cfg.Host,
		opts:      o,
		log:       o.logger,
		diag:      slog.New(host.NewLogHandler(cfg.Host, &slog.HandlerOptions{Level: o.diagLevel})),
		aqueue:    accel.NewQueue(),
		interop:   accel.NewContext(),
		memory:    gpu.NewMemoryManager(o.memoryMB),
		lastScene: -1,
	}
	if err := p.acquire(cfg); err != nil {
		p.release()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) acquire(cfg Config) error {
	c, err := gpu.NewCompositor(cfg.Device, cfg.Queue, gpu.CompositorConfig{SPIRV: p.opts.spirv})
	if err != nil {
		return fatal(setupCode(err), "create compositor", err)
	}
	p.compositor = c

	for _, slot := range p.opts.slots {
		es, err := newEffectSlot(cfg.Effects, slot, p.aqueue)
		if err != nil {
			return err
		}
		p.effects = append(p.effects, es)
		p.log.Info("fxstream: effect created", "scene", slot.Name, "info", es.handle.Info())
	}

	p.schema = scene.NewSchema(cfg.Engine, p.opts.slots)
	if err := p.host.SetSchema(p.schema); err != nil {
		return fatal(ExitSetSchema, "set schema", err)
	}
	if cfg.SchemaPath != "" {
		if err := p.host.SaveSchema(cfg.SchemaPath, p.schema); err != nil {
			return fatal(ExitSaveSchema, "save schema", err)
		}
	}

	p.cache = NewResourceCache(cfg.Device, cfg.Queue, p.memory, p.interop, c.Forget)
	p.bridge = NewFormatBridge(p.aqueue)
	p.targets = &targetPool{device: cfg.Device, memory: p.memory}
	return nil
}

// Schema returns the schema published to the host.
func (p *Pipeline) Schema() *scene.Schema { return p.schema }

// Cache returns the resource cache.
func (p *Pipeline) Cache() *ResourceCache { return p.cache }

// Stats returns the outcome counters.
func (p *Pipeline) Stats() Stats { return p.stats }

// Streams returns the number of streams with a render target.
func (p *Pipeline) Streams() int { return p.targets.len() }

// Step waits for one host event and handles it.
func (p *Pipeline) Step(ctx context.Context) StepResult {
	if p.closed {
		return StepResult{Outcome: Shutdown, Err: ErrClosed}
	}
	req, err := p.host.AwaitFrameData(ctx, p.opts.timeout)
	switch {
	case err == nil:
		return p.process(req)
	case errors.Is(err, host.ErrStreamsChanged):
		if err := p.rebuildStreams(); err != nil {
			return StepResult{Outcome: Fatal, Err: err}
		}
		p.stats.Rebuilt++
		return StepResult{Outcome: Rebuilt}
	case errors.Is(err, host.ErrTimeout):
		p.stats.Timeouts++
		return StepResult{Outcome: Timeout}
	case errors.Is(err, host.ErrQuit), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StepResult{Outcome: Shutdown, Err: err}
	default:
		return StepResult{Outcome: Fatal, Err: fatal(ExitAwait, "await frame data", err)}
	}
}

func (p *Pipeline) rebuildStreams() error {
	streams, err := p.host.Streams()
	if err != nil {
		return fatal(ExitRenderTarget, "enumerate streams", err)
	}
	if err := p.targets.rebuild(streams); err != nil {
		return err
	}
	p.diag.Info(fmt.Sprintf("Found %d streams", len(streams)))
	return nil
}

// process runs one frame. Every failure either skips the frame or is a
// *FatalError.
func (p *Pipeline) process(req host.FrameRequest) StepResult {
	idx := int(req.Scene)
	if idx < 0 || idx >= len(p.effects) {
		return p.skip("select scene", fmt.Errorf("scene %d out of range [0, %d)", req.Scene, len(p.effects)))
	}
	es := p.effects[idx]
	rs, _ := p.schema.Scene(idx)

	img, err := p.host.FrameImageData(rs.Hash, scene.InputImageKey)
	if err != nil {
		return p.skip("fetch image data", err)
	}
	if img.Format != inputTextureFormat {
		return p.skip("fetch image data", fmt.Errorf("%w: %s", ErrInputFormat, img.Format))
	}
	b, err := p.cache.Ensure(idx, es.slot, img.Width, img.Height)
	if err != nil {
		return StepResult{Outcome: Fatal, Err: err}
	}
	if err := p.host.FrameImage(img.ImageID, b.Input); err != nil {
		return p.skip("fetch image", err)
	}
	if err := p.bridge.Inbound(b); err != nil {
		return p.skip("convert input", err)
	}
	if err := es.bind(b); err != nil {
		return p.fail("bind images", err)
	}
	if err := es.run(); err != nil {
		return p.skip("run effect", err)
	}
	if err := p.bridge.Outbound(b); err != nil {
		return p.skip("convert output", err)
	}
	sent, err := fanOut(p.host, p.compositor, p.targets, es.slot, b, req.Time, p.diag)
	if err != nil {
		return StepResult{Outcome: Fatal, Err: err, Sent: sent}
	}
	p.lastScene = idx
	p.stats.Processed++
	return StepResult{Outcome: Processed, Sent: sent}
}

// LastScene returns the index of the last processed scene, or -1.
func (p *Pipeline) LastScene() int { return p.lastScene }

func (p *Pipeline) skip(op string, err error) StepResult {
	p.diag.Warn("frame skipped", "op", op, "err", err)
	p.stats.Skipped++
	return StepResult{Outcome: Skipped, Err: fmt.Errorf("%s: %w", op, err)}
}

func (p *Pipeline) fail(op string, err error) StepResult {
	var fe *FatalError
	if errors.As(err, &fe) {
		return StepResult{Outcome: Fatal, Err: err}
	}
	return p.skip(op, err)
}

// Run steps until the host ends the session or a fatal error occurs, then
// closes the pipeline. It returns nil on an orderly shutdown and a
// *FatalError otherwise.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		res := p.Step(ctx)
		switch res.Outcome {
		case Fatal:
			p.log.Error("fxstream: fatal", "err", res.Err, "exit", CodeOf(res.Err))
			if cerr := p.Close(); cerr != nil {
				p.log.Error("fxstream: close", "err", cerr)
			}
			return res.Err
		case Shutdown:
			p.log.Info("fxstream: shutdown", "reason", res.Err, "processed", p.stats.Processed)
			return p.Close()
		}
	}
}

// Close releases every resource in reverse acquisition order and shuts
// the host channel down. Safe to call more than once.
func (p *Pipeline) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.release()
	if err := p.host.Shutdown(); err != nil {
		return fatal(ExitShutdown, "shutdown host", err)
	}
	return nil
}

func (p *Pipeline) release() {
	if p.cache != nil {
		p.cache.Release()
	}
	if p.targets != nil {
		p.targets.release()
	}
	for i := len(p.effects) - 1; i >= 0; i-- {
		p.effects[i].destroy()
	}
	p.effects = nil
	if p.compositor != nil {
		p.compositor.Destroy()
	}
	p.aqueue.Destroy()
	p.memory.Close()
}
