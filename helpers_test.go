package fxstream

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/fxstream/accel"
	"github.com/gogpu/fxstream/effect"
	"github.com/gogpu/fxstream/effect/software"
	"github.com/gogpu/fxstream/host"
	"github.com/gogpu/fxstream/host/sim"
)

// createNoopDevice creates a noop device and queue for testing.
// Returns the device, queue, and a cleanup function.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

var testStreams = []host.Stream{
	{Handle: 1, Name: "main", Width: 64, Height: 36},
	{Handle: 2, Name: "preview", Width: 32, Height: 18},
}

// newTestPipeline builds a pipeline over a noop device, the software
// effects and a scripted host.
func newTestPipeline(t *testing.T, script []sim.Event, opts ...Option) (*Pipeline, *sim.Host) {
	t.Helper()
	reg := effect.NewRegistry()
	software.Register(reg)
	return newTestPipelineWith(t, reg, sim.New(sim.Config{Script: script}), opts...)
}

func newTestPipelineWith(t *testing.T, reg *effect.Registry, h *sim.Host, opts ...Option) (*Pipeline, *sim.Host) {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	t.Cleanup(cleanup)

	p, err := New(Config{Device: device, Queue: queue, Host: h, Effects: reg}, opts...)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p, h
}

// stepUntil steps p until it reports want, failing on fatal outcomes.
func stepUntil(t *testing.T, p *Pipeline, want Outcome) StepResult {
	t.Helper()
	for i := 0; i < 64; i++ {
		res := p.Step(t.Context())
		if res.Outcome == want {
			return res
		}
		if res.Outcome == Fatal || res.Outcome == Shutdown {
			t.Fatalf("Step() = %v (%v), want %v", res.Outcome, res.Err, want)
		}
	}
	t.Fatalf("no %v outcome", want)
	return StepResult{}
}

const identitySelector effect.Selector = "Identity"

// identityEffect copies its input to its output with accel.Transfer and
// fails chosen runs.
type identityEffect struct {
	q       *accel.Queue
	in, out *accel.Image
	params  map[effect.ParamKey]uint32

	loads     int
	runs      int
	destroyed bool

	// runErr returns the error for run n (1-based), or nil.
	runErr       func(n int) error
	rejectOutput bool
}

var errRejected = errors.New("identity: rejected")

func (e *identityEffect) Info() string { return "Identity: copies input to output" }

func (e *identityEffect) SetQueue(q *accel.Queue) error {
	e.q = q
	return nil
}

func (e *identityEffect) SetU32(key effect.ParamKey, v uint32) error {
	if e.params == nil {
		e.params = make(map[effect.ParamKey]uint32)
	}
	e.params[key] = v
	return nil
}

func (e *identityEffect) GetU32(key effect.ParamKey) (uint32, error) {
	v, ok := e.params[key]
	if !ok {
		return 0, effect.ErrParameter
	}
	return v, nil
}

func (e *identityEffect) SetImage(dir effect.Direction, img *accel.Image) error {
	if dir == effect.Output {
		if e.rejectOutput {
			return errRejected
		}
		e.out = img
		return nil
	}
	e.in = img
	return nil
}

func (e *identityEffect) Load() error {
	if e.in == nil || e.out == nil {
		return effect.ErrMissingImage
	}
	e.loads++
	return nil
}

func (e *identityEffect) Run() error {
	e.runs++
	if e.runErr != nil {
		if err := e.runErr(e.runs); err != nil {
			return &effect.StatusError{Effect: identitySelector, Op: "run", Err: err}
		}
	}
	return accel.Transfer(e.in, e.out, 1, e.q, nil)
}

func (e *identityEffect) Destroy() { e.destroyed = true }

// identityRegistry registers e under identitySelector.
func identityRegistry(e *identityEffect) *effect.Registry {
	reg := effect.NewRegistry()
	reg.Register(identitySelector, func() effect.Handle { return e })
	return reg
}
