package gpu

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

func newTestBuffers(t *testing.T, c *Compositor, w, h uint32) (*TextureBuffer, *TextureBuffer) {
	t.Helper()
	in, err := NewTextureBuffer(c.device, c.queue, nil, "input", w, h, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatalf("input buffer: %v", err)
	}
	out, err := NewTextureBuffer(c.device, c.queue, nil, "output", w, h, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatalf("output buffer: %v", err)
	}
	return in, out
}

func TestRenderTargetCreateDestroy(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	mm := NewMemoryManager(MinMemoryMB)
	rt, err := NewRenderTarget(device, mm, "stream_1", 320, 240)
	if err != nil {
		t.Fatalf("NewRenderTarget: %v", err)
	}
	if rt.Width() != 320 || rt.Height() != 240 || rt.Format() != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("target = %dx%d %s", rt.Width(), rt.Height(), rt.Format())
	}
	if rt.ColorTexture() == nil {
		t.Error("expected color texture")
	}
	if mm.Stats().UsedBytes != 320*240*8 {
		t.Errorf("UsedBytes = %d", mm.Stats().UsedBytes)
	}
	rt.Destroy()
	rt.Destroy()
	if mm.Stats().UsedBytes != 0 {
		t.Errorf("UsedBytes after Destroy = %d", mm.Stats().UsedBytes)
	}
	if rt.ColorTexture() != nil {
		t.Error("expected nil color texture after Destroy")
	}
	if _, err := NewRenderTarget(device, mm, "bad", 0, 0); err == nil {
		t.Error("zero size must fail")
	}
}

func TestCompositorDraw(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	c, err := NewCompositor(device, queue, CompositorConfig{})
	if err != nil {
		t.Fatalf("NewCompositor: %v", err)
	}
	defer c.Destroy()

	rt, err := NewRenderTarget(device, nil, "stream_1", 64, 32)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Destroy()
	in, out := newTestBuffers(t, c, 16, 16)

	for i := 0; i < 3; i++ {
		if err := c.Draw(rt, 1, in, out); err != nil {
			t.Fatalf("Draw %d: %v", i, err)
		}
	}
	if c.Draws() != 3 {
		t.Errorf("Draws = %d, want 3", c.Draws())
	}
	if c.BindGroups() != 1 {
		t.Errorf("bind groups must be reused per buffer pair, got %d", c.BindGroups())
	}

	c.Forget(in)
	if c.BindGroups() != 0 {
		t.Errorf("Forget must drop groups referencing the buffer, got %d", c.BindGroups())
	}
	in.Release()
	if err := c.Draw(rt, 0, in, out); !errors.Is(err, ErrReleased) {
		t.Errorf("released input: got %v", err)
	}
	if err := c.Draw(nil, 0, in, out); !errors.Is(err, ErrNilTarget) {
		t.Errorf("nil target: got %v", err)
	}
	out.Release()
}

var errEncoding = errors.New("encoder lost")

// failingDevice hands out encoders that fail BeginEncoding.
type failingDevice struct {
	hal.Device
	encoders []*failingEncoder
}

func (d *failingDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	fe := &failingEncoder{CommandEncoder: enc}
	d.encoders = append(d.encoders, fe)
	return fe, nil
}

type failingEncoder struct {
	hal.CommandEncoder
	discarded int
}

func (e *failingEncoder) BeginEncoding(string) error { return errEncoding }

func (e *failingEncoder) DiscardEncoding() {
	e.discarded++
	e.CommandEncoder.DiscardEncoding()
}

func TestCompositorDiscardsFailedEncoder(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	fd := &failingDevice{Device: device}
	c, err := NewCompositor(fd, queue, CompositorConfig{})
	if err != nil {
		t.Fatalf("NewCompositor: %v", err)
	}
	defer c.Destroy()
	rt, err := NewRenderTarget(device, nil, "stream_1", 16, 16)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Destroy()
	in, out := newTestBuffers(t, c, 8, 8)
	defer in.Release()
	defer out.Release()

	if err := c.Draw(rt, 0, in, out); !errors.Is(err, errEncoding) {
		t.Fatalf("Draw = %v, want %v", err, errEncoding)
	}
	if len(fd.encoders) != 1 || fd.encoders[0].discarded != 1 {
		t.Errorf("encoder not discarded: %d encoders", len(fd.encoders))
	}
	if c.Draws() != 0 {
		t.Errorf("Draws = %d, want 0", c.Draws())
	}
}

func TestCompositorDestroyed(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	c, err := NewCompositor(device, queue, CompositorConfig{})
	if err != nil {
		t.Fatal(err)
	}
	c.Destroy()
	c.Destroy()
	if err := c.Draw(&RenderTarget{}, 0, &TextureBuffer{}, &TextureBuffer{}); !errors.Is(err, ErrCompositorDestroyed) {
		t.Errorf("expected ErrCompositorDestroyed, got %v", err)
	}
}

func TestCompositorSPIRV(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	c, err := NewCompositor(device, queue, CompositorConfig{SPIRV: true})
	if err != nil {
		t.Fatalf("NewCompositor with SPIR-V: %v", err)
	}
	c.Destroy()

	words, err := compileSPIRV(compositeShaderSource)
	if err != nil {
		t.Fatal(err)
	}
	if len(words) == 0 || words[0] != 0x07230203 {
		t.Errorf("bad SPIR-V header: %v", words[:min(len(words), 1)])
	}
}

func TestValidateWGSLEntryPoints(t *testing.T) {
	if err := validateWGSL(compositeShaderSource, "vs_main", "fs_main"); err != nil {
		t.Fatalf("composite shader: %v", err)
	}
	if err := validateWGSL(compositeShaderSource, "cs_main"); err == nil {
		t.Error("missing entry point must fail")
	}
	if err := validateWGSL("fn broken( {"); err == nil {
		t.Error("syntax error must fail")
	}
}

func TestQuadBytes(t *testing.T) {
	b := quadBytes()
	if len(b) != 4*compositeVertexStride {
		t.Fatalf("len = %d", len(b))
	}
	// Last vertex uv is (1, 1).
	last := b[len(b)-4:]
	if got := math.Float32frombits(binary.LittleEndian.Uint32(last)); got != 1 {
		t.Errorf("last v = %v, want 1", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(b[:4])); got != -1 {
		t.Errorf("first x = %v, want -1", got)
	}
}

func TestSetupError(t *testing.T) {
	base := errors.New("out of memory")
	err := error(&SetupError{Stage: StageUniformBuffer, Err: base})
	var se *SetupError
	if !errors.As(err, &se) || se.Stage != StageUniformBuffer {
		t.Fatalf("errors.As failed: %v", err)
	}
	if !errors.Is(err, base) {
		t.Error("SetupError must unwrap")
	}
	if se.Stage.String() != "uniform buffer" {
		t.Errorf("Stage = %s", se.Stage)
	}
}
