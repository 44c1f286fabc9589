package fxstream

import (
	"errors"
	"math"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/fxstream/accel"
	"github.com/gogpu/fxstream/host/sim"
	"github.com/gogpu/fxstream/scene"
)

var identitySlot = scene.Slot{
	Name:          "Identity",
	Effect:        identitySelector,
	Input:         accel.Format{Pixel: accel.PixelBGR, Type: accel.F32, Layout: accel.Planar},
	OutputTexture: gputypes.TextureFormatBGRA8Unorm,
	Output:        accel.Format{Pixel: accel.PixelBGR, Type: accel.F32, Layout: accel.Planar},
}

// bridgeRoundTrip loads pattern into the input texture, converts it into
// the effect input, copies it to the effect output and converts it back.
func bridgeRoundTrip(t *testing.T, slot scene.Slot, w, h uint32, pattern []byte) *Buffers {
	t.Helper()
	c, _ := newTestCache(t, nil)
	q := accel.NewQueue()
	defer q.Destroy()
	fb := NewFormatBridge(q)

	b, err := c.Ensure(0, slot, w, h)
	if err != nil {
		t.Fatalf("Ensure() = %v", err)
	}
	if err := b.Input.UpdateData(pattern); err != nil {
		t.Fatalf("UpdateData() = %v", err)
	}
	if err := fb.Inbound(b); err != nil {
		t.Fatalf("Inbound() = %v", err)
	}
	if err := accel.Transfer(b.EffectInput, b.EffectOutput, 1, q, nil); err != nil {
		t.Fatalf("Transfer() = %v", err)
	}
	if err := fb.Outbound(b); err != nil {
		t.Fatalf("Outbound() = %v", err)
	}
	if b.InputInterop.Mapped() || b.OutputInterop.Mapped() {
		t.Error("interop left mapped after conversion")
	}
	return b
}

func TestFormatBridgeRoundTrip(t *testing.T) {
	const w, h = 37, 11
	pattern := sim.Pattern(w, h, 7)

	tests := []struct {
		name    string
		slot    scene.Slot
		maxDiff int
	}{
		{"packed u8", mustSlot(t, 0), 0},
		{"planar f32", identitySlot, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bridgeRoundTrip(t, tt.slot, w, h, pattern)
			got := b.Output.Shared()
			if len(got) != len(pattern) {
				t.Fatalf("output has %d bytes, want %d", len(got), len(pattern))
			}
			for i := range pattern {
				d := int(got[i]) - int(pattern[i])
				if d < -tt.maxDiff || d > tt.maxDiff {
					t.Fatalf("byte %d = %d, want %d +/- %d", i, got[i], pattern[i], tt.maxDiff)
				}
			}
		})
	}
}

func TestFormatBridgeNormalizesInput(t *testing.T) {
	const w, h = 4, 2
	pattern := sim.Pattern(w, h, 0)
	b := bridgeRoundTrip(t, identitySlot, w, h, pattern)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < 3; c++ {
				want := float64(pattern[(y*w+x)*4+c]) / 255
				if got := float64(b.EffectInput.At(x, y, c)); math.Abs(got-want) > 1e-6 {
					t.Errorf("input(%d,%d,%d) = %v, want %v", x, y, c, got, want)
				}
			}
		}
	}
}

func TestFormatBridgeFailureUnmaps(t *testing.T) {
	c, _ := newTestCache(t, nil)
	q := accel.NewQueue()
	defer q.Destroy()
	fb := NewFormatBridge(q)

	b, err := c.Ensure(2, mustSlot(t, 2), 16, 16)
	if err != nil {
		t.Fatalf("Ensure() = %v", err)
	}

	in := *b
	in.EffectInput = nil
	if err := fb.Inbound(&in); !errors.Is(err, accel.ErrNilImage) {
		t.Errorf("Inbound() = %v, want ErrNilImage", err)
	}
	if b.InputInterop.Mapped() {
		t.Error("input left mapped after failed inbound")
	}

	// Planar output straight into the texture is not a supported path.
	out := *b
	out.Staging = out.EffectOutput
	if err := fb.Outbound(&out); !errors.Is(err, accel.ErrUnsupportedConversion) {
		t.Errorf("Outbound() = %v, want ErrUnsupportedConversion", err)
	}
	if b.OutputInterop.Mapped() {
		t.Error("output left mapped after failed outbound")
	}

	if err := fb.Inbound(b); err != nil {
		t.Errorf("Inbound() after failures = %v", err)
	}
}

func TestFormatBridgeMappedResourceRejected(t *testing.T) {
	c, _ := newTestCache(t, nil)
	q := accel.NewQueue()
	defer q.Destroy()
	fb := NewFormatBridge(q)

	b, err := c.Ensure(0, mustSlot(t, 0), 8, 8)
	if err != nil {
		t.Fatalf("Ensure() = %v", err)
	}
	if err := b.InputInterop.Map(q); err != nil {
		t.Fatal(err)
	}
	if err := fb.Inbound(b); !errors.Is(err, accel.ErrAlreadyMapped) {
		t.Errorf("Inbound() = %v, want ErrAlreadyMapped", err)
	}
	if err := b.InputInterop.Unmap(q); err != nil {
		t.Errorf("Unmap() = %v", err)
	}
}
