package accel

import (
	"errors"
	"math"
	"testing"

	"github.com/gogpu/gputypes"
)

// memTexture is an in-memory SharedTexture.
type memTexture struct {
	w, h    int
	format  gputypes.TextureFormat
	shared  []byte
	updates int
}

func newMemTexture(w, h int, format gputypes.TextureFormat) *memTexture {
	bpp := 4
	if format == gputypes.TextureFormatR8Unorm {
		bpp = 1
	}
	return &memTexture{w: w, h: h, format: format, shared: make([]byte, w*h*bpp)}
}

func (m *memTexture) Width() int                     { return m.w }
func (m *memTexture) Height() int                    { return m.h }
func (m *memTexture) Format() gputypes.TextureFormat { return m.format }
func (m *memTexture) Shared() []byte                 { return m.shared }
func (m *memTexture) UpdateData(data []byte) error   { m.updates++; copy(m.shared, data); return nil }

func fillPattern(tex *memTexture) {
	for i := range tex.shared {
		tex.shared[i] = byte(i * 37 % 256)
	}
}

func TestTransferValidation(t *testing.T) {
	q := NewQueue()
	a, _ := NewImage(4, 4, Format{PixelBGR, U8, Chunky})
	b, _ := NewImage(4, 2, Format{PixelBGR, U8, Chunky})

	if err := Transfer(nil, a, 1, q, nil); !errors.Is(err, ErrNilImage) {
		t.Errorf("nil src: got %v", err)
	}
	if err := Transfer(a, a, 1, nil, nil); !errors.Is(err, ErrNilQueue) {
		t.Errorf("nil queue: got %v", err)
	}
	if err := Transfer(a, b, 1, q, nil); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("size mismatch: got %v", err)
	}
	if q.Pending() != 0 {
		t.Errorf("rejected transfers must not be queued, pending = %d", q.Pending())
	}
}

func TestTransferExecutesInOrder(t *testing.T) {
	q := NewQueue()
	a, _ := NewImage(2, 1, Format{PixelA, U8, Chunky})
	b, _ := NewImage(2, 1, Format{PixelA, F32, Chunky})
	c, _ := NewImage(2, 1, Format{PixelA, U8, Chunky})
	a.Set(0, 0, 0, 10)
	a.Set(1, 0, 0, 20)

	if err := Transfer(a, b, 2, q, nil); err != nil {
		t.Fatal(err)
	}
	if err := Transfer(b, c, 3, q, nil); err != nil {
		t.Fatal(err)
	}
	if got := c.At(0, 0, 0); got != 0 {
		t.Errorf("work ran before Synchronize: %v", got)
	}
	q.Synchronize()
	if got := c.At(1, 0, 0); got != 120 {
		t.Errorf("c[1] = %v, want 120", got)
	}
	if q.Executed() != 2 {
		t.Errorf("Executed = %d, want 2", q.Executed())
	}
}

func TestTransferChannelMapping(t *testing.T) {
	q := NewQueue()
	var tmp Scratch
	bgra, _ := NewImage(1, 1, Format{PixelBGRA, U8, Chunky})
	bgra.Set(0, 0, 0, 10) // B
	bgra.Set(0, 0, 1, 20) // G
	bgra.Set(0, 0, 2, 30) // R
	bgra.Set(0, 0, 3, 40) // A

	rgb, _ := NewImage(1, 1, Format{PixelRGB, F32, Planar})
	if err := Transfer(bgra, rgb, 1, q, &tmp); err != nil {
		t.Fatal(err)
	}
	back, _ := NewImage(1, 1, Format{PixelRGBA, U8, Chunky})
	if err := Transfer(rgb, back, 1, q, &tmp); err != nil {
		t.Fatal(err)
	}
	q.Synchronize()

	if rgb.At(0, 0, 0) != 30 || rgb.At(0, 0, 1) != 20 || rgb.At(0, 0, 2) != 10 {
		t.Errorf("rgb = (%v, %v, %v), want (30, 20, 10)", rgb.At(0, 0, 0), rgb.At(0, 0, 1), rgb.At(0, 0, 2))
	}
	// Alpha absent from RGB is filled opaque.
	if got := back.At(0, 0, 3); got != 255 {
		t.Errorf("alpha = %v, want 255", got)
	}
	if tmp.Size() < 4 {
		t.Errorf("scratch not used, size = %d", tmp.Size())
	}
}

func TestTransferRoundTripPrecision(t *testing.T) {
	q := NewQueue()
	ctx := NewContext()
	var tmp Scratch

	tex := newMemTexture(7, 5, gputypes.TextureFormatBGRA8Unorm)
	fillPattern(tex)
	want := append([]byte(nil), tex.shared...)

	reg, err := ctx.Register(tex)
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Unregister()

	effectIn, _ := NewImage(7, 5, Format{PixelBGR, F32, Planar})
	staging, _ := NewImage(7, 5, Format{PixelBGRA, U8, Chunky})

	// Inbound through a chunky U8 hop to planar F32.
	hop, _ := NewImage(7, 5, Format{PixelBGR, U8, Chunky})
	if err := reg.Map(q); err != nil {
		t.Fatal(err)
	}
	if err := Transfer(reg.Image(), hop, 1, q, &tmp); err != nil {
		t.Fatal(err)
	}
	if err := reg.Unmap(q); err != nil {
		t.Fatal(err)
	}
	if err := Transfer(hop, effectIn, 1.0/255, q, &tmp); err != nil {
		t.Fatal(err)
	}
	if err := Transfer(effectIn, staging, 255, q, &tmp); err != nil {
		t.Fatal(err)
	}

	// Clear the texture so the result comes from the pipeline.
	for i := range tex.shared {
		tex.shared[i] = 0
	}
	if err := reg.Map(q); err != nil {
		t.Fatal(err)
	}
	if err := Transfer(staging, reg.Image(), 1, q, &tmp); err != nil {
		t.Fatal(err)
	}
	if err := reg.Unmap(q); err != nil {
		t.Fatal(err)
	}

	for i := range want {
		if i%4 == 3 {
			if tex.shared[i] != 255 {
				t.Fatalf("alpha at %d = %d, want 255", i, tex.shared[i])
			}
			continue
		}
		if d := math.Abs(float64(tex.shared[i]) - float64(want[i])); d > 1 {
			t.Fatalf("byte %d = %d, want %d ±1", i, tex.shared[i], want[i])
		}
	}
}

func TestTransferScaleOnlyAcrossPrecision(t *testing.T) {
	q := NewQueue()
	a, _ := NewImage(1, 1, Format{PixelA, U8, Chunky})
	b, _ := NewImage(1, 1, Format{PixelA, U8, Chunky})
	a.Set(0, 0, 0, 200)
	if err := Transfer(a, b, 1.0/255, q, nil); err != nil {
		t.Fatal(err)
	}
	q.Synchronize()
	if got := b.At(0, 0, 0); got != 200 {
		t.Errorf("U8 -> U8 must ignore scale, got %v", got)
	}
}

func TestTransferPlanarToInteropUnsupported(t *testing.T) {
	q := NewQueue()
	ctx := NewContext()
	tex := newMemTexture(4, 4, gputypes.TextureFormatBGRA8Unorm)
	reg, err := ctx.Register(tex)
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Unregister()
	if err := reg.Map(q); err != nil {
		t.Fatal(err)
	}

	planar, _ := NewImage(4, 4, Format{PixelBGR, F32, Planar})
	if err := Transfer(planar, reg.Image(), 255, q, nil); !errors.Is(err, ErrUnsupportedConversion) {
		t.Errorf("planar -> interop: got %v", err)
	}
	if err := Transfer(reg.Image(), planar, 1.0/255, q, nil); err != nil {
		t.Errorf("interop -> planar: %v", err)
	}
}

func TestTransferUnmappedInterop(t *testing.T) {
	q := NewQueue()
	ctx := NewContext()
	tex := newMemTexture(2, 2, gputypes.TextureFormatRGBA8Unorm)
	reg, _ := ctx.Register(tex)
	dst, _ := NewImage(2, 2, Format{PixelRGBA, U8, Chunky})

	if err := Transfer(reg.Image(), dst, 1, q, nil); !errors.Is(err, ErrNotMapped) {
		t.Errorf("expected ErrNotMapped, got %v", err)
	}
	reg.Unregister()
	if err := Transfer(reg.Image(), dst, 1, q, nil); !errors.Is(err, ErrUnregistered) {
		t.Errorf("expected ErrUnregistered, got %v", err)
	}
}

func TestQueueDestroy(t *testing.T) {
	q := NewQueue()
	ran := false
	if err := q.Enqueue(func() { ran = true }); err != nil {
		t.Fatal(err)
	}
	q.Destroy()
	if !ran {
		t.Error("Destroy must drain pending work")
	}
	if err := q.Enqueue(func() {}); !errors.Is(err, ErrQueueDestroyed) {
		t.Errorf("expected ErrQueueDestroyed, got %v", err)
	}
	q.Destroy()
}
