package accel

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestInteropMapUnmap(t *testing.T) {
	q := NewQueue()
	ctx := NewContext()
	tex := newMemTexture(3, 3, gputypes.TextureFormatBGRA8Unorm)

	reg, err := ctx.Register(tex)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if ctx.Registrations() != 1 {
		t.Errorf("Registrations = %d, want 1", ctx.Registrations())
	}
	if err := reg.Unmap(q); !errors.Is(err, ErrNotMapped) {
		t.Errorf("Unmap before Map: got %v", err)
	}
	if err := reg.Map(q); err != nil {
		t.Fatalf("Map: %v", err)
	}
	if err := reg.Map(q); !errors.Is(err, ErrAlreadyMapped) {
		t.Errorf("second Map: got %v", err)
	}
	if err := reg.Unmap(q); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if tex.updates != 1 {
		t.Errorf("Unmap must publish the texture once, got %d", tex.updates)
	}

	reg.Unregister()
	reg.Unregister()
	if ctx.Registrations() != 0 {
		t.Errorf("Registrations = %d, want 0", ctx.Registrations())
	}
	if err := reg.Map(q); !errors.Is(err, ErrUnregistered) {
		t.Errorf("Map after Unregister: got %v", err)
	}
}

func TestInteropUnmapFlushesQueue(t *testing.T) {
	q := NewQueue()
	ctx := NewContext()
	tex := newMemTexture(1, 1, gputypes.TextureFormatR8Unorm)
	reg, err := ctx.Register(tex)
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Unregister()

	src, _ := NewImage(1, 1, Format{PixelA, U8, Chunky})
	src.Set(0, 0, 0, 99)
	if err := reg.Map(q); err != nil {
		t.Fatal(err)
	}
	if err := Transfer(src, reg.Image(), 1, q, nil); err != nil {
		t.Fatal(err)
	}
	if err := reg.Unmap(q); err != nil {
		t.Fatal(err)
	}
	if tex.shared[0] != 99 {
		t.Errorf("shared[0] = %d, want 99", tex.shared[0])
	}
	if q.Pending() != 0 {
		t.Errorf("Pending = %d after Unmap", q.Pending())
	}
}

func TestInteropRegisterErrors(t *testing.T) {
	ctx := NewContext()

	depth := newMemTexture(2, 2, gputypes.TextureFormatDepth24PlusStencil8)
	if _, err := ctx.Register(depth); !errors.Is(err, ErrUnknownTextureFormat) {
		t.Errorf("depth format: got %v", err)
	}

	short := newMemTexture(2, 2, gputypes.TextureFormatBGRA8Unorm)
	short.shared = short.shared[:3]
	if _, err := ctx.Register(short); !errors.Is(err, ErrSharedMemory) {
		t.Errorf("short memory: got %v", err)
	}
	if ctx.Registrations() != 0 {
		t.Errorf("failed registrations must not count, got %d", ctx.Registrations())
	}
}
