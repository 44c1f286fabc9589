package accel

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Interop errors.
var (
	// ErrNotMapped is returned when an interop image is used while its
	// resource is owned by the graphics side.
	ErrNotMapped = errors.New("accel: interop resource is not mapped")

	// ErrAlreadyMapped is returned when mapping a resource twice.
	ErrAlreadyMapped = errors.New("accel: interop resource is already mapped")

	// ErrUnregistered is returned when using an interop registration after
	// Unregister.
	ErrUnregistered = errors.New("accel: interop resource is unregistered")

	// ErrSharedMemory is returned when a texture's shared memory does not
	// cover its declared size.
	ErrSharedMemory = errors.New("accel: shared memory too small")
)

// SharedTexture is a GPU texture whose contents the accelerator can address
// directly. Shared returns the memory the accelerator writes into;
// UpdateData publishes it back to the graphics side.
type SharedTexture interface {
	gpucontext.Texture
	gpucontext.TextureUpdater
	Format() gputypes.TextureFormat
	Shared() []byte
}

// Context tracks interop registrations for one accelerator device.
type Context struct {
	live atomic.Int64
}

// NewContext creates an interop context.
func NewContext() *Context {
	return &Context{}
}

// Registrations returns the number of live registrations.
func (c *Context) Registrations() int {
	return int(c.live.Load())
}

// Interop is a texture registered with the accelerator. The accelerator may
// only touch Image between Map and Unmap.
type Interop struct {
	ctx        *Context
	tex        SharedTexture
	img        *Image
	mapped     bool
	registered bool
}

// Register makes tex addressable by the accelerator.
func (c *Context) Register(tex SharedTexture) (*Interop, error) {
	f, err := FormatFromTexture(tex.Format())
	if err != nil {
		return nil, err
	}
	w, h := tex.Width(), tex.Height()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, w, h)
	}
	pitch := w * f.Pixel.Channels()
	data := tex.Shared()
	if len(data) < pitch*h {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrSharedMemory, len(data), pitch*h)
	}

	r := &Interop{ctx: c, tex: tex, registered: true}
	r.img = wrapImage(w, h, f, pitch, data)
	r.img.interop = r
	c.live.Add(1)
	return r, nil
}

// Image returns the accelerator view of the registered texture.
func (r *Interop) Image() *Image { return r.img }

// Mapped reports whether the accelerator currently owns the resource.
func (r *Interop) Mapped() bool { return r.mapped }

// Map hands the resource to the accelerator. Work already queued on q is
// completed first.
func (r *Interop) Map(q *Queue) error {
	if !r.registered {
		return ErrUnregistered
	}
	if r.mapped {
		return ErrAlreadyMapped
	}
	if q != nil {
		q.Synchronize()
	}
	r.mapped = true
	return nil
}

// Unmap completes accelerator work queued on q and hands the resource back
// to the graphics side, publishing the accelerator's writes.
func (r *Interop) Unmap(q *Queue) error {
	if !r.registered {
		return ErrUnregistered
	}
	if !r.mapped {
		return ErrNotMapped
	}
	if q != nil {
		q.Synchronize()
	}
	r.mapped = false
	if err := r.tex.UpdateData(r.img.u8); err != nil {
		return fmt.Errorf("publish interop texture: %w", err)
	}
	return nil
}

// Unregister releases the registration. Safe to call more than once.
func (r *Interop) Unregister() {
	if !r.registered {
		return
	}
	r.registered = false
	r.mapped = false
	r.ctx.live.Add(-1)
}

func (m *Image) checkMapped() error {
	if m.interop == nil {
		return nil
	}
	if !m.interop.registered {
		return ErrUnregistered
	}
	if !m.interop.mapped {
		return ErrNotMapped
	}
	return nil
}
