package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Texture buffer errors.
var (
	// ErrUnsupportedFormat is returned for texture formats a TextureBuffer
	// cannot hold.
	ErrUnsupportedFormat = errors.New("gpu: unsupported texture buffer format")

	// ErrShortData is returned when UpdateData receives fewer bytes than
	// the texture holds.
	ErrShortData = errors.New("gpu: texture data too short")

	// ErrReleased is returned when using a released texture buffer.
	ErrReleased = errors.New("gpu: texture buffer released")
)

// bytesPerPixel returns the texel size of the formats a TextureBuffer
// supports.
func bytesPerPixel(f gputypes.TextureFormat) (uint32, error) {
	switch f {
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatRGBA8Unorm:
		return 4, nil
	case gputypes.TextureFormatR8Unorm:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
}

// TextureBuffer is a sampled GPU texture with a host-visible shadow copy
// the accelerator addresses through interop. UpdateData publishes the
// shadow to the texture.
//
// TextureBuffer implements gpucontext.Texture and gpucontext.TextureUpdater.
type TextureBuffer struct {
	device hal.Device
	queue  hal.Queue
	memory *MemoryManager

	tex  hal.Texture
	view hal.TextureView

	label  string
	format gputypes.TextureFormat
	width  uint32
	height uint32
	bpp    uint32
	shared []byte
}

// NewTextureBuffer creates a w x h texture of the given format with a
// sampled view. memory may be nil.
func NewTextureBuffer(device hal.Device, queue hal.Queue, memory *MemoryManager, label string, w, h uint32, format gputypes.TextureFormat) (*TextureBuffer, error) {
	bpp, err := bytesPerPixel(format)
	if err != nil {
		return nil, err
	}
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("gpu: %s: invalid size %dx%d", label, w, h)
	}
	size := uint64(w) * uint64(h) * uint64(bpp)
	if err := memory.reserve(label, size); err != nil {
		return nil, err
	}

	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage: gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageCopyDst |
			gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		memory.release(label, size)
		return nil, fmt.Errorf("create %s texture: %w", label, err)
	}

	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         label + "_view",
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		device.DestroyTexture(tex)
		memory.release(label, size)
		return nil, fmt.Errorf("create %s view: %w", label, err)
	}

	slogger().Debug("texture buffer created", "label", label, "width", w, "height", h, "format", format.String())
	return &TextureBuffer{
		device: device,
		queue:  queue,
		memory: memory,
		tex:    tex,
		view:   view,
		label:  label,
		format: format,
		width:  w,
		height: h,
		bpp:    bpp,
		shared: make([]byte, size),
	}, nil
}

// Width returns the texture width in pixels.
func (b *TextureBuffer) Width() int { return int(b.width) }

// Height returns the texture height in pixels.
func (b *TextureBuffer) Height() int { return int(b.height) }

// Size returns the texture dimensions.
func (b *TextureBuffer) Size() (uint32, uint32) { return b.width, b.height }

// Format returns the texture format.
func (b *TextureBuffer) Format() gputypes.TextureFormat { return b.format }

// Label returns the debug label.
func (b *TextureBuffer) Label() string { return b.label }

// Shared returns the host-visible copy of the texture contents.
func (b *TextureBuffer) Shared() []byte { return b.shared }

// View returns the sampled texture view.
func (b *TextureBuffer) View() hal.TextureView { return b.view }

// Texture returns the underlying HAL texture.
func (b *TextureBuffer) Texture() hal.Texture { return b.tex }

// Released reports whether Release was called.
func (b *TextureBuffer) Released() bool { return b.tex == nil }

// UpdateData copies tightly packed texel data into the shadow copy and
// uploads it to the texture.
func (b *TextureBuffer) UpdateData(data []byte) error {
	if b.tex == nil {
		return ErrReleased
	}
	if len(data) < len(b.shared) {
		return fmt.Errorf("%w: %s: got %d bytes, need %d", ErrShortData, b.label, len(data), len(b.shared))
	}
	copy(b.shared, data)
	err := b.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: b.tex, Aspect: gputypes.TextureAspectAll},
		b.shared,
		&hal.ImageDataLayout{BytesPerRow: b.width * b.bpp, RowsPerImage: b.height},
		&hal.Extent3D{Width: b.width, Height: b.height, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("upload %s: %w", b.label, err)
	}
	return nil
}

// Release destroys the view and texture. Safe to call more than once.
func (b *TextureBuffer) Release() {
	if b.view != nil {
		b.device.DestroyTextureView(b.view)
		b.view = nil
	}
	if b.tex != nil {
		b.device.DestroyTexture(b.tex)
		b.tex = nil
		b.memory.release(b.label, uint64(len(b.shared)))
	}
}
