package accel

import (
	"errors"
	"fmt"
	"math"
)

// Image errors.
var (
	// ErrInvalidSize is returned for images with a non-positive dimension.
	ErrInvalidSize = errors.New("accel: invalid image size")

	// ErrNilImage is returned when an operation receives a nil image.
	ErrNilImage = errors.New("accel: image is nil")
)

// Image is an accelerator-addressable pixel buffer with a fixed format.
//
// U8 images store components in a byte slice, F32 images in a float32
// slice. Pitch is the distance in bytes between the starts of two rows
// (within one plane for planar images).
type Image struct {
	Width  int
	Height int
	Format Format
	Pitch  int

	u8  []byte
	f32 []float32

	// interop is set for images that alias a registered texture.
	interop *Interop
}

// NewImage allocates an image with the given dimensions and format. Rows
// are aligned to the layout's alignment.
func NewImage(width, height int, f Format) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	rowBytes := width * f.Type.Size()
	if f.Layout == Chunky {
		rowBytes *= f.Pixel.Channels()
	}
	pitch := alignUp(rowBytes, f.Layout.Alignment())
	img := &Image{Width: width, Height: height, Format: f, Pitch: pitch}

	planes := 1
	if f.Layout == Planar {
		planes = f.Pixel.Channels()
	}
	n := pitch * height * planes / f.Type.Size()
	if f.Type == F32 {
		img.f32 = make([]float32, n)
	} else {
		img.u8 = make([]byte, n)
	}
	return img, nil
}

// wrapImage creates a U8 chunky image over caller-owned memory.
func wrapImage(width, height int, f Format, pitch int, data []byte) *Image {
	return &Image{Width: width, Height: height, Format: f, Pitch: pitch, u8: data}
}

func alignUp(n, a int) int {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}

// Bytes returns the backing storage of a U8 image, or nil for F32 images.
func (m *Image) Bytes() []byte { return m.u8 }

// Floats returns the backing storage of an F32 image, or nil for U8 images.
func (m *Image) Floats() []float32 { return m.f32 }

// SameSize reports whether two images have identical dimensions.
func (m *Image) SameSize(o *Image) bool {
	return m.Width == o.Width && m.Height == o.Height
}

// index returns the element index of component c at (x, y).
func (m *Image) index(x, y, c int) int {
	stride := m.Pitch / m.Format.Type.Size()
	if m.Format.Layout == Planar {
		return (c*m.Height+y)*stride + x
	}
	return y*stride + x*m.Format.Pixel.Channels() + c
}

// At returns component c of pixel (x, y) in the image's native range
// (0..255 for U8).
func (m *Image) At(x, y, c int) float32 {
	i := m.index(x, y, c)
	if m.Format.Type == F32 {
		return m.f32[i]
	}
	return float32(m.u8[i])
}

// Set stores component c of pixel (x, y). U8 values are rounded and
// clamped to 0..255.
func (m *Image) Set(x, y, c int, v float32) {
	i := m.index(x, y, c)
	if m.Format.Type == F32 {
		m.f32[i] = v
		return
	}
	m.u8[i] = clampU8(v)
}

func clampU8(v float32) uint8 {
	r := math.Round(float64(v))
	if r <= 0 {
		return 0
	}
	if r >= 255 {
		return 255
	}
	return uint8(r) //nolint:gosec // clamped above
}

// maxValue is the value of a fully saturated component.
func (m *Image) maxValue() float32 {
	if m.Format.Type == F32 {
		return 1
	}
	return 255
}
