package accel

import (
	"errors"
	"fmt"
)

// Transfer errors.
var (
	// ErrSizeMismatch is returned when source and destination dimensions differ.
	ErrSizeMismatch = errors.New("accel: image size mismatch")

	// ErrUnsupportedConversion is returned for conversions the accelerator
	// cannot perform in a single pass.
	ErrUnsupportedConversion = errors.New("accel: unsupported conversion")

	// ErrNilQueue is returned when no execution queue is given.
	ErrNilQueue = errors.New("accel: queue is nil")
)

// Scratch is a temporary buffer reused across transfers for layout and
// precision conversion. The zero value is ready to use.
type Scratch struct {
	buf []float32
}

func (s *Scratch) grow(n int) []float32 {
	if cap(s.buf) < n {
		s.buf = make([]float32, n)
	}
	return s.buf[:n]
}

// Size returns the current capacity of the scratch buffer in components.
func (s *Scratch) Size() int { return cap(s.buf) }

// Transfer converts src into dst. Pixel format, component type and layout
// may all differ. scale multiplies every component when exactly one of the
// two images has F32 components and is ignored otherwise. The conversion is
// validated immediately and executed on q in submission order.
//
// A planar image cannot be transferred directly into an interop image; the
// result must go through an intermediate chunky image first.
func Transfer(src, dst *Image, scale float32, q *Queue, tmp *Scratch) error {
	if src == nil || dst == nil {
		return ErrNilImage
	}
	if q == nil {
		return ErrNilQueue
	}
	if !src.SameSize(dst) {
		return fmt.Errorf("%w: %dx%d -> %dx%d", ErrSizeMismatch, src.Width, src.Height, dst.Width, dst.Height)
	}
	if err := src.checkMapped(); err != nil {
		return err
	}
	if err := dst.checkMapped(); err != nil {
		return err
	}
	if dst.interop != nil && src.Format.Layout == Planar {
		return fmt.Errorf("%w: %s -> %s", ErrUnsupportedConversion, src.Format, dst.Format)
	}
	if tmp == nil {
		tmp = &Scratch{}
	}
	if (src.Format.Type == F32) == (dst.Format.Type == F32) {
		scale = 1
	}
	return q.Enqueue(func() { convert(src, dst, scale, tmp) })
}

// convert performs the transfer through an RGBA scratch buffer.
func convert(src, dst *Image, scale float32, tmp *Scratch) {
	w, h := src.Width, src.Height
	rgba := tmp.grow(w * h * 4)
	full := dst.maxValue()

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := rgba[(y*w+x)*4 : (y*w+x)*4+4]
			present := readPixel(src, x, y, px)
			for c := 0; c < 4; c++ {
				if present&(1<<c) == 0 {
					if c == 3 {
						px[c] = full
					} else {
						px[c] = 0
					}
					continue
				}
				px[c] *= scale
			}
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			writePixel(dst, x, y, rgba[(y*w+x)*4:(y*w+x)*4+4])
		}
	}
}

// readPixel loads pixel (x, y) into px as canonical RGBA and returns a
// bit mask of the channels present in the source.
func readPixel(m *Image, x, y int, px []float32) uint8 {
	if m.Format.Pixel == PixelY {
		v := m.At(x, y, 0)
		px[0], px[1], px[2] = v, v, v
		return 0b0111
	}
	var present uint8
	for c := 0; c < 4; c++ {
		if i := m.Format.Pixel.channelIndex(c); i >= 0 {
			px[c] = m.At(x, y, i)
			present |= 1 << c
		}
	}
	return present
}

func writePixel(m *Image, x, y int, px []float32) {
	if m.Format.Pixel == PixelY {
		m.Set(x, y, 0, 0.299*px[0]+0.587*px[1]+0.114*px[2])
		return
	}
	for c := 0; c < 4; c++ {
		if i := m.Format.Pixel.channelIndex(c); i >= 0 {
			m.Set(x, y, i, px[c])
		}
	}
}
