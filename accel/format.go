package accel

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

// ErrUnknownTextureFormat is returned when a texture format has no
// accelerator pixel layout.
var ErrUnknownTextureFormat = errors.New("accel: texture format has no pixel layout")

// PixelFormat is the channel arrangement of an accelerator image.
type PixelFormat uint8

// Pixel formats.
const (
	PixelBGR PixelFormat = iota
	PixelRGB
	PixelBGRA
	PixelRGBA
	PixelA
	PixelY
)

// Channels returns the number of components per pixel.
func (p PixelFormat) Channels() int {
	switch p {
	case PixelBGR, PixelRGB:
		return 3
	case PixelBGRA, PixelRGBA:
		return 4
	default:
		return 1
	}
}

// String returns the format name.
func (p PixelFormat) String() string {
	switch p {
	case PixelBGR:
		return "BGR"
	case PixelRGB:
		return "RGB"
	case PixelBGRA:
		return "BGRA"
	case PixelRGBA:
		return "RGBA"
	case PixelA:
		return "A"
	case PixelY:
		return "Y"
	default:
		return fmt.Sprintf("PixelFormat(%d)", uint8(p))
	}
}

// ComponentType is the numeric type of a single component.
type ComponentType uint8

// Component types.
const (
	U8 ComponentType = iota
	F32
)

// Size returns the component size in bytes.
func (c ComponentType) Size() int {
	if c == F32 {
		return 4
	}
	return 1
}

// String returns the component type name.
func (c ComponentType) String() string {
	if c == F32 {
		return "F32"
	}
	return "U8"
}

// Layout is the memory arrangement of components.
type Layout uint8

// Layouts.
const (
	// Chunky stores all components of a pixel together.
	Chunky Layout = iota
	// Planar stores each component in its own plane.
	Planar
)

// String returns the layout name.
func (l Layout) String() string {
	if l == Planar {
		return "planar"
	}
	return "chunky"
}

// Alignment returns the row alignment in bytes used when allocating
// images with this layout.
func (l Layout) Alignment() int {
	if l == Planar {
		return 1
	}
	return 32
}

// Format fully describes an accelerator image's pixel storage.
type Format struct {
	Pixel  PixelFormat
	Type   ComponentType
	Layout Layout
}

// String returns a compact description such as "BGR/F32/planar".
func (f Format) String() string {
	return f.Pixel.String() + "/" + f.Type.String() + "/" + f.Layout.String()
}

// channelIndex maps a canonical RGBA channel (0=R, 1=G, 2=B, 3=A) to the
// component index inside this pixel format, or -1 if absent.
func (p PixelFormat) channelIndex(canonical int) int {
	switch p {
	case PixelRGB:
		if canonical < 3 {
			return canonical
		}
	case PixelBGR:
		if canonical < 3 {
			return 2 - canonical
		}
	case PixelRGBA:
		return canonical
	case PixelBGRA:
		if canonical == 3 {
			return 3
		}
		return 2 - canonical
	case PixelA:
		if canonical == 3 {
			return 0
		}
	}
	return -1
}

// FormatFromTexture resolves the pixel layout the accelerator sees when it
// addresses a texture of the given format through interop.
func FormatFromTexture(tf gputypes.TextureFormat) (Format, error) {
	switch tf {
	case gputypes.TextureFormatBGRA8Unorm:
		return Format{Pixel: PixelBGRA, Type: U8, Layout: Chunky}, nil
	case gputypes.TextureFormatRGBA8Unorm:
		return Format{Pixel: PixelRGBA, Type: U8, Layout: Chunky}, nil
	case gputypes.TextureFormatR8Unorm:
		return Format{Pixel: PixelA, Type: U8, Layout: Chunky}, nil
	default:
		return Format{}, fmt.Errorf("%w: %s", ErrUnknownTextureFormat, tf)
	}
}
