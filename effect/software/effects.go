package software

import (
	"image"
	"sync"

	"golang.org/x/image/draw"

	"github.com/gogpu/fxstream/accel"
	"github.com/gogpu/fxstream/effect"
	"github.com/gogpu/fxstream/internal/parallel"
)

// rowPool runs per-row filter work for every effect in the process.
var rowPool = sync.OnceValue(func() *parallel.WorkerPool {
	return parallel.NewWorkerPool(0)
})

var (
	bgrU8     = accel.Format{Pixel: accel.PixelBGR, Type: accel.U8, Layout: accel.Chunky}
	bgrF32    = accel.Format{Pixel: accel.PixelBGR, Type: accel.F32, Layout: accel.Planar}
	alphaU8   = accel.Format{Pixel: accel.PixelA, Type: accel.U8, Layout: accel.Chunky}
	rgbaU8    = accel.Format{Pixel: accel.PixelRGBA, Type: accel.U8, Layout: accel.Chunky}
	greenKeyT = float32(24)
)

// Register adds all software effects to r.
func Register(r *effect.Registry) {
	r.Register(effect.Transfer, NewTransfer)
	r.Register(effect.GreenScreen, NewGreenScreen)
	r.Register(effect.ArtifactReduction, NewArtifactReduction)
	r.Register(effect.SuperRes, NewSuperRes)
	r.Register(effect.Upscale, NewUpscale)
}

// NewTransfer returns an effect that copies its input unchanged.
func NewTransfer() effect.Handle {
	return newFilter(profile{
		sel:     effect.Transfer,
		summary: "copies input to output",
		in:      bgrU8,
		out:     bgrU8,
		process: func(src, dst *accel.Image, _ map[effect.ParamKey]uint32) {
			rowBytes := src.Width * 3
			rowPool().Rows(src.Height, func(y0, y1 int) {
				for y := y0; y < y1; y++ {
					copy(dst.Bytes()[y*dst.Pitch:y*dst.Pitch+rowBytes], src.Bytes()[y*src.Pitch:y*src.Pitch+rowBytes])
				}
			})
		},
	})
}

// NewGreenScreen returns an effect that produces a foreground alpha matte,
// keying out green-dominant pixels.
func NewGreenScreen() effect.Handle {
	return newFilter(profile{
		sel:      effect.GreenScreen,
		summary:  "foreground alpha matte",
		in:       bgrU8,
		out:      alphaU8,
		defaults: map[effect.ParamKey]uint32{effect.Mode: 0},
		process: func(src, dst *accel.Image, params map[effect.ParamKey]uint32) {
			// Mode 1 trades edge softness for a hard key.
			hard := params[effect.Mode] == 1
			rowPool().Rows(src.Height, func(y0, y1 int) {
				for y := y0; y < y1; y++ {
					for x := 0; x < src.Width; x++ {
						dst.Set(x, y, 0, matte(src.At(x, y, 0), src.At(x, y, 1), src.At(x, y, 2), hard))
					}
				}
			})
		},
	})
}

// NewArtifactReduction returns an effect that smooths compression
// artifacts. Strength 0 is a light pass, 1 a strong one.
func NewArtifactReduction() effect.Handle {
	return newFilter(profile{
		sel:      effect.ArtifactReduction,
		summary:  "compression artifact reduction",
		in:       bgrF32,
		out:      bgrF32,
		defaults: map[effect.ParamKey]uint32{effect.Strength: 0},
		process: func(src, dst *accel.Image, params map[effect.ParamKey]uint32) {
			weight := float32(0.5)
			if params[effect.Strength] > 0 {
				weight = 1
			}
			rowPool().Rows(src.Height, func(y0, y1 int) {
				for c := 0; c < 3; c++ {
					for y := y0; y < y1; y++ {
						for x := 0; x < src.Width; x++ {
							v := src.At(x, y, c)
							dst.Set(x, y, c, v+(boxAt(src, x, y, c)-v)*weight)
						}
					}
				}
			})
		},
	})
}

// NewSuperRes returns an effect that upscales 2x with a Catmull-Rom
// filter, sharpening the result according to Strength.
func NewSuperRes() effect.Handle {
	return newFilter(profile{
		sel:      effect.SuperRes,
		summary:  "2x super resolution",
		in:       bgrF32,
		out:      bgrF32,
		scale:    2,
		defaults: map[effect.ParamKey]uint32{effect.Strength: 0},
		process: func(src, dst *accel.Image, params map[effect.ParamKey]uint32) {
			in := planarToRGBA64(src)
			up := image.NewRGBA64(image.Rect(0, 0, dst.Width, dst.Height))
			draw.CatmullRom.Scale(up, up.Bounds(), in, in.Bounds(), draw.Src, nil)
			rgba64ToPlanar(up, dst)
			if s := params[effect.Strength]; s > 0 {
				sharpen(dst, 0.25*float32(s))
			}
		},
	})
}

// NewUpscale returns a fast 2x upscaler for RGBA images. Strength above 0
// switches from bilinear to Catmull-Rom filtering.
func NewUpscale() effect.Handle {
	return newFilter(profile{
		sel:      effect.Upscale,
		summary:  "fast 2x upscale",
		in:       rgbaU8,
		out:      rgbaU8,
		scale:    2,
		defaults: map[effect.ParamKey]uint32{effect.Strength: 0},
		process: func(src, dst *accel.Image, params map[effect.ParamKey]uint32) {
			var interp draw.Interpolator = draw.ApproxBiLinear
			if params[effect.Strength] > 0 {
				interp = draw.CatmullRom
			}
			in := rgbaView(src)
			out := rgbaView(dst)
			interp.Scale(out, out.Bounds(), in, in.Bounds(), draw.Src, nil)
		},
	})
}

// matte returns the alpha of a BGR pixel, keying out green spill above
// greenKeyT. hard drops keyed pixels to zero instead of ramping.
func matte(b, g, r float32, hard bool) float32 {
	spill := g - max(r, b)
	switch {
	case spill <= greenKeyT:
		return 255
	case hard:
		return 0
	default:
		return max(255-(spill-greenKeyT)*4, 0)
	}
}

// rgbaView wraps a chunky RGBA U8 image without copying.
func rgbaView(m *accel.Image) *image.RGBA {
	return &image.RGBA{
		Pix:    m.Bytes(),
		Stride: m.Pitch,
		Rect:   image.Rect(0, 0, m.Width, m.Height),
	}
}

func planarToRGBA64(m *accel.Image) *image.RGBA64 {
	out := image.NewRGBA64(image.Rect(0, 0, m.Width, m.Height))
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			i := out.PixOffset(x, y)
			// BGR planes map to R, G, B in reverse order.
			for c := 0; c < 3; c++ {
				v := unit16(m.At(x, y, 2-c))
				out.Pix[i+2*c] = uint8(v >> 8)
				out.Pix[i+2*c+1] = uint8(v)
			}
			out.Pix[i+6], out.Pix[i+7] = 0xff, 0xff
		}
	}
	return out
}

func rgba64ToPlanar(src *image.RGBA64, m *accel.Image) {
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			i := src.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := uint16(src.Pix[i+2*c])<<8 | uint16(src.Pix[i+2*c+1])
				m.Set(x, y, 2-c, float32(v)/0xffff)
			}
		}
	}
}

func unit16(v float32) uint16 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 0xffff
	default:
		return uint16(v*0xffff + 0.5)
	}
}

// boxAt returns the 3x3 mean around (x, y) in channel c, clamping at edges.
func boxAt(m *accel.Image, x, y, c int) float32 {
	var sum float32
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			sx := min(max(x+dx, 0), m.Width-1)
			sy := min(max(y+dy, 0), m.Height-1)
			sum += m.At(sx, sy, c)
		}
	}
	return sum / 9
}

// sharpen applies an unsharp mask of the given amount in place.
func sharpen(m *accel.Image, amount float32) {
	blurred := make([]float32, m.Width*m.Height*3)
	pool := rowPool()
	pool.Rows(m.Height, func(y0, y1 int) {
		for c := 0; c < 3; c++ {
			for y := y0; y < y1; y++ {
				for x := 0; x < m.Width; x++ {
					blurred[(c*m.Height+y)*m.Width+x] = boxAt(m, x, y, c)
				}
			}
		}
	})
	// The blur pass must finish before any pixel is overwritten.
	pool.Rows(m.Height, func(y0, y1 int) {
		for c := 0; c < 3; c++ {
			for y := y0; y < y1; y++ {
				for x := 0; x < m.Width; x++ {
					v := m.At(x, y, c)
					m.Set(x, y, c, v+(v-blurred[(c*m.Height+y)*m.Width+x])*amount)
				}
			}
		}
	})
}
