// Package scene holds the pipeline's fixed table of effect slots and the
// parameter schema published to the host.
package scene

import (
	"github.com/gogpu/gputypes"
	"golang.org/x/text/cases"

	"github.com/gogpu/fxstream/accel"
	"github.com/gogpu/fxstream/effect"
)

// Technique selects the compositor's fragment path.
type Technique uint32

// Compositing techniques.
const (
	// TechniqueColor samples the processed output as color.
	TechniqueColor Technique = 0
	// TechniqueMatte uses the processed output as an alpha matte over the input.
	TechniqueMatte Technique = 1
)

// Slot is one statically configured processing mode.
type Slot struct {
	Name          string
	Effect        effect.Selector
	Input         accel.Format
	OutputTexture gputypes.TextureFormat
	Output        accel.Format
	Upscale       bool
	Technique     Technique

	// Strength is applied when HasStrength is set.
	Strength    uint32
	HasStrength bool
}

// OutputSize returns the output dimensions for an input of w x h.
func (s Slot) OutputSize(w, h uint32) (uint32, uint32) {
	if s.Upscale {
		return w * 2, h * 2
	}
	return w, h
}

var (
	bgrU8   = accel.Format{Pixel: accel.PixelBGR, Type: accel.U8, Layout: accel.Chunky}
	bgrF32  = accel.Format{Pixel: accel.PixelBGR, Type: accel.F32, Layout: accel.Planar}
	alphaU8 = accel.Format{Pixel: accel.PixelA, Type: accel.U8, Layout: accel.Chunky}
	rgbaU8  = accel.Format{Pixel: accel.PixelRGBA, Type: accel.U8, Layout: accel.Chunky}
)

// table is indexed by scene number and never modified.
var table = [...]Slot{
	{
		Name:          "Transfer",
		Effect:        effect.Transfer,
		Input:         bgrU8,
		OutputTexture: gputypes.TextureFormatBGRA8Unorm,
		Output:        bgrU8,
		Technique:     TechniqueColor,
	},
	{
		Name:          "Green screen",
		Effect:        effect.GreenScreen,
		Input:         bgrU8,
		OutputTexture: gputypes.TextureFormatR8Unorm,
		Output:        alphaU8,
		Technique:     TechniqueMatte,
	},
	{
		Name:          "Artifact reduction",
		Effect:        effect.ArtifactReduction,
		Input:         bgrF32,
		OutputTexture: gputypes.TextureFormatBGRA8Unorm,
		Output:        bgrF32,
		Technique:     TechniqueColor,
		Strength:      1,
		HasStrength:   true,
	},
	{
		Name:          "Super resolution",
		Effect:        effect.SuperRes,
		Input:         bgrF32,
		OutputTexture: gputypes.TextureFormatBGRA8Unorm,
		Output:        bgrF32,
		Upscale:       true,
		Technique:     TechniqueColor,
		Strength:      1,
		HasStrength:   true,
	},
	{
		Name:          "Upscale",
		Effect:        effect.Upscale,
		Input:         rgbaU8,
		OutputTexture: gputypes.TextureFormatRGBA8Unorm,
		Output:        rgbaU8,
		Upscale:       true,
		Technique:     TechniqueColor,
	},
}

// Len returns the number of scene slots.
func Len() int { return len(table) }

// Table returns a copy of all scene slots in index order.
func Table() []Slot {
	out := make([]Slot, len(table))
	copy(out, table[:])
	return out
}

// Lookup returns the slot at index i.
func Lookup(i int) (Slot, bool) {
	if i < 0 || i >= len(table) {
		return Slot{}, false
	}
	return table[i], true
}

// ByName returns the index of the slot whose name or effect selector
// matches name, ignoring case.
func ByName(name string) (int, bool) {
	fold := cases.Fold()
	want := fold.String(name)
	for i, s := range table {
		if fold.String(s.Name) == want || fold.String(string(s.Effect)) == want {
			return i, true
		}
	}
	return -1, false
}
