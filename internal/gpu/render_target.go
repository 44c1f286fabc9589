package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Render target formats.
const (
	targetColorFormat = gputypes.TextureFormatBGRA8Unorm
	targetDepthFormat = gputypes.TextureFormatDepth24PlusStencil8
)

// RenderTarget holds the color and depth/stencil textures one output
// stream is composited into:
//   - Color: 1x sample, BGRA8Unorm, RenderAttachment | TextureBinding | CopySrc
//   - Depth/stencil: 1x sample, Depth24PlusStencil8, RenderAttachment
//
// RenderTarget implements gpucontext.Texture.
type RenderTarget struct {
	device hal.Device
	memory *MemoryManager

	colorTex  hal.Texture
	colorView hal.TextureView
	depthTex  hal.Texture
	depthView hal.TextureView

	label  string
	width  uint32
	height uint32
}

// NewRenderTarget creates the textures for a w x h stream. The label
// prefixes every GPU debug label. memory may be nil.
func NewRenderTarget(device hal.Device, memory *MemoryManager, label string, w, h uint32) (*RenderTarget, error) {
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("gpu: %s: invalid size %dx%d", label, w, h)
	}
	// Color and depth are both 4 bytes per texel.
	if err := memory.reserve(label, targetBytes(w, h)); err != nil {
		return nil, err
	}
	rt := &RenderTarget{device: device, memory: memory, label: label, width: w, height: h}
	size := hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1}

	colorTex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         label + "_color",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        targetColorFormat,
		Usage: gputypes.TextureUsageRenderAttachment |
			gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		rt.Destroy()
		return nil, fmt.Errorf("create color texture: %w", err)
	}
	rt.colorTex = colorTex

	colorView, err := device.CreateTextureView(colorTex, &hal.TextureViewDescriptor{
		Label: label + "_color_view",
	})
	if err != nil {
		rt.Destroy()
		return nil, fmt.Errorf("create color view: %w", err)
	}
	rt.colorView = colorView

	depthTex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         label + "_depth_stencil",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        targetDepthFormat,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		rt.Destroy()
		return nil, fmt.Errorf("create depth/stencil texture: %w", err)
	}
	rt.depthTex = depthTex

	depthView, err := device.CreateTextureView(depthTex, &hal.TextureViewDescriptor{
		Label: label + "_depth_stencil_view",
	})
	if err != nil {
		rt.Destroy()
		return nil, fmt.Errorf("create depth/stencil view: %w", err)
	}
	rt.depthView = depthView

	slogger().Debug("render target created", "label", label, "width", w, "height", h)
	return rt, nil
}

func targetBytes(w, h uint32) uint64 {
	return uint64(w) * uint64(h) * 8
}

// Width returns the target width in pixels.
func (rt *RenderTarget) Width() int { return int(rt.width) }

// Height returns the target height in pixels.
func (rt *RenderTarget) Height() int { return int(rt.height) }

// Size returns the target dimensions.
func (rt *RenderTarget) Size() (uint32, uint32) { return rt.width, rt.height }

// Label returns the debug label prefix.
func (rt *RenderTarget) Label() string { return rt.label }

// Format returns the color texture format.
func (rt *RenderTarget) Format() gputypes.TextureFormat { return targetColorFormat }

// ColorTexture returns the color texture sent to the host.
func (rt *RenderTarget) ColorTexture() hal.Texture { return rt.colorTex }

// Destroy releases all textures. Safe to call more than once.
func (rt *RenderTarget) Destroy() {
	if rt.depthView != nil {
		rt.device.DestroyTextureView(rt.depthView)
		rt.depthView = nil
	}
	if rt.depthTex != nil {
		rt.device.DestroyTexture(rt.depthTex)
		rt.depthTex = nil
	}
	if rt.colorView != nil {
		rt.device.DestroyTextureView(rt.colorView)
		rt.colorView = nil
	}
	if rt.colorTex != nil {
		rt.device.DestroyTexture(rt.colorTex)
		rt.colorTex = nil
	}
	if rt.width != 0 {
		rt.memory.release(rt.label, targetBytes(rt.width, rt.height))
		rt.width, rt.height = 0, 0
	}
}
