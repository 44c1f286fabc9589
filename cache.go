package fxstream

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/fxstream/accel"
	"github.com/gogpu/fxstream/internal/gpu"
	"github.com/gogpu/fxstream/scene"
)

// inputTextureFormat is the format the host writes input images in.
const inputTextureFormat = gputypes.TextureFormatBGRA8Unorm

// Buffers is the set of resources one (scene, width, height) key needs.
// Every field is replaced together.
type Buffers struct {
	Scene  int
	Width  uint32
	Height uint32

	// Input receives the host image; InputInterop exposes it to the
	// accelerator and EffectInput holds it in the effect's format.
	Input        *gpu.TextureBuffer
	InputInterop *accel.Interop
	EffectInput  *accel.Image

	// Output is sampled by the compositor; OutputInterop exposes it to
	// the accelerator. EffectOutput receives the effect result.
	Output        *gpu.TextureBuffer
	OutputInterop *accel.Interop
	EffectOutput  *accel.Image

	// Staging holds the effect result in the output texture's format. It
	// is EffectOutput itself when the two formats match.
	Staging *accel.Image
}

// Aliased reports whether no staging copy is needed.
func (b *Buffers) Aliased() bool { return b.Staging == b.EffectOutput }

// OutputSize returns the output texture dimensions.
func (b *Buffers) OutputSize() (uint32, uint32) { return b.Output.Size() }

func (b *Buffers) matches(sceneIndex int, w, h uint32) bool {
	return b != nil && b.Scene == sceneIndex && b.Width == w && b.Height == h
}

// ResourceCache owns the buffers of the most recently processed frame and
// reallocates them only when the scene or image size changes.
type ResourceCache struct {
	device  hal.Device
	queue   hal.Queue
	memory  *gpu.MemoryManager
	interop *accel.Context

	// onRelease runs for every texture buffer before it is destroyed.
	onRelease func(*gpu.TextureBuffer)

	current     *Buffers
	allocations int
}

// NewResourceCache creates an empty cache. onRelease may be nil.
func NewResourceCache(device hal.Device, queue hal.Queue, memory *gpu.MemoryManager, interop *accel.Context, onRelease func(*gpu.TextureBuffer)) *ResourceCache {
	return &ResourceCache{
		device:    device,
		queue:     queue,
		memory:    memory,
		interop:   interop,
		onRelease: onRelease,
	}
}

// Current returns the cached buffers, or nil.
func (c *ResourceCache) Current() *Buffers { return c.current }

// Allocations returns how many buffer sets have been allocated.
func (c *ResourceCache) Allocations() int { return c.allocations }

// Ensure returns buffers for a w x h input processed by slot. The cached
// set is returned unchanged when the key matches the last call. Otherwise
// the cached set is released, interop registrations first, and a new set
// is allocated. Allocation failures are fatal.
func (c *ResourceCache) Ensure(sceneIndex int, slot scene.Slot, w, h uint32) (*Buffers, error) {
	if c.current.matches(sceneIndex, w, h) {
		return c.current, nil
	}
	c.Release()

	b, err := c.allocate(sceneIndex, slot, w, h)
	if err != nil {
		return nil, err
	}
	c.current = b
	c.allocations++

	ow, oh := b.OutputSize()
	Logger().Debug("fxstream: buffers allocated",
		"scene", slot.Name, "input", [2]uint32{w, h}, "output", [2]uint32{ow, oh}, "aliased", b.Aliased())
	return b, nil
}

func (c *ResourceCache) allocate(sceneIndex int, slot scene.Slot, w, h uint32) (_ *Buffers, err error) {
	b := &Buffers{Scene: sceneIndex, Width: w, Height: h}
	defer func() {
		if err != nil {
			c.releaseBuffers(b)
		}
	}()

	if b.Input, err = gpu.NewTextureBuffer(c.device, c.queue, c.memory, "fxstream_input", w, h, inputTextureFormat); err != nil {
		return nil, fatal(ExitInputBuffer, "allocate input texture", err)
	}
	if b.InputInterop, err = c.interop.Register(b.Input); err != nil {
		return nil, fatal(ExitInterop, "register input texture", err)
	}
	if b.EffectInput, err = accel.NewImage(int(w), int(h), slot.Input); err != nil {
		return nil, fatal(ExitInputBuffer, "allocate effect input", err)
	}

	hostFormat, err := accel.FormatFromTexture(slot.OutputTexture)
	if err != nil {
		return nil, fatal(ExitOutputFormat, "resolve output format", err)
	}
	ow, oh := slot.OutputSize(w, h)
	if b.Output, err = gpu.NewTextureBuffer(c.device, c.queue, c.memory, "fxstream_output", ow, oh, slot.OutputTexture); err != nil {
		return nil, fatal(ExitOutputBuffer, "allocate output texture", err)
	}
	if b.OutputInterop, err = c.interop.Register(b.Output); err != nil {
		return nil, fatal(ExitInterop, "register output texture", err)
	}
	if b.EffectOutput, err = accel.NewImage(int(ow), int(oh), slot.Output); err != nil {
		return nil, fatal(ExitOutputBuffer, "allocate effect output", err)
	}
	b.Staging = b.EffectOutput
	if hostFormat != slot.Output {
		if b.Staging, err = accel.NewImage(int(ow), int(oh), hostFormat); err != nil {
			return nil, fatal(ExitOutputBuffer, "allocate staging image", err)
		}
	}
	return b, nil
}

// Release drops the cached buffers. Safe to call more than once.
func (c *ResourceCache) Release() {
	if c.current == nil {
		return
	}
	c.releaseBuffers(c.current)
	c.current = nil
}

func (c *ResourceCache) releaseBuffers(b *Buffers) {
	if b.OutputInterop != nil {
		b.OutputInterop.Unregister()
	}
	if b.InputInterop != nil {
		b.InputInterop.Unregister()
	}
	for _, tb := range []*gpu.TextureBuffer{b.Output, b.Input} {
		if tb == nil {
			continue
		}
		if c.onRelease != nil {
			c.onRelease(tb)
		}
		tb.Release()
	}
}
