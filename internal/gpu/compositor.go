package gpu

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// Embedded composite shader source.
//
//go:embed shaders/composite.wgsl
var compositeShaderSource string

// Compositor errors.
var (
	// ErrCompositorDestroyed is returned when drawing with a destroyed compositor.
	ErrCompositorDestroyed = errors.New("gpu: compositor destroyed")

	// ErrNilTarget is returned when Draw is called without a render target
	// or source buffers.
	ErrNilTarget = errors.New("gpu: nil render target or source buffer")
)

// compositeVertexStride is the byte stride per vertex in the composite quad.
// Layout per vertex:
//
//	position (vec3<f32>) = 12 bytes (location 0)
//	uv       (vec2<f32>) = 8 bytes  (location 1)
//
// Total = 20 bytes per vertex.
const compositeVertexStride = 20

// compositeUniformSize is the byte size of the technique uniform
// (u32 padded to 16 bytes).
const compositeUniformSize = 16

// quadVertices is the full-screen triangle strip.
var quadVertices = [4][5]float32{
	{-1, 1, 0.5, 0, 0},
	{1, 1, 0.5, 1, 0},
	{-1, -1, 0.5, 0, 1},
	{1, -1, 0.5, 1, 1},
}

// SetupStage identifies the compositor object whose creation failed.
type SetupStage uint8

// Setup stages in creation order.
const (
	StageVertexBuffer SetupStage = iota + 1
	StageShader
	StageBindLayout
	StagePipeline
	StageUniformBuffer
)

// String returns the stage name.
func (s SetupStage) String() string {
	switch s {
	case StageVertexBuffer:
		return "vertex buffer"
	case StageShader:
		return "shader"
	case StageBindLayout:
		return "bind group layout"
	case StagePipeline:
		return "render pipeline"
	case StageUniformBuffer:
		return "uniform buffer"
	default:
		return fmt.Sprintf("SetupStage(%d)", uint8(s))
	}
}

// SetupError reports which compositor object could not be created.
type SetupError struct {
	Stage SetupStage
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("gpu: compositor %s: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// CompositorConfig configures NewCompositor.
type CompositorConfig struct {
	// SPIRV passes naga-compiled SPIR-V to the device instead of WGSL.
	SPIRV bool
}

// bindKey identifies the texture pair a bind group samples.
type bindKey struct {
	input  *TextureBuffer
	output *TextureBuffer
}

// Compositor draws the full-screen composite of the cached input and the
// processed output into each stream's render target.
//
// Architecture:
//
//	Compositor owns quad vertex buffer, technique uniform, shader, layouts,
//	pipeline and sampler
//	bind groups are created per (input, output) buffer pair and dropped
//	with Forget when either buffer is released
type Compositor struct {
	device hal.Device
	queue  hal.Queue

	vertexBuf  hal.Buffer
	uniformBuf hal.Buffer
	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.RenderPipeline
	sampler    hal.Sampler

	groups map[bindKey]hal.BindGroup
	draws  uint64
}

// NewCompositor creates all GPU objects of the composite pass. On failure
// the returned error is a *SetupError.
func NewCompositor(device hal.Device, queue hal.Queue, cfg CompositorConfig) (*Compositor, error) {
	c := &Compositor{device: device, queue: queue, groups: make(map[bindKey]hal.BindGroup)}
	if err := c.init(cfg); err != nil {
		c.Destroy()
		return nil, err
	}
	return c, nil
}

func (c *Compositor) init(cfg CompositorConfig) error {
	vertexBuf, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "composite_quad",
		Size:  uint64(len(quadVertices) * compositeVertexStride),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return &SetupError{Stage: StageVertexBuffer, Err: err}
	}
	c.vertexBuf = vertexBuf
	if err := c.queue.WriteBuffer(vertexBuf, 0, quadBytes()); err != nil {
		return &SetupError{Stage: StageVertexBuffer, Err: err}
	}

	source, err := compileCompositeShader(cfg.SPIRV)
	if err != nil {
		return &SetupError{Stage: StageShader, Err: err}
	}
	shader, err := c.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "composite_shader",
		Source: source,
	})
	if err != nil {
		return &SetupError{Stage: StageShader, Err: err}
	}
	c.shader = shader

	// Bind group layout:
	//   Binding 0: technique uniform (fragment)
	//   Binding 1: input texture (texture_2d, fragment)
	//   Binding 2: processed output texture (texture_2d, fragment)
	//   Binding 3: sampler (fragment)
	sampled := &gputypes.TextureBindingLayout{
		SampleType:    gputypes.TextureSampleTypeFloat,
		ViewDimension: gputypes.TextureViewDimension2D,
	}
	bindLayout, err := c.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "composite_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{Binding: 1, Visibility: gputypes.ShaderStageFragment, Texture: sampled},
			{Binding: 2, Visibility: gputypes.ShaderStageFragment, Texture: sampled},
			{
				Binding:    3,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return &SetupError{Stage: StageBindLayout, Err: err}
	}
	c.bindLayout = bindLayout

	pipeLayout, err := c.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "composite_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{c.bindLayout},
	})
	if err != nil {
		return &SetupError{Stage: StageBindLayout, Err: err}
	}
	c.pipeLayout = pipeLayout

	sampler, err := c.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "composite_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		return &SetupError{Stage: StagePipeline, Err: err}
	}
	c.sampler = sampler

	pipeline, err := c.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "composite_pipeline",
		Layout: c.pipeLayout,
		Vertex: hal.VertexState{
			Module:     c.shader,
			EntryPoint: "vs_main",
			Buffers:    compositeVertexLayout(),
		},
		Fragment: &hal.FragmentState{
			Module:     c.shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    targetColorFormat,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		DepthStencil: &hal.DepthStencilState{
			Format:            targetDepthFormat,
			DepthWriteEnabled: false,
			DepthCompare:      gputypes.CompareFunctionAlways,
			StencilFront: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionAlways,
				FailOp:      hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep,
				PassOp:      hal.StencilOperationKeep,
			},
			StencilBack: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionAlways,
				FailOp:      hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep,
				PassOp:      hal.StencilOperationKeep,
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleStrip,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return &SetupError{Stage: StagePipeline, Err: err}
	}
	c.pipeline = pipeline

	uniformBuf, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "composite_uniform",
		Size:  compositeUniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return &SetupError{Stage: StageUniformBuffer, Err: err}
	}
	c.uniformBuf = uniformBuf
	return nil
}

// compileCompositeShader validates the composite shader with naga and
// returns the source the device should compile.
func compileCompositeShader(spirv bool) (hal.ShaderSource, error) {
	if compositeShaderSource == "" {
		return hal.ShaderSource{}, fmt.Errorf("composite shader source is empty")
	}
	if spirv {
		words, err := compileSPIRV(compositeShaderSource)
		if err != nil {
			return hal.ShaderSource{}, err
		}
		return hal.ShaderSource{SPIRV: words}, nil
	}
	if err := validateWGSL(compositeShaderSource, "vs_main", "fs_main"); err != nil {
		return hal.ShaderSource{}, err
	}
	return hal.ShaderSource{WGSL: compositeShaderSource}, nil
}

// validateWGSL parses, lowers and validates src and checks that it declares
// the given entry points.
func validateWGSL(src string, entryPoints ...string) error {
	ast, err := naga.Parse(src)
	if err != nil {
		return err
	}
	module, err := naga.LowerWithSource(ast, src)
	if err != nil {
		return fmt.Errorf("lower shader: %w", err)
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return fmt.Errorf("validate shader: %w", err)
	}
	if len(verrs) > 0 {
		return fmt.Errorf("validate shader: %w", verrs[0])
	}
	for _, name := range entryPoints {
		found := false
		for _, ep := range module.EntryPoints {
			if ep.Name == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("shader has no entry point %q", name)
		}
	}
	return nil
}

// compileSPIRV compiles WGSL to little-endian SPIR-V words.
func compileSPIRV(src string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return words, nil
}

func quadBytes() []byte {
	buf := make([]byte, 0, len(quadVertices)*compositeVertexStride)
	for _, v := range quadVertices {
		for _, f := range v {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
		}
	}
	return buf
}

func compositeVertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: compositeVertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},  // position
				{Format: gputypes.VertexFormatFloat32x2, Offset: 12, ShaderLocation: 1}, // uv
			},
		},
	}
}

// bindGroup returns the cached bind group for the buffer pair, creating it
// on first use.
func (c *Compositor) bindGroup(input, output *TextureBuffer) (hal.BindGroup, error) {
	key := bindKey{input: input, output: output}
	if g, ok := c.groups[key]; ok {
		return g, nil
	}
	g, err := c.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "composite_bind_group",
		Layout: c.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: c.uniformBuf.NativeHandle(),
				Offset: 0,
				Size:   compositeUniformSize,
			}},
			{Binding: 1, Resource: gputypes.TextureViewBinding{TextureView: input.View().NativeHandle()}},
			{Binding: 2, Resource: gputypes.TextureViewBinding{TextureView: output.View().NativeHandle()}},
			{Binding: 3, Resource: gputypes.SamplerBinding{Sampler: c.sampler.NativeHandle()}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create composite bind group: %w", err)
	}
	c.groups[key] = g
	return g, nil
}

// Forget destroys cached bind groups that reference b. Call it before
// releasing a TextureBuffer used with Draw.
func (c *Compositor) Forget(b *TextureBuffer) {
	for key, g := range c.groups {
		if key.input == b || key.output == b {
			c.device.DestroyBindGroup(g)
			delete(c.groups, key)
		}
	}
}

// BindGroups returns the number of cached bind groups.
func (c *Compositor) BindGroups() int { return len(c.groups) }

// Draws returns the number of composite passes submitted.
func (c *Compositor) Draws() uint64 { return c.draws }

// Draw clears rt, draws the full-screen quad sampling input and output with
// the given technique, and submits the pass.
func (c *Compositor) Draw(rt *RenderTarget, technique uint32, input, output *TextureBuffer) error {
	if c.pipeline == nil {
		return ErrCompositorDestroyed
	}
	if rt == nil || rt.colorView == nil || input == nil || output == nil {
		return ErrNilTarget
	}
	if input.Released() || output.Released() {
		return ErrReleased
	}

	var uniform [compositeUniformSize]byte
	binary.LittleEndian.PutUint32(uniform[:], technique)
	if err := c.queue.WriteBuffer(c.uniformBuf, 0, uniform[:]); err != nil {
		return fmt.Errorf("write composite uniform: %w", err)
	}

	group, err := c.bindGroup(input, output)
	if err != nil {
		return err
	}

	encoder, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "composite_encoder",
	})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(rt.label + "_composite"); err != nil {
		encoder.DiscardEncoding()
		return fmt.Errorf("begin encoding: %w", err)
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "composite_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       rt.colorView,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 0},
		}},
		DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
			View:              rt.depthView,
			DepthLoadOp:       gputypes.LoadOpClear,
			DepthStoreOp:      gputypes.StoreOpDiscard,
			DepthClearValue:   1.0,
			StencilLoadOp:     gputypes.LoadOpClear,
			StencilStoreOp:    gputypes.StoreOpDiscard,
			StencilClearValue: 0,
		},
	})
	rp.SetViewport(0, 0, float32(rt.width), float32(rt.height), 0, 1)
	rp.SetPipeline(c.pipeline)
	rp.SetBindGroup(0, group, nil)
	rp.SetVertexBuffer(0, c.vertexBuf, 0)
	rp.Draw(uint32(len(quadVertices)), 1, 0, 0)
	rp.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		return fmt.Errorf("end encoding: %w", err)
	}
	defer c.device.FreeCommandBuffer(cmdBuf)

	if _, err := c.queue.Submit([]hal.CommandBuffer{cmdBuf}); err != nil {
		return fmt.Errorf("submit composite: %w", err)
	}
	c.draws++
	return nil
}

// Destroy releases all GPU resources held by the compositor. Safe to call
// multiple times.
func (c *Compositor) Destroy() {
	for key, g := range c.groups {
		c.device.DestroyBindGroup(g)
		delete(c.groups, key)
	}
	if c.uniformBuf != nil {
		c.device.DestroyBuffer(c.uniformBuf)
		c.uniformBuf = nil
	}
	if c.pipeline != nil {
		c.device.DestroyRenderPipeline(c.pipeline)
		c.pipeline = nil
	}
	if c.sampler != nil {
		c.device.DestroySampler(c.sampler)
		c.sampler = nil
	}
	if c.pipeLayout != nil {
		c.device.DestroyPipelineLayout(c.pipeLayout)
		c.pipeLayout = nil
	}
	if c.bindLayout != nil {
		c.device.DestroyBindGroupLayout(c.bindLayout)
		c.bindLayout = nil
	}
	if c.shader != nil {
		c.device.DestroyShaderModule(c.shader)
		c.shader = nil
	}
	if c.vertexBuf != nil {
		c.device.DestroyBuffer(c.vertexBuf)
		c.vertexBuf = nil
	}
}
