// Package gpu holds the graphics side of the frame pipeline on top of the
// gogpu/wgpu HAL.
//
// Key components:
//
//   - TextureBuffer: a sampled texture with a host-visible copy the
//     accelerator reaches through interop
//   - RenderTarget: color plus depth/stencil textures for one output stream
//   - Compositor: the full-screen quad pass that composes the input and the
//     processed output into a render target
//   - MemoryManager: budget accounting for everything above
//
// The composite shader is WGSL, validated with naga when the compositor is
// created. Backends that take SPIR-V can be handed naga's output directly
// with CompositorConfig.SPIRV.
package gpu
