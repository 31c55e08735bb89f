// Package wgpu implements the rhi interfaces over the gogpu/wgpu HAL.
//
// A System owns one hal.Device and its hal.Queue. Render contexts record
// into a hal.CommandEncoder; render passes are opened lazily by the first
// draw or clear that needs one and closed by anything that must run
// outside a pass (copies, target changes, MIP generation, Flush).
//
// # Bindings
//
// All resources live in bind group 0. The slot given to SetConstantBuffer,
// SetTexture or SetSampler is the @binding number. For WGSL programs the
// expected kind of every binding is read from the shader with naga and
// checked at draw time; SPIR-V programs take their layout from whatever
// is bound.
//
// # Limitations
//
// The HAL has no occlusion queries or predicated rendering, so
// OcclusionQueries, TimerQueries and RenderCondition are false.
// PrimitivesGenerated queries are computed from draw parameters and
// resolve when the submission holding their End completes. Sample counts
// are limited to 1 and 4.
//
// Importing the package registers it as rhi.BackendWGPU together with
// the Vulkan HAL backend. Build with the nogpu tag to leave it
// unregistered:
//
//	import _ "github.com/gogpu/rhi/backend/wgpu"
//
//	rs, err := rhi.Open(rhi.BackendWGPU)
package wgpu
