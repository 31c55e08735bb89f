// Package software implements the rhi interfaces on the CPU.
//
// It is the reference backend: every optional capability except the
// tessellation and geometry stages is available, resources carry
// explicit Direct3D12-style states that are checked when commands are
// recorded, and recorded command lists run asynchronously on a device
// goroutine in submission order.
//
// Triangles are clipped, culled and rasterized with the gogpu/wgpu
// software rasterizer (hal/software/raster). Shader modules are checked
// with naga; the stages execute as Go functions looked up by entry point,
// see RegisterVertexShader and RegisterFragmentShader. Entry points
// without a registered function run the built-in transform and constant
// color stages.
//
// Importing the package registers it as rhi.BackendSoftware:
//
//	import _ "github.com/gogpu/rhi/backend/software"
//
//	rs, err := rhi.Open(rhi.BackendSoftware)
package software
