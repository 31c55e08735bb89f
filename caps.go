package rhi

import "github.com/gogpu/gpucontext"

// RenderingCaps lists the optional features and limits of a render system.
// Callers check it before creating objects that depend on a feature;
// creation entry points check it again and fail with ErrCapability.
type RenderingCaps struct {
	// ConstantBuffers reports support for constant (uniform) buffers.
	ConstantBuffers bool

	// TessellationShaders reports support for tessellation control and
	// evaluation stages and patch topologies.
	TessellationShaders bool

	// GeometryShaders reports support for the geometry stage.
	GeometryShaders bool

	// Multisampling reports support for sample counts above one.
	Multisampling bool

	// MaxSamples is the largest supported sample count.
	MaxSamples int

	OcclusionQueries bool
	PrimitiveQueries bool
	TimerQueries     bool

	// RenderCondition reports support for predicated rendering.
	RenderCondition bool

	// WireframeFill reports support for FillWireframe.
	WireframeFill bool

	// InstancedDrawing reports support for instance counts above one.
	InstancedDrawing bool

	MaxColorAttachments   int
	MaxTextureSize        int
	MaxConstantBufferSize uint64
	MaxPatchVertices      int
}

// SupportsQuery reports whether queries of type t can be created.
func (c RenderingCaps) SupportsQuery(t QueryType) bool {
	switch t.Kind() {
	case QueryKindOcclusion:
		return c.OcclusionQueries
	case QueryKindPrimitives:
		return c.PrimitiveQueries
	case QueryKindTimer:
		return c.TimerQueries
	default:
		return false
	}
}

// SupportsSamples reports whether n is a valid sample count.
func (c RenderingCaps) SupportsSamples(n int) bool {
	if n == 1 {
		return true
	}
	if n < 1 || n&(n-1) != 0 {
		return false
	}
	return c.Multisampling && n <= c.MaxSamples
}

// RendererInfo describes the backend and device behind a render system.
type RendererInfo struct {
	// Backend is the registered backend name ("software", "wgpu").
	Backend string

	// Adapter describes the device the backend drives.
	Adapter gpucontext.AdapterInfo

	// API names the native API in use ("CPU", "Vulkan", "Metal", ...).
	API string
}
