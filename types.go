package rhi

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Extent is a two-dimensional size in pixels.
type Extent struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

// IsZero reports whether either dimension is zero or negative.
func (e Extent) IsZero() bool {
	return e.Width <= 0 || e.Height <= 0
}

// String returns the extent as "WxH".
func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// MipExtent returns the size of MIP level n of a base extent. Each
// dimension halves per level and never drops below one.
func (e Extent) MipExtent(level int) Extent {
	w, h := e.Width>>level, e.Height>>level
	return Extent{Width: max(w, 1), Height: max(h, 1)}
}

// MaxMipLevels returns the length of a full MIP chain for the extent.
func (e Extent) MaxMipLevels() int {
	n := max(e.Width, e.Height)
	levels := 1
	for n > 1 {
		n >>= 1
		levels++
	}
	return levels
}

// Viewport maps normalized device coordinates to a rectangle of the bound
// render target.
type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// NewViewport returns a viewport covering size with the [0, 1] depth range.
func NewViewport(size Extent) Viewport {
	return Viewport{
		Width:    float32(size.Width),
		Height:   float32(size.Height),
		MaxDepth: 1,
	}
}

// Scissor is a clipping rectangle in pixels.
type Scissor struct {
	X, Y          int
	Width, Height int
}

// ColorRGBA is a floating point color with components in [0, 1].
type ColorRGBA struct {
	R, G, B, A float32
}

// GPU converts the color to the gputypes representation used by render passes.
func (c ColorRGBA) GPU() gputypes.Color {
	return gputypes.Color{R: float64(c.R), G: float64(c.G), B: float64(c.B), A: float64(c.A)}
}

// ClearFlags selects which attachments ClearBuffers clears.
type ClearFlags uint8

const (
	// ClearFlagColor clears all color attachments to the clear color.
	ClearFlagColor ClearFlags = 1 << iota
	// ClearFlagDepth clears the depth attachment to the clear depth.
	ClearFlagDepth
	// ClearFlagStencil clears the stencil attachment to the clear stencil value.
	ClearFlagStencil

	// ClearFlagColorDepth clears color and depth.
	ClearFlagColorDepth = ClearFlagColor | ClearFlagDepth
	// ClearFlagAll clears every attachment.
	ClearFlagAll = ClearFlagColor | ClearFlagDepth | ClearFlagStencil
)

// ResourceState is the explicit usage state of a GPU resource, modeled on
// Direct3D12 resource states. A resource must be transitioned into the
// state a use requires before the use executes.
type ResourceState uint8

const (
	// StateCommon is the initial state of a resource with no pending use.
	StateCommon ResourceState = iota
	// StateVertexAndConstant is required to read a vertex buffer in a draw.
	StateVertexAndConstant
	// StateIndex is required to read an index buffer in a draw.
	StateIndex
	// StateConstant is required to read a constant buffer from a shader.
	StateConstant
	// StateCopyDest is the state of a copy destination.
	StateCopyDest
	// StateCopySource is the state of a copy source.
	StateCopySource
	// StateRenderTarget is the state of a bound color attachment.
	StateRenderTarget
	// StateDepthWrite is the state of a bound depth attachment.
	StateDepthWrite
	// StateShaderResource is required to sample a texture.
	StateShaderResource
)

// String returns the state name.
func (s ResourceState) String() string {
	switch s {
	case StateCommon:
		return "Common"
	case StateVertexAndConstant:
		return "VertexAndConstant"
	case StateIndex:
		return "Index"
	case StateConstant:
		return "Constant"
	case StateCopyDest:
		return "CopyDest"
	case StateCopySource:
		return "CopySource"
	case StateRenderTarget:
		return "RenderTarget"
	case StateDepthWrite:
		return "DepthWrite"
	case StateShaderResource:
		return "ShaderResource"
	default:
		return fmt.Sprintf("ResourceState(%d)", uint8(s))
	}
}

// BufferKind is the usage class of a buffer.
type BufferKind uint8

const (
	// BufferKindVertex holds vertex data described by a VertexFormat.
	BufferKindVertex BufferKind = iota
	// BufferKindIndex holds 16- or 32-bit indices.
	BufferKindIndex
	// BufferKindConstant holds shader constants.
	BufferKindConstant
)

// String returns the kind name.
func (k BufferKind) String() string {
	switch k {
	case BufferKindVertex:
		return "Vertex"
	case BufferKindIndex:
		return "Index"
	case BufferKindConstant:
		return "Constant"
	default:
		return fmt.Sprintf("BufferKind(%d)", uint8(k))
	}
}

// TargetState returns the state a buffer of this kind must be in to be
// bound for drawing. Sub-resource updates transition back to it.
func (k BufferKind) TargetState() ResourceState {
	switch k {
	case BufferKindIndex:
		return StateIndex
	case BufferKindConstant:
		return StateConstant
	default:
		return StateVertexAndConstant
	}
}

// ShaderStage identifies one programmable pipeline stage.
type ShaderStage uint8

const (
	ShaderStageVertex ShaderStage = iota
	ShaderStageTessControl
	ShaderStageTessEvaluation
	ShaderStageGeometry
	ShaderStageFragment
)

// String returns the stage name.
func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "Vertex"
	case ShaderStageTessControl:
		return "TessControl"
	case ShaderStageTessEvaluation:
		return "TessEvaluation"
	case ShaderStageGeometry:
		return "Geometry"
	case ShaderStageFragment:
		return "Fragment"
	default:
		return fmt.Sprintf("ShaderStage(%d)", uint8(s))
	}
}

// Flag returns the stage as a ShaderStageFlags bit.
func (s ShaderStage) Flag() ShaderStageFlags {
	return 1 << s
}

// ShaderStageFlags is a set of shader stages a binding is visible to.
type ShaderStageFlags uint8

const (
	StageFlagVertex         = ShaderStageFlags(1 << ShaderStageVertex)
	StageFlagTessControl    = ShaderStageFlags(1 << ShaderStageTessControl)
	StageFlagTessEvaluation = ShaderStageFlags(1 << ShaderStageTessEvaluation)
	StageFlagGeometry       = ShaderStageFlags(1 << ShaderStageGeometry)
	StageFlagFragment       = ShaderStageFlags(1 << ShaderStageFragment)

	// StageFlagAllTess covers both tessellation stages.
	StageFlagAllTess = StageFlagTessControl | StageFlagTessEvaluation
	// StageFlagAll covers every stage.
	StageFlagAll = StageFlagVertex | StageFlagAllTess | StageFlagGeometry | StageFlagFragment
)

// Has reports whether the set contains every stage in other.
func (f ShaderStageFlags) Has(other ShaderStageFlags) bool {
	return f&other == other
}

// GPU converts the set to gputypes stage flags. Tessellation and geometry
// stages have no WebGPU equivalent and are dropped.
func (f ShaderStageFlags) GPU() gputypes.ShaderStages {
	var out gputypes.ShaderStages
	if f&StageFlagVertex != 0 {
		out |= gputypes.ShaderStageVertex
	}
	if f&StageFlagFragment != 0 {
		out |= gputypes.ShaderStageFragment
	}
	return out
}

// PrimitiveTopology is the assembly mode of vertices into primitives.
// Patch topologies carry their control point count.
type PrimitiveTopology uint8

const (
	TopologyTriangleList PrimitiveTopology = iota
	TopologyTriangleStrip
	TopologyPointList
	TopologyLineList
	TopologyLineStrip

	topologyPatchBase PrimitiveTopology = 32
)

// MaxPatchControlPoints is the largest control point count of a patch topology.
const MaxPatchControlPoints = 32

// PatchTopology returns the patch list topology with n control points per
// patch. n is clamped to [1, MaxPatchControlPoints].
func PatchTopology(n int) PrimitiveTopology {
	n = min(max(n, 1), MaxPatchControlPoints)
	return topologyPatchBase + PrimitiveTopology(n-1)
}

// IsPatches reports whether the topology is a patch list.
func (t PrimitiveTopology) IsPatches() bool {
	return t >= topologyPatchBase
}

// ControlPoints returns the patch size, or 0 for non-patch topologies.
func (t PrimitiveTopology) ControlPoints() int {
	if !t.IsPatches() {
		return 0
	}
	return int(t-topologyPatchBase) + 1
}

// String returns the topology name.
func (t PrimitiveTopology) String() string {
	switch t {
	case TopologyTriangleList:
		return "TriangleList"
	case TopologyTriangleStrip:
		return "TriangleStrip"
	case TopologyPointList:
		return "PointList"
	case TopologyLineList:
		return "LineList"
	case TopologyLineStrip:
		return "LineStrip"
	}
	if t.IsPatches() {
		return fmt.Sprintf("Patches%d", t.ControlPoints())
	}
	return fmt.Sprintf("PrimitiveTopology(%d)", uint8(t))
}

// Primitives returns how many primitives the topology assembles from n
// vertices.
func (t PrimitiveTopology) Primitives(n int) int {
	if n <= 0 {
		return 0
	}
	switch t {
	case TopologyTriangleList:
		return n / 3
	case TopologyTriangleStrip:
		return max(n-2, 0)
	case TopologyPointList:
		return n
	case TopologyLineList:
		return n / 2
	case TopologyLineStrip:
		return max(n-1, 0)
	}
	if cp := t.ControlPoints(); cp > 0 {
		return n / cp
	}
	return 0
}

// GPU converts the topology to gputypes. Patch topologies have no WebGPU
// equivalent; ok is false for them.
func (t PrimitiveTopology) GPU() (gputypes.PrimitiveTopology, bool) {
	switch t {
	case TopologyTriangleList:
		return gputypes.PrimitiveTopologyTriangleList, true
	case TopologyTriangleStrip:
		return gputypes.PrimitiveTopologyTriangleStrip, true
	case TopologyPointList:
		return gputypes.PrimitiveTopologyPointList, true
	case TopologyLineList:
		return gputypes.PrimitiveTopologyLineList, true
	case TopologyLineStrip:
		return gputypes.PrimitiveTopologyLineStrip, true
	}
	return gputypes.PrimitiveTopologyTriangleList, false
}

// FillMode is the polygon rasterization mode.
type FillMode uint8

const (
	FillSolid FillMode = iota
	FillWireframe
)

// GraphicsAPIDependentState holds conventions that differ between native
// APIs and that callers may need to override.
type GraphicsAPIDependentState struct {
	// FlipViewportVertical flips viewport Y, matching the OpenGL origin.
	FlipViewportVertical bool
}

// IndexSize returns the size in bytes of one index of the given format.
func IndexSize(f gputypes.IndexFormat) int {
	if f == gputypes.IndexFormatUint32 {
		return 4
	}
	return 2
}
