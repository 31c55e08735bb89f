package rhi

import "github.com/gogpu/gputypes"

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Label string
	Kind  BufferKind

	// Size is the allocated capacity in bytes.
	Size uint64

	// VertexFormat describes vertex buffers. When set, Size must be a
	// multiple of its stride.
	VertexFormat VertexFormat

	// IndexFormat describes index buffers. Zero means 32-bit indices.
	IndexFormat gputypes.IndexFormat
}

// TextureDescriptor describes a two-dimensional texture to create.
type TextureDescriptor struct {
	Label  string
	Size   Extent
	Format gputypes.TextureFormat

	// MipLevels is the MIP chain length; 0 selects a full chain.
	MipLevels int

	// Usage lists the uses of the texture. Textures attached to a render
	// target need TextureUsageRenderAttachment.
	Usage gputypes.TextureUsage
}

// ShaderDescriptor describes one shader stage.
type ShaderDescriptor struct {
	Label string
	Stage ShaderStage

	// Source is WGSL source text.
	Source string

	// SPIRV is precompiled SPIR-V, used when Source is empty.
	SPIRV []uint32

	// EntryPoint is the function the stage runs.
	EntryPoint string

	// Profile is an optional target profile string ("vs_5_0", ...); it is
	// kept for diagnostics and is not interpreted.
	Profile string
}

// ShaderProgramDescriptor links shader stages into a program.
type ShaderProgramDescriptor struct {
	Label string

	// VertexFormat describes the vertex input of the program.
	VertexFormat VertexFormat

	Vertex         Shader
	TessControl    Shader
	TessEvaluation Shader
	Geometry       Shader
	Fragment       Shader
}

// Stages returns the non-nil shaders of the program in pipeline order.
func (d ShaderProgramDescriptor) Stages() []Shader {
	all := []Shader{d.Vertex, d.TessControl, d.TessEvaluation, d.Geometry, d.Fragment}
	out := all[:0]
	for _, s := range all {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// RasterizerDescriptor holds fixed-function rasterizer state.
type RasterizerDescriptor struct {
	FillMode  FillMode
	CullMode  gputypes.CullMode
	FrontFace gputypes.FrontFace

	// Samples is the sample count of the targets the pipeline draws to.
	// Zero means one.
	Samples int

	ScissorTest bool
}

// SampleCount returns Samples with zero mapped to one.
func (r RasterizerDescriptor) SampleCount() int {
	return max(r.Samples, 1)
}

// DepthDescriptor holds depth test state.
type DepthDescriptor struct {
	TestEnabled  bool
	WriteEnabled bool

	// Compare is the depth test. Zero means CompareFunctionLess.
	Compare gputypes.CompareFunction
}

// CompareFunc returns Compare with the zero value mapped to Less.
func (d DepthDescriptor) CompareFunc() gputypes.CompareFunction {
	if d.Compare == gputypes.CompareFunctionUndefined {
		return gputypes.CompareFunctionLess
	}
	return d.Compare
}

// StencilDescriptor holds stencil test state.
type StencilDescriptor struct {
	TestEnabled bool
	Front       gputypes.StencilFaceState
	Back        gputypes.StencilFaceState
	ReadMask    uint32
	WriteMask   uint32
	Reference   uint32
}

// BlendTargetDescriptor holds blend state of one color target.
//
// ColorMask has no implicit default: the zero value disables all color
// writes, which is how a pipeline that only feeds an occlusion query is
// described. Use DefaultBlendTarget for the usual opaque target.
type BlendTargetDescriptor struct {
	BlendEnabled bool
	SrcColor     gputypes.BlendFactor
	DstColor     gputypes.BlendFactor
	ColorOp      gputypes.BlendOperation
	SrcAlpha     gputypes.BlendFactor
	DstAlpha     gputypes.BlendFactor
	AlphaOp      gputypes.BlendOperation
	ColorMask    gputypes.ColorWriteMask
}

// DefaultBlendTarget returns an opaque target writing all channels.
func DefaultBlendTarget() BlendTargetDescriptor {
	return BlendTargetDescriptor{
		SrcColor:  gputypes.BlendFactorOne,
		DstColor:  gputypes.BlendFactorZero,
		ColorOp:   gputypes.BlendOperationAdd,
		SrcAlpha:  gputypes.BlendFactorOne,
		DstAlpha:  gputypes.BlendFactorZero,
		AlphaOp:   gputypes.BlendOperationAdd,
		ColorMask: gputypes.ColorWriteMaskAll,
	}
}

// GPU converts the target to a gputypes blend state, nil when blending is
// disabled.
func (t BlendTargetDescriptor) GPU() *gputypes.BlendState {
	if !t.BlendEnabled {
		return nil
	}
	return &gputypes.BlendState{
		Color: gputypes.BlendComponent{SrcFactor: t.SrcColor, DstFactor: t.DstColor, Operation: t.ColorOp},
		Alpha: gputypes.BlendComponent{SrcFactor: t.SrcAlpha, DstFactor: t.DstAlpha, Operation: t.AlphaOp},
	}
}

// BlendDescriptor holds blend state for all color targets.
type BlendDescriptor struct {
	AlphaToCoverage bool
	BlendFactor     ColorRGBA

	// Targets holds one entry per color attachment. An empty list means a
	// single DefaultBlendTarget.
	Targets []BlendTargetDescriptor
}

// TargetList returns Targets, or a single default target when empty.
func (b BlendDescriptor) TargetList() []BlendTargetDescriptor {
	if len(b.Targets) == 0 {
		return []BlendTargetDescriptor{DefaultBlendTarget()}
	}
	return b.Targets
}

// GraphicsPipelineDescriptor describes an immutable graphics pipeline.
type GraphicsPipelineDescriptor struct {
	Label      string
	Program    ShaderProgram
	Topology   PrimitiveTopology
	Rasterizer RasterizerDescriptor
	Depth      DepthDescriptor
	Stencil    StencilDescriptor
	Blend      BlendDescriptor
}

// QueryDescriptor describes a query object.
type QueryDescriptor struct {
	Label string
	Type  QueryType

	// RenderCondition allows the query to drive BeginRenderCondition.
	RenderCondition bool
}

// RenderContextDescriptor describes a render context and its default surface.
type RenderContextDescriptor struct {
	Label string

	// Resolution is the size of the default surface. Zero selects the
	// configured surface size.
	Resolution Extent

	// Samples is the sample count of the default surface. Zero selects the
	// configured sample count.
	Samples int

	VSync bool
}
