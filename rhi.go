package rhi

import (
	"context"
	"image"

	"github.com/gogpu/gputypes"
)

// Resource is implemented by every object a render system creates.
type Resource interface {
	// Label returns the debug label given at creation.
	Label() string
}

// Buffer is a GPU buffer.
type Buffer interface {
	Resource

	Kind() BufferKind

	// Size returns the allocated capacity in bytes.
	Size() uint64

	// State returns the tracked state after all commands recorded so far.
	State() ResourceState
}

// Texture is a two-dimensional GPU texture with a MIP chain.
type Texture interface {
	Resource
	Size() Extent
	Format() gputypes.TextureFormat
	MipLevels() int
	Usage() gputypes.TextureUsage
	State() ResourceState
}

// Sampler is a texture sampler.
type Sampler interface {
	Resource
}

// Shader is one compiled shader stage.
type Shader interface {
	Resource
	Stage() ShaderStage
	EntryPoint() string
}

// ShaderProgram is a set of linked shader stages. A program is shared by
// every pipeline created from it and lives until the last of them is
// released.
type ShaderProgram interface {
	Resource

	// Shader returns the shader bound to stage, or nil.
	Shader(stage ShaderStage) Shader

	VertexFormat() VertexFormat
}

// GraphicsPipeline is an immutable pipeline state object.
type GraphicsPipeline interface {
	Resource
	Program() ShaderProgram
	Topology() PrimitiveTopology
	Samples() int
}

// QueryState is the lifecycle state of a query object.
type QueryState uint8

const (
	QueryIdle QueryState = iota
	QueryRecording
	QueryPending
	QueryResolved
)

// String returns the state name.
func (s QueryState) String() string {
	switch s {
	case QueryIdle:
		return "Idle"
	case QueryRecording:
		return "Recording"
	case QueryPending:
		return "Pending"
	case QueryResolved:
		return "Resolved"
	default:
		return "Unknown"
	}
}

// Query is a GPU counter observed asynchronously.
type Query interface {
	Resource
	Type() QueryType

	// RenderCondition reports whether the query may drive a render condition.
	RenderCondition() bool

	State() QueryState
}

// RenderTarget is an off-screen set of color and depth attachments.
// The first attachment fixes the target size.
type RenderTarget interface {
	Resource

	// Size returns the size fixed by the first attachment, or zero.
	Size() Extent

	// Samples returns the sample count given at creation.
	Samples() int

	// AttachDepthBuffer adds a depth attachment of the given size.
	AttachDepthBuffer(size Extent) error

	// AttachDepthStencilBuffer adds a combined depth-stencil attachment.
	AttachDepthStencilBuffer(size Extent) error

	// AttachTexture2D adds MIP level mipLevel of tex as a color attachment.
	AttachTexture2D(tex Texture, mipLevel int) error

	// DetachAll removes every attachment and unfixes the size.
	DetachAll() error

	ColorAttachments() int
	HasDepth() bool
}

// RenderSystem is the creation surface of one backend instance.
type RenderSystem interface {
	// Renderer describes the backend and device.
	Renderer() RendererInfo

	// GetRenderingCaps returns the optional features the backend supports.
	GetRenderingCaps() RenderingCaps

	CreateRenderContext(desc RenderContextDescriptor) (RenderContext, error)

	// CreateBuffer creates a buffer and uploads initialData, which may be
	// shorter than the buffer or nil.
	CreateBuffer(desc BufferDescriptor, initialData []byte) (Buffer, error)

	// CreateTexture creates a texture. data holds tightly packed RGBA8 rows
	// of the base level and may be nil.
	CreateTexture(desc TextureDescriptor, data []byte) (Texture, error)

	CreateSampler(desc gputypes.SamplerDescriptor) (Sampler, error)
	CreateShader(desc ShaderDescriptor) (Shader, error)
	CreateShaderProgram(desc ShaderProgramDescriptor) (ShaderProgram, error)
	CreateGraphicsPipeline(desc GraphicsPipelineDescriptor) (GraphicsPipeline, error)
	CreateQuery(desc QueryDescriptor) (Query, error)

	// CreateRenderTarget creates an empty render target with the given
	// sample count.
	CreateRenderTarget(samples int) (RenderTarget, error)

	// ReadBuffer flushes every render context of the system, waits for the
	// submitted work, and returns a copy of the buffer contents. Because it
	// flushes contexts, no goroutine may record on any of them meanwhile.
	ReadBuffer(ctx context.Context, buf Buffer) ([]byte, error)

	// ReadTexture flushes like ReadBuffer and returns a copy of one MIP
	// level.
	ReadTexture(ctx context.Context, tex Texture, level int) (*image.RGBA, error)

	// Release destroys an object. Releasing twice is a no-op. Releasing a
	// query removes it from every context, ending its recording or the
	// render condition it drives, so the same calling rule as ReadBuffer
	// applies.
	Release(r Resource) error

	// Close waits for outstanding work and releases every object.
	Close() error
}

// RenderContext records commands onto one logical command stream and owns
// the default surface. A RenderContext is not safe for concurrent use,
// and RenderSystem.ReadBuffer, ReadTexture and Release may touch it.
type RenderContext interface {
	Resource

	// Resolution returns the size of the default surface.
	Resolution() Extent

	SetGraphicsAPIDependentState(state GraphicsAPIDependentState)

	SetViewport(v Viewport)
	Viewport() Viewport
	SetScissor(s Scissor)

	SetClearColor(c ColorRGBA)
	ClearColor() ColorRGBA
	SetClearDepth(d float32)
	SetClearStencil(s uint32)

	// ClearBuffers clears the selected attachments of the bound target.
	ClearBuffers(flags ClearFlags) error

	SetGraphicsPipeline(p GraphicsPipeline) error
	SetVertexBuffer(buf Buffer) error
	SetIndexBuffer(buf Buffer) error
	SetConstantBuffer(buf Buffer, slot int, stages ShaderStageFlags) error
	SetTexture(tex Texture, slot int, stages ShaderStageFlags) error
	SetSampler(s Sampler, slot int, stages ShaderStageFlags) error

	// SetRenderTarget redirects draws and clears to rt until
	// UnsetRenderTarget. Viewport and clear color are not changed.
	SetRenderTarget(rt RenderTarget) error

	// UnsetRenderTarget resolves multisampled attachments and redirects
	// draws and clears back to the default surface.
	UnsetRenderTarget() error

	Draw(vertices, first int) error
	DrawIndexed(indices, first int) error
	DrawInstanced(vertices, first, instances int) error
	DrawIndexedInstanced(indices, first, instances int) error

	// UpdateSubResource copies data into buf at offset through a staging
	// allocation. The copy executes before any later recorded draw.
	UpdateSubResource(buf Buffer, offset uint64, data []byte) error

	// UpdateConstantBuffer is UpdateSubResource at offset zero.
	UpdateConstantBuffer(buf Buffer, data []byte) error

	// BeginQuery starts q. q must be idle, or its last End must belong to
	// a completed submission; the result need not have been fetched.
	BeginQuery(q Query) error
	EndQuery(q Query) error

	// QueryResult returns the result of q if the GPU work recorded up to
	// EndQuery has completed. It never submits work.
	QueryResult(q Query) (value uint64, available bool, err error)

	// BeginRenderCondition gates the following draws on the result of q.
	BeginRenderCondition(q Query, mode RenderConditionMode) error
	EndRenderCondition() error

	// GenerateMips regenerates levels 1..n-1 of tex from level 0.
	GenerateMips(tex Texture) error

	// Flush submits recorded commands without presenting.
	Flush() error

	// Present submits the frame and makes the default surface current.
	Present() error

	// ReadSurface waits for submitted work and returns the default surface.
	ReadSurface(ctx context.Context) (*image.RGBA, error)
}
