package wgpu

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/track"
	"github.com/gogpu/rhi/internal/wgsl"
)

// object is embedded in every resource of a System.
type object struct {
	sys       *System
	label     string
	released  atomic.Bool
	destroyed atomic.Bool
}

// Label returns the debug label.
func (o *object) Label() string { return o.label }

func (o *object) base() *object { return o }

// once reports whether this is the first call; destroy methods use it to
// free HAL objects exactly once.
func (o *object) once() bool { return o.destroyed.CompareAndSwap(false, true) }

type owned interface {
	rhi.Resource
	base() *object
	destroy()
}

// lookup resolves r to a live object of this system.
func lookup[T owned](s *System, r rhi.Resource, what string) (T, error) {
	var zero T
	if r == nil {
		return zero, fmt.Errorf("wgpu: nil %s: %w", what, rhi.ErrValidation)
	}
	t, ok := r.(T)
	if !ok || t.base().sys != s {
		return zero, fmt.Errorf("wgpu: %s %q: %w", what, r.Label(), rhi.ErrForeignObject)
	}
	if t.base().released.Load() {
		return zero, fmt.Errorf("wgpu: %s %q: %w", what, r.Label(), rhi.ErrReleased)
	}
	return t, nil
}

type buffer struct {
	object
	desc rhi.BufferDescriptor
	raw  hal.Buffer

	// size is the allocation size, desc.Size rounded up to the copy
	// alignment.
	size  uint64
	state rhi.ResourceState
}

func (b *buffer) Kind() rhi.BufferKind           { return b.desc.Kind }
func (b *buffer) Size() uint64                   { return b.desc.Size }
func (b *buffer) State() rhi.ResourceState       { return b.state }
func (b *buffer) VertexFormat() rhi.VertexFormat { return b.desc.VertexFormat }

func (b *buffer) indexFormat() gputypes.IndexFormat {
	if b.desc.IndexFormat == gputypes.IndexFormatUndefined {
		return gputypes.IndexFormatUint32
	}
	return b.desc.IndexFormat
}

// usageOf maps a tracked state of b to the HAL usage of a barrier.
func (b *buffer) usageOf(state rhi.ResourceState) gputypes.BufferUsage {
	switch state {
	case rhi.StateCopyDest:
		return gputypes.BufferUsageCopyDst
	case rhi.StateCopySource:
		return gputypes.BufferUsageCopySrc
	case rhi.StateIndex:
		return gputypes.BufferUsageIndex
	case rhi.StateVertexAndConstant, rhi.StateConstant:
		if b.desc.Kind == rhi.BufferKindConstant {
			return gputypes.BufferUsageUniform
		}
		return gputypes.BufferUsageVertex
	default:
		return 0
	}
}

func (b *buffer) destroy() {
	if !b.once() {
		return
	}
	s := b.sys
	s.dispose(func() { s.dev.DestroyBuffer(b.raw) })
}

type texture struct {
	object
	desc   rhi.TextureDescriptor
	levels int
	usage  gputypes.TextureUsage
	raw    hal.Texture

	// view covers every MIP level and is the one bound for sampling.
	view  hal.TextureView
	state rhi.ResourceState
}

func (t *texture) Size() rhi.Extent               { return t.desc.Size }
func (t *texture) Format() gputypes.TextureFormat { return t.desc.Format }
func (t *texture) MipLevels() int                 { return t.levels }
func (t *texture) Usage() gputypes.TextureUsage   { return t.desc.Usage }
func (t *texture) State() rhi.ResourceState       { return t.state }

func (t *texture) destroy() {
	if !t.once() {
		return
	}
	s := t.sys
	s.dispose(func() {
		s.dev.DestroyTextureView(t.view)
		s.dev.DestroyTexture(t.raw)
	})
}

type sampler struct {
	object
	desc gputypes.SamplerDescriptor
	raw  hal.Sampler
}

func (smp *sampler) destroy() {
	if !smp.once() {
		return
	}
	s := smp.sys
	s.dispose(func() { s.dev.DestroySampler(smp.raw) })
}

// shared counts the dependents of an object that outlives its own
// release: a shader used by programs, a program used by pipelines.
type shared struct {
	refs atomic.Int32
}

func (sh *shared) retain() { sh.refs.Add(1) }

// drop removes a dependent and reports whether it was the last.
func (sh *shared) drop() bool { return sh.refs.Add(-1) == 0 }

type shaderObject struct {
	object
	shared
	desc   rhi.ShaderDescriptor
	module hal.ShaderModule

	// bindings are the resources a WGSL shader declares; reflected is
	// false for SPIR-V shaders.
	bindings  []wgsl.Binding
	reflected bool
}

func (sh *shaderObject) Stage() rhi.ShaderStage { return sh.desc.Stage }
func (sh *shaderObject) EntryPoint() string     { return sh.desc.EntryPoint }

func (sh *shaderObject) releaseRef() {
	if sh.drop() && sh.released.Load() {
		sh.destroy()
	}
}

func (sh *shaderObject) destroy() {
	if !sh.once() {
		return
	}
	s := sh.sys
	s.dispose(func() { s.dev.DestroyShaderModule(sh.module) })
}

// program is shared by every pipeline created from it. It is destroyed
// when it has been released and the last pipeline referencing it is gone.
type program struct {
	object
	shared
	desc     rhi.ShaderProgramDescriptor
	vertex   *shaderObject
	fragment *shaderObject

	// bindings is the merged binding list of all stages when every stage
	// was reflected.
	bindings  []wgsl.Binding
	reflected bool
}

func (p *program) Shader(stage rhi.ShaderStage) rhi.Shader {
	var s rhi.Shader
	switch stage {
	case rhi.ShaderStageVertex:
		s = p.desc.Vertex
	case rhi.ShaderStageTessControl:
		s = p.desc.TessControl
	case rhi.ShaderStageTessEvaluation:
		s = p.desc.TessEvaluation
	case rhi.ShaderStageGeometry:
		s = p.desc.Geometry
	case rhi.ShaderStageFragment:
		s = p.desc.Fragment
	}
	return s
}

func (p *program) VertexFormat() rhi.VertexFormat { return p.desc.VertexFormat }

func (p *program) releaseRef() {
	if p.drop() && p.released.Load() {
		p.destroy()
	}
}

func (p *program) destroy() {
	if !p.once() {
		return
	}
	p.vertex.releaseRef()
	if p.fragment != nil {
		p.fragment.releaseRef()
	}
	rhi.Logger().Debug("wgpu: shader program destroyed", "label", p.label)
}

// variantKey selects one HAL pipeline of a graphics pipeline. The HAL
// bakes attachment formats and the bind group layout into the pipeline,
// so a pipeline drawing to several kinds of targets has one variant per
// kind.
type variantKey struct {
	colors int
	depth  gputypes.TextureFormat
	layout *bindLayout
}

type pipeline struct {
	object
	desc    rhi.GraphicsPipelineDescriptor
	program *program
	blend   []rhi.BlendTargetDescriptor

	mu       sync.RWMutex
	variants map[variantKey]hal.RenderPipeline
}

func (p *pipeline) Program() rhi.ShaderProgram      { return p.program }
func (p *pipeline) Topology() rhi.PrimitiveTopology { return p.desc.Topology }
func (p *pipeline) Samples() int                    { return p.desc.Rasterizer.SampleCount() }

// blendTarget returns the blend state of color attachment i. Attachments
// beyond the described targets use the last one.
func (p *pipeline) blendTarget(i int) rhi.BlendTargetDescriptor {
	if i < len(p.blend) {
		return p.blend[i]
	}
	return p.blend[len(p.blend)-1]
}

// variant returns the HAL pipeline for key, creating it on first use.
func (p *pipeline) variant(key variantKey) (hal.RenderPipeline, error) {
	p.mu.RLock()
	raw, ok := p.variants[key]
	p.mu.RUnlock()
	if ok {
		return raw, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.variants == nil {
		return nil, fmt.Errorf("wgpu: pipeline %q: %w", p.label, rhi.ErrReleased)
	}
	if raw, ok = p.variants[key]; ok {
		return raw, nil
	}
	desc, err := renderPipelineDescriptor(p, key)
	if err != nil {
		return nil, err
	}
	raw, err = p.sys.dev.CreateRenderPipeline(desc)
	if err != nil {
		return nil, fmt.Errorf("wgpu: create pipeline %q: %v: %w", p.label, err, rhi.ErrCreation)
	}
	p.variants[key] = raw
	rhi.Logger().Debug("wgpu: pipeline variant created",
		"label", p.label, "colors", key.colors, "depth", uint32(key.depth), "variants", len(p.variants))
	return raw, nil
}

func (p *pipeline) destroy() {
	if !p.once() {
		return
	}
	p.mu.Lock()
	variants := p.variants
	p.variants = nil
	p.mu.Unlock()
	s := p.sys
	s.dispose(func() {
		for _, raw := range variants {
			s.dev.DestroyRenderPipeline(raw)
		}
	})
	p.program.releaseRef()
}

type query struct {
	object
	rec track.Query

	// count accumulates while recording; result holds the count of the
	// last End.
	count  uint64
	result atomic.Uint64
}

func (q *query) Type() rhi.QueryType   { return q.rec.Type }
func (q *query) RenderCondition() bool { return q.rec.RenderCondition }
func (q *query) State() rhi.QueryState { return q.rec.State() }

// Record returns the lifecycle record the context trackers share.
func (q *query) Record() *track.Query { return &q.rec }

func (q *query) destroy() { q.once() }
