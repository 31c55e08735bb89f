package software

import (
	"fmt"
	"image"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/software/shader"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/track"
)

// object is embedded in every resource of a System.
type object struct {
	sys      *System
	label    string
	released atomic.Bool
}

// Label returns the debug label.
func (o *object) Label() string { return o.label }

func (o *object) base() *object { return o }

type owned interface {
	rhi.Resource
	base() *object
}

// lookup resolves r to a live object of this system.
func lookup[T owned](s *System, r rhi.Resource, what string) (T, error) {
	var zero T
	if r == nil {
		return zero, fmt.Errorf("software: nil %s: %w", what, rhi.ErrValidation)
	}
	t, ok := r.(T)
	if !ok || t.base().sys != s {
		return zero, fmt.Errorf("software: %s %q: %w", what, r.Label(), rhi.ErrForeignObject)
	}
	if t.base().released.Load() {
		return zero, fmt.Errorf("software: %s %q: %w", what, r.Label(), rhi.ErrReleased)
	}
	return t, nil
}

type buffer struct {
	object
	desc rhi.BufferDescriptor

	// state is the state after every recorded command; devState is the
	// state after every executed command.
	state    rhi.ResourceState
	devState rhi.ResourceState

	data []byte
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

type texture struct {
	object
	desc   rhi.TextureDescriptor
	levels []*image.RGBA
	state  rhi.ResourceState
}

func (t *texture) Size() rhi.Extent               { return t.desc.Size }
func (t *texture) Format() gputypes.TextureFormat { return t.desc.Format }
func (t *texture) MipLevels() int                 { return len(t.levels) }
func (t *texture) Usage() gputypes.TextureUsage   { return t.desc.Usage }
func (t *texture) State() rhi.ResourceState       { return t.state }

type sampler struct {
	object
	desc gputypes.SamplerDescriptor
}

type shaderObject struct {
	object
	desc rhi.ShaderDescriptor
}

func (s *shaderObject) Stage() rhi.ShaderStage { return s.desc.Stage }
func (s *shaderObject) EntryPoint() string     { return s.desc.EntryPoint }

// program is shared by every pipeline created from it. It is destroyed
// when it has been released and the last pipeline referencing it is gone.
type program struct {
	object
	desc   rhi.ShaderProgramDescriptor
	stages shader.ShaderProgram

	refs      atomic.Int32
	destroyed atomic.Bool
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

func (p *program) retain() { p.refs.Add(1) }

func (p *program) releaseRef() {
	if p.refs.Add(-1) == 0 && p.released.Load() {
		p.destroy()
	}
}

func (p *program) destroy() {
	if p.destroyed.CompareAndSwap(false, true) {
		rhi.Logger().Debug("software: shader program destroyed", "label", p.label)
	}
}

type pipeline struct {
	object
	desc    rhi.GraphicsPipelineDescriptor
	program *program
	blend   []rhi.BlendTargetDescriptor
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

type query struct {
	object
	rec track.Query

	// Written on the device goroutine.
	count   uint64
	started int64
	result  atomic.Uint64
	ended   atomic.Bool
}

func (q *query) Type() rhi.QueryType   { return q.rec.Type }
func (q *query) RenderCondition() bool { return q.rec.RenderCondition }
func (q *query) State() rhi.QueryState { return q.rec.State() }

// Record returns the lifecycle record the context trackers share.
func (q *query) Record() *track.Query { return &q.rec }
