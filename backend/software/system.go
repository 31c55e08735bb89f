package software

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/wgsl"
)

var errDeviceClosed = fmt.Errorf("software: device closed: %w", rhi.ErrReleased)

// init registers the software backend on package import.
func init() {
	rhi.Register(rhi.BackendSoftware, func(cfg rhi.Config) (rhi.RenderSystem, error) {
		return New(cfg), nil
	})
}

// Option adjusts a System at creation.
type Option func(*System)

// WithCaps lets fn restrict the capabilities the system reports and
// enforces.
func WithCaps(fn func(*rhi.RenderingCaps)) Option {
	return func(s *System) {
		fn(&s.caps)
	}
}

// System is the software render system.
type System struct {
	cfg  rhi.Config
	caps rhi.RenderingCaps
	dev  *device

	mu       sync.Mutex
	contexts []*renderContext
	objects  map[owned]struct{}
	closed   bool
}

// DefaultCaps returns the capabilities of the software backend.
func DefaultCaps() rhi.RenderingCaps {
	return rhi.RenderingCaps{
		ConstantBuffers:       true,
		Multisampling:         true,
		MaxSamples:            8,
		OcclusionQueries:      true,
		PrimitiveQueries:      true,
		TimerQueries:          true,
		RenderCondition:       true,
		WireframeFill:         true,
		InstancedDrawing:      true,
		MaxColorAttachments:   8,
		MaxTextureSize:        8192,
		MaxConstantBufferSize: 64 * 1024,
	}
}

// New creates a software render system.
func New(cfg rhi.Config, opts ...Option) *System {
	s := &System{
		cfg:     cfg.Normalize(),
		caps:    DefaultCaps(),
		dev:     newDevice(),
		objects: make(map[owned]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Renderer describes the backend.
func (s *System) Renderer() rhi.RendererInfo {
	return rhi.RendererInfo{
		Backend: rhi.BackendSoftware,
		Adapter: gpucontext.AdapterInfo{Name: "rhi software rasterizer", Type: gpucontext.AdapterTypeSoftware},
		API:     "CPU",
	}
}

// GetRenderingCaps returns the capabilities of the system.
func (s *System) GetRenderingCaps() rhi.RenderingCaps {
	return s.caps
}

func (s *System) track(o owned) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("software: create %q: %w", o.Label(), errDeviceClosed)
	}
	s.objects[o] = struct{}{}
	return nil
}

func (s *System) label(l string) string {
	if l == "" {
		return s.cfg.Label
	}
	return l
}

// CreateBuffer creates a buffer in the target state of its kind.
func (s *System) CreateBuffer(desc rhi.BufferDescriptor, initialData []byte) (rhi.Buffer, error) {
	if err := rhi.ValidateBufferDescriptor(desc, s.caps); err != nil {
		return nil, err
	}
	if uint64(len(initialData)) > desc.Size {
		return nil, fmt.Errorf("software: buffer %q: %d bytes of initial data for %d byte buffer: %w",
			desc.Label, len(initialData), desc.Size, rhi.ErrResourceOverflow)
	}
	b := &buffer{
		object: object{sys: s, label: s.label(desc.Label)},
		desc:   desc,
		data:   make([]byte, desc.Size),
	}
	// Not yet visible to the device, so the upload is a plain copy.
	copy(b.data, initialData)
	b.state = desc.Kind.TargetState()
	b.devState = b.state
	if err := s.track(b); err != nil {
		return nil, err
	}
	rhi.Logger().Debug("software: buffer created", "label", b.label, "kind", desc.Kind.String(), "size", desc.Size)
	return b, nil
}

// CreateTexture creates an RGBA8 texture with its full MIP chain storage.
func (s *System) CreateTexture(desc rhi.TextureDescriptor, data []byte) (rhi.Texture, error) {
	levels, err := rhi.ValidateTextureDescriptor(desc, s.caps)
	if err != nil {
		return nil, err
	}
	if want := desc.Size.Width * desc.Size.Height * 4; data != nil && len(data) != want {
		return nil, fmt.Errorf("software: texture %q: %d bytes of data, want %d: %w",
			desc.Label, len(data), want, rhi.ErrCreation)
	}
	t := &texture{
		object: object{sys: s, label: s.label(desc.Label)},
		desc:   desc,
		levels: make([]*image.RGBA, levels),
		state:  rhi.StateShaderResource,
	}
	for i := range t.levels {
		e := desc.Size.MipExtent(i)
		t.levels[i] = image.NewRGBA(image.Rect(0, 0, e.Width, e.Height))
	}
	copy(t.levels[0].Pix, data)
	if err := s.track(t); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateSampler creates a sampler.
func (s *System) CreateSampler(desc gputypes.SamplerDescriptor) (rhi.Sampler, error) {
	smp := &sampler{object: object{sys: s, label: s.label(desc.Label)}, desc: desc}
	if err := s.track(smp); err != nil {
		return nil, err
	}
	return smp, nil
}

// CreateShader checks the source and creates a shader. WGSL sources must
// declare the entry point for the stage; SPIR-V is accepted as given.
func (s *System) CreateShader(desc rhi.ShaderDescriptor) (rhi.Shader, error) {
	if err := rhi.ValidateShaderDescriptor(desc, s.caps); err != nil {
		return nil, err
	}
	if desc.Source != "" {
		if err := wgsl.Check(desc.Source, desc.EntryPoint, desc.Stage); err != nil {
			return nil, fmt.Errorf("software: shader %q: %w", desc.Label, err)
		}
	}
	sh := &shaderObject{object: object{sys: s, label: s.label(desc.Label)}, desc: desc}
	if err := s.track(sh); err != nil {
		return nil, err
	}
	return sh, nil
}

// CreateShaderProgram links shaders into a program.
func (s *System) CreateShaderProgram(desc rhi.ShaderProgramDescriptor) (rhi.ShaderProgram, error) {
	if err := rhi.ValidateShaderProgram(desc, s.caps); err != nil {
		return nil, err
	}
	for _, sh := range desc.Stages() {
		if _, err := lookup[*shaderObject](s, sh, "shader"); err != nil {
			return nil, err
		}
	}
	p := &program{
		object: object{sys: s, label: s.label(desc.Label)},
		desc:   desc,
		stages: linkStages(desc.Vertex, desc.Fragment),
	}
	if err := s.track(p); err != nil {
		return nil, err
	}
	return p, nil
}

// CreateGraphicsPipeline validates desc against the capabilities and
// creates a pipeline that keeps its program alive.
func (s *System) CreateGraphicsPipeline(desc rhi.GraphicsPipelineDescriptor) (rhi.GraphicsPipeline, error) {
	if err := rhi.ValidateGraphicsPipeline(desc, s.caps); err != nil {
		return nil, err
	}
	prog, err := lookup[*program](s, desc.Program, "shader program")
	if err != nil {
		return nil, err
	}
	p := &pipeline{
		object:  object{sys: s, label: s.label(desc.Label)},
		desc:    desc,
		program: prog,
		blend:   desc.Blend.TargetList(),
	}
	if err := s.track(p); err != nil {
		return nil, err
	}
	prog.retain()
	return p, nil
}

// CreateQuery creates an idle query.
func (s *System) CreateQuery(desc rhi.QueryDescriptor) (rhi.Query, error) {
	if err := rhi.ValidateQueryDescriptor(desc, s.caps); err != nil {
		return nil, err
	}
	q := &query{object: object{sys: s, label: s.label(desc.Label)}}
	q.rec.Type = desc.Type
	q.rec.RenderCondition = desc.RenderCondition
	if err := s.track(q); err != nil {
		return nil, err
	}
	return q, nil
}

// CreateRenderTarget creates an empty render target.
func (s *System) CreateRenderTarget(samples int) (rhi.RenderTarget, error) {
	samples = max(samples, 1)
	if err := rhi.ValidateRenderTargetSamples(samples, s.caps); err != nil {
		return nil, err
	}
	rt := &renderTarget{object: object{sys: s, label: s.cfg.Label + " render target"}, samples: samples}
	if err := s.track(rt); err != nil {
		return nil, err
	}
	return rt, nil
}

// CreateRenderContext creates a context with its default surface.
func (s *System) CreateRenderContext(desc rhi.RenderContextDescriptor) (rhi.RenderContext, error) {
	if desc.Resolution.IsZero() {
		desc.Resolution = s.cfg.SurfaceSize
	}
	if desc.Samples <= 0 {
		desc.Samples = s.cfg.Samples
	}
	if !s.caps.SupportsSamples(desc.Samples) {
		return nil, fmt.Errorf("software: render context %q: %d samples: %w", desc.Label, desc.Samples, rhi.ErrCapability)
	}
	c := newRenderContext(s, desc)
	if err := s.track(c); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.contexts = append(s.contexts, c)
	s.mu.Unlock()
	return c, nil
}

// flushAll submits the recorded commands of every context. No context may
// be recording on another goroutine.
func (s *System) flushAll() error {
	s.mu.Lock()
	contexts := append([]*renderContext(nil), s.contexts...)
	s.mu.Unlock()
	for _, c := range contexts {
		if err := c.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// ReadBuffer submits all recorded work and returns the buffer contents
// once it has executed.
func (s *System) ReadBuffer(ctx context.Context, buf rhi.Buffer) ([]byte, error) {
	b, err := lookup[*buffer](s, buf, "buffer")
	if err != nil {
		return nil, err
	}
	if err := s.flushAll(); err != nil {
		return nil, err
	}
	var out []byte
	if err := s.dev.run(ctx, func() { out = append([]byte(nil), b.data...) }); err != nil {
		return nil, fmt.Errorf("software: read buffer %q: %w", b.label, err)
	}
	return out, nil
}

// ReadTexture submits all recorded work and returns a copy of one level.
func (s *System) ReadTexture(ctx context.Context, tex rhi.Texture, level int) (*image.RGBA, error) {
	t, err := lookup[*texture](s, tex, "texture")
	if err != nil {
		return nil, err
	}
	if level < 0 || level >= len(t.levels) {
		return nil, fmt.Errorf("software: read texture %q: level %d of %d: %w", t.label, level, len(t.levels), rhi.ErrValidation)
	}
	if err := s.flushAll(); err != nil {
		return nil, err
	}
	var out *image.RGBA
	if err := s.dev.run(ctx, func() { out = cloneImage(t.levels[level]) }); err != nil {
		return nil, fmt.Errorf("software: read texture %q: %w", t.label, err)
	}
	return out, nil
}

// Release destroys r. Releasing an object twice is a no-op.
func (s *System) Release(r rhi.Resource) error {
	if r == nil {
		return fmt.Errorf("software: release nil object: %w", rhi.ErrValidation)
	}
	o, ok := r.(owned)
	if !ok || o.base().sys != s {
		return fmt.Errorf("software: release %q: %w", r.Label(), rhi.ErrForeignObject)
	}
	if !o.base().released.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	delete(s.objects, o)
	s.mu.Unlock()

	switch v := o.(type) {
	case *pipeline:
		v.program.releaseRef()
	case *program:
		if v.refs.Load() == 0 {
			v.destroy()
		}
	case *renderTarget:
		v.release()
	case *query:
		s.forgetQuery(v)
	case *renderContext:
		v.release()
		s.mu.Lock()
		for i, c := range s.contexts {
			if c == v {
				s.contexts = append(s.contexts[:i], s.contexts[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}
	rhi.Logger().Debug("software: released", "label", r.Label())
	return nil
}

// forgetQuery drops q from every context. A context that held q as its
// recording query or render condition records the matching device-side
// reset, so commands recorded before the release still count into q.
func (s *System) forgetQuery(q *query) {
	s.mu.Lock()
	contexts := append([]*renderContext(nil), s.contexts...)
	s.mu.Unlock()
	for _, c := range contexts {
		if c.queries.Forget(q) {
			c.record(func(x *executor) { x.forget(q) })
		}
	}
}

// Close waits for submitted work, stops the device and releases every
// object.
func (s *System) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	objects := make([]owned, 0, len(s.objects))
	for o := range s.objects {
		objects = append(objects, o)
	}
	s.mu.Unlock()

	s.dev.close()
	for _, o := range objects {
		if o.base().released.CompareAndSwap(false, true) {
			if p, ok := o.(*program); ok {
				p.destroy()
			}
		}
	}
	s.mu.Lock()
	s.objects = nil
	s.contexts = nil
	s.mu.Unlock()
	return nil
}
