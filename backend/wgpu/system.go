package wgpu

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/wgsl"
)

// MaxBindingSlots is the number of binding slots per resource kind.
const MaxBindingSlots = 16

var errDeviceClosed = fmt.Errorf("wgpu: device closed: %w", rhi.ErrReleased)

// System is the render system over one HAL device.
type System struct {
	cfg      rhi.Config
	caps     rhi.RenderingCaps
	info     gputypes.AdapterInfo
	dev      hal.Device
	queue    hal.Queue
	instance hal.Instance
	pool     *encoderPool

	mu       sync.Mutex
	contexts []*renderContext
	objects  map[owned]struct{}
	deferred []*deferred
	closed   bool

	submitMu  sync.Mutex
	submitted uint64

	retireMu sync.Mutex
	retirees []retiree

	layoutMu sync.RWMutex
	layouts  map[string]*bindLayout

	blitMu sync.Mutex
	blit   *blitter
}

// Renderer describes the backend and the adapter.
func (s *System) Renderer() rhi.RendererInfo {
	return rhi.RendererInfo{
		Backend: rhi.BackendWGPU,
		Adapter: gpucontext.AdapterInfo{Name: s.info.Name, Type: adapterType(s.info.DeviceType)},
		API:     s.info.Backend.String(),
	}
}

// GetRenderingCaps returns the capabilities of the system.
func (s *System) GetRenderingCaps() rhi.RenderingCaps {
	return s.caps
}

// Device returns the HAL device the system renders with.
func (s *System) Device() hal.Device { return s.dev }

func (s *System) track(o owned) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("wgpu: create %q: %w", o.Label(), errDeviceClosed)
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

// supportsSamples reports whether targets with n samples can be created.
// WebGPU only defines single-sampled and 4x multisampled attachments.
func (s *System) supportsSamples(n int) bool {
	return s.caps.SupportsSamples(n) && (n == 1 || n == 4)
}

// CreateBuffer creates a buffer in the target state of its kind and
// writes initialData through the queue.
func (s *System) CreateBuffer(desc rhi.BufferDescriptor, initialData []byte) (rhi.Buffer, error) {
	if err := rhi.ValidateBufferDescriptor(desc, s.caps); err != nil {
		return nil, err
	}
	if uint64(len(initialData)) > desc.Size {
		return nil, fmt.Errorf("wgpu: buffer %q: %d bytes of initial data for %d byte buffer: %w",
			desc.Label, len(initialData), desc.Size, rhi.ErrResourceOverflow)
	}
	b := &buffer{
		object: object{sys: s, label: s.label(desc.Label)},
		desc:   desc,
		size:   alignCopy(desc.Size),
		state:  desc.Kind.TargetState(),
	}
	usage := gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	switch desc.Kind {
	case rhi.BufferKindIndex:
		usage |= gputypes.BufferUsageIndex
	case rhi.BufferKindConstant:
		usage |= gputypes.BufferUsageUniform
	default:
		usage |= gputypes.BufferUsageVertex
	}
	raw, err := s.dev.CreateBuffer(&hal.BufferDescriptor{Label: b.label, Size: b.size, Usage: usage})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create buffer %q: %v: %w", b.label, err, rhi.ErrCreation)
	}
	b.raw = raw
	if len(initialData) > 0 {
		if err := s.queue.WriteBuffer(raw, 0, padCopy(initialData)); err != nil {
			s.dev.DestroyBuffer(raw)
			return nil, fmt.Errorf("wgpu: upload buffer %q: %v: %w", b.label, err, rhi.ErrCreation)
		}
	}
	if err := s.track(b); err != nil {
		s.dev.DestroyBuffer(raw)
		return nil, err
	}
	rhi.Logger().Debug("wgpu: buffer created", "label", b.label, "kind", desc.Kind.String(), "size", desc.Size)
	return b, nil
}

// alignCopy rounds n up to the 4 byte copy alignment.
func alignCopy(n uint64) uint64 {
	return (n + 3) &^ 3
}

// padCopy returns data extended with zeros to the copy alignment.
func padCopy(data []byte) []byte {
	n := alignCopy(uint64(len(data)))
	if n == uint64(len(data)) {
		return data
	}
	out := make([]byte, n)
	copy(out, data)
	return out
}

// CreateTexture creates an RGBA8 texture with its MIP chain and uploads
// the base level.
func (s *System) CreateTexture(desc rhi.TextureDescriptor, data []byte) (rhi.Texture, error) {
	levels, err := rhi.ValidateTextureDescriptor(desc, s.caps)
	if err != nil {
		return nil, err
	}
	if want := desc.Size.Width * desc.Size.Height * 4; data != nil && len(data) != want {
		return nil, fmt.Errorf("wgpu: texture %q: %d bytes of data, want %d: %w",
			desc.Label, len(data), want, rhi.ErrCreation)
	}
	t := &texture{
		object: object{sys: s, label: s.label(desc.Label)},
		desc:   desc,
		levels: levels,
		state:  rhi.StateShaderResource,
	}
	t.usage = desc.Usage | gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc
	if levels > 1 {
		// GenerateMips renders into each level.
		t.usage |= gputypes.TextureUsageRenderAttachment
	}
	t.raw, err = s.dev.CreateTexture(&hal.TextureDescriptor{
		Label:         t.label,
		Size:          hal.Extent3D{Width: uint32(desc.Size.Width), Height: uint32(desc.Size.Height), DepthOrArrayLayers: 1},
		MipLevelCount: uint32(levels),
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        colorFormat,
		Usage:         t.usage,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create texture %q: %v: %w", t.label, err, rhi.ErrCreation)
	}
	t.view, err = s.dev.CreateTextureView(t.raw, &hal.TextureViewDescriptor{
		Label:         t.label,
		Format:        colorFormat,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: uint32(levels),
	})
	if err != nil {
		s.dev.DestroyTexture(t.raw)
		return nil, fmt.Errorf("wgpu: create texture view %q: %v: %w", t.label, err, rhi.ErrCreation)
	}
	if data != nil {
		err = s.queue.WriteTexture(
			&hal.ImageCopyTexture{Texture: t.raw, Aspect: gputypes.TextureAspectAll},
			data,
			&hal.ImageDataLayout{BytesPerRow: uint32(desc.Size.Width * 4), RowsPerImage: uint32(desc.Size.Height)},
			&hal.Extent3D{Width: uint32(desc.Size.Width), Height: uint32(desc.Size.Height), DepthOrArrayLayers: 1},
		)
		if err != nil {
			s.dev.DestroyTextureView(t.view)
			s.dev.DestroyTexture(t.raw)
			return nil, fmt.Errorf("wgpu: upload texture %q: %v: %w", t.label, err, rhi.ErrCreation)
		}
	}
	if err := s.track(t); err != nil {
		s.dev.DestroyTextureView(t.view)
		s.dev.DestroyTexture(t.raw)
		return nil, err
	}
	rhi.Logger().Debug("wgpu: texture created", "label", t.label, "size", desc.Size.String(), "levels", levels)
	return t, nil
}

// CreateSampler creates a sampler. Unset address modes clamp and unset
// filters are nearest.
func (s *System) CreateSampler(desc gputypes.SamplerDescriptor) (rhi.Sampler, error) {
	smp := &sampler{object: object{sys: s, label: s.label(desc.Label)}, desc: desc}
	hd := samplerDescriptor(desc)
	hd.Label = smp.label
	raw, err := s.dev.CreateSampler(hd)
	if err != nil {
		return nil, fmt.Errorf("wgpu: create sampler %q: %v: %w", smp.label, err, rhi.ErrCreation)
	}
	smp.raw = raw
	if err := s.track(smp); err != nil {
		s.dev.DestroySampler(raw)
		return nil, err
	}
	return smp, nil
}

// CreateShader compiles a shader module. WGSL sources are checked for the
// entry point and reflected for their bindings, which must all live in
// group 0 below MaxBindingSlots. SPIR-V is passed to the device as given.
func (s *System) CreateShader(desc rhi.ShaderDescriptor) (rhi.Shader, error) {
	if err := rhi.ValidateShaderDescriptor(desc, s.caps); err != nil {
		return nil, err
	}
	sh := &shaderObject{object: object{sys: s, label: s.label(desc.Label)}, desc: desc}
	src := hal.ShaderSource{SPIRV: desc.SPIRV}
	if desc.Source != "" {
		if err := wgsl.Check(desc.Source, desc.EntryPoint, desc.Stage); err != nil {
			return nil, fmt.Errorf("wgpu: shader %q: %w", sh.label, err)
		}
		bindings, err := wgsl.Bindings(desc.Source)
		if err != nil {
			return nil, fmt.Errorf("wgpu: shader %q: %w", sh.label, err)
		}
		for _, b := range bindings {
			switch {
			case b.Group != 0:
				return nil, fmt.Errorf("wgpu: shader %q: %q in group %d, only group 0 is bound: %w",
					sh.label, b.Name, b.Group, rhi.ErrCreation)
			case b.Binding >= MaxBindingSlots:
				return nil, fmt.Errorf("wgpu: shader %q: %q at binding %d beyond %d slots: %w",
					sh.label, b.Name, b.Binding, MaxBindingSlots, rhi.ErrCreation)
			case b.Kind == wgsl.BindingStorage:
				return nil, fmt.Errorf("wgpu: shader %q: storage buffer %q: %w", sh.label, b.Name, rhi.ErrCreation)
			}
		}
		sh.bindings, sh.reflected = bindings, true
		src = hal.ShaderSource{WGSL: desc.Source}
	}
	module, err := s.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: sh.label, Source: src})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create shader %q: %v: %w", sh.label, err, rhi.ErrCreation)
	}
	sh.module = module
	if err := s.track(sh); err != nil {
		s.dev.DestroyShaderModule(module)
		return nil, err
	}
	return sh, nil
}

// CreateShaderProgram links a vertex and an optional fragment shader. The
// program keeps its shaders alive until it is destroyed.
func (s *System) CreateShaderProgram(desc rhi.ShaderProgramDescriptor) (rhi.ShaderProgram, error) {
	if err := rhi.ValidateShaderProgram(desc, s.caps); err != nil {
		return nil, err
	}
	p := &program{
		object:    object{sys: s, label: s.label(desc.Label)},
		desc:      desc,
		reflected: true,
	}
	var err error
	if p.vertex, err = lookup[*shaderObject](s, desc.Vertex, "shader"); err != nil {
		return nil, err
	}
	stages := []*shaderObject{p.vertex}
	if desc.Fragment != nil {
		if p.fragment, err = lookup[*shaderObject](s, desc.Fragment, "shader"); err != nil {
			return nil, err
		}
		stages = append(stages, p.fragment)
	}
	lists := make([][]wgsl.Binding, 0, len(stages))
	for _, sh := range stages {
		p.reflected = p.reflected && sh.reflected
		lists = append(lists, sh.bindings)
	}
	if p.reflected {
		if p.bindings, err = wgsl.Merge(lists...); err != nil {
			return nil, fmt.Errorf("wgpu: shader program %q: %w", p.label, err)
		}
	}
	if err := s.track(p); err != nil {
		return nil, err
	}
	for _, sh := range stages {
		sh.retain()
	}
	return p, nil
}

// CreateGraphicsPipeline validates desc and creates a pipeline that keeps
// its program alive. HAL pipelines are created on first draw, once the
// attachment formats are known.
func (s *System) CreateGraphicsPipeline(desc rhi.GraphicsPipelineDescriptor) (rhi.GraphicsPipeline, error) {
	if err := rhi.ValidateGraphicsPipeline(desc, s.caps); err != nil {
		return nil, err
	}
	if _, ok := desc.Topology.GPU(); !ok {
		return nil, fmt.Errorf("wgpu: pipeline %q: topology %s: %w", desc.Label, desc.Topology, rhi.ErrCapability)
	}
	if n := desc.Rasterizer.SampleCount(); !s.supportsSamples(n) {
		return nil, fmt.Errorf("wgpu: pipeline %q: %d samples: %w", desc.Label, n, rhi.ErrCapability)
	}
	prog, err := lookup[*program](s, desc.Program, "shader program")
	if err != nil {
		return nil, err
	}
	p := &pipeline{
		object:   object{sys: s, label: s.label(desc.Label)},
		desc:     desc,
		program:  prog,
		blend:    desc.Blend.TargetList(),
		variants: make(map[variantKey]hal.RenderPipeline),
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
	if !s.supportsSamples(samples) {
		return nil, fmt.Errorf("wgpu: render target: %d samples: %w", samples, rhi.ErrCapability)
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
	if !s.supportsSamples(desc.Samples) {
		return nil, fmt.Errorf("wgpu: render context %q: %d samples: %w", desc.Label, desc.Samples, rhi.ErrCapability)
	}
	c, err := newRenderContext(s, desc)
	if err != nil {
		return nil, err
	}
	if err := s.track(c); err != nil {
		c.destroy()
		return nil, err
	}
	s.mu.Lock()
	s.contexts = append(s.contexts, c)
	s.mu.Unlock()
	rhi.Logger().Debug("wgpu: render context created",
		"label", c.label, "resolution", desc.Resolution.String(), "samples", desc.Samples)
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

// ReadBuffer submits all recorded work and copies the buffer back once it
// has executed.
func (s *System) ReadBuffer(ctx context.Context, buf rhi.Buffer) ([]byte, error) {
	b, err := lookup[*buffer](s, buf, "buffer")
	if err != nil {
		return nil, err
	}
	if err := s.flushAll(); err != nil {
		return nil, err
	}
	return s.readBuffer(ctx, b)
}

// ReadTexture submits all recorded work and copies one level back once it
// has executed.
func (s *System) ReadTexture(ctx context.Context, tex rhi.Texture, level int) (*image.RGBA, error) {
	t, err := lookup[*texture](s, tex, "texture")
	if err != nil {
		return nil, err
	}
	if level < 0 || level >= t.levels {
		return nil, fmt.Errorf("wgpu: read texture %q: level %d of %d: %w", t.label, level, t.levels, rhi.ErrValidation)
	}
	if err := s.flushAll(); err != nil {
		return nil, err
	}
	return s.readTexture(ctx, t.raw, t.desc.Size.MipExtent(level), uint32(level), t.label)
}

// Release destroys r once the GPU no longer uses it. Shaders and programs
// stay alive while a program or pipeline references them. Releasing an
// object twice is a no-op.
func (s *System) Release(r rhi.Resource) error {
	if r == nil {
		return fmt.Errorf("wgpu: release nil object: %w", rhi.ErrValidation)
	}
	o, ok := r.(owned)
	if !ok || o.base().sys != s {
		return fmt.Errorf("wgpu: release %q: %w", r.Label(), rhi.ErrForeignObject)
	}
	if !o.base().released.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	delete(s.objects, o)
	s.mu.Unlock()

	switch v := o.(type) {
	case *shaderObject:
		if v.refs.Load() == 0 {
			v.destroy()
		}
	case *program:
		if v.refs.Load() == 0 {
			v.destroy()
		}
	case *query:
		v.destroy()
		s.mu.Lock()
		contexts := append([]*renderContext(nil), s.contexts...)
		s.mu.Unlock()
		for _, c := range contexts {
			c.queries.Forget(v)
		}
	case *renderContext:
		v.destroy()
		s.mu.Lock()
		for i, c := range s.contexts {
			if c == v {
				s.contexts = append(s.contexts[:i], s.contexts[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	default:
		o.destroy()
	}
	s.collect()
	rhi.Logger().Debug("wgpu: released", "label", r.Label())
	return nil
}

// Close waits for the device to go idle and destroys every object. A
// device opened by Open is destroyed too.
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
	contexts := s.contexts
	s.objects = nil
	s.contexts = nil
	s.mu.Unlock()

	for _, c := range contexts {
		c.discard()
	}
	s.mu.Lock()
	for _, d := range s.deferred {
		s.retire(d.after, d.fn)
	}
	s.deferred = nil
	s.mu.Unlock()
	var waitErr error
	if err := s.dev.WaitIdle(); err != nil {
		waitErr = fmt.Errorf("wgpu: close: wait idle: %w", err)
		rhi.Logger().Warn("wgpu: wait idle failed", "err", err)
	}
	for _, o := range objects {
		o.base().released.Store(true)
		o.destroy()
	}
	s.collectAll()

	s.blitMu.Lock()
	if s.blit != nil {
		s.blit.destroy(s.dev)
		s.blit = nil
	}
	s.blitMu.Unlock()
	s.layoutMu.Lock()
	for _, l := range s.layouts {
		l.destroy(s.dev)
	}
	s.layouts = nil
	s.layoutMu.Unlock()
	s.pool.destroy()

	if s.instance != nil {
		s.dev.Destroy()
		s.instance.Destroy()
	}
	rhi.Logger().Info("wgpu: system closed", "label", s.cfg.Label)
	return waitErr
}
