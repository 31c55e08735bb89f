package software

import (
	"context"
	"fmt"
	"image"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/staging"
	"github.com/gogpu/rhi/internal/track"
)

// stagingChunk is host memory the device copies uploads from.
type stagingChunk struct {
	data []byte
}

type stagingAllocator struct{}

func (stagingAllocator) CreateChunk(size uint64) (*stagingChunk, error) {
	return &stagingChunk{data: make([]byte, size)}, nil
}

func (stagingAllocator) DestroyChunk(*stagingChunk) {}

func (stagingAllocator) Write(c *stagingChunk, offset uint64, data []byte) error {
	copy(c.data[offset:], data)
	return nil
}

// drawState is the binding state a draw or clear captures when recorded.
type drawState struct {
	pipeline  *pipeline
	vertex    *buffer
	index     *buffer
	constants [MaxBindingSlots]*buffer
	textures  [MaxBindingSlots]*texture
	samplers  [MaxBindingSlots]*sampler

	viewport rhi.Viewport
	scissor  rhi.Scissor
	flipY    bool
	fb       *framebuffer
}

type renderContext struct {
	object
	desc    rhi.RenderContextDescriptor
	surface *framebuffer
	x       *executor
	ring    *staging.Ring[*stagingChunk]

	cmds    []command
	queries track.QueryTracker[*query]
	st      drawState
	rt      *renderTarget

	clearColor   rhi.ColorRGBA
	clearDepth   float32
	clearStencil uint32
}

func newRenderContext(s *System, desc rhi.RenderContextDescriptor) *renderContext {
	img := image.NewRGBA(image.Rect(0, 0, desc.Resolution.Width, desc.Resolution.Height))
	surface := &framebuffer{
		label:   desc.Label,
		size:    desc.Resolution,
		samples: desc.Samples,
		colors:  []*colorPlane{newColorPlane(img, desc.Samples)},
	}
	surface.depth, surface.stencil = newDepthPlanes(desc.Resolution, desc.Samples, true)
	surface.clear(rhi.ClearFlagAll, rhi.ColorRGBA{}, 1, 0)

	c := &renderContext{
		object:     object{sys: s, label: s.label(desc.Label)},
		desc:       desc,
		surface:    surface,
		x:          &executor{},
		ring:       staging.NewRing[*stagingChunk](stagingAllocator{}, s.dev, s.cfg.FramesInFlight, s.cfg.StagingChunkSize),
		clearDepth: 1,
	}
	c.st.fb = surface
	c.st.viewport = rhi.NewViewport(desc.Resolution)
	c.st.scissor = rhi.Scissor{Width: desc.Resolution.Width, Height: desc.Resolution.Height}
	return c
}

func (c *renderContext) record(cmd command) {
	c.cmds = append(c.cmds, cmd)
}

func (c *renderContext) live() error {
	if c.released.Load() {
		return fmt.Errorf("software: render context %q: %w", c.label, rhi.ErrReleased)
	}
	return nil
}

func (c *renderContext) Resolution() rhi.Extent { return c.desc.Resolution }

func (c *renderContext) SetGraphicsAPIDependentState(state rhi.GraphicsAPIDependentState) {
	c.st.flipY = state.FlipViewportVertical
}

func (c *renderContext) SetViewport(v rhi.Viewport)      { c.st.viewport = v }
func (c *renderContext) Viewport() rhi.Viewport          { return c.st.viewport }
func (c *renderContext) SetScissor(s rhi.Scissor)        { c.st.scissor = s }
func (c *renderContext) SetClearColor(col rhi.ColorRGBA) { c.clearColor = col }
func (c *renderContext) ClearColor() rhi.ColorRGBA       { return c.clearColor }
func (c *renderContext) SetClearDepth(d float32)         { c.clearDepth = d }
func (c *renderContext) SetClearStencil(s uint32)        { c.clearStencil = s }

// ClearBuffers records a clear of the bound target. Flags naming an
// attachment the target lacks are ignored.
func (c *renderContext) ClearBuffers(flags rhi.ClearFlags) error {
	if err := c.live(); err != nil {
		return err
	}
	fb, color, depth, stencil := c.st.fb, c.clearColor, c.clearDepth, c.clearStencil
	c.record(func(*executor) { fb.clear(flags, color, depth, stencil) })
	return nil
}

func (c *renderContext) SetGraphicsPipeline(p rhi.GraphicsPipeline) error {
	pl, err := lookup[*pipeline](c.sys, p, "pipeline")
	if err != nil {
		return err
	}
	c.st.pipeline = pl
	return nil
}

func (c *renderContext) SetVertexBuffer(buf rhi.Buffer) error {
	b, err := c.bindBuffer(buf, "SetVertexBuffer", rhi.BufferKindVertex)
	if err != nil {
		return err
	}
	c.st.vertex = b
	return nil
}

func (c *renderContext) SetIndexBuffer(buf rhi.Buffer) error {
	b, err := c.bindBuffer(buf, "SetIndexBuffer", rhi.BufferKindIndex)
	if err != nil {
		return err
	}
	c.st.index = b
	return nil
}

func (c *renderContext) SetConstantBuffer(buf rhi.Buffer, slot int, _ rhi.ShaderStageFlags) error {
	if err := checkSlot("SetConstantBuffer", slot); err != nil {
		return err
	}
	b, err := c.bindBuffer(buf, "SetConstantBuffer", rhi.BufferKindConstant)
	if err != nil {
		return err
	}
	c.st.constants[slot] = b
	return nil
}

func (c *renderContext) bindBuffer(buf rhi.Buffer, what string, kind rhi.BufferKind) (*buffer, error) {
	b, err := lookup[*buffer](c.sys, buf, "buffer")
	if err != nil {
		return nil, err
	}
	if err := track.RequireKind(what, b.Kind(), kind); err != nil {
		return nil, err
	}
	if err := track.Require(what+" "+b.label, b.state, kind.TargetState()); err != nil {
		return nil, err
	}
	return b, nil
}

func checkSlot(what string, slot int) error {
	if slot < 0 || slot >= MaxBindingSlots {
		return fmt.Errorf("%s: slot %d out of range [0, %d): %w", what, slot, MaxBindingSlots, rhi.ErrValidation)
	}
	return nil
}

// SetTexture binds tex for sampling. A texture attached to the bound
// render target is in the render target state and cannot be bound.
func (c *renderContext) SetTexture(tex rhi.Texture, slot int, _ rhi.ShaderStageFlags) error {
	if err := checkSlot("SetTexture", slot); err != nil {
		return err
	}
	t, err := lookup[*texture](c.sys, tex, "texture")
	if err != nil {
		return err
	}
	if err := track.Require("SetTexture "+t.label, t.state, rhi.StateShaderResource); err != nil {
		return err
	}
	c.st.textures[slot] = t
	return nil
}

func (c *renderContext) SetSampler(s rhi.Sampler, slot int, _ rhi.ShaderStageFlags) error {
	if err := checkSlot("SetSampler", slot); err != nil {
		return err
	}
	smp, err := lookup[*sampler](c.sys, s, "sampler")
	if err != nil {
		return err
	}
	c.st.samplers[slot] = smp
	return nil
}

// SetRenderTarget moves the attached textures to the render target state
// and redirects later draws and clears. The viewport is left unchanged.
func (c *renderContext) SetRenderTarget(target rhi.RenderTarget) error {
	rt, err := lookup[*renderTarget](c.sys, target, "render target")
	if err != nil {
		return err
	}
	if c.rt != nil {
		return fmt.Errorf("software: render target %q bound while %q is bound: %w", rt.label, c.rt.label, rhi.ErrValidation)
	}
	if err := rt.set.Bind(); err != nil {
		return fmt.Errorf("software: render target %q: %w", rt.label, err)
	}
	for _, t := range rt.textures {
		t.state = rhi.StateRenderTarget
	}
	c.rt = rt
	c.st.fb = rt.framebuffer()
	return nil
}

// UnsetRenderTarget records the resolve of multisampled attachments and
// returns the attached textures to the shader resource state.
func (c *renderContext) UnsetRenderTarget() error {
	if c.rt == nil {
		return fmt.Errorf("software: unset render target without a bound one: %w", rhi.ErrValidation)
	}
	fb := c.st.fb
	c.record(func(*executor) { fb.resolve() })
	for _, t := range c.rt.textures {
		t.state = rhi.StateShaderResource
	}
	c.rt.set.Unbind()
	c.rt = nil
	c.st.fb = c.surface
	return nil
}

func (c *renderContext) Draw(vertices, first int) error {
	return c.draw(false, vertices, first, 1)
}

func (c *renderContext) DrawIndexed(indices, first int) error {
	return c.draw(true, indices, first, 1)
}

func (c *renderContext) DrawInstanced(vertices, first, instances int) error {
	return c.draw(false, vertices, first, instances)
}

func (c *renderContext) DrawIndexedInstanced(indices, first, instances int) error {
	return c.draw(true, indices, first, instances)
}

func (c *renderContext) draw(indexed bool, count, first, instances int) error {
	if err := c.live(); err != nil {
		return err
	}
	if err := c.validateDraw(indexed, count, first, instances); err != nil {
		return err
	}
	call := drawCall{st: c.st, indexed: indexed, count: count, first: first, instances: instances}
	if cond, mode, ok := c.queries.Condition(); ok {
		call.cond, call.condMode = cond, mode
	}
	c.record(func(x *executor) { x.draw(&call) })
	return nil
}

func (c *renderContext) validateDraw(indexed bool, count, first, instances int) error {
	st := &c.st
	p := st.pipeline
	switch {
	case p == nil:
		return fmt.Errorf("software: draw without a pipeline: %w", rhi.ErrValidation)
	case p.released.Load():
		return fmt.Errorf("software: draw with pipeline %q: %w", p.label, rhi.ErrReleased)
	case count < 0 || first < 0 || instances < 1:
		return fmt.Errorf("software: draw %d from %d, %d instances: %w", count, first, instances, rhi.ErrValidation)
	case instances > 1 && !c.sys.caps.InstancedDrawing:
		return fmt.Errorf("software: instanced draw: %w", rhi.ErrValidation)
	case p.Samples() != st.fb.samples:
		return fmt.Errorf("software: pipeline %q with %d samples drawing to %q with %d: %w",
			p.label, p.Samples(), st.fb.label, st.fb.samples, rhi.ErrValidation)
	}

	format := p.program.desc.VertexFormat
	if !format.IsEmpty() {
		if st.vertex == nil {
			return fmt.Errorf("software: pipeline %q draws without a vertex buffer: %w", p.label, rhi.ErrValidation)
		}
		if err := c.checkBound(st.vertex, "vertex buffer"); err != nil {
			return err
		}
		if !indexed {
			stride := uint64(vertexStride(st.vertex, format))
			if err := track.RequireRange("software: draw from vertex buffer "+st.vertex.label, first, count, stride, st.vertex.desc.Size); err != nil {
				return err
			}
		}
	}
	if indexed {
		if st.index == nil {
			return fmt.Errorf("software: indexed draw without an index buffer: %w", rhi.ErrValidation)
		}
		if err := c.checkBound(st.index, "index buffer"); err != nil {
			return err
		}
		size := uint64(rhi.IndexSize(st.index.indexFormat()))
		if err := track.RequireRange("software: draw from index buffer "+st.index.label, first, count, size, st.index.desc.Size); err != nil {
			return err
		}
	}
	for _, b := range st.constants {
		if b == nil {
			continue
		}
		if err := c.checkBound(b, "constant buffer"); err != nil {
			return err
		}
	}
	for _, t := range st.textures {
		if t == nil {
			continue
		}
		if t.released.Load() {
			return fmt.Errorf("software: draw samples texture %q: %w", t.label, rhi.ErrReleased)
		}
		if err := track.Require("sampled texture "+t.label, t.state, rhi.StateShaderResource); err != nil {
			return err
		}
	}
	return nil
}

func (c *renderContext) checkBound(b *buffer, what string) error {
	if b.released.Load() {
		return fmt.Errorf("software: draw reads %s %q: %w", what, b.label, rhi.ErrReleased)
	}
	return track.Require(what+" "+b.label, b.state, b.desc.Kind.TargetState())
}

func vertexStride(b *buffer, format rhi.VertexFormat) int {
	if s := b.desc.VertexFormat.Stride(); s > 0 {
		return s
	}
	return format.Stride()
}

// UpdateSubResource stages data and records the copy into buf bracketed by
// transitions into CopyDest and back to the buffer's target state.
func (c *renderContext) UpdateSubResource(buf rhi.Buffer, offset uint64, data []byte) error {
	if err := c.live(); err != nil {
		return err
	}
	b, err := lookup[*buffer](c.sys, buf, "buffer")
	if err != nil {
		return err
	}
	size := uint64(len(data))
	if offset > b.desc.Size || size > b.desc.Size-offset {
		return fmt.Errorf("software: update [%d, %d) of %d byte buffer %q: %w",
			offset, offset+size, b.desc.Size, b.label, rhi.ErrResourceOverflow)
	}
	if size == 0 {
		return nil
	}
	alloc, err := c.ring.Allocate(context.Background(), data)
	if err != nil {
		return fmt.Errorf("software: stage update of %q: %w", b.label, err)
	}

	target := b.desc.Kind.TargetState()
	before, after := track.UploadTransitions(b.state, target)
	for _, t := range before {
		c.record(transition(b, t))
	}
	c.record(func(*executor) {
		if b.devState != rhi.StateCopyDest {
			rhi.Logger().Warn("software: copy into buffer outside CopyDest", "label", b.label, "state", b.devState.String())
		}
		copy(b.data[offset:offset+size], alloc.Chunk.data[alloc.Offset:alloc.Offset+alloc.Size])
	})
	for _, t := range after {
		c.record(transition(b, t))
	}
	b.state = target
	return nil
}

func transition(b *buffer, t track.Transition) command {
	return func(*executor) {
		if b.devState != t.From {
			rhi.Logger().Warn("software: transition from unexpected state",
				"label", b.label, "have", b.devState.String(), "from", t.From.String(), "to", t.To.String())
		}
		b.devState = t.To
	}
}

func (c *renderContext) UpdateConstantBuffer(buf rhi.Buffer, data []byte) error {
	return c.UpdateSubResource(buf, 0, data)
}

func (c *renderContext) BeginQuery(q rhi.Query) error {
	qq, err := lookup[*query](c.sys, q, "query")
	if err != nil {
		return err
	}
	if err := c.queries.Begin(qq, c.sys.dev.Completed()); err != nil {
		return err
	}
	c.record(func(x *executor) { x.beginQuery(qq) })
	return nil
}

func (c *renderContext) EndQuery(q rhi.Query) error {
	qq, err := lookup[*query](c.sys, q, "query")
	if err != nil {
		return err
	}
	if err := c.queries.End(qq); err != nil {
		return err
	}
	c.record(func(x *executor) { x.endQuery(qq) })
	return nil
}

// QueryResult reports the result of q once the submission holding its End
// has completed. It never submits.
func (c *renderContext) QueryResult(q rhi.Query) (uint64, bool, error) {
	qq, err := lookup[*query](c.sys, q, "query")
	if err != nil {
		return 0, false, err
	}
	ok, err := c.queries.Poll(qq, c.sys.dev.Completed())
	if err != nil || !ok {
		return 0, false, err
	}
	return qq.result.Load(), true, nil
}

// WaitQuery blocks until the submission holding the End of q completes.
func (c *renderContext) WaitQuery(ctx context.Context, q rhi.Query) error {
	qq, err := lookup[*query](c.sys, q, "query")
	if err != nil {
		return err
	}
	if qq.rec.State() != rhi.QueryPending || qq.rec.Submission() == 0 {
		return nil
	}
	return c.sys.dev.Wait(ctx, qq.rec.Submission())
}

func (c *renderContext) BeginRenderCondition(q rhi.Query, mode rhi.RenderConditionMode) error {
	qq, err := lookup[*query](c.sys, q, "query")
	if err != nil {
		return err
	}
	return c.queries.BeginCondition(qq, mode)
}

func (c *renderContext) EndRenderCondition() error {
	return c.queries.EndCondition()
}

// GenerateMips records the regeneration of levels 1..n-1 of tex.
func (c *renderContext) GenerateMips(tex rhi.Texture) error {
	t, err := lookup[*texture](c.sys, tex, "texture")
	if err != nil {
		return err
	}
	if len(t.levels) < 2 {
		return fmt.Errorf("software: generate MIPs of single-level texture %q: %w", t.label, rhi.ErrValidation)
	}
	if err := track.Require("GenerateMips "+t.label, t.state, rhi.StateShaderResource); err != nil {
		return err
	}
	c.record(func(*executor) { generateMips(t.levels) })
	return nil
}

// Flush submits the recorded commands.
func (c *renderContext) Flush() error {
	if err := c.live(); err != nil {
		return err
	}
	cmds := c.cmds
	c.cmds = nil
	idx := c.sys.dev.submit(c.x, cmds)
	if idx == 0 {
		return fmt.Errorf("software: flush %q: %w", c.label, errDeviceClosed)
	}
	c.queries.Submitted(idx)
	c.ring.MarkSubmitted(idx)
	if c.sys.cfg.Debug {
		rhi.Logger().Debug("software: submitted", "context", c.label, "index", idx, "commands", len(cmds))
	}
	return nil
}

// Present submits the frame and moves the staging ring to the next frame
// slot, waiting for the submission that last used it.
func (c *renderContext) Present() error {
	if err := c.Flush(); err != nil {
		return err
	}
	if err := c.ring.Advance(context.Background()); err != nil {
		return fmt.Errorf("software: present %q: %w", c.label, err)
	}
	return nil
}

// ReadSurface submits recorded work and returns the resolved surface.
func (c *renderContext) ReadSurface(ctx context.Context) (*image.RGBA, error) {
	if err := c.Flush(); err != nil {
		return nil, err
	}
	var out *image.RGBA
	err := c.sys.dev.run(ctx, func() {
		c.surface.resolve()
		out = cloneImage(c.surface.colors[0].img)
	})
	if err != nil {
		return nil, fmt.Errorf("software: read surface %q: %w", c.label, err)
	}
	return out, nil
}

func (c *renderContext) release() {
	c.cmds = nil
	if err := c.ring.Close(context.Background()); err != nil {
		rhi.Logger().Warn("software: close staging ring", "context", c.label, "err", err)
	}
}
