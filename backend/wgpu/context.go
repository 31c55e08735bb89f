package wgpu

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"

	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/staging"
	"github.com/gogpu/rhi/internal/track"
)

// surfaceDepthFormat is the depth format of every default surface.
const surfaceDepthFormat = gputypes.TextureFormatDepth24PlusStencil8

// applied is the state set on the open render pass.
type applied struct {
	pipeline hal.RenderPipeline
	group    hal.BindGroup
	vertex   *buffer
	index    *buffer
	dynamic  dynamicState
	valid    bool
}

// dynamicState is the pass state a pipeline does not bake in.
type dynamicState struct {
	viewport   [6]float32
	scissor    [4]uint32
	blend      rhi.ColorRGBA
	stencilRef uint32
}

type renderContext struct {
	object
	desc rhi.RenderContextDescriptor

	color   attachment
	msaa    attachment
	depth   attachment
	surface passTarget
	ring    *staging.Ring[hal.Buffer]

	// enc is open while commands are recorded; recording mirrors it for
	// other goroutines.
	enc       hal.CommandEncoder
	pass      hal.RenderPassEncoder
	recording atomic.Bool
	set       applied

	// garbage is destroyed once the next submission completes.
	garbage []func()

	queries track.QueryTracker[*query]

	target   *passTarget
	rt       *renderTarget
	pipeline *pipeline
	vertex   *buffer
	index    *buffer
	slots    slots
	group    hal.BindGroup

	viewport rhi.Viewport
	scissor  rhi.Scissor
	flipY    bool

	clearColor   rhi.ColorRGBA
	clearDepth   float32
	clearStencil uint32
}

func newRenderContext(s *System, desc rhi.RenderContextDescriptor) (*renderContext, error) {
	c := &renderContext{
		object:     object{sys: s, label: s.label(desc.Label)},
		desc:       desc,
		clearDepth: 1,
	}
	var err error
	usage := gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc | gputypes.TextureUsageTextureBinding
	if c.color, err = s.newAttachment(c.label+" surface", desc.Resolution, 1, colorFormat, usage); err != nil {
		return nil, err
	}
	if desc.Samples > 1 {
		c.msaa, err = s.newAttachment(c.label+" surface msaa", desc.Resolution, desc.Samples, colorFormat,
			gputypes.TextureUsageRenderAttachment)
		if err != nil {
			c.destroyAttachments()
			return nil, err
		}
	}
	c.depth, err = s.newAttachment(c.label+" surface depth", desc.Resolution, desc.Samples, surfaceDepthFormat,
		gputypes.TextureUsageRenderAttachment)
	if err != nil {
		c.destroyAttachments()
		return nil, err
	}
	c.surface = passTarget{
		label:       c.label,
		size:        desc.Resolution,
		samples:     desc.Samples,
		colors:      []colorTarget{{view: c.color.view}},
		depth:       c.depth.view,
		depthFormat: surfaceDepthFormat,
	}
	if desc.Samples > 1 {
		c.surface.colors[0] = colorTarget{view: c.msaa.view, resolve: c.color.view}
	}
	c.target = &c.surface
	c.viewport = rhi.NewViewport(desc.Resolution)
	c.scissor = rhi.Scissor{Width: desc.Resolution.Width, Height: desc.Resolution.Height}
	c.ring = staging.NewRing[hal.Buffer](stagingAllocator{s: s}, s, s.cfg.FramesInFlight, s.cfg.StagingChunkSize)
	return c, nil
}

func (c *renderContext) live() error {
	if c.released.Load() {
		return fmt.Errorf("wgpu: render context %q: %w", c.label, rhi.ErrReleased)
	}
	return nil
}

func (c *renderContext) Resolution() rhi.Extent { return c.desc.Resolution }

func (c *renderContext) SetGraphicsAPIDependentState(state rhi.GraphicsAPIDependentState) {
	c.flipY = state.FlipViewportVertical
}

func (c *renderContext) SetViewport(v rhi.Viewport)      { c.viewport = v }
func (c *renderContext) Viewport() rhi.Viewport          { return c.viewport }
func (c *renderContext) SetScissor(s rhi.Scissor)        { c.scissor = s }
func (c *renderContext) SetClearColor(col rhi.ColorRGBA) { c.clearColor = col }
func (c *renderContext) ClearColor() rhi.ColorRGBA       { return c.clearColor }
func (c *renderContext) SetClearDepth(d float32)         { c.clearDepth = d }
func (c *renderContext) SetClearStencil(s uint32)        { c.clearStencil = s }

// encoder returns the open command encoder, acquiring one if needed.
func (c *renderContext) encoder() (hal.CommandEncoder, error) {
	if c.enc != nil {
		return c.enc, nil
	}
	enc, err := c.sys.pool.acquire(c.label)
	if err != nil {
		return nil, err
	}
	c.recording.Store(true)
	c.enc = enc
	return enc, nil
}

// beginPass opens a render pass on the bound target. Attachments not
// selected by clear are loaded.
func (c *renderContext) beginPass(clear rhi.ClearFlags) error {
	enc, err := c.encoder()
	if err != nil {
		return err
	}
	t := c.target
	desc := &hal.RenderPassDescriptor{Label: t.label}
	colorLoad := gputypes.LoadOpLoad
	if clear&rhi.ClearFlagColor != 0 {
		colorLoad = gputypes.LoadOpClear
	}
	for _, ct := range t.colors {
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:          ct.view,
			ResolveTarget: ct.resolve,
			LoadOp:        colorLoad,
			StoreOp:       gputypes.StoreOpStore,
			ClearValue:    c.clearColor.GPU(),
		})
	}
	if t.depth != nil {
		ds := &hal.RenderPassDepthStencilAttachment{
			View:            t.depth,
			DepthLoadOp:     gputypes.LoadOpLoad,
			DepthStoreOp:    gputypes.StoreOpStore,
			DepthClearValue: c.clearDepth,
		}
		if clear&rhi.ClearFlagDepth != 0 {
			ds.DepthLoadOp = gputypes.LoadOpClear
		}
		if t.hasStencil() {
			ds.StencilLoadOp = gputypes.LoadOpLoad
			ds.StencilStoreOp = gputypes.StoreOpStore
			ds.StencilClearValue = c.clearStencil
			if clear&rhi.ClearFlagStencil != 0 {
				ds.StencilLoadOp = gputypes.LoadOpClear
			}
		}
		desc.DepthStencilAttachment = ds
	}
	c.pass = enc.BeginRenderPass(desc)
	c.set = applied{}
	return nil
}

// endPass closes the open render pass, resolving multisampled colors.
func (c *renderContext) endPass() {
	if c.pass == nil {
		return
	}
	c.pass.End()
	c.pass = nil
	c.set = applied{}
}

// ClearBuffers starts a pass on the bound target that clears the
// selected attachments. Flags naming an attachment the target lacks are
// ignored.
func (c *renderContext) ClearBuffers(flags rhi.ClearFlags) error {
	if err := c.live(); err != nil {
		return err
	}
	c.endPass()
	return c.beginPass(flags)
}

func (c *renderContext) SetGraphicsPipeline(p rhi.GraphicsPipeline) error {
	pl, err := lookup[*pipeline](c.sys, p, "pipeline")
	if err != nil {
		return err
	}
	c.pipeline = pl
	return nil
}

func (c *renderContext) SetVertexBuffer(buf rhi.Buffer) error {
	b, err := c.bindBuffer(buf, "SetVertexBuffer", rhi.BufferKindVertex)
	if err != nil {
		return err
	}
	c.vertex = b
	return nil
}

func (c *renderContext) SetIndexBuffer(buf rhi.Buffer) error {
	b, err := c.bindBuffer(buf, "SetIndexBuffer", rhi.BufferKindIndex)
	if err != nil {
		return err
	}
	c.index = b
	return nil
}

// SetConstantBuffer binds buf at @binding(slot) of group 0.
func (c *renderContext) SetConstantBuffer(buf rhi.Buffer, slot int, _ rhi.ShaderStageFlags) error {
	if err := checkSlot("SetConstantBuffer", slot); err != nil {
		return err
	}
	b, err := c.bindBuffer(buf, "SetConstantBuffer", rhi.BufferKindConstant)
	if err != nil {
		return err
	}
	c.slots.constants[slot] = b
	c.slots.dirty = true
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

// SetTexture binds tex at @binding(slot). A texture attached to the bound
// render target cannot be bound.
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
	c.slots.textures[slot] = t
	c.slots.dirty = true
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
	c.slots.samplers[slot] = smp
	c.slots.dirty = true
	return nil
}

// SetRenderTarget redirects later draws and clears to target. The
// viewport is left unchanged.
func (c *renderContext) SetRenderTarget(target rhi.RenderTarget) error {
	rt, err := lookup[*renderTarget](c.sys, target, "render target")
	if err != nil {
		return err
	}
	if c.rt != nil {
		return fmt.Errorf("wgpu: render target %q bound while %q is bound: %w", rt.label, c.rt.label, rhi.ErrValidation)
	}
	if err := rt.set.Bind(); err != nil {
		return fmt.Errorf("wgpu: render target %q: %w", rt.label, err)
	}
	c.endPass()
	for _, ca := range rt.colors {
		ca.tex.state = rhi.StateRenderTarget
	}
	c.rt = rt
	c.target = rt.target()
	return nil
}

// UnsetRenderTarget ends the pass on the bound target, which resolves
// multisampled attachments, and returns to the default surface.
func (c *renderContext) UnsetRenderTarget() error {
	if c.rt == nil {
		return fmt.Errorf("wgpu: unset render target without a bound one: %w", rhi.ErrValidation)
	}
	c.endPass()
	for _, ca := range c.rt.colors {
		ca.tex.state = rhi.StateShaderResource
	}
	c.rt.set.Unbind()
	c.rt = nil
	c.target = &c.surface
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
	p := c.pipeline
	entries, err := c.slots.entries(p.program)
	if err != nil {
		return err
	}
	layout, err := c.sys.bindLayout(entries)
	if err != nil {
		return err
	}
	if layout != c.slots.layout {
		c.slots.layout = layout
		c.slots.dirty = true
	}
	raw, err := p.variant(variantKey{colors: len(c.target.colors), depth: c.target.depthFormat, layout: layout})
	if err != nil {
		return err
	}
	if c.slots.dirty && len(entries) > 0 {
		if err := c.rebuildGroup(layout); err != nil {
			return err
		}
	}
	c.slots.dirty = false

	if c.pass == nil {
		if err := c.beginPass(0); err != nil {
			return err
		}
	}
	pass := c.pass
	if c.set.pipeline != raw {
		pass.SetPipeline(raw)
		c.set.pipeline = raw
	}
	if len(entries) > 0 && c.set.group != c.group {
		pass.SetBindGroup(0, c.group, nil)
		c.set.group = c.group
	}
	if !p.program.desc.VertexFormat.IsEmpty() && c.set.vertex != c.vertex {
		pass.SetVertexBuffer(0, c.vertex.raw, 0)
		c.set.vertex = c.vertex
	}
	if indexed && c.set.index != c.index {
		pass.SetIndexBuffer(c.index.raw, c.index.indexFormat(), 0)
		c.set.index = c.index
	}
	c.applyDynamic(p)

	if indexed {
		pass.DrawIndexed(uint32(count), uint32(instances), uint32(first), 0, 0)
	} else {
		pass.Draw(uint32(count), uint32(instances), uint32(first), 0)
	}
	if q, ok := c.queries.Active(rhi.QueryKindPrimitives); ok {
		q.count += uint64(p.desc.Topology.Primitives(count)) * uint64(instances)
	}
	return nil
}

// rebuildGroup creates the bind group of the bound slots. The replaced
// group is destroyed after the next submission.
func (c *renderContext) rebuildGroup(layout *bindLayout) error {
	s := c.sys
	group, err := s.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   c.label + " bindings",
		Layout:  layout.group,
		Entries: c.slots.groupEntries(layout),
	})
	if err != nil {
		return fmt.Errorf("wgpu: create bind group %q: %v: %w", layout.key, err, rhi.ErrCreation)
	}
	if old := c.group; old != nil {
		c.garbage = append(c.garbage, func() { s.dev.DestroyBindGroup(old) })
	}
	c.group = group
	return nil
}

// applyDynamic sets viewport, scissor, blend constant and stencil
// reference when they differ from what the pass has.
func (c *renderContext) applyDynamic(p *pipeline) {
	size := c.target.size
	v := c.viewport
	y := v.Y
	if c.flipY {
		y = float32(size.Height) - v.Y - v.Height
	}
	var d dynamicState
	d.viewport = [6]float32{v.X, y, v.Width, v.Height, v.MinDepth, v.MaxDepth}
	d.scissor = [4]uint32{0, 0, uint32(size.Width), uint32(size.Height)}
	if p.desc.Rasterizer.ScissorTest {
		d.scissor = clampScissor(c.scissor, size)
	}
	d.blend = p.desc.Blend.BlendFactor
	d.stencilRef = p.desc.Stencil.Reference

	if c.set.valid && c.set.dynamic == d {
		return
	}
	pass := c.pass
	pass.SetViewport(d.viewport[0], d.viewport[1], d.viewport[2], d.viewport[3], d.viewport[4], d.viewport[5])
	pass.SetScissorRect(d.scissor[0], d.scissor[1], d.scissor[2], d.scissor[3])
	blend := d.blend.GPU()
	pass.SetBlendConstant(&blend)
	pass.SetStencilReference(d.stencilRef)
	c.set.dynamic, c.set.valid = d, true
}

// clampScissor intersects s with the target rectangle.
func clampScissor(s rhi.Scissor, size rhi.Extent) [4]uint32 {
	x0 := math32.Max(float32(s.X), 0)
	y0 := math32.Max(float32(s.Y), 0)
	x1 := math32.Min(float32(s.X+s.Width), float32(size.Width))
	y1 := math32.Min(float32(s.Y+s.Height), float32(size.Height))
	if x1 <= x0 || y1 <= y0 {
		return [4]uint32{uint32(x0), uint32(y0), 0, 0}
	}
	return [4]uint32{uint32(x0), uint32(y0), uint32(x1 - x0), uint32(y1 - y0)}
}

func (c *renderContext) validateDraw(indexed bool, count, first, instances int) error {
	p := c.pipeline
	switch {
	case p == nil:
		return fmt.Errorf("wgpu: draw without a pipeline: %w", rhi.ErrValidation)
	case p.released.Load():
		return fmt.Errorf("wgpu: draw with pipeline %q: %w", p.label, rhi.ErrReleased)
	case count < 0 || first < 0 || instances < 1:
		return fmt.Errorf("wgpu: draw %d from %d, %d instances: %w", count, first, instances, rhi.ErrValidation)
	case instances > 1 && !c.sys.caps.InstancedDrawing:
		return fmt.Errorf("wgpu: instanced draw: %w", rhi.ErrValidation)
	case p.Samples() != c.target.samples:
		return fmt.Errorf("wgpu: pipeline %q with %d samples drawing to %q with %d: %w",
			p.label, p.Samples(), c.target.label, c.target.samples, rhi.ErrValidation)
	}

	format := p.program.desc.VertexFormat
	if !format.IsEmpty() {
		if c.vertex == nil {
			return fmt.Errorf("wgpu: pipeline %q draws without a vertex buffer: %w", p.label, rhi.ErrValidation)
		}
		if err := checkBound(c.vertex, "vertex buffer"); err != nil {
			return err
		}
		if !indexed {
			stride := uint64(vertexStride(c.vertex, format))
			if err := track.RequireRange("wgpu: draw from vertex buffer "+c.vertex.label, first, count, stride, c.vertex.desc.Size); err != nil {
				return err
			}
		}
	}
	if indexed {
		if c.index == nil {
			return fmt.Errorf("wgpu: indexed draw without an index buffer: %w", rhi.ErrValidation)
		}
		if err := checkBound(c.index, "index buffer"); err != nil {
			return err
		}
		size := uint64(rhi.IndexSize(c.index.indexFormat()))
		if err := track.RequireRange("wgpu: draw from index buffer "+c.index.label, first, count, size, c.index.desc.Size); err != nil {
			return err
		}
	}
	for _, b := range c.slots.constants {
		if b == nil {
			continue
		}
		if err := checkBound(b, "constant buffer"); err != nil {
			return err
		}
	}
	for _, t := range c.slots.textures {
		if t == nil {
			continue
		}
		if t.released.Load() {
			return fmt.Errorf("wgpu: draw samples texture %q: %w", t.label, rhi.ErrReleased)
		}
		if err := track.Require("sampled texture "+t.label, t.state, rhi.StateShaderResource); err != nil {
			return err
		}
	}
	for _, smp := range c.slots.samplers {
		if smp != nil && smp.released.Load() {
			return fmt.Errorf("wgpu: draw uses sampler %q: %w", smp.label, rhi.ErrReleased)
		}
	}
	return nil
}

func checkBound(b *buffer, what string) error {
	if b.released.Load() {
		return fmt.Errorf("wgpu: draw reads %s %q: %w", what, b.label, rhi.ErrReleased)
	}
	return track.Require(what+" "+b.label, b.state, b.desc.Kind.TargetState())
}

func vertexStride(b *buffer, format rhi.VertexFormat) int {
	if s := b.desc.VertexFormat.Stride(); s > 0 {
		return s
	}
	return format.Stride()
}

// UpdateSubResource stages data and records a copy into buf bracketed by
// barriers into the copy destination state and back. Offset and size
// must be multiples of four, the HAL copy alignment.
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
		return fmt.Errorf("wgpu: update [%d, %d) of %d byte buffer %q: %w",
			offset, offset+size, b.desc.Size, b.label, rhi.ErrResourceOverflow)
	}
	if size == 0 {
		return nil
	}
	if offset%4 != 0 || size%4 != 0 {
		return fmt.Errorf("wgpu: update [%d, %d) of buffer %q is not 4 byte aligned: %w",
			offset, offset+size, b.label, rhi.ErrValidation)
	}
	alloc, err := c.ring.Allocate(context.Background(), data)
	if err != nil {
		return fmt.Errorf("wgpu: stage update of %q: %w", b.label, err)
	}
	c.endPass()
	enc, err := c.encoder()
	if err != nil {
		return err
	}

	target := b.desc.Kind.TargetState()
	before, after := track.UploadTransitions(b.state, target)
	if len(before) > 0 {
		enc.TransitionBuffers(b.barriers(before))
	}
	enc.CopyBufferToBuffer(alloc.Chunk, b.raw, []hal.BufferCopy{{SrcOffset: alloc.Offset, DstOffset: offset, Size: size}})
	if len(after) > 0 {
		enc.TransitionBuffers(b.barriers(after))
	}
	b.state = target
	return nil
}

func (b *buffer) barriers(ts []track.Transition) []hal.BufferBarrier {
	out := make([]hal.BufferBarrier, len(ts))
	for i, t := range ts {
		out[i] = hal.BufferBarrier{
			Buffer: b.raw,
			Usage:  hal.BufferUsageTransition{OldUsage: b.usageOf(t.From), NewUsage: b.usageOf(t.To)},
		}
	}
	return out
}

func (c *renderContext) UpdateConstantBuffer(buf rhi.Buffer, data []byte) error {
	return c.UpdateSubResource(buf, 0, data)
}

// BeginQuery starts counting. Primitive counts are accumulated from the
// draw calls recorded until EndQuery.
func (c *renderContext) BeginQuery(q rhi.Query) error {
	qq, err := lookup[*query](c.sys, q, "query")
	if err != nil {
		return err
	}
	if err := c.queries.Begin(qq, c.sys.Completed()); err != nil {
		return err
	}
	qq.count = 0
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
	qq.result.Store(qq.count)
	return nil
}

// QueryResult reports the result of q once the submission holding its End
// has completed. It never submits.
func (c *renderContext) QueryResult(q rhi.Query) (uint64, bool, error) {
	qq, err := lookup[*query](c.sys, q, "query")
	if err != nil {
		return 0, false, err
	}
	ok, err := c.queries.Poll(qq, c.sys.Completed())
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
	return c.sys.Wait(ctx, qq.rec.Submission())
}

// BeginRenderCondition always fails: the HAL cannot predicate draws.
func (c *renderContext) BeginRenderCondition(q rhi.Query, mode rhi.RenderConditionMode) error {
	qq, err := lookup[*query](c.sys, q, "query")
	if err != nil {
		return err
	}
	return fmt.Errorf("wgpu: render condition %s on %q: %w", mode, qq.label, rhi.ErrValidation)
}

func (c *renderContext) EndRenderCondition() error {
	return c.queries.EndCondition()
}

// GenerateMips records the regeneration of levels 1..n-1 of tex.
func (c *renderContext) GenerateMips(tex rhi.Texture) error {
	if err := c.live(); err != nil {
		return err
	}
	t, err := lookup[*texture](c.sys, tex, "texture")
	if err != nil {
		return err
	}
	if t.levels < 2 {
		return fmt.Errorf("wgpu: generate MIPs of single-level texture %q: %w", t.label, rhi.ErrValidation)
	}
	if err := track.Require("GenerateMips "+t.label, t.state, rhi.StateShaderResource); err != nil {
		return err
	}
	c.endPass()
	enc, err := c.encoder()
	if err != nil {
		return err
	}
	return c.sys.generateMips(enc, t, &c.garbage)
}

// Flush submits the recorded commands. A context without commands still
// submits, so queries ended since the last flush get a submission.
func (c *renderContext) Flush() error {
	if err := c.live(); err != nil {
		return err
	}
	c.endPass()
	enc, err := c.encoder()
	if err != nil {
		return err
	}
	c.enc = nil
	idx, err := c.sys.finish(enc)
	c.recording.Store(false)
	c.retireGarbage(idx)
	c.sys.flushed(c, idx)
	if err != nil {
		return fmt.Errorf("wgpu: flush %q: %w", c.label, err)
	}
	c.queries.Submitted(idx)
	c.ring.MarkSubmitted(idx)
	c.sys.collect()
	if c.sys.cfg.Debug {
		rhi.Logger().Debug("wgpu: submitted", "context", c.label, "index", idx)
	}
	return nil
}

func (c *renderContext) retireGarbage(idx uint64) {
	if len(c.garbage) == 0 {
		return
	}
	garbage := c.garbage
	c.garbage = nil
	if idx == 0 {
		idx = c.sys.lastSubmitted()
	}
	c.sys.retire(idx, func() {
		for _, fn := range garbage {
			fn()
		}
	})
}

// Present submits the frame and moves the staging ring to the next frame
// slot, waiting for the submission that last used it.
func (c *renderContext) Present() error {
	if err := c.Flush(); err != nil {
		return err
	}
	if err := c.ring.Advance(context.Background()); err != nil {
		return fmt.Errorf("wgpu: present %q: %w", c.label, err)
	}
	return nil
}

// ReadSurface submits recorded work and copies the resolved surface back.
func (c *renderContext) ReadSurface(ctx context.Context) (*image.RGBA, error) {
	if err := c.Flush(); err != nil {
		return nil, err
	}
	return c.sys.readTexture(ctx, c.color.raw, c.desc.Resolution, 0, c.label)
}

// discard drops commands that were recorded but not submitted.
func (c *renderContext) discard() {
	if c.pass != nil {
		c.pass.End()
		c.pass = nil
	}
	if c.enc != nil {
		c.enc.DiscardEncoding()
		c.sys.pool.release(c.enc)
		c.enc = nil
	}
	c.recording.Store(false)
	c.retireGarbage(0)
	c.sys.flushed(c, 0)
}

func (c *renderContext) destroyAttachments() {
	s := c.sys
	s.disposeAttachment(c.color)
	s.disposeAttachment(c.msaa)
	s.disposeAttachment(c.depth)
	c.color, c.msaa, c.depth = attachment{}, attachment{}, attachment{}
}

func (c *renderContext) destroy() {
	if !c.once() {
		return
	}
	c.discard()
	if c.ring != nil {
		if err := c.ring.Close(context.Background()); err != nil {
			rhi.Logger().Warn("wgpu: close staging ring", "context", c.label, "err", err)
		}
	}
	if c.group != nil {
		group := c.group
		c.sys.dispose(func() { c.sys.dev.DestroyBindGroup(group) })
		c.group = nil
	}
	c.destroyAttachments()
}
