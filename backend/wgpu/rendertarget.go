package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/track"
)

// attachment is a HAL texture owned by a render target or a surface.
type attachment struct {
	raw  hal.Texture
	view hal.TextureView
}

// newAttachment creates a single-level texture and a view of it.
func (s *System) newAttachment(label string, size rhi.Extent, samples int,
	format gputypes.TextureFormat, usage gputypes.TextureUsage) (attachment, error) {
	raw, err := s.dev.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: uint32(size.Width), Height: uint32(size.Height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   uint32(samples),
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return attachment{}, fmt.Errorf("wgpu: create attachment %q: %v: %w", label, err, rhi.ErrCreation)
	}
	view, err := s.dev.CreateTextureView(raw, &hal.TextureViewDescriptor{
		Label:         label,
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		s.dev.DestroyTexture(raw)
		return attachment{}, fmt.Errorf("wgpu: create attachment view %q: %v: %w", label, err, rhi.ErrCreation)
	}
	return attachment{raw: raw, view: view}, nil
}

// levelView creates a view of one MIP level of t.
func (s *System) levelView(t *texture, level int) (hal.TextureView, error) {
	view, err := s.dev.CreateTextureView(t.raw, &hal.TextureViewDescriptor{
		Label:         fmt.Sprintf("%s level %d", t.label, level),
		Format:        colorFormat,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		BaseMipLevel:  uint32(level),
		MipLevelCount: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create view of %q level %d: %v: %w", t.label, level, err, rhi.ErrCreation)
	}
	return view, nil
}

// disposeAttachment destroys a once no command references it.
func (s *System) disposeAttachment(a attachment) {
	if a.raw == nil {
		return
	}
	s.dispose(func() {
		s.dev.DestroyTextureView(a.view)
		s.dev.DestroyTexture(a.raw)
	})
}

// colorTarget is one color attachment of a pass. When the pass is
// multisampled, view is the multisampled texture and resolve the level
// it resolves into.
type colorTarget struct {
	view    hal.TextureView
	resolve hal.TextureView
}

// passTarget is the set of attachments draws and clears write to.
type passTarget struct {
	label       string
	size        rhi.Extent
	samples     int
	colors      []colorTarget
	depth       hal.TextureView
	depthFormat gputypes.TextureFormat
}

// hasStencil reports whether the depth attachment carries stencil.
func (t *passTarget) hasStencil() bool {
	return t.depthFormat == gputypes.TextureFormatDepth24PlusStencil8
}

// colorAttachment is an attached MIP level of a texture.
type colorAttachment struct {
	tex   *texture
	level int
	view  hal.TextureView
	msaa  attachment
}

// renderTarget collects attachments. Slices are replaced, never mutated
// in place, so a passTarget built from them stays valid.
type renderTarget struct {
	object
	samples int
	set     track.AttachmentSet

	colors      []colorAttachment
	depth       attachment
	depthFormat gputypes.TextureFormat
}

func (rt *renderTarget) Size() rhi.Extent      { return rt.set.Size() }
func (rt *renderTarget) Samples() int          { return rt.samples }
func (rt *renderTarget) ColorAttachments() int { return rt.set.Colors() }
func (rt *renderTarget) HasDepth() bool        { return rt.set.HasDepth() }

func (rt *renderTarget) live() error {
	if rt.released.Load() {
		return fmt.Errorf("wgpu: render target %q: %w", rt.label, rhi.ErrReleased)
	}
	return nil
}

// AttachDepthBuffer adds a Depth32Float attachment.
func (rt *renderTarget) AttachDepthBuffer(size rhi.Extent) error {
	return rt.attachDepth(size, gputypes.TextureFormatDepth32Float)
}

// AttachDepthStencilBuffer adds a Depth24PlusStencil8 attachment.
func (rt *renderTarget) AttachDepthStencilBuffer(size rhi.Extent) error {
	return rt.attachDepth(size, gputypes.TextureFormatDepth24PlusStencil8)
}

func (rt *renderTarget) attachDepth(size rhi.Extent, format gputypes.TextureFormat) error {
	if err := rt.live(); err != nil {
		return err
	}
	err := rt.set.Attach(track.AttachDepth, size, func() error {
		a, err := rt.sys.newAttachment(rt.label+" depth", size, rt.samples, format, gputypes.TextureUsageRenderAttachment)
		if err != nil {
			return err
		}
		rt.depth, rt.depthFormat = a, format
		return nil
	})
	if err != nil {
		return fmt.Errorf("wgpu: render target %q: %w", rt.label, err)
	}
	return nil
}

// AttachTexture2D adds a MIP level of tex as a color attachment. A
// multisampled target renders into its own texture and resolves into
// the level.
func (rt *renderTarget) AttachTexture2D(tex rhi.Texture, mipLevel int) error {
	if err := rt.live(); err != nil {
		return err
	}
	t, err := lookup[*texture](rt.sys, tex, "texture")
	if err != nil {
		return err
	}
	if t.desc.Usage&gputypes.TextureUsageRenderAttachment == 0 {
		return fmt.Errorf("wgpu: render target %q: texture %q lacks render attachment usage: %w",
			rt.label, t.label, rhi.ErrValidation)
	}
	if mipLevel < 0 || mipLevel >= t.levels {
		return fmt.Errorf("wgpu: render target %q: MIP level %d of %d: %w",
			rt.label, mipLevel, t.levels, rhi.ErrValidation)
	}
	if rt.ColorAttachments() >= rt.sys.caps.MaxColorAttachments {
		return fmt.Errorf("wgpu: render target %q: more than %d color attachments: %w",
			rt.label, rt.sys.caps.MaxColorAttachments, rhi.ErrCapability)
	}
	size := t.desc.Size.MipExtent(mipLevel)
	err = rt.set.Attach(track.AttachColor, size, func() error {
		view, err := rt.sys.levelView(t, mipLevel)
		if err != nil {
			return err
		}
		ca := colorAttachment{tex: t, level: mipLevel, view: view}
		if rt.samples > 1 {
			ca.msaa, err = rt.sys.newAttachment(rt.label+" msaa", size, rt.samples, colorFormat,
				gputypes.TextureUsageRenderAttachment)
			if err != nil {
				rt.sys.dev.DestroyTextureView(view)
				return err
			}
		}
		rt.colors = append(rt.colors[:len(rt.colors):len(rt.colors)], ca)
		return nil
	})
	if err != nil {
		return fmt.Errorf("wgpu: render target %q: %w", rt.label, err)
	}
	return nil
}

// DetachAll removes every attachment.
func (rt *renderTarget) DetachAll() error {
	if err := rt.live(); err != nil {
		return err
	}
	if err := rt.set.Reset(); err != nil {
		return fmt.Errorf("wgpu: render target %q: %w", rt.label, err)
	}
	rt.disposeAttachments()
	return nil
}

func (rt *renderTarget) disposeAttachments() {
	s := rt.sys
	for _, ca := range rt.colors {
		view := ca.view
		s.dispose(func() { s.dev.DestroyTextureView(view) })
		s.disposeAttachment(ca.msaa)
	}
	s.disposeAttachment(rt.depth)
	rt.colors, rt.depth, rt.depthFormat = nil, attachment{}, gputypes.TextureFormatUndefined
}

// target returns the pass attachments of the bound target.
func (rt *renderTarget) target() *passTarget {
	pt := &passTarget{
		label:       rt.label,
		size:        rt.set.Size(),
		samples:     rt.samples,
		colors:      make([]colorTarget, len(rt.colors)),
		depth:       rt.depth.view,
		depthFormat: rt.depthFormat,
	}
	for i, ca := range rt.colors {
		if rt.samples > 1 {
			pt.colors[i] = colorTarget{view: ca.msaa.view, resolve: ca.view}
		} else {
			pt.colors[i] = colorTarget{view: ca.view}
		}
	}
	return pt
}

func (rt *renderTarget) destroy() {
	if !rt.once() {
		return
	}
	rt.disposeAttachments()
}
