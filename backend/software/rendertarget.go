package software

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/software/raster"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/track"
)

// renderTarget collects attachments. Attachment slices are replaced, never
// mutated in place, so framebuffers captured by recorded commands stay
// valid after DetachAll.
type renderTarget struct {
	object
	samples int
	set     track.AttachmentSet

	textures []*texture
	colors   []*colorPlane
	depth    []*raster.DepthBuffer
	stencil  []*raster.StencilBuffer
}

func (rt *renderTarget) Size() rhi.Extent      { return rt.set.Size() }
func (rt *renderTarget) Samples() int          { return rt.samples }
func (rt *renderTarget) ColorAttachments() int { return rt.set.Colors() }
func (rt *renderTarget) HasDepth() bool        { return rt.set.HasDepth() }

func (rt *renderTarget) live() error {
	if rt.released.Load() {
		return fmt.Errorf("software: render target %q: %w", rt.label, rhi.ErrReleased)
	}
	return nil
}

// AttachDepthBuffer adds a per-sample depth attachment.
func (rt *renderTarget) AttachDepthBuffer(size rhi.Extent) error {
	return rt.attachDepth(size, false)
}

// AttachDepthStencilBuffer adds per-sample depth and stencil attachments.
func (rt *renderTarget) AttachDepthStencilBuffer(size rhi.Extent) error {
	return rt.attachDepth(size, true)
}

func (rt *renderTarget) attachDepth(size rhi.Extent, withStencil bool) error {
	if err := rt.live(); err != nil {
		return err
	}
	err := rt.set.Attach(track.AttachDepth, size, func() error {
		rt.depth, rt.stencil = newDepthPlanes(size, rt.samples, withStencil)
		return nil
	})
	if err != nil {
		return fmt.Errorf("software: render target %q: %w", rt.label, err)
	}
	return nil
}

// AttachTexture2D adds a MIP level of tex as a color attachment.
func (rt *renderTarget) AttachTexture2D(tex rhi.Texture, mipLevel int) error {
	if err := rt.live(); err != nil {
		return err
	}
	t, err := lookup[*texture](rt.sys, tex, "texture")
	if err != nil {
		return err
	}
	if t.desc.Usage&gputypes.TextureUsageRenderAttachment == 0 {
		return fmt.Errorf("software: render target %q: texture %q lacks render attachment usage: %w",
			rt.label, t.label, rhi.ErrValidation)
	}
	if mipLevel < 0 || mipLevel >= len(t.levels) {
		return fmt.Errorf("software: render target %q: MIP level %d of %d: %w",
			rt.label, mipLevel, len(t.levels), rhi.ErrValidation)
	}
	if rt.ColorAttachments() >= rt.sys.caps.MaxColorAttachments {
		return fmt.Errorf("software: render target %q: more than %d color attachments: %w",
			rt.label, rt.sys.caps.MaxColorAttachments, rhi.ErrCapability)
	}
	err = rt.set.Attach(track.AttachColor, t.desc.Size.MipExtent(mipLevel), func() error {
		rt.textures = append(rt.textures[:len(rt.textures):len(rt.textures)], t)
		rt.colors = append(rt.colors[:len(rt.colors):len(rt.colors)], newColorPlane(t.levels[mipLevel], rt.samples))
		return nil
	})
	if err != nil {
		return fmt.Errorf("software: render target %q: %w", rt.label, err)
	}
	return nil
}

// DetachAll removes every attachment.
func (rt *renderTarget) DetachAll() error {
	if err := rt.live(); err != nil {
		return err
	}
	if err := rt.set.Reset(); err != nil {
		return fmt.Errorf("software: render target %q: %w", rt.label, err)
	}
	rt.textures, rt.colors, rt.depth, rt.stencil = nil, nil, nil, nil
	return nil
}

func (rt *renderTarget) framebuffer() *framebuffer {
	return &framebuffer{
		label:   rt.label,
		size:    rt.set.Size(),
		samples: rt.samples,
		colors:  rt.colors,
		depth:   rt.depth,
		stencil: rt.stencil,
	}
}

func (rt *renderTarget) release() {
	rt.textures, rt.colors, rt.depth, rt.stencil = nil, nil, nil, nil
}
