package wgpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/wgsl"
)

//go:embed shaders/blit.wgsl
var blitSource string

// blitter downsamples one MIP level into the next with a linear sampler.
type blitter struct {
	module   hal.ShaderModule
	pipeline hal.RenderPipeline
	sampler  hal.Sampler
	layout   *bindLayout
}

func (b *blitter) destroy(dev hal.Device) {
	dev.DestroyRenderPipeline(b.pipeline)
	dev.DestroySampler(b.sampler)
	dev.DestroyShaderModule(b.module)
}

// blitPipeline returns the blitter, creating it on first use.
func (s *System) blitPipeline() (*blitter, error) {
	s.blitMu.Lock()
	defer s.blitMu.Unlock()
	if s.blit != nil {
		return s.blit, nil
	}
	bindings, err := wgsl.Bindings(blitSource)
	if err != nil {
		return nil, fmt.Errorf("wgpu: blit shader: %w", err)
	}
	layout, err := s.bindLayout(bindings)
	if err != nil {
		return nil, err
	}
	module, err := s.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "rhi blit",
		Source: hal.ShaderSource{WGSL: blitSource},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create blit shader: %v: %w", err, rhi.ErrCreation)
	}
	pipeline, err := s.dev.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "rhi blit",
		Layout: layout.layout,
		Vertex: hal.VertexState{Module: module, EntryPoint: "vs_main"},
		Primitive: gputypes.PrimitiveState{
			Topology:  gputypes.PrimitiveTopologyTriangleList,
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{{
				Format:    colorFormat,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
	})
	if err != nil {
		s.dev.DestroyShaderModule(module)
		return nil, fmt.Errorf("wgpu: create blit pipeline: %v: %w", err, rhi.ErrCreation)
	}
	smp, err := s.dev.CreateSampler(samplerDescriptor(gputypes.SamplerDescriptor{
		Label:        "rhi blit",
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.MipmapFilterModeNearest,
	}))
	if err != nil {
		s.dev.DestroyRenderPipeline(pipeline)
		s.dev.DestroyShaderModule(module)
		return nil, fmt.Errorf("wgpu: create blit sampler: %v: %w", err, rhi.ErrCreation)
	}
	s.blit = &blitter{module: module, pipeline: pipeline, sampler: smp, layout: layout}
	rhi.Logger().Debug("wgpu: blit pipeline created")
	return s.blit, nil
}

// generateMips records one render pass per level of t, each sampling the
// level above. The level views and bind groups are appended to garbage
// and destroyed once the submission holding the passes completes.
func (s *System) generateMips(enc hal.CommandEncoder, t *texture, garbage *[]func()) error {
	b, err := s.blitPipeline()
	if err != nil {
		return err
	}
	views := make([]hal.TextureView, t.levels)
	defer func() {
		for _, v := range views {
			if v != nil {
				*garbage = append(*garbage, func() { s.dev.DestroyTextureView(v) })
			}
		}
	}()
	for level := range t.levels {
		if views[level], err = s.levelView(t, level); err != nil {
			return err
		}
	}
	for level := 1; level < t.levels; level++ {
		group, err := s.dev.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  fmt.Sprintf("%s mip %d", t.label, level),
			Layout: b.layout.group,
			Entries: []gputypes.BindGroupEntry{
				{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: views[level-1].NativeHandle()}},
				{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: b.sampler.NativeHandle()}},
			},
		})
		if err != nil {
			return fmt.Errorf("wgpu: generate MIPs of %q: bind group: %v: %w", t.label, err, rhi.ErrCreation)
		}
		*garbage = append(*garbage, func() { s.dev.DestroyBindGroup(group) })

		size := t.desc.Size.MipExtent(level)
		pass := enc.BeginRenderPass(&hal.RenderPassDescriptor{
			Label: fmt.Sprintf("%s mip %d", t.label, level),
			ColorAttachments: []hal.RenderPassColorAttachment{{
				View:    views[level],
				LoadOp:  gputypes.LoadOpClear,
				StoreOp: gputypes.StoreOpStore,
			}},
		})
		pass.SetPipeline(b.pipeline)
		pass.SetBindGroup(0, group, nil)
		pass.SetViewport(0, 0, float32(size.Width), float32(size.Height), 0, 1)
		pass.SetScissorRect(0, 0, uint32(size.Width), uint32(size.Height))
		pass.Draw(3, 1, 0, 0)
		pass.End()
	}
	return nil
}
