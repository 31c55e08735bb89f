package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
)

// colorFormat is the format of every color attachment.
const colorFormat = gputypes.TextureFormatRGBA8Unorm

// stencilOp converts a gputypes stencil operation to the HAL one. The
// HAL enumeration has no undefined value; undefined means keep.
func stencilOp(op gputypes.StencilOperation) hal.StencilOperation {
	if op == gputypes.StencilOperationUndefined {
		return hal.StencilOperationKeep
	}
	return hal.StencilOperation(op - 1)
}

func stencilFace(d rhi.StencilDescriptor, face gputypes.StencilFaceState) hal.StencilFaceState {
	if !d.TestEnabled {
		return hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways}
	}
	cmp := face.Compare
	if cmp == gputypes.CompareFunctionUndefined {
		cmp = gputypes.CompareFunctionAlways
	}
	return hal.StencilFaceState{
		Compare:     cmp,
		FailOp:      stencilOp(face.FailOp),
		DepthFailOp: stencilOp(face.DepthFailOp),
		PassOp:      stencilOp(face.PassOp),
	}
}

func depthStencilState(desc rhi.GraphicsPipelineDescriptor, format gputypes.TextureFormat) *hal.DepthStencilState {
	if format == gputypes.TextureFormatUndefined {
		return nil
	}
	ds := &hal.DepthStencilState{
		Format:       format,
		DepthCompare: gputypes.CompareFunctionAlways,
		StencilFront: stencilFace(desc.Stencil, desc.Stencil.Front),
		StencilBack:  stencilFace(desc.Stencil, desc.Stencil.Back),
	}
	if desc.Depth.TestEnabled {
		ds.DepthCompare = desc.Depth.CompareFunc()
		ds.DepthWriteEnabled = desc.Depth.WriteEnabled
	}
	if desc.Stencil.TestEnabled {
		ds.StencilReadMask = desc.Stencil.ReadMask
		ds.StencilWriteMask = desc.Stencil.WriteMask
	}
	return ds
}

// renderPipelineDescriptor builds the HAL descriptor of one pipeline
// variant.
func renderPipelineDescriptor(p *pipeline, key variantKey) (*hal.RenderPipelineDescriptor, error) {
	desc := p.desc
	topology, ok := desc.Topology.GPU()
	if !ok {
		return nil, fmt.Errorf("wgpu: pipeline %q: topology %s: %w", p.label, desc.Topology, rhi.ErrCapability)
	}
	prog := p.program

	var buffers []gputypes.VertexBufferLayout
	if !prog.desc.VertexFormat.IsEmpty() {
		layout, err := prog.desc.VertexFormat.Layout()
		if err != nil {
			return nil, fmt.Errorf("wgpu: pipeline %q: %w", p.label, err)
		}
		buffers = []gputypes.VertexBufferLayout{layout}
	}

	hd := &hal.RenderPipelineDescriptor{
		Label:  p.label,
		Layout: key.layout.layout,
		Vertex: hal.VertexState{
			Module:     prog.vertex.module,
			EntryPoint: prog.vertex.desc.EntryPoint,
			Buffers:    buffers,
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  topology,
			FrontFace: desc.Rasterizer.FrontFace,
			CullMode:  desc.Rasterizer.CullMode,
		},
		DepthStencil: depthStencilState(desc, key.depth),
		Multisample: gputypes.MultisampleState{
			Count:                  uint32(p.Samples()),
			Mask:                   0xFFFFFFFF,
			AlphaToCoverageEnabled: desc.Blend.AlphaToCoverage,
		},
	}
	if prog.fragment != nil {
		targets := make([]gputypes.ColorTargetState, key.colors)
		for i := range targets {
			bt := p.blendTarget(i)
			targets[i] = gputypes.ColorTargetState{
				Format:    colorFormat,
				Blend:     bt.GPU(),
				WriteMask: bt.ColorMask,
			}
		}
		hd.Fragment = &hal.FragmentState{
			Module:     prog.fragment.module,
			EntryPoint: prog.fragment.desc.EntryPoint,
			Targets:    targets,
		}
	}
	return hd, nil
}

// samplerDescriptor converts a sampler description to the HAL one.
func samplerDescriptor(d gputypes.SamplerDescriptor) *hal.SamplerDescriptor {
	hd := &hal.SamplerDescriptor{
		Label:        d.Label,
		AddressModeU: d.AddressModeU,
		AddressModeV: d.AddressModeV,
		AddressModeW: d.AddressModeW,
		MagFilter:    d.MagFilter,
		MinFilter:    d.MinFilter,
		MipmapFilter: gputypes.FilterMode(d.MipmapFilter),
		LodMinClamp:  d.LodMinClamp,
		LodMaxClamp:  d.LodMaxClamp,
		Compare:      d.Compare,
		Anisotropy:   max(d.MaxAnisotropy, 1),
	}
	if hd.AddressModeU == gputypes.AddressModeUndefined {
		hd.AddressModeU = gputypes.AddressModeClampToEdge
	}
	if hd.AddressModeV == gputypes.AddressModeUndefined {
		hd.AddressModeV = gputypes.AddressModeClampToEdge
	}
	if hd.AddressModeW == gputypes.AddressModeUndefined {
		hd.AddressModeW = gputypes.AddressModeClampToEdge
	}
	if hd.MagFilter == gputypes.FilterModeUndefined {
		hd.MagFilter = gputypes.FilterModeNearest
	}
	if hd.MinFilter == gputypes.FilterModeUndefined {
		hd.MinFilter = gputypes.FilterModeNearest
	}
	if hd.MipmapFilter == gputypes.FilterModeUndefined {
		hd.MipmapFilter = gputypes.FilterModeNearest
	}
	if hd.LodMaxClamp == 0 {
		hd.LodMaxClamp = 32
	}
	return hd
}
