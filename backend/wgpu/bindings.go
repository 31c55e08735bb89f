package wgpu

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/wgsl"
)

// bindLayout is a bind group layout of group 0 and the pipeline layout
// built from it. Layouts are cached per binding signature and live until
// the system closes.
type bindLayout struct {
	key     string
	entries []wgsl.Binding
	group   hal.BindGroupLayout
	layout  hal.PipelineLayout
}

func (l *bindLayout) destroy(dev hal.Device) {
	dev.DestroyPipelineLayout(l.layout)
	if l.group != nil {
		dev.DestroyBindGroupLayout(l.group)
	}
}

// layoutKey encodes a binding list as "texture0,sampler1,uniform2".
func layoutKey(entries []wgsl.Binding) string {
	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(e.Kind.String())
		sb.WriteString(strconv.FormatUint(uint64(e.Binding), 10))
	}
	return sb.String()
}

func layoutEntry(b wgsl.Binding) gputypes.BindGroupLayoutEntry {
	e := gputypes.BindGroupLayoutEntry{Binding: b.Binding, Visibility: gputypes.ShaderStagesVertexFragment}
	switch b.Kind {
	case wgsl.BindingUniform:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
	case wgsl.BindingTexture:
		e.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case wgsl.BindingSampler:
		e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	}
	return e
}

// bindLayout returns the cached layout for entries, creating it on first
// use.
func (s *System) bindLayout(entries []wgsl.Binding) (*bindLayout, error) {
	key := layoutKey(entries)
	s.layoutMu.RLock()
	l, ok := s.layouts[key]
	s.layoutMu.RUnlock()
	if ok {
		return l, nil
	}

	s.layoutMu.Lock()
	defer s.layoutMu.Unlock()
	if s.layouts == nil {
		return nil, errDeviceClosed
	}
	if l, ok = s.layouts[key]; ok {
		return l, nil
	}
	l = &bindLayout{key: key, entries: entries}
	var groups []hal.BindGroupLayout
	if len(entries) > 0 {
		layoutEntries := make([]gputypes.BindGroupLayoutEntry, len(entries))
		for i, e := range entries {
			layoutEntries[i] = layoutEntry(e)
		}
		group, err := s.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   "rhi bindings " + key,
			Entries: layoutEntries,
		})
		if err != nil {
			return nil, fmt.Errorf("wgpu: create bind group layout %q: %v: %w", key, err, rhi.ErrCreation)
		}
		l.group = group
		groups = []hal.BindGroupLayout{group}
	}
	layout, err := s.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "rhi pipeline layout " + key,
		BindGroupLayouts: groups,
	})
	if err != nil {
		if l.group != nil {
			s.dev.DestroyBindGroupLayout(l.group)
		}
		return nil, fmt.Errorf("wgpu: create pipeline layout %q: %v: %w", key, err, rhi.ErrCreation)
	}
	l.layout = layout
	s.layouts[key] = l
	rhi.Logger().Debug("wgpu: bind layout created", "key", key, "layouts", len(s.layouts))
	return l, nil
}

// slots holds the resources bound to group 0 by slot.
type slots struct {
	constants [MaxBindingSlots]*buffer
	textures  [MaxBindingSlots]*texture
	samplers  [MaxBindingSlots]*sampler

	// dirty is set by every bind; the bind group is rebuilt before the
	// next draw.
	dirty  bool
	layout *bindLayout
}

// entries returns the bindings a draw with prog needs. Reflected programs
// name them; the bound slots must match. For other programs every bound
// slot is used, and a slot bound with two kinds is ambiguous.
func (sl *slots) entries(prog *program) ([]wgsl.Binding, error) {
	if prog.reflected {
		for _, b := range prog.bindings {
			if !sl.has(b.Binding, b.Kind) {
				return nil, fmt.Errorf("wgpu: program %q: %s binding %d (%s) is not bound: %w",
					prog.label, b.Kind, b.Binding, b.Name, rhi.ErrValidation)
			}
		}
		return prog.bindings, nil
	}
	var out []wgsl.Binding
	for i := range MaxBindingSlots {
		var kinds []wgsl.BindingKind
		if sl.constants[i] != nil {
			kinds = append(kinds, wgsl.BindingUniform)
		}
		if sl.textures[i] != nil {
			kinds = append(kinds, wgsl.BindingTexture)
		}
		if sl.samplers[i] != nil {
			kinds = append(kinds, wgsl.BindingSampler)
		}
		switch len(kinds) {
		case 0:
		case 1:
			out = append(out, wgsl.Binding{Binding: uint32(i), Kind: kinds[0]})
		default:
			return nil, fmt.Errorf("wgpu: program %q: slot %d bound as %s and %s: %w",
				prog.label, i, kinds[0], kinds[1], rhi.ErrValidation)
		}
	}
	return out, nil
}

func (sl *slots) has(slot uint32, kind wgsl.BindingKind) bool {
	if slot >= MaxBindingSlots {
		return false
	}
	switch kind {
	case wgsl.BindingUniform:
		return sl.constants[slot] != nil
	case wgsl.BindingTexture:
		return sl.textures[slot] != nil
	case wgsl.BindingSampler:
		return sl.samplers[slot] != nil
	default:
		return false
	}
}

// groupEntries builds the bind group entries of l from the bound slots.
func (sl *slots) groupEntries(l *bindLayout) []gputypes.BindGroupEntry {
	out := make([]gputypes.BindGroupEntry, len(l.entries))
	for i, e := range l.entries {
		out[i].Binding = e.Binding
		switch e.Kind {
		case wgsl.BindingUniform:
			b := sl.constants[e.Binding]
			out[i].Resource = gputypes.BufferBinding{Buffer: b.raw.NativeHandle(), Size: b.size}
		case wgsl.BindingTexture:
			out[i].Resource = gputypes.TextureViewBinding{TextureView: sl.textures[e.Binding].view.NativeHandle()}
		case wgsl.BindingSampler:
			out[i].Resource = gputypes.SamplerBinding{Sampler: sl.samplers[e.Binding].raw.NativeHandle()}
		}
	}
	return out
}
