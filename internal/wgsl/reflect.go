package wgsl

import (
	"fmt"
	"slices"

	"github.com/gogpu/naga/ir"

	"github.com/gogpu/rhi"
)

// BindingKind classifies a resource a shader declares.
type BindingKind uint8

const (
	BindingUniform BindingKind = iota + 1
	BindingStorage
	BindingTexture
	BindingSampler
)

// String returns the kind name.
func (k BindingKind) String() string {
	switch k {
	case BindingUniform:
		return "uniform"
	case BindingStorage:
		return "storage"
	case BindingTexture:
		return "texture"
	case BindingSampler:
		return "sampler"
	default:
		return fmt.Sprintf("BindingKind(%d)", uint8(k))
	}
}

// Binding is one @group/@binding resource declared by a module.
type Binding struct {
	Group   uint32
	Binding uint32
	Kind    BindingKind
	Name    string
}

// Bindings returns the resources declared by source, ordered by group and
// binding.
func Bindings(source string) ([]Binding, error) {
	module, err := lower(source)
	if err != nil {
		return nil, err
	}
	var out []Binding
	for _, g := range module.GlobalVariables {
		if g.Binding == nil {
			continue
		}
		kind, ok := bindingKind(module, g)
		if !ok {
			return nil, fmt.Errorf("wgsl: binding %q: unsupported resource type: %w", g.Name, rhi.ErrCreation)
		}
		out = append(out, Binding{Group: g.Binding.Group, Binding: g.Binding.Binding, Kind: kind, Name: g.Name})
	}
	slices.SortFunc(out, func(a, b Binding) int {
		if a.Group != b.Group {
			return int(a.Group) - int(b.Group)
		}
		return int(a.Binding) - int(b.Binding)
	})
	return out, nil
}

func bindingKind(m *ir.Module, g ir.GlobalVariable) (BindingKind, bool) {
	switch g.Space {
	case ir.SpaceUniform:
		return BindingUniform, true
	case ir.SpaceStorage:
		return BindingStorage, true
	case ir.SpaceHandle:
	default:
		return 0, false
	}
	if int(g.Type) >= len(m.Types) {
		return 0, false
	}
	switch t := m.Types[g.Type].Inner.(type) {
	case ir.SamplerType:
		return BindingSampler, true
	case ir.ImageType:
		return BindingTexture, t.Class == ir.ImageClassSampled
	default:
		return 0, false
	}
}

// Merge combines the bindings of several stages. A binding declared by
// more than one stage must have the same kind in each.
func Merge(stages ...[]Binding) ([]Binding, error) {
	var out []Binding
	for _, bs := range stages {
		for _, b := range bs {
			i := slices.IndexFunc(out, func(o Binding) bool { return o.Group == b.Group && o.Binding == b.Binding })
			if i < 0 {
				out = append(out, b)
				continue
			}
			if out[i].Kind != b.Kind {
				return nil, fmt.Errorf("wgsl: @group(%d) @binding(%d) is a %s in one stage and a %s in another: %w",
					b.Group, b.Binding, out[i].Kind, b.Kind, rhi.ErrCreation)
			}
		}
	}
	slices.SortFunc(out, func(a, b Binding) int {
		if a.Group != b.Group {
			return int(a.Group) - int(b.Group)
		}
		return int(a.Binding) - int(b.Binding)
	})
	return out, nil
}
