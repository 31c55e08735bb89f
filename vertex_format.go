package rhi

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// DataType is the component type of a vertex attribute.
type DataType uint8

const (
	DataFloat32 DataType = iota
	DataInt32
	DataUint32
	DataUnorm8
)

// Size returns the size of one component in bytes.
func (t DataType) Size() int {
	if t == DataUnorm8 {
		return 1
	}
	return 4
}

// String returns the type name.
func (t DataType) String() string {
	switch t {
	case DataFloat32:
		return "Float32"
	case DataInt32:
		return "Int32"
	case DataUint32:
		return "Uint32"
	case DataUnorm8:
		return "Unorm8"
	default:
		return fmt.Sprintf("DataType(%d)", uint8(t))
	}
}

// VertexAttribute is one named attribute of a vertex format.
type VertexAttribute struct {
	Name       string
	Type       DataType
	Components int

	// Offset is the byte offset within a vertex, assigned by AppendAttribute.
	Offset int
}

// Size returns the attribute size in bytes.
func (a VertexAttribute) Size() int {
	return a.Type.Size() * a.Components
}

// GPUFormat returns the gputypes vertex format of the attribute.
func (a VertexAttribute) GPUFormat() (gputypes.VertexFormat, error) {
	var formats [5]gputypes.VertexFormat
	switch a.Type {
	case DataFloat32:
		formats = [5]gputypes.VertexFormat{0, gputypes.VertexFormatFloat32, gputypes.VertexFormatFloat32x2,
			gputypes.VertexFormatFloat32x3, gputypes.VertexFormatFloat32x4}
	case DataInt32:
		formats = [5]gputypes.VertexFormat{0, gputypes.VertexFormatSint32, gputypes.VertexFormatSint32x2,
			gputypes.VertexFormatSint32x3, gputypes.VertexFormatSint32x4}
	case DataUint32:
		formats = [5]gputypes.VertexFormat{0, gputypes.VertexFormatUint32, gputypes.VertexFormatUint32x2,
			gputypes.VertexFormatUint32x3, gputypes.VertexFormatUint32x4}
	case DataUnorm8:
		formats = [5]gputypes.VertexFormat{0, 0, gputypes.VertexFormatUnorm8x2, 0, gputypes.VertexFormatUnorm8x4}
	}
	if a.Components < 1 || a.Components > 4 || formats[a.Components] == gputypes.VertexFormatUndefined {
		return gputypes.VertexFormatUndefined, fmt.Errorf("vertex attribute %q: %d x %s: %w",
			a.Name, a.Components, a.Type, ErrCapability)
	}
	return formats[a.Components], nil
}

// VertexFormat is an ordered list of vertex attributes. Attribute order
// defines shader location order; offsets are packed without padding.
type VertexFormat struct {
	Attributes []VertexAttribute
	stride     int
}

// AppendAttribute adds an attribute after the existing ones and assigns
// its offset.
func (f *VertexFormat) AppendAttribute(name string, t DataType, components int) {
	f.Attributes = append(f.Attributes, VertexAttribute{
		Name:       name,
		Type:       t,
		Components: components,
		Offset:     f.stride,
	})
	f.stride += t.Size() * components
}

// Stride returns the size of one vertex in bytes.
func (f VertexFormat) Stride() int {
	return f.stride
}

// IsEmpty reports whether the format has no attributes.
func (f VertexFormat) IsEmpty() bool {
	return len(f.Attributes) == 0
}

// Attribute returns the attribute with the given name.
func (f VertexFormat) Attribute(name string) (VertexAttribute, bool) {
	for _, a := range f.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return VertexAttribute{}, false
}

// Layout converts the format to a gputypes vertex buffer layout with
// shader locations in attribute order.
func (f VertexFormat) Layout() (gputypes.VertexBufferLayout, error) {
	attrs := make([]gputypes.VertexAttribute, 0, len(f.Attributes))
	for i, a := range f.Attributes {
		format, err := a.GPUFormat()
		if err != nil {
			return gputypes.VertexBufferLayout{}, err
		}
		attrs = append(attrs, gputypes.VertexAttribute{
			Format:         format,
			Offset:         uint64(a.Offset),
			ShaderLocation: uint32(i),
		})
	}
	return gputypes.VertexBufferLayout{
		ArrayStride: uint64(f.stride),
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes:  attrs,
	}, nil
}
