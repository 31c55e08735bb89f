package software

import (
	"encoding/binary"
	"image"
	"sync"

	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/software/raster"
	"github.com/gogpu/wgpu/hal/software/shader"

	"github.com/gogpu/rhi"
)

// MaxBindingSlots is the number of constant buffer, texture and sampler
// slots.
const MaxBindingSlots = 16

// Entry points of the built-in stages.
const (
	// EntryTransform transforms the position by the matrix in bytes
	// [0, 64) of constant slot 0, or passes it through when no such
	// buffer is bound. It is also the stage of unregistered vertex entry
	// points.
	EntryTransform = "vs_transform"

	// EntryConstantColor returns the color in bytes [64, 80) of constant
	// slot 0, else the first four interpolated attributes, else white. It
	// is also the stage of unregistered fragment entry points.
	EntryConstantColor = "fs_color"

	// EntryTextured samples the lowest bound texture slot with the lowest
	// bound sampler slot at the first two interpolated attributes and modulates the result with the
	// constant color when one is bound.
	EntryTextured = "fs_textured"
)

var (
	stagesMu       sync.RWMutex
	vertexStages   = map[string]shader.VertexShaderFunc{EntryTransform: TransformVertexShader}
	fragmentStages = map[string]shader.FragmentShaderFunc{
		EntryConstantColor: ConstantColorFragmentShader,
		EntryTextured:      TexturedFragmentShader,
	}
)

// RegisterVertexShader makes fn the vertex stage of shaders created with
// the given entry point. The uniforms argument of fn is a *Bindings.
func RegisterVertexShader(entryPoint string, fn shader.VertexShaderFunc) {
	stagesMu.Lock()
	defer stagesMu.Unlock()
	vertexStages[entryPoint] = fn
}

// RegisterFragmentShader makes fn the fragment stage of shaders created
// with the given entry point. The uniforms argument of fn is a *Bindings.
func RegisterFragmentShader(entryPoint string, fn shader.FragmentShaderFunc) {
	stagesMu.Lock()
	defer stagesMu.Unlock()
	fragmentStages[entryPoint] = fn
}

// linkStages resolves the Go functions of a program.
func linkStages(vertex, fragment rhi.Shader) shader.ShaderProgram {
	stagesMu.RLock()
	defer stagesMu.RUnlock()
	p := shader.ShaderProgram{Vertex: TransformVertexShader}
	if fn, ok := vertexStages[vertex.EntryPoint()]; ok {
		p.Vertex = fn
	}
	if fragment == nil {
		return p
	}
	p.Fragment = ConstantColorFragmentShader
	if fn, ok := fragmentStages[fragment.EntryPoint()]; ok {
		p.Fragment = fn
	}
	return p
}

// Bindings is the uniform argument passed to shader functions. It exposes
// the constant buffers, textures and samplers bound when the draw was
// recorded.
type Bindings struct {
	// Instance is the index of the instance being drawn.
	Instance int

	constants [MaxBindingSlots][]byte
	textures  [MaxBindingSlots]*image.RGBA
	samplers  [MaxBindingSlots]*gputypes.SamplerDescriptor
}

// Constants returns the contents of the constant buffer in slot, or nil.
func (b *Bindings) Constants(slot int) []byte {
	if slot < 0 || slot >= MaxBindingSlots {
		return nil
	}
	return b.constants[slot]
}

// Float32s decodes n little-endian float32 values at offset of the
// constant buffer in slot. ok is false if the buffer is too small.
func (b *Bindings) Float32s(slot, offset, n int) (v []float32, ok bool) {
	data := b.Constants(slot)
	if offset < 0 || offset+4*n > len(data) {
		return nil, false
	}
	v = make([]float32, n)
	for i := range v {
		v[i] = math32.Float32frombits(binary.LittleEndian.Uint32(data[offset+4*i:]))
	}
	return v, true
}

// Matrix decodes a column-major 4x4 matrix at offset of the constant
// buffer in slot.
func (b *Bindings) Matrix(slot, offset int) ([16]float32, bool) {
	var m [16]float32
	v, ok := b.Float32s(slot, offset, 16)
	if !ok {
		return m, false
	}
	copy(m[:], v)
	return m, true
}

// Sample samples the texture in slot with the sampler of the same slot.
// Unbound textures sample opaque magenta.
func (b *Bindings) Sample(slot int, u, v float32) [4]float32 {
	if slot < 0 || slot >= MaxBindingSlots || b.textures[slot] == nil {
		return [4]float32{1, 0, 1, 1}
	}
	desc := b.samplers[slot]
	if desc == nil {
		desc = &gputypes.SamplerDescriptor{}
	}
	return sampleImage(b.textures[slot], desc, u, v)
}

// sampleFirst samples the lowest bound texture with the lowest bound
// sampler.
func (b *Bindings) sampleFirst(u, v float32) [4]float32 {
	for _, img := range b.textures {
		if img == nil {
			continue
		}
		desc := &gputypes.SamplerDescriptor{}
		for _, smp := range b.samplers {
			if smp != nil {
				desc = smp
				break
			}
		}
		return sampleImage(img, desc, u, v)
	}
	return [4]float32{1, 0, 1, 1}
}

// TransformVertexShader is the built-in vertex stage, see EntryTransform.
func TransformVertexShader(_ int, position [3]float32, attributes []float32, uniforms any) raster.ClipSpaceVertex {
	pos := [4]float32{position[0], position[1], position[2], 1}
	if b, ok := uniforms.(*Bindings); ok {
		if m, ok := b.Matrix(0, 0); ok {
			pos = shader.Mat4MulVec4(m, pos)
		}
	}
	return raster.ClipSpaceVertex{Position: pos, Attributes: attributes}
}

// ConstantColorFragmentShader is the built-in fragment stage, see
// EntryConstantColor.
func ConstantColorFragmentShader(frag raster.Fragment, uniforms any) [4]float32 {
	if c, ok := constantColor(uniforms); ok {
		return c
	}
	if len(frag.Attributes) >= 4 {
		return [4]float32{frag.Attributes[0], frag.Attributes[1], frag.Attributes[2], frag.Attributes[3]}
	}
	return [4]float32{1, 1, 1, 1}
}

// TexturedFragmentShader is the built-in textured stage, see EntryTextured.
func TexturedFragmentShader(frag raster.Fragment, uniforms any) [4]float32 {
	b, ok := uniforms.(*Bindings)
	if !ok || len(frag.Attributes) < 2 {
		return [4]float32{1, 0, 1, 1}
	}
	c := b.sampleFirst(frag.Attributes[0], frag.Attributes[1])
	if k, ok := constantColor(uniforms); ok {
		for i := range c {
			c[i] *= k[i]
		}
	}
	return c
}

func constantColor(uniforms any) ([4]float32, bool) {
	var c [4]float32
	b, ok := uniforms.(*Bindings)
	if !ok {
		return c, false
	}
	v, ok := b.Float32s(0, 64, 4)
	if !ok {
		return c, false
	}
	copy(c[:], v)
	return c, true
}

// sampleImage samples img at normalized coordinates (u, v).
func sampleImage(img *image.RGBA, desc *gputypes.SamplerDescriptor, u, v float32) [4]float32 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	x := u*float32(w) - 0.5
	y := v*float32(h) - 0.5
	if desc.MagFilter != gputypes.FilterModeLinear {
		tx := address(int(math32.Floor(x+0.5)), w, desc.AddressModeU)
		ty := address(int(math32.Floor(y+0.5)), h, desc.AddressModeV)
		return texel(img, tx, ty)
	}
	x0, y0 := math32.Floor(x), math32.Floor(y)
	fx, fy := x-x0, y-y0
	ix, iy := int(x0), int(y0)
	ax0, ax1 := address(ix, w, desc.AddressModeU), address(ix+1, w, desc.AddressModeU)
	ay0, ay1 := address(iy, h, desc.AddressModeV), address(iy+1, h, desc.AddressModeV)
	c00, c10 := texel(img, ax0, ay0), texel(img, ax1, ay0)
	c01, c11 := texel(img, ax0, ay1), texel(img, ax1, ay1)
	var out [4]float32
	for i := range out {
		top := c00[i] + (c10[i]-c00[i])*fx
		bottom := c01[i] + (c11[i]-c01[i])*fx
		out[i] = top + (bottom-top)*fy
	}
	return out
}

// address maps texel coordinate i into [0, n) by mode. The zero mode
// clamps to the edge.
func address(i, n int, mode gputypes.AddressMode) int {
	switch mode {
	case gputypes.AddressModeRepeat:
		i %= n
		if i < 0 {
			i += n
		}
		return i
	case gputypes.AddressModeMirrorRepeat:
		period := 2 * n
		i %= period
		if i < 0 {
			i += period
		}
		if i >= n {
			i = period - 1 - i
		}
		return i
	default:
		return min(max(i, 0), n-1)
	}
}

func texel(img *image.RGBA, x, y int) [4]float32 {
	o := img.PixOffset(img.Rect.Min.X+x, img.Rect.Min.Y+y)
	p := img.Pix[o : o+4 : o+4]
	return [4]float32{
		float32(p[0]) / 255,
		float32(p[1]) / 255,
		float32(p[2]) / 255,
		float32(p[3]) / 255,
	}
}
