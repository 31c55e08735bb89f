package software

import (
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/software/raster"

	"github.com/gogpu/rhi"
)

func TestAddress(t *testing.T) {
	tests := []struct {
		name string
		i, n int
		mode gputypes.AddressMode
		want int
	}{
		{"clamp low", -3, 4, gputypes.AddressModeClampToEdge, 0},
		{"clamp high", 9, 4, gputypes.AddressModeClampToEdge, 3},
		{"undefined clamps", 5, 4, gputypes.AddressModeUndefined, 3},
		{"repeat", 5, 4, gputypes.AddressModeRepeat, 1},
		{"repeat negative", -1, 4, gputypes.AddressModeRepeat, 3},
		{"mirror", 5, 4, gputypes.AddressModeMirrorRepeat, 2},
		{"mirror negative", -1, 4, gputypes.AddressModeMirrorRepeat, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := address(tt.i, tt.n, tt.mode); got != tt.want {
				t.Errorf("address(%d, %d) = %d, want %d", tt.i, tt.n, got, tt.want)
			}
		})
	}
}

func checkerboard() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{A: 255})
	img.SetRGBA(1, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	return img
}

func TestSampleImage(t *testing.T) {
	img := checkerboard()
	nearest := &gputypes.SamplerDescriptor{}
	linear := &gputypes.SamplerDescriptor{MagFilter: gputypes.FilterModeLinear}

	if got := sampleImage(img, nearest, 0.2, 0.5); got[0] != 0 {
		t.Errorf("nearest left = %v, want black", got)
	}
	if got := sampleImage(img, nearest, 0.8, 0.5); got[0] != 1 {
		t.Errorf("nearest right = %v, want white", got)
	}
	if got := sampleImage(img, linear, 0.5, 0.5); got[0] < 0.49 || got[0] > 0.51 {
		t.Errorf("linear center = %v, want mid gray", got)
	}
}

func TestBindings(t *testing.T) {
	var b Bindings
	b.constants[0] = constants(green)

	if _, ok := b.Matrix(0, 0); !ok {
		t.Error("Matrix() not found in 80 byte buffer")
	}
	if _, ok := b.Float32s(0, 72, 4); ok {
		t.Error("Float32s() read past the buffer")
	}
	if b.Constants(MaxBindingSlots) != nil {
		t.Error("Constants() out of range slot returned data")
	}
	if got := b.Sample(1, 0, 0); got != [4]float32{1, 0, 1, 1} {
		t.Errorf("unbound Sample() = %v, want magenta", got)
	}

	got := ConstantColorFragmentShader(raster.Fragment{}, &b)
	if got != [4]float32{0, 1, 0, 1} {
		t.Errorf("ConstantColorFragmentShader() = %v, want green", got)
	}
	attr := raster.Fragment{Attributes: []float32{0.5, 0.25, 0, 1}}
	if got := ConstantColorFragmentShader(attr, &Bindings{}); got != [4]float32{0.5, 0.25, 0, 1} {
		t.Errorf("attribute color = %v", got)
	}
}

func TestTransformVertexShader(t *testing.T) {
	var b Bindings
	m := []float32{2, 0, 0, 0, 0, 2, 0, 0, 0, 0, 1, 0, 0.5, 0, 0, 1}
	b.constants[0] = floatBytes(m...)
	v := TransformVertexShader(0, [3]float32{1, 1, 0}, nil, &b)
	if v.Position != [4]float32{2.5, 2, 0, 1} {
		t.Errorf("Position = %v, want [2.5 2 0 1]", v.Position)
	}
}

func TestDraw_Textured(t *testing.T) {
	f := newFixture(t, 1)
	f.setColor(rhi.ColorRGBA{R: 1, G: 1, B: 1, A: 1})

	tex, err := f.sys.CreateTexture(rhi.TextureDescriptor{
		Size:      rhi.Extent{Width: 2, Height: 1},
		Format:    gputypes.TextureFormatRGBA8Unorm,
		MipLevels: 1,
		Usage:     gputypes.TextureUsageTextureBinding,
	}, checkerboard().Pix)
	if err != nil {
		t.Fatal(err)
	}
	smp, err := f.sys.CreateSampler(gputypes.SamplerDescriptor{})
	if err != nil {
		t.Fatal(err)
	}

	var format rhi.VertexFormat
	format.AppendAttribute("position", rhi.DataFloat32, 3)
	format.AppendAttribute("uv", rhi.DataFloat32, 2)
	vb := f.buffer(rhi.BufferDescriptor{Kind: rhi.BufferKindVertex, Size: 60, VertexFormat: format}, floatBytes(
		-1, -1, 0.5, 0, 1,
		3, -1, 0.5, 2, 1,
		-1, 3, 0.5, 0, -1,
	))
	prog, err := f.sys.CreateShaderProgram(rhi.ShaderProgramDescriptor{
		VertexFormat: format,
		Vertex:       f.shader(rhi.ShaderStageVertex, EntryTransform),
		Fragment:     f.shader(rhi.ShaderStageFragment, EntryTextured),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.rc.SetTexture(tex, 0, rhi.StageFlagFragment); err != nil {
		t.Fatal(err)
	}
	if err := f.rc.SetSampler(smp, 0, rhi.StageFlagFragment); err != nil {
		t.Fatal(err)
	}
	f.draw(f.pipeline(rhi.GraphicsPipelineDescriptor{Program: prog}), vb)

	img := f.surface()
	if got := img.RGBAAt(1, 4); got != (color.RGBA{A: 255}) {
		t.Errorf("left half = %v, want black", got)
	}
	if got := img.RGBAAt(6, 4); got != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("right half = %v, want white", got)
	}
}

func TestColorPlaneResolve(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	p := newColorPlane(img, 4)
	for i, s := range p.samples {
		if i%2 == 0 {
			copy(s, []byte{255, 255, 255, 255})
		}
	}
	p.resolve()
	if got := img.Pix[:4]; got[0] != 128 || got[3] != 128 {
		t.Errorf("half covered pixel = %v, want 128", got)
	}
	if got := img.Pix[4:8]; got[0] != 0 {
		t.Errorf("uncovered pixel = %v, want 0", got)
	}

	single := newColorPlane(img, 1)
	single.clear([4]uint8{1, 2, 3, 4})
	if img.Pix[12] != 1 || img.Pix[15] != 4 {
		t.Error("single sample plane does not alias its image")
	}
}
