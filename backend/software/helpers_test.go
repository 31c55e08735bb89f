package software

import (
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi"
)

// spirvStub is accepted as SPIR-V without inspection.
var spirvStub = []uint32{0x07230203}

var (
	red   = rhi.ColorRGBA{R: 1, A: 1}
	green = rhi.ColorRGBA{G: 1, A: 1}
	blue  = rhi.ColorRGBA{B: 1, A: 1}
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newTestSystem(t *testing.T, opts ...Option) *System {
	t.Helper()
	s := New(rhi.Config{Label: t.Name(), SurfaceSize: rhi.Extent{Width: 8, Height: 8}}, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func floatBytes(v ...float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func positionFormat() rhi.VertexFormat {
	var f rhi.VertexFormat
	f.AppendAttribute("position", rhi.DataFloat32, 3)
	return f
}

// constants returns an identity transform followed by c, the layout the
// built-in stages read from constant slot 0.
func constants(c rhi.ColorRGBA) []byte {
	m := []float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
	return append(floatBytes(m...), floatBytes(c.R, c.G, c.B, c.A)...)
}

// fixture is a system with one render context and a linked program of
// the built-in transform and constant color stages.
type fixture struct {
	t      *testing.T
	sys    *System
	rc     rhi.RenderContext
	prog   rhi.ShaderProgram
	consts rhi.Buffer
}

func newFixture(t *testing.T, samples int, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{t: t, sys: newTestSystem(t, opts...)}
	rc, err := f.sys.CreateRenderContext(rhi.RenderContextDescriptor{Label: "test", Samples: samples})
	if err != nil {
		t.Fatalf("CreateRenderContext: %v", err)
	}
	f.rc = rc
	f.prog = f.program(EntryConstantColor)
	f.consts = f.buffer(rhi.BufferDescriptor{Label: "constants", Kind: rhi.BufferKindConstant, Size: 80}, constants(red))
	if err := rc.SetConstantBuffer(f.consts, 0, rhi.StageFlagVertex|rhi.StageFlagFragment); err != nil {
		t.Fatalf("SetConstantBuffer: %v", err)
	}
	return f
}

func (f *fixture) shader(stage rhi.ShaderStage, entry string) rhi.Shader {
	f.t.Helper()
	sh, err := f.sys.CreateShader(rhi.ShaderDescriptor{Label: entry, Stage: stage, SPIRV: spirvStub, EntryPoint: entry})
	if err != nil {
		f.t.Fatalf("CreateShader(%s): %v", entry, err)
	}
	return sh
}

func (f *fixture) program(fragment string) rhi.ShaderProgram {
	f.t.Helper()
	p, err := f.sys.CreateShaderProgram(rhi.ShaderProgramDescriptor{
		Label:        "program",
		VertexFormat: positionFormat(),
		Vertex:       f.shader(rhi.ShaderStageVertex, EntryTransform),
		Fragment:     f.shader(rhi.ShaderStageFragment, fragment),
	})
	if err != nil {
		f.t.Fatalf("CreateShaderProgram: %v", err)
	}
	return p
}

// pipeline creates a triangle list pipeline from desc using the fixture
// program when desc has none.
func (f *fixture) pipeline(desc rhi.GraphicsPipelineDescriptor) rhi.GraphicsPipeline {
	f.t.Helper()
	if desc.Program == nil {
		desc.Program = f.prog
	}
	p, err := f.sys.CreateGraphicsPipeline(desc)
	if err != nil {
		f.t.Fatalf("CreateGraphicsPipeline: %v", err)
	}
	return p
}

func (f *fixture) buffer(desc rhi.BufferDescriptor, data []byte) rhi.Buffer {
	f.t.Helper()
	b, err := f.sys.CreateBuffer(desc, data)
	if err != nil {
		f.t.Fatalf("CreateBuffer(%s): %v", desc.Label, err)
	}
	return b
}

// vertices creates a vertex buffer of positions given as x, y pairs at
// depth z.
func (f *fixture) vertices(z float32, xy ...float32) rhi.Buffer {
	f.t.Helper()
	var v []float32
	for i := 0; i+1 < len(xy); i += 2 {
		v = append(v, xy[i], xy[i+1], z)
	}
	return f.buffer(rhi.BufferDescriptor{
		Label:        "vertices",
		Kind:         rhi.BufferKindVertex,
		Size:         uint64(4 * len(v)),
		VertexFormat: positionFormat(),
	}, floatBytes(v...))
}

// fullscreen covers every pixel center with a single triangle.
func (f *fixture) fullscreen(z float32) rhi.Buffer {
	return f.vertices(z, -1, -1, 3, -1, -1, 3)
}

// offscreen lies entirely right of the viewport.
func (f *fixture) offscreen() rhi.Buffer {
	return f.vertices(0.5, 2, 2, 3, 2, 2, 3)
}

func (f *fixture) draw(p rhi.GraphicsPipeline, vb rhi.Buffer) {
	f.t.Helper()
	if err := f.rc.SetGraphicsPipeline(p); err != nil {
		f.t.Fatalf("SetGraphicsPipeline: %v", err)
	}
	if err := f.rc.SetVertexBuffer(vb); err != nil {
		f.t.Fatalf("SetVertexBuffer: %v", err)
	}
	if err := f.rc.Draw(3, 0); err != nil {
		f.t.Fatalf("Draw: %v", err)
	}
}

func (f *fixture) surface() *image.RGBA {
	f.t.Helper()
	img, err := f.rc.ReadSurface(testContext(f.t))
	if err != nil {
		f.t.Fatalf("ReadSurface: %v", err)
	}
	return img
}

func (f *fixture) setColor(c rhi.ColorRGBA) {
	f.t.Helper()
	if err := f.rc.UpdateConstantBuffer(f.consts, constants(c)); err != nil {
		f.t.Fatalf("UpdateConstantBuffer: %v", err)
	}
}

func rgba(c rhi.ColorRGBA) color.RGBA {
	b := toBytes([4]float32{c.R, c.G, c.B, c.A})
	return color.RGBA{R: b[0], G: b[1], B: b[2], A: b[3]}
}

// checkFill fails unless every pixel of img is want.
func checkFill(t *testing.T, img *image.RGBA, want color.RGBA) {
	t.Helper()
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if got := img.RGBAAt(x, y); got != want {
				t.Fatalf("pixel (%d, %d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func opaqueTargets(mask gputypes.ColorWriteMask) rhi.BlendDescriptor {
	t := rhi.DefaultBlendTarget()
	t.ColorMask = mask
	return rhi.BlendDescriptor{Targets: []rhi.BlendTargetDescriptor{t}}
}
