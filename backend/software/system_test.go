package software

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi"
)

// =============================================================================
// Registration and capabilities
// =============================================================================

func TestRegistered(t *testing.T) {
	if !rhi.IsRegistered(rhi.BackendSoftware) {
		t.Fatal("software backend not registered")
	}
	sys, err := rhi.Open(rhi.BackendSoftware)
	if err != nil {
		t.Fatal(err)
	}
	defer sys.Close()

	info := sys.Renderer()
	if info.Backend != rhi.BackendSoftware || info.Adapter.Type != gpucontext.AdapterTypeSoftware {
		t.Errorf("Renderer() = %+v", info)
	}
}

func TestDefaultCaps(t *testing.T) {
	caps := newTestSystem(t).GetRenderingCaps()
	if caps.TessellationShaders || caps.GeometryShaders {
		t.Error("software backend reports tessellation or geometry stages")
	}
	for _, n := range []int{1, 2, 4, 8} {
		if !caps.SupportsSamples(n) {
			t.Errorf("SupportsSamples(%d) = false", n)
		}
	}
	if caps.SupportsSamples(16) {
		t.Error("SupportsSamples(16) = true")
	}
}

func TestCapabilityErrors(t *testing.T) {
	f := newFixture(t, 1)

	if _, err := f.sys.CreateShader(rhi.ShaderDescriptor{
		Stage: rhi.ShaderStageTessControl, SPIRV: spirvStub, EntryPoint: "hs_main",
	}); !errors.Is(err, rhi.ErrCapability) {
		t.Errorf("tessellation shader error = %v, want ErrCapability", err)
	}

	_, err := f.sys.CreateGraphicsPipeline(rhi.GraphicsPipelineDescriptor{
		Program:  f.prog,
		Topology: rhi.PatchTopology(3),
	})
	if !errors.Is(err, rhi.ErrCapability) {
		t.Errorf("patch pipeline error = %v, want ErrCapability", err)
	}

	_, err = f.sys.CreateGraphicsPipeline(rhi.GraphicsPipelineDescriptor{
		Program:    f.prog,
		Rasterizer: rhi.RasterizerDescriptor{Samples: 16},
	})
	if !errors.Is(err, rhi.ErrCapability) {
		t.Errorf("16 sample pipeline error = %v, want ErrCapability", err)
	}

	if _, err := f.sys.CreateRenderTarget(3); !errors.Is(err, rhi.ErrCapability) {
		t.Errorf("CreateRenderTarget(3) error = %v, want ErrCapability", err)
	}
}

func TestWithCaps(t *testing.T) {
	sys := newTestSystem(t, WithCaps(func(c *rhi.RenderingCaps) {
		c.ConstantBuffers = false
		c.TimerQueries = false
	}))

	_, err := sys.CreateBuffer(rhi.BufferDescriptor{Kind: rhi.BufferKindConstant, Size: 64}, nil)
	if !errors.Is(err, rhi.ErrCapability) {
		t.Errorf("constant buffer error = %v, want ErrCapability", err)
	}
	if _, err := sys.CreateQuery(rhi.QueryDescriptor{Type: rhi.QueryTimeElapsed}); !errors.Is(err, rhi.ErrCapability) {
		t.Errorf("timer query error = %v, want ErrCapability", err)
	}
}

// =============================================================================
// Buffers and textures
// =============================================================================

func TestCreateBuffer_InitialData(t *testing.T) {
	f := newFixture(t, 1)

	b := f.buffer(rhi.BufferDescriptor{Kind: rhi.BufferKindIndex, Size: 8}, []byte{1, 2, 3})
	if b.State() != rhi.StateIndex {
		t.Errorf("State() = %s, want Index", b.State())
	}
	got, err := f.sys.ReadBuffer(testContext(t), b)
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{1, 2, 3, 0, 0, 0, 0, 0}; !bytes.Equal(got, want) {
		t.Errorf("ReadBuffer() = %v, want %v", got, want)
	}

	_, err = f.sys.CreateBuffer(rhi.BufferDescriptor{Kind: rhi.BufferKindIndex, Size: 2}, []byte{1, 2, 3})
	if !errors.Is(err, rhi.ErrResourceOverflow) {
		t.Errorf("oversized initial data error = %v, want ErrResourceOverflow", err)
	}
}

func TestReadBuffer_FlushesEveryContext(t *testing.T) {
	f := newFixture(t, 1)
	other, err := f.sys.CreateRenderContext(rhi.RenderContextDescriptor{Label: "other"})
	if err != nil {
		t.Fatal(err)
	}
	b := f.buffer(rhi.BufferDescriptor{Kind: rhi.BufferKindConstant, Size: 4}, nil)
	if err := other.UpdateSubResource(b, 0, []byte{9, 8, 7, 6}); err != nil {
		t.Fatal(err)
	}

	got, err := f.sys.ReadBuffer(testContext(t), b)
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{9, 8, 7, 6}; !bytes.Equal(got, want) {
		t.Errorf("ReadBuffer() = %v, want the update recorded on the other context", got)
	}
}

func TestCreateBuffer_VertexStride(t *testing.T) {
	sys := newTestSystem(t)
	_, err := sys.CreateBuffer(rhi.BufferDescriptor{
		Kind:         rhi.BufferKindVertex,
		Size:         13,
		VertexFormat: positionFormat(),
	}, nil)
	if !errors.Is(err, rhi.ErrCreation) {
		t.Errorf("size not a multiple of stride error = %v, want ErrCreation", err)
	}
}

func TestCreateTexture(t *testing.T) {
	sys := newTestSystem(t)

	tex, err := sys.CreateTexture(rhi.TextureDescriptor{
		Size:   rhi.Extent{Width: 16, Height: 4},
		Format: gputypes.TextureFormatRGBA8Unorm,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if tex.MipLevels() != 5 {
		t.Errorf("MipLevels() = %d, want 5", tex.MipLevels())
	}
	if tex.State() != rhi.StateShaderResource {
		t.Errorf("State() = %s, want ShaderResource", tex.State())
	}
	img, err := sys.ReadTexture(testContext(t), tex, 4)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 1 || img.Bounds().Dy() != 1 {
		t.Errorf("level 4 bounds = %v, want 1x1", img.Bounds())
	}

	_, err = sys.CreateTexture(rhi.TextureDescriptor{
		Size:   rhi.Extent{Width: 2, Height: 2},
		Format: gputypes.TextureFormatRGBA8Unorm,
	}, make([]byte, 3))
	if !errors.Is(err, rhi.ErrCreation) {
		t.Errorf("short texture data error = %v, want ErrCreation", err)
	}
	_, err = sys.CreateTexture(rhi.TextureDescriptor{
		Size:   rhi.Extent{Width: 2, Height: 2},
		Format: gputypes.TextureFormatBGRA8Unorm,
	}, nil)
	if !errors.Is(err, rhi.ErrCapability) {
		t.Errorf("BGRA texture error = %v, want ErrCapability", err)
	}
}

// =============================================================================
// Shaders
// =============================================================================

const wgslVertex = `
@vertex
fn vs_transform(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0, 0.0, 0.0, 1.0);
}
`

func TestCreateShader_WGSL(t *testing.T) {
	sys := newTestSystem(t)

	if _, err := sys.CreateShader(rhi.ShaderDescriptor{
		Stage: rhi.ShaderStageVertex, Source: wgslVertex, EntryPoint: EntryTransform,
	}); err != nil {
		t.Errorf("CreateShader() error = %v", err)
	}
	if _, err := sys.CreateShader(rhi.ShaderDescriptor{
		Stage: rhi.ShaderStageVertex, Source: wgslVertex, EntryPoint: "vs_missing",
	}); !errors.Is(err, rhi.ErrCreation) {
		t.Errorf("missing entry point error = %v, want ErrCreation", err)
	}
	if _, err := sys.CreateShader(rhi.ShaderDescriptor{
		Stage: rhi.ShaderStageVertex, EntryPoint: EntryTransform,
	}); !errors.Is(err, rhi.ErrCreation) {
		t.Errorf("empty source error = %v, want ErrCreation", err)
	}
}

func TestCreateShaderProgram_StageMismatch(t *testing.T) {
	f := newFixture(t, 1)
	fs := f.shader(rhi.ShaderStageFragment, EntryConstantColor)
	_, err := f.sys.CreateShaderProgram(rhi.ShaderProgramDescriptor{Vertex: fs})
	if !errors.Is(err, rhi.ErrCreation) {
		t.Errorf("fragment shader in vertex slot error = %v, want ErrCreation", err)
	}
}

// =============================================================================
// Release
// =============================================================================

func TestRelease(t *testing.T) {
	f := newFixture(t, 1)
	b := f.buffer(rhi.BufferDescriptor{Kind: rhi.BufferKindIndex, Size: 4}, nil)

	if err := f.sys.Release(b); err != nil {
		t.Fatal(err)
	}
	if err := f.sys.Release(b); err != nil {
		t.Errorf("second Release() error = %v, want nil", err)
	}
	if err := f.rc.SetIndexBuffer(b); !errors.Is(err, rhi.ErrReleased) {
		t.Errorf("SetIndexBuffer(released) error = %v, want ErrReleased", err)
	}
	if err := f.sys.Release(nil); !errors.Is(err, rhi.ErrValidation) {
		t.Errorf("Release(nil) error = %v, want ErrValidation", err)
	}

	other := newTestSystem(t)
	foreign, err := other.CreateBuffer(rhi.BufferDescriptor{Kind: rhi.BufferKindIndex, Size: 4}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.sys.Release(foreign); !errors.Is(err, rhi.ErrForeignObject) {
		t.Errorf("Release(foreign) error = %v, want ErrForeignObject", err)
	}
	if err := f.rc.SetIndexBuffer(foreign); !errors.Is(err, rhi.ErrForeignObject) {
		t.Errorf("SetIndexBuffer(foreign) error = %v, want ErrForeignObject", err)
	}
}

func TestRelease_ProgramOutlivesPipelines(t *testing.T) {
	f := newFixture(t, 1)
	p := f.pipeline(rhi.GraphicsPipelineDescriptor{})
	prog := f.prog.(*program)

	if err := f.sys.Release(f.prog); err != nil {
		t.Fatal(err)
	}
	if prog.destroyed.Load() {
		t.Fatal("program destroyed while a pipeline references it")
	}
	if _, err := f.sys.CreateGraphicsPipeline(rhi.GraphicsPipelineDescriptor{Program: f.prog}); !errors.Is(err, rhi.ErrReleased) {
		t.Errorf("pipeline from released program error = %v, want ErrReleased", err)
	}

	// The pipeline still draws with the released program.
	f.draw(p, f.fullscreen(0.5))
	checkFill(t, f.surface(), rgba(red))

	if err := f.sys.Release(p); err != nil {
		t.Fatal(err)
	}
	if !prog.destroyed.Load() {
		t.Error("program not destroyed after its last pipeline was released")
	}
}

func TestClose(t *testing.T) {
	sys := New(rhi.Config{})
	rc, err := sys.CreateRenderContext(rhi.RenderContextDescriptor{Resolution: rhi.Extent{Width: 2, Height: 2}})
	if err != nil {
		t.Fatal(err)
	}
	if err := sys.Close(); err != nil {
		t.Fatal(err)
	}
	if err := sys.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := sys.CreateBuffer(rhi.BufferDescriptor{Kind: rhi.BufferKindIndex, Size: 4}, nil); !errors.Is(err, rhi.ErrReleased) {
		t.Errorf("CreateBuffer after Close error = %v, want ErrReleased", err)
	}
	if err := rc.Flush(); !errors.Is(err, rhi.ErrReleased) {
		t.Errorf("Flush after Close error = %v, want ErrReleased", err)
	}
}
