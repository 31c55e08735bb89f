package rhi

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

type fakeShader struct {
	stage ShaderStage
}

func (s fakeShader) Label() string      { return "fake " + s.stage.String() }
func (s fakeShader) Stage() ShaderStage { return s.stage }
func (s fakeShader) EntryPoint() string { return "main" }

type fakeProgram struct {
	desc ShaderProgramDescriptor
}

func (p fakeProgram) Label() string              { return p.desc.Label }
func (p fakeProgram) VertexFormat() VertexFormat { return p.desc.VertexFormat }

func (p fakeProgram) Shader(stage ShaderStage) Shader {
	for _, s := range p.desc.Stages() {
		if s.Stage() == stage {
			return s
		}
	}
	return nil
}

// baseCaps supports the core feature set only.
var baseCaps = RenderingCaps{
	ConstantBuffers:       true,
	Multisampling:         true,
	MaxSamples:            4,
	OcclusionQueries:      true,
	MaxColorAttachments:   4,
	MaxTextureSize:        2048,
	MaxConstantBufferSize: 256,
}

func fullCaps() RenderingCaps {
	c := baseCaps
	c.TessellationShaders = true
	c.GeometryShaders = true
	c.WireframeFill = true
	c.RenderCondition = true
	c.MaxPatchVertices = 16
	return c
}

func TestValidateBufferDescriptor(t *testing.T) {
	var f VertexFormat
	f.AppendAttribute("position", DataFloat32, 3)

	tests := []struct {
		name string
		desc BufferDescriptor
		want error
	}{
		{"vertex", BufferDescriptor{Kind: BufferKindVertex, Size: 24, VertexFormat: f}, nil},
		{"zero size", BufferDescriptor{Kind: BufferKindVertex}, ErrCreation},
		{"partial vertex", BufferDescriptor{Kind: BufferKindVertex, Size: 20, VertexFormat: f}, ErrCreation},
		{"index 16", BufferDescriptor{Kind: BufferKindIndex, Size: 6, IndexFormat: gputypes.IndexFormatUint16}, nil},
		{"constant", BufferDescriptor{Kind: BufferKindConstant, Size: 256}, nil},
		{"constant too large", BufferDescriptor{Kind: BufferKindConstant, Size: 512}, ErrCapability},
		{"unknown kind", BufferDescriptor{Kind: BufferKind(9), Size: 4}, ErrCreation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBufferDescriptor(tt.desc, baseCaps)
			if !errors.Is(err, tt.want) || (tt.want == nil && err != nil) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	noConstants := baseCaps
	noConstants.ConstantBuffers = false
	if err := ValidateBufferDescriptor(BufferDescriptor{Kind: BufferKindConstant, Size: 16}, noConstants); !errors.Is(err, ErrCapability) {
		t.Errorf("constant buffer without support: %v", err)
	}
}

func TestValidateTextureDescriptor(t *testing.T) {
	rgba := gputypes.TextureFormatRGBA8Unorm
	levels, err := ValidateTextureDescriptor(TextureDescriptor{Size: Extent{Width: 64, Height: 16}, Format: rgba}, baseCaps)
	if err != nil || levels != 7 {
		t.Errorf("full chain = %d, %v; want 7", levels, err)
	}
	levels, err = ValidateTextureDescriptor(TextureDescriptor{Size: Extent{Width: 64, Height: 16}, Format: rgba, MipLevels: 3}, baseCaps)
	if err != nil || levels != 3 {
		t.Errorf("explicit chain = %d, %v; want 3", levels, err)
	}

	tests := []struct {
		name string
		desc TextureDescriptor
		want error
	}{
		{"zero size", TextureDescriptor{Format: rgba}, ErrCreation},
		{"too large", TextureDescriptor{Size: Extent{Width: 4096, Height: 1}, Format: rgba}, ErrCapability},
		{"format", TextureDescriptor{Size: Extent{Width: 4, Height: 4}, Format: gputypes.TextureFormatBGRA8Unorm}, ErrCapability},
		{"too many levels", TextureDescriptor{Size: Extent{Width: 4, Height: 4}, Format: rgba, MipLevels: 4}, ErrCreation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateTextureDescriptor(tt.desc, baseCaps); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateShaderDescriptor(t *testing.T) {
	ok := ShaderDescriptor{Stage: ShaderStageVertex, Source: "src", EntryPoint: "main"}
	if err := ValidateShaderDescriptor(ok, baseCaps); err != nil {
		t.Errorf("valid shader: %v", err)
	}
	noSource := ok
	noSource.Source = ""
	if err := ValidateShaderDescriptor(noSource, baseCaps); !errors.Is(err, ErrCreation) {
		t.Errorf("empty source: %v", err)
	}
	noEntry := ok
	noEntry.EntryPoint = ""
	if err := ValidateShaderDescriptor(noEntry, baseCaps); !errors.Is(err, ErrCreation) {
		t.Errorf("empty entry point: %v", err)
	}
	geom := ok
	geom.Stage = ShaderStageGeometry
	if err := ValidateShaderDescriptor(geom, baseCaps); !errors.Is(err, ErrCapability) {
		t.Errorf("geometry without support: %v", err)
	}
	if err := ValidateShaderDescriptor(geom, fullCaps()); err != nil {
		t.Errorf("geometry with support: %v", err)
	}
}

func TestValidateShaderProgram(t *testing.T) {
	vs := fakeShader{ShaderStageVertex}
	fs := fakeShader{ShaderStageFragment}
	tc := fakeShader{ShaderStageTessControl}
	te := fakeShader{ShaderStageTessEvaluation}

	tests := []struct {
		name string
		desc ShaderProgramDescriptor
		caps RenderingCaps
		want error
	}{
		{"vertex fragment", ShaderProgramDescriptor{Vertex: vs, Fragment: fs}, baseCaps, nil},
		{"vertex only", ShaderProgramDescriptor{Vertex: vs}, baseCaps, nil},
		{"missing vertex", ShaderProgramDescriptor{Fragment: fs}, baseCaps, ErrCreation},
		{"wrong slot", ShaderProgramDescriptor{Vertex: fs}, baseCaps, ErrCreation},
		{"tessellation unsupported", ShaderProgramDescriptor{Vertex: vs, TessControl: tc, TessEvaluation: te}, baseCaps, ErrCapability},
		{"tessellation", ShaderProgramDescriptor{Vertex: vs, TessControl: tc, TessEvaluation: te}, fullCaps(), nil},
		{"half tessellation", ShaderProgramDescriptor{Vertex: vs, TessControl: tc}, fullCaps(), ErrCreation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateShaderProgram(tt.desc, tt.caps)
			if !errors.Is(err, tt.want) || (tt.want == nil && err != nil) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateGraphicsPipeline(t *testing.T) {
	vs := fakeShader{ShaderStageVertex}
	fs := fakeShader{ShaderStageFragment}
	basic := fakeProgram{ShaderProgramDescriptor{Label: "basic", Vertex: vs, Fragment: fs}}
	depthOnly := fakeProgram{ShaderProgramDescriptor{Label: "depth only", Vertex: vs}}
	tess := fakeProgram{ShaderProgramDescriptor{
		Label: "tess", Vertex: vs, Fragment: fs,
		TessControl: fakeShader{ShaderStageTessControl}, TessEvaluation: fakeShader{ShaderStageTessEvaluation},
	}}

	tests := []struct {
		name string
		desc GraphicsPipelineDescriptor
		caps RenderingCaps
		want error
	}{
		{"basic", GraphicsPipelineDescriptor{Program: basic}, baseCaps, nil},
		{"no program", GraphicsPipelineDescriptor{}, baseCaps, ErrCreation},
		{"samples 4", GraphicsPipelineDescriptor{Program: basic, Rasterizer: RasterizerDescriptor{Samples: 4}}, baseCaps, nil},
		{"samples 8", GraphicsPipelineDescriptor{Program: basic, Rasterizer: RasterizerDescriptor{Samples: 8}}, baseCaps, ErrCapability},
		{"samples 3", GraphicsPipelineDescriptor{Program: basic, Rasterizer: RasterizerDescriptor{Samples: 3}}, baseCaps, ErrCapability},
		{"wireframe", GraphicsPipelineDescriptor{Program: basic, Rasterizer: RasterizerDescriptor{FillMode: FillWireframe}}, baseCaps, ErrCapability},
		{"patches unsupported", GraphicsPipelineDescriptor{Program: tess, Topology: PatchTopology(3)}, baseCaps, ErrCapability},
		{"patches", GraphicsPipelineDescriptor{Program: tess, Topology: PatchTopology(3)}, fullCaps(), nil},
		{"patches too large", GraphicsPipelineDescriptor{Program: tess, Topology: PatchTopology(32)}, fullCaps(), ErrCapability},
		{"tess without patches", GraphicsPipelineDescriptor{Program: tess}, fullCaps(), ErrCreation},
		{"too many targets", GraphicsPipelineDescriptor{Program: basic, Blend: BlendDescriptor{
			Targets: make([]BlendTargetDescriptor, 5),
		}}, baseCaps, ErrCapability},
		{"depth only writes color", GraphicsPipelineDescriptor{Program: depthOnly, Blend: BlendDescriptor{
			Targets: []BlendTargetDescriptor{DefaultBlendTarget()},
		}}, baseCaps, ErrCreation},
		{"depth only masked", GraphicsPipelineDescriptor{Program: depthOnly, Blend: BlendDescriptor{
			Targets: []BlendTargetDescriptor{{}},
		}}, baseCaps, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGraphicsPipeline(tt.desc, tt.caps)
			if !errors.Is(err, tt.want) || (tt.want == nil && err != nil) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateQueryDescriptor(t *testing.T) {
	tests := []struct {
		name string
		desc QueryDescriptor
		caps RenderingCaps
		want error
	}{
		{"occlusion", QueryDescriptor{Type: QuerySamplesPassed}, baseCaps, nil},
		{"timer unsupported", QueryDescriptor{Type: QueryTimeElapsed}, baseCaps, ErrCapability},
		{"condition unsupported", QueryDescriptor{Type: QueryAnySamplesPassed, RenderCondition: true}, baseCaps, ErrCapability},
		{"condition", QueryDescriptor{Type: QueryAnySamplesPassed, RenderCondition: true}, fullCaps(), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQueryDescriptor(tt.desc, tt.caps)
			if !errors.Is(err, tt.want) || (tt.want == nil && err != nil) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	caps := fullCaps()
	caps.PrimitiveQueries = true
	err := ValidateQueryDescriptor(QueryDescriptor{Type: QueryPrimitivesGenerated, RenderCondition: true}, caps)
	if !errors.Is(err, ErrCreation) {
		t.Errorf("condition on primitives query: %v", err)
	}
}

func TestValidateRenderTargetSamples(t *testing.T) {
	for _, n := range []int{1, 2, 4} {
		if err := ValidateRenderTargetSamples(n, baseCaps); err != nil {
			t.Errorf("%d samples: %v", n, err)
		}
	}
	for _, n := range []int{0, 3, 8} {
		if err := ValidateRenderTargetSamples(n, baseCaps); !errors.Is(err, ErrCapability) {
			t.Errorf("%d samples: %v, want ErrCapability", n, err)
		}
	}
}
