package rhi

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// ValidateBufferDescriptor checks a buffer descriptor against caps.
func ValidateBufferDescriptor(desc BufferDescriptor, caps RenderingCaps) error {
	if desc.Size == 0 {
		return fmt.Errorf("buffer %q: zero size: %w", desc.Label, ErrCreation)
	}
	switch desc.Kind {
	case BufferKindVertex:
		if stride := desc.VertexFormat.Stride(); stride > 0 && desc.Size%uint64(stride) != 0 {
			return fmt.Errorf("buffer %q: size %d is not a multiple of vertex stride %d: %w",
				desc.Label, desc.Size, stride, ErrCreation)
		}
		if _, err := desc.VertexFormat.Layout(); err != nil {
			return fmt.Errorf("buffer %q: %w", desc.Label, err)
		}
	case BufferKindIndex:
		switch desc.IndexFormat {
		case gputypes.IndexFormatUndefined, gputypes.IndexFormatUint16, gputypes.IndexFormatUint32:
		default:
			return fmt.Errorf("buffer %q: index format %d: %w", desc.Label, desc.IndexFormat, ErrCreation)
		}
	case BufferKindConstant:
		if !caps.ConstantBuffers {
			return fmt.Errorf("buffer %q: constant buffers: %w", desc.Label, ErrCapability)
		}
		if caps.MaxConstantBufferSize > 0 && desc.Size > caps.MaxConstantBufferSize {
			return fmt.Errorf("buffer %q: constant buffer size %d exceeds %d: %w",
				desc.Label, desc.Size, caps.MaxConstantBufferSize, ErrCapability)
		}
	default:
		return fmt.Errorf("buffer %q: kind %s: %w", desc.Label, desc.Kind, ErrCreation)
	}
	return nil
}

// ValidateTextureDescriptor checks a texture descriptor against caps and
// returns the effective MIP level count.
func ValidateTextureDescriptor(desc TextureDescriptor, caps RenderingCaps) (int, error) {
	if desc.Size.IsZero() {
		return 0, fmt.Errorf("texture %q: size %s: %w", desc.Label, desc.Size, ErrCreation)
	}
	if caps.MaxTextureSize > 0 && (desc.Size.Width > caps.MaxTextureSize || desc.Size.Height > caps.MaxTextureSize) {
		return 0, fmt.Errorf("texture %q: size %s exceeds %d: %w", desc.Label, desc.Size, caps.MaxTextureSize, ErrCapability)
	}
	if desc.Format != gputypes.TextureFormatRGBA8Unorm {
		return 0, fmt.Errorf("texture %q: format %d: %w", desc.Label, desc.Format, ErrCapability)
	}
	levels := desc.MipLevels
	full := desc.Size.MaxMipLevels()
	if levels == 0 {
		levels = full
	}
	if levels < 0 || levels > full {
		return 0, fmt.Errorf("texture %q: %d MIP levels for size %s: %w", desc.Label, desc.MipLevels, desc.Size, ErrCreation)
	}
	return levels, nil
}

// ValidateShaderDescriptor checks that a shader descriptor is complete.
func ValidateShaderDescriptor(desc ShaderDescriptor, caps RenderingCaps) error {
	if desc.Source == "" && len(desc.SPIRV) == 0 {
		return fmt.Errorf("shader %q: empty source: %w", desc.Label, ErrCreation)
	}
	if desc.EntryPoint == "" {
		return fmt.Errorf("shader %q: missing entry point: %w", desc.Label, ErrCreation)
	}
	if err := checkStage(desc.Stage, caps); err != nil {
		return fmt.Errorf("shader %q: %w", desc.Label, err)
	}
	return nil
}

// ValidateShaderProgram checks stage assignment and stage capabilities.
func ValidateShaderProgram(desc ShaderProgramDescriptor, caps RenderingCaps) error {
	if desc.Vertex == nil {
		return fmt.Errorf("shader program %q: missing vertex shader: %w", desc.Label, ErrCreation)
	}
	slots := []struct {
		shader Shader
		stage  ShaderStage
	}{
		{desc.Vertex, ShaderStageVertex},
		{desc.TessControl, ShaderStageTessControl},
		{desc.TessEvaluation, ShaderStageTessEvaluation},
		{desc.Geometry, ShaderStageGeometry},
		{desc.Fragment, ShaderStageFragment},
	}
	for _, s := range slots {
		if s.shader == nil {
			continue
		}
		if s.shader.Stage() != s.stage {
			return fmt.Errorf("shader program %q: %s shader in %s slot: %w",
				desc.Label, s.shader.Stage(), s.stage, ErrCreation)
		}
		if err := checkStage(s.stage, caps); err != nil {
			return fmt.Errorf("shader program %q: %w", desc.Label, err)
		}
	}
	if (desc.TessControl == nil) != (desc.TessEvaluation == nil) {
		return fmt.Errorf("shader program %q: tessellation needs both control and evaluation stages: %w",
			desc.Label, ErrCreation)
	}
	if _, err := desc.VertexFormat.Layout(); err != nil {
		return fmt.Errorf("shader program %q: %w", desc.Label, err)
	}
	return nil
}

func checkStage(stage ShaderStage, caps RenderingCaps) error {
	switch stage {
	case ShaderStageVertex, ShaderStageFragment:
		return nil
	case ShaderStageTessControl, ShaderStageTessEvaluation:
		if !caps.TessellationShaders {
			return fmt.Errorf("%s stage: %w", stage, ErrCapability)
		}
		return nil
	case ShaderStageGeometry:
		if !caps.GeometryShaders {
			return fmt.Errorf("%s stage: %w", stage, ErrCapability)
		}
		return nil
	default:
		return fmt.Errorf("%s: %w", stage, ErrCreation)
	}
}

// ValidateGraphicsPipeline checks a pipeline descriptor against caps. It
// runs before any backend object is created, so a failing descriptor
// never produces a pipeline.
func ValidateGraphicsPipeline(desc GraphicsPipelineDescriptor, caps RenderingCaps) error {
	if desc.Program == nil {
		return fmt.Errorf("pipeline %q: missing shader program: %w", desc.Label, ErrCreation)
	}
	hasTess := desc.Program.Shader(ShaderStageTessControl) != nil || desc.Program.Shader(ShaderStageTessEvaluation) != nil
	if desc.Topology.IsPatches() || hasTess {
		if !caps.TessellationShaders {
			return fmt.Errorf("pipeline %q: tessellation (%s): %w", desc.Label, desc.Topology, ErrCapability)
		}
		if caps.MaxPatchVertices > 0 && desc.Topology.ControlPoints() > caps.MaxPatchVertices {
			return fmt.Errorf("pipeline %q: %d patch control points exceed %d: %w",
				desc.Label, desc.Topology.ControlPoints(), caps.MaxPatchVertices, ErrCapability)
		}
		if hasTess != desc.Topology.IsPatches() {
			return fmt.Errorf("pipeline %q: tessellation stages require a patch topology: %w", desc.Label, ErrCreation)
		}
	}
	if desc.Program.Shader(ShaderStageGeometry) != nil && !caps.GeometryShaders {
		return fmt.Errorf("pipeline %q: geometry stage: %w", desc.Label, ErrCapability)
	}
	if n := desc.Rasterizer.SampleCount(); !caps.SupportsSamples(n) {
		return fmt.Errorf("pipeline %q: %d samples: %w", desc.Label, n, ErrCapability)
	}
	if desc.Rasterizer.FillMode == FillWireframe && !caps.WireframeFill {
		return fmt.Errorf("pipeline %q: wireframe fill: %w", desc.Label, ErrCapability)
	}
	if caps.MaxColorAttachments > 0 && len(desc.Blend.Targets) > caps.MaxColorAttachments {
		return fmt.Errorf("pipeline %q: %d blend targets exceed %d: %w",
			desc.Label, len(desc.Blend.Targets), caps.MaxColorAttachments, ErrCapability)
	}
	if desc.Program.Shader(ShaderStageFragment) == nil {
		for _, t := range desc.Blend.Targets {
			if t.ColorMask != gputypes.ColorWriteMaskNone {
				return fmt.Errorf("pipeline %q: color writes without a fragment shader: %w", desc.Label, ErrCreation)
			}
		}
	}
	return nil
}

// ValidateQueryDescriptor checks a query descriptor against caps.
func ValidateQueryDescriptor(desc QueryDescriptor, caps RenderingCaps) error {
	if !caps.SupportsQuery(desc.Type) {
		return fmt.Errorf("query %q: %s: %w", desc.Label, desc.Type, ErrCapability)
	}
	if desc.RenderCondition {
		if !caps.RenderCondition {
			return fmt.Errorf("query %q: render condition: %w", desc.Label, ErrCapability)
		}
		if desc.Type.Kind() != QueryKindOcclusion {
			return fmt.Errorf("query %q: render condition on %s query: %w", desc.Label, desc.Type, ErrCreation)
		}
	}
	return nil
}

// ValidateRenderTargetSamples checks a render target sample count.
func ValidateRenderTargetSamples(samples int, caps RenderingCaps) error {
	if !caps.SupportsSamples(samples) {
		return fmt.Errorf("render target: %d samples: %w", samples, ErrCapability)
	}
	return nil
}
