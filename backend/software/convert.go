package software

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/software/raster"

	"github.com/gogpu/rhi"
)

func compareFunc(f gputypes.CompareFunction) raster.CompareFunc {
	switch f {
	case gputypes.CompareFunctionNever:
		return raster.CompareNever
	case gputypes.CompareFunctionLess:
		return raster.CompareLess
	case gputypes.CompareFunctionEqual:
		return raster.CompareEqual
	case gputypes.CompareFunctionLessEqual:
		return raster.CompareLessEqual
	case gputypes.CompareFunctionGreater:
		return raster.CompareGreater
	case gputypes.CompareFunctionNotEqual:
		return raster.CompareNotEqual
	case gputypes.CompareFunctionGreaterEqual:
		return raster.CompareGreaterEqual
	default:
		return raster.CompareAlways
	}
}

func cullMode(m gputypes.CullMode) raster.CullMode {
	switch m {
	case gputypes.CullModeFront:
		return raster.CullFront
	case gputypes.CullModeBack:
		return raster.CullBack
	default:
		return raster.CullNone
	}
}

func frontFace(f gputypes.FrontFace) raster.FrontFace {
	if f == gputypes.FrontFaceCW {
		return raster.FrontFaceCW
	}
	return raster.FrontFaceCCW
}

func stencilOp(op gputypes.StencilOperation) raster.StencilOp {
	switch op {
	case gputypes.StencilOperationZero:
		return raster.StencilOpZero
	case gputypes.StencilOperationReplace:
		return raster.StencilOpReplace
	case gputypes.StencilOperationInvert:
		return raster.StencilOpInvert
	case gputypes.StencilOperationIncrementClamp:
		return raster.StencilOpIncrementClamp
	case gputypes.StencilOperationDecrementClamp:
		return raster.StencilOpDecrementClamp
	case gputypes.StencilOperationIncrementWrap:
		return raster.StencilOpIncrementWrap
	case gputypes.StencilOperationDecrementWrap:
		return raster.StencilOpDecrementWrap
	default:
		return raster.StencilOpKeep
	}
}

func stencilState(d rhi.StencilDescriptor, face gputypes.StencilFaceState) raster.StencilState {
	cmp := face.Compare
	if cmp == gputypes.CompareFunctionUndefined {
		cmp = gputypes.CompareFunctionAlways
	}
	return raster.StencilState{
		Enabled:     d.TestEnabled,
		ReadMask:    uint8(d.ReadMask),
		WriteMask:   uint8(d.WriteMask),
		Compare:     compareFunc(cmp),
		FailOp:      stencilOp(face.FailOp),
		DepthFailOp: stencilOp(face.DepthFailOp),
		PassOp:      stencilOp(face.PassOp),
		Reference:   uint8(d.Reference),
	}
}

func blendFactor(f gputypes.BlendFactor) raster.BlendFactor {
	switch f {
	case gputypes.BlendFactorZero:
		return raster.BlendFactorZero
	case gputypes.BlendFactorSrc:
		return raster.BlendFactorSrc
	case gputypes.BlendFactorOneMinusSrc:
		return raster.BlendFactorOneMinusSrc
	case gputypes.BlendFactorSrcAlpha:
		return raster.BlendFactorSrcAlpha
	case gputypes.BlendFactorOneMinusSrcAlpha:
		return raster.BlendFactorOneMinusSrcAlpha
	case gputypes.BlendFactorDst:
		return raster.BlendFactorDst
	case gputypes.BlendFactorOneMinusDst:
		return raster.BlendFactorOneMinusDst
	case gputypes.BlendFactorDstAlpha:
		return raster.BlendFactorDstAlpha
	case gputypes.BlendFactorOneMinusDstAlpha:
		return raster.BlendFactorOneMinusDstAlpha
	case gputypes.BlendFactorSrcAlphaSaturated:
		return raster.BlendFactorSrcAlphaSaturated
	case gputypes.BlendFactorConstant:
		return raster.BlendFactorConstant
	case gputypes.BlendFactorOneMinusConstant:
		return raster.BlendFactorOneMinusConstant
	default:
		return raster.BlendFactorOne
	}
}

func blendOp(op gputypes.BlendOperation) raster.BlendOperation {
	switch op {
	case gputypes.BlendOperationSubtract:
		return raster.BlendOpSubtract
	case gputypes.BlendOperationReverseSubtract:
		return raster.BlendOpReverseSubtract
	case gputypes.BlendOperationMin:
		return raster.BlendOpMin
	case gputypes.BlendOperationMax:
		return raster.BlendOpMax
	default:
		return raster.BlendOpAdd
	}
}

func blendState(t rhi.BlendTargetDescriptor, constant rhi.ColorRGBA) raster.BlendState {
	return raster.BlendState{
		Enabled:  t.BlendEnabled,
		SrcColor: blendFactor(t.SrcColor),
		DstColor: blendFactor(t.DstColor),
		ColorOp:  blendOp(t.ColorOp),
		SrcAlpha: blendFactor(t.SrcAlpha),
		DstAlpha: blendFactor(t.DstAlpha),
		AlphaOp:  blendOp(t.AlphaOp),
		Constant: [4]float32{constant.R, constant.G, constant.B, constant.A},
	}
}
