package main

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"

	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/software/shader"

	"github.com/gogpu/rhi"
)

// sceneShader is shared by every scene. The entry points match the
// built-in stages of the software backend, so the same program runs on
// every backend.
const sceneShader = `
struct Constants {
    mvp: mat4x4<f32>,
    color: vec4<f32>,
}

@group(0) @binding(0) var<uniform> consts: Constants;
@group(0) @binding(1) var tex: texture_2d<f32>;
@group(0) @binding(2) var smp: sampler;

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs_transform(@location(0) position: vec3<f32>, @location(1) uv: vec2<f32>) -> VertexOutput {
    var out: VertexOutput;
    out.position = consts.mvp * vec4<f32>(position, 1.0);
    out.uv = uv;
    return out;
}

@fragment
fn fs_color(in: VertexOutput) -> @location(0) vec4<f32> {
    return consts.color;
}

@fragment
fn fs_textured(in: VertexOutput) -> @location(0) vec4<f32> {
    return textureSample(tex, smp, in.uv) * consts.color;
}
`

// Binding slots of sceneShader.
const (
	slotConstants = 0
	slotTexture   = 1
	slotSampler   = 2
)

// constantsSize is the size of the Constants block: a matrix and a color.
const constantsSize = 64 + 16

// cubeIndices is the index count of the cube, two triangles per face.
const cubeIndices = 36

func cubeFormat() rhi.VertexFormat {
	var f rhi.VertexFormat
	f.AppendAttribute("position", rhi.DataFloat32, 3)
	f.AppendAttribute("texCoord", rhi.DataFloat32, 2)
	return f
}

// cubeMesh returns the 24 vertices and 36 indices of a unit cube with one
// texture square per face.
func cubeMesh() (vertices []float32, indices []uint16) {
	faces := [6][4][3]float32{
		{{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1}},
		{{1, -1, -1}, {-1, -1, -1}, {-1, 1, -1}, {1, 1, -1}},
		{{-1, -1, -1}, {-1, -1, 1}, {-1, 1, 1}, {-1, 1, -1}},
		{{1, -1, 1}, {1, -1, -1}, {1, 1, -1}, {1, 1, 1}},
		{{-1, 1, 1}, {1, 1, 1}, {1, 1, -1}, {-1, 1, -1}},
		{{-1, -1, -1}, {1, -1, -1}, {1, -1, 1}, {-1, -1, 1}},
	}
	uvs := [4][2]float32{{0, 1}, {1, 1}, {1, 0}, {0, 0}}
	for i, face := range faces {
		for j, p := range face {
			vertices = append(vertices, p[0], p[1], p[2], uvs[j][0], uvs[j][1])
		}
		base := uint16(4 * i)
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return vertices, indices
}

func float32Bytes(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math32.Float32bits(f))
	}
	return b
}

func uint16Bytes(v []uint16) []byte {
	b := make([]byte, 2*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint16(b[2*i:], x)
	}
	return b
}

// perspective is a right-handed projection onto the [0, 1] depth range.
func perspective(fovY, aspect, near, far float32) [16]float32 {
	f := 1 / math32.Tan(fovY/2)
	return [16]float32{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, far / (near - far), -1,
		0, 0, near * far / (near - far), 0,
	}
}

func rotationX(a float32) [16]float32 {
	c, s := math32.Cos(a), math32.Sin(a)
	return [16]float32{
		1, 0, 0, 0,
		0, c, s, 0,
		0, -s, c, 0,
		0, 0, 0, 1,
	}
}

func rotationY(a float32) [16]float32 {
	c, s := math32.Cos(a), math32.Sin(a)
	return [16]float32{
		c, 0, -s, 0,
		0, 1, 0, 0,
		s, 0, c, 0,
		0, 0, 0, 1,
	}
}

// cubeTransform places the cube at distance in front of the camera and x
// to the right, turned by angle around two axes.
func cubeTransform(aspect, x, distance, angle float32) [16]float32 {
	proj := perspective(math32.Pi/4, aspect, 0.1, 100)
	model := shader.Mat4Mul(shader.Mat4Translate(x, 0, -distance), shader.Mat4Mul(rotationY(angle), rotationX(angle*0.6)))
	return shader.Mat4Mul(proj, model)
}

// checkerboard returns an n by n RGBA8 image of 8 by 8 tiles.
func checkerboard(n int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, n, n))
	dark := color.RGBA{R: 60, G: 60, B: 70, A: 255}
	light := color.RGBA{R: 230, G: 230, B: 220, A: 255}
	for y := range n {
		for x := range n {
			if (x/8+y/8)%2 == 0 {
				img.SetRGBA(x, y, light)
			} else {
				img.SetRGBA(x, y, dark)
			}
		}
	}
	return img
}

// scene holds the objects every demo draws with.
type scene struct {
	rs       rhi.RenderSystem
	rc       rhi.RenderContext
	program  rhi.ShaderProgram
	textured rhi.ShaderProgram
	vertices rhi.Buffer
	indices  rhi.Buffer
	consts   rhi.Buffer
	checker  rhi.Texture
	sampler  rhi.Sampler
}

func newScene(rs rhi.RenderSystem, samples int) (*scene, error) {
	s := &scene{rs: rs}
	var err error
	if s.rc, err = rs.CreateRenderContext(rhi.RenderContextDescriptor{Label: "demo", Samples: samples}); err != nil {
		return nil, err
	}
	vs, err := rs.CreateShader(rhi.ShaderDescriptor{
		Label: "cube vertex", Stage: rhi.ShaderStageVertex, Source: sceneShader, EntryPoint: "vs_transform",
	})
	if err != nil {
		return nil, err
	}
	fsColor, err := rs.CreateShader(rhi.ShaderDescriptor{
		Label: "cube color", Stage: rhi.ShaderStageFragment, Source: sceneShader, EntryPoint: "fs_color",
	})
	if err != nil {
		return nil, err
	}
	fsTextured, err := rs.CreateShader(rhi.ShaderDescriptor{
		Label: "cube textured", Stage: rhi.ShaderStageFragment, Source: sceneShader, EntryPoint: "fs_textured",
	})
	if err != nil {
		return nil, err
	}
	format := cubeFormat()
	if s.program, err = rs.CreateShaderProgram(rhi.ShaderProgramDescriptor{
		Label: "cube color", VertexFormat: format, Vertex: vs, Fragment: fsColor,
	}); err != nil {
		return nil, err
	}
	if s.textured, err = rs.CreateShaderProgram(rhi.ShaderProgramDescriptor{
		Label: "cube textured", VertexFormat: format, Vertex: vs, Fragment: fsTextured,
	}); err != nil {
		return nil, err
	}

	vertices, indices := cubeMesh()
	if s.vertices, err = rs.CreateBuffer(rhi.BufferDescriptor{
		Label: "cube vertices", Kind: rhi.BufferKindVertex, Size: uint64(4 * len(vertices)), VertexFormat: format,
	}, float32Bytes(vertices)); err != nil {
		return nil, err
	}
	if s.indices, err = rs.CreateBuffer(rhi.BufferDescriptor{
		Label: "cube indices", Kind: rhi.BufferKindIndex, Size: uint64(2 * len(indices)), IndexFormat: gputypes.IndexFormatUint16,
	}, uint16Bytes(indices)); err != nil {
		return nil, err
	}
	if s.consts, err = rs.CreateBuffer(rhi.BufferDescriptor{
		Label: "cube constants", Kind: rhi.BufferKindConstant, Size: constantsSize,
	}, nil); err != nil {
		return nil, err
	}
	checker := checkerboard(64)
	if s.checker, err = rs.CreateTexture(rhi.TextureDescriptor{
		Label: "checker", Size: rhi.Extent{Width: 64, Height: 64}, Format: gputypes.TextureFormatRGBA8Unorm, MipLevels: 1,
		Usage: gputypes.TextureUsageTextureBinding,
	}, checker.Pix); err != nil {
		return nil, err
	}
	if s.sampler, err = rs.CreateSampler(gputypes.SamplerDescriptor{
		Label:        "linear",
		AddressModeU: gputypes.AddressModeRepeat,
		AddressModeV: gputypes.AddressModeRepeat,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.MipmapFilterModeLinear,
	}); err != nil {
		return nil, err
	}

	rc := s.rc
	if err := rc.SetConstantBuffer(s.consts, slotConstants, rhi.StageFlagVertex|rhi.StageFlagFragment); err != nil {
		return nil, err
	}
	if err := rc.SetSampler(s.sampler, slotSampler, rhi.StageFlagFragment); err != nil {
		return nil, err
	}
	if err := rc.SetTexture(s.checker, slotTexture, rhi.StageFlagFragment); err != nil {
		return nil, err
	}
	if err := rc.SetVertexBuffer(s.vertices); err != nil {
		return nil, err
	}
	if err := rc.SetIndexBuffer(s.indices); err != nil {
		return nil, err
	}
	return s, nil
}

// pipeline creates a depth-tested pipeline of prog for targets with the
// given sample count.
func (s *scene) pipeline(label string, prog rhi.ShaderProgram, samples int) (rhi.GraphicsPipeline, error) {
	p, err := s.rs.CreateGraphicsPipeline(rhi.GraphicsPipelineDescriptor{
		Label:      label,
		Program:    prog,
		Topology:   rhi.TopologyTriangleList,
		Rasterizer: rhi.RasterizerDescriptor{CullMode: gputypes.CullModeNone, Samples: samples},
		Depth:      rhi.DepthDescriptor{TestEnabled: true, WriteEnabled: true},
		Blend:      rhi.BlendDescriptor{Targets: []rhi.BlendTargetDescriptor{rhi.DefaultBlendTarget()}},
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", label, err)
	}
	return p, nil
}

// drawCube records an update of the constants and an indexed draw of the
// cube with p.
func (s *scene) drawCube(p rhi.GraphicsPipeline, mvp [16]float32, tint rhi.ColorRGBA) error {
	data := append(mvp[:], tint.R, tint.G, tint.B, tint.A)
	if err := s.rc.UpdateConstantBuffer(s.consts, float32Bytes(data)); err != nil {
		return err
	}
	if err := s.rc.SetGraphicsPipeline(p); err != nil {
		return err
	}
	return s.rc.DrawIndexed(cubeIndices, 0)
}

func (s *scene) aspect() float32 {
	r := s.rc.Resolution()
	return float32(r.Width) / float32(r.Height)
}
