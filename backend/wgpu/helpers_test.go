package wgpu

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/gogpu/wgpu/hal/software"

	"github.com/gogpu/rhi"
)

const colorShader = `
struct Constants {
    color: vec4<f32>,
}

@group(0) @binding(0) var<uniform> consts: Constants;

@vertex
fn vs_main(@location(0) position: vec3<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(position, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return consts.color;
}
`

const texturedShader = `
@group(0) @binding(0) var tex: texture_2d<f32>;
@group(0) @binding(1) var smp: sampler;

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(@location(0) position: vec3<f32>) -> VertexOutput {
    var out: VertexOutput;
    out.position = vec4<f32>(position, 1.0);
    out.uv = position.xy;
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return textureSample(tex, smp, in.uv);
}
`

var surfaceSize = rhi.Extent{Width: 64, Height: 64}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testConfig(t *testing.T) rhi.Config {
	return rhi.Config{Label: t.Name(), SurfaceSize: surfaceSize}
}

// openDevice opens the first adapter of a HAL backend.
func openDevice(t *testing.T, backend hal.Backend) hal.OpenDevice {
	t.Helper()
	instance, err := backend.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		t.Fatal("no adapters")
	}
	od, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return od
}

// newNoopSystem returns a system on the noop HAL, which records nothing
// and completes every submission at once.
func newNoopSystem(t *testing.T, opts ...Option) *System {
	t.Helper()
	od := openDevice(t, noop.API{})
	return newSystem(t, od.Device, od.Queue, opts...)
}

// newSoftwareSystem returns a system on the CPU HAL, which executes copies,
// clears and resolves.
func newSoftwareSystem(t *testing.T, opts ...Option) *System {
	t.Helper()
	od := openDevice(t, software.API{})
	return newSystem(t, od.Device, od.Queue, opts...)
}

func newSystem(t *testing.T, dev hal.Device, queue hal.Queue, opts ...Option) *System {
	t.Helper()
	s, err := NewFromDevice(dev, queue, testConfig(t), opts...)
	if err != nil {
		t.Fatalf("NewFromDevice: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newSpySystem returns a noop system whose device records passes and
// destroyed objects.
func newSpySystem(t *testing.T, opts ...Option) (*System, *spyDevice) {
	t.Helper()
	od := openDevice(t, noop.API{})
	spy := &spyDevice{Device: od.Device}
	return newSystem(t, spy, od.Queue, opts...), spy
}

func newContext(t *testing.T, s *System, samples int) *renderContext {
	t.Helper()
	rc, err := s.CreateRenderContext(rhi.RenderContextDescriptor{Label: "test", Samples: samples})
	if err != nil {
		t.Fatalf("CreateRenderContext: %v", err)
	}
	return rc.(*renderContext)
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

// fixture is a system with a render context, a program of colorShader and
// its constant buffer bound at slot 0.
type fixture struct {
	t      *testing.T
	sys    *System
	rc     *renderContext
	prog   rhi.ShaderProgram
	consts rhi.Buffer
}

func newFixture(t *testing.T, s *System) *fixture {
	t.Helper()
	f := &fixture{t: t, sys: s, rc: newContext(t, s, 1)}
	f.prog = f.program(colorShader)
	f.consts = f.buffer(rhi.BufferDescriptor{Label: "constants", Kind: rhi.BufferKindConstant, Size: 16},
		floatBytes(1, 0, 0, 1))
	if err := f.rc.SetConstantBuffer(f.consts, 0, rhi.StageFlagFragment); err != nil {
		t.Fatalf("SetConstantBuffer: %v", err)
	}
	return f
}

func (f *fixture) shader(stage rhi.ShaderStage, source, entry string) rhi.Shader {
	f.t.Helper()
	sh, err := f.sys.CreateShader(rhi.ShaderDescriptor{Label: entry, Stage: stage, Source: source, EntryPoint: entry})
	if err != nil {
		f.t.Fatalf("CreateShader(%s): %v", entry, err)
	}
	return sh
}

func (f *fixture) program(source string) rhi.ShaderProgram {
	f.t.Helper()
	p, err := f.sys.CreateShaderProgram(rhi.ShaderProgramDescriptor{
		Label:        "program",
		VertexFormat: positionFormat(),
		Vertex:       f.shader(rhi.ShaderStageVertex, source, "vs_main"),
		Fragment:     f.shader(rhi.ShaderStageFragment, source, "fs_main"),
	})
	if err != nil {
		f.t.Fatalf("CreateShaderProgram: %v", err)
	}
	return p
}

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

// triangles returns a vertex buffer of n triangles covering the surface.
func (f *fixture) triangles(n int) rhi.Buffer {
	f.t.Helper()
	var v []float32
	for range n {
		v = append(v, -1, -1, 0.5, 3, -1, 0.5, -1, 3, 0.5)
	}
	return f.buffer(rhi.BufferDescriptor{
		Label:        "vertices",
		Kind:         rhi.BufferKindVertex,
		Size:         uint64(4 * len(v)),
		VertexFormat: positionFormat(),
	}, floatBytes(v...))
}

func (f *fixture) bind(p rhi.GraphicsPipeline, vb rhi.Buffer) {
	f.t.Helper()
	if err := f.rc.SetGraphicsPipeline(p); err != nil {
		f.t.Fatalf("SetGraphicsPipeline: %v", err)
	}
	if err := f.rc.SetVertexBuffer(vb); err != nil {
		f.t.Fatalf("SetVertexBuffer: %v", err)
	}
}

// spyDevice wraps a HAL device and records what the system does with it.
type spyDevice struct {
	hal.Device

	mu               sync.Mutex
	passes           []*spyPass
	copies           []hal.BufferCopy
	barriers         []hal.BufferBarrier
	pipelines        int
	bindGroups       int
	destroyedBuffers int
}

func (d *spyDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &spyEncoder{CommandEncoder: enc, dev: d}, nil
}

func (d *spyDevice) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	d.mu.Lock()
	d.pipelines++
	d.mu.Unlock()
	return d.Device.CreateRenderPipeline(desc)
}

func (d *spyDevice) CreateBindGroup(desc *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	d.mu.Lock()
	d.bindGroups++
	d.mu.Unlock()
	return d.Device.CreateBindGroup(desc)
}

func (d *spyDevice) DestroyBuffer(b hal.Buffer) {
	d.mu.Lock()
	d.destroyedBuffers++
	d.mu.Unlock()
	d.Device.DestroyBuffer(b)
}

func (d *spyDevice) destroyed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyedBuffers
}

// lastPass returns the most recently begun render pass.
func (d *spyDevice) lastPass(t *testing.T) *spyPass {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.passes) == 0 {
		t.Fatal("no render pass was begun")
	}
	return d.passes[len(d.passes)-1]
}

type spyEncoder struct {
	hal.CommandEncoder
	dev *spyDevice
}

func (e *spyEncoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	p := &spyPass{RenderPassEncoder: e.CommandEncoder.BeginRenderPass(desc), desc: desc}
	e.dev.mu.Lock()
	e.dev.passes = append(e.dev.passes, p)
	e.dev.mu.Unlock()
	return p
}

func (e *spyEncoder) CopyBufferToBuffer(src, dst hal.Buffer, regions []hal.BufferCopy) {
	e.dev.mu.Lock()
	e.dev.copies = append(e.dev.copies, regions...)
	e.dev.mu.Unlock()
	e.CommandEncoder.CopyBufferToBuffer(src, dst, regions)
}

func (e *spyEncoder) TransitionBuffers(barriers []hal.BufferBarrier) {
	e.dev.mu.Lock()
	e.dev.barriers = append(e.dev.barriers, barriers...)
	e.dev.mu.Unlock()
	e.CommandEncoder.TransitionBuffers(barriers)
}

type drawCall struct {
	count, instances, first uint32
	indexed                 bool
}

type spyPass struct {
	hal.RenderPassEncoder
	desc *hal.RenderPassDescriptor

	viewport [6]float32
	scissor  [4]uint32
	draws    []drawCall
	ended    bool
}

func (p *spyPass) SetViewport(x, y, w, h, minDepth, maxDepth float32) {
	p.viewport = [6]float32{x, y, w, h, minDepth, maxDepth}
	p.RenderPassEncoder.SetViewport(x, y, w, h, minDepth, maxDepth)
}

func (p *spyPass) SetScissorRect(x, y, w, h uint32) {
	p.scissor = [4]uint32{x, y, w, h}
	p.RenderPassEncoder.SetScissorRect(x, y, w, h)
}

func (p *spyPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.draws = append(p.draws, drawCall{count: vertexCount, instances: instanceCount, first: firstVertex})
	p.RenderPassEncoder.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (p *spyPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.draws = append(p.draws, drawCall{count: indexCount, instances: instanceCount, first: firstIndex, indexed: true})
	p.RenderPassEncoder.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

func (p *spyPass) End() {
	p.ended = true
	p.RenderPassEncoder.End()
}
