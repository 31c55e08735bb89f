package software

import (
	"context"
	"encoding/binary"
	"image"
	"time"

	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/software/raster"
	"golang.org/x/image/draw"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/parallel"
)

// executor is the device-side state of one render context. active follows
// the recorded Begin and End commands as they execute, so it trails the
// context's query tracker.
type executor struct {
	active [rhi.NumQueryKinds]*query
}

// forget stops q from counting.
func (x *executor) forget(q *query) {
	for k, a := range x.active {
		if a == q {
			x.active[k] = nil
		}
	}
}

func (x *executor) beginQuery(q *query) {
	q.count = 0
	q.ended.Store(false)
	if q.rec.Type == rhi.QueryTimeElapsed {
		q.started = time.Now().UnixNano()
	}
	x.active[q.rec.Type.Kind()] = q
}

func (x *executor) endQuery(q *query) {
	v := q.count
	switch q.rec.Type {
	case rhi.QueryAnySamplesPassed:
		v = min(v, 1)
	case rhi.QueryTimeElapsed:
		v = uint64(max(time.Now().UnixNano()-q.started, 0))
	}
	q.result.Store(v)
	q.ended.Store(true)
	x.active[q.rec.Type.Kind()] = nil
}

type drawCall struct {
	st        drawState
	cond      *query
	condMode  rhi.RenderConditionMode
	indexed   bool
	count     int
	first     int
	instances int
}

// pass holds the per-draw state of the fragment pipeline.
type pass struct {
	fb       *framebuffer
	p        *pipeline
	bindings *Bindings

	depthTest  bool
	depthWrite bool
	depthCmp   raster.CompareFunc
	front      raster.StencilState
	back       raster.StencilState
	blend      []raster.BlendState
	masks      []gputypes.ColorWriteMask

	viewport rhi.Viewport
	flipY    bool
	bounds   raster.Viewport
	samples  uint64
}

func (x *executor) draw(d *drawCall) {
	st := &d.st
	if d.cond != nil && !d.condMode.Passes(d.cond.result.Load(), d.cond.ended.Load()) {
		return
	}
	p := st.pipeline
	if q := x.active[rhi.QueryKindPrimitives]; q != nil {
		q.count += uint64(p.desc.Topology.Primitives(d.count) * d.instances)
	}

	ps := newPass(st)
	for inst := range d.instances {
		ps.bindings.Instance = inst
		verts := x.shadeVertices(d, ps.bindings)
		ps.assemble(p.desc.Topology, verts)
	}
	if q := x.active[rhi.QueryKindOcclusion]; q != nil {
		q.count += ps.samples
	}
}

func newPass(st *drawState) *pass {
	p := st.pipeline
	b := &Bindings{}
	for i := range MaxBindingSlots {
		if st.constants[i] != nil {
			b.constants[i] = st.constants[i].data
		}
		if st.textures[i] != nil {
			b.textures[i] = st.textures[i].levels[0]
		}
		if st.samplers[i] != nil {
			b.samplers[i] = &st.samplers[i].desc
		}
	}
	ps := &pass{
		fb:         st.fb,
		p:          p,
		bindings:   b,
		depthTest:  p.desc.Depth.TestEnabled && st.fb.depth != nil,
		depthWrite: p.desc.Depth.WriteEnabled,
		depthCmp:   compareFunc(p.desc.Depth.CompareFunc()),
		front:      stencilState(p.desc.Stencil, p.desc.Stencil.Front),
		back:       stencilState(p.desc.Stencil, p.desc.Stencil.Back),
		viewport:   st.viewport,
		flipY:      st.flipY,
		bounds:     drawBounds(st),
	}
	if st.fb.stencil == nil {
		ps.front.Enabled, ps.back.Enabled = false, false
	}
	for i := range st.fb.colors {
		t := p.blendTarget(i)
		ps.blend = append(ps.blend, blendState(t, p.desc.Blend.BlendFactor))
		ps.masks = append(ps.masks, t.ColorMask)
	}
	return ps
}

// drawBounds intersects the viewport rectangle, the target and, when the
// pipeline enables it, the scissor rectangle.
func drawBounds(st *drawState) raster.Viewport {
	vp := st.viewport
	x0 := max(int(math32.Floor(vp.X)), 0)
	y0 := max(int(math32.Floor(vp.Y)), 0)
	x1 := min(int(math32.Ceil(vp.X+vp.Width)), st.fb.size.Width)
	y1 := min(int(math32.Ceil(vp.Y+vp.Height)), st.fb.size.Height)
	if st.pipeline.desc.Rasterizer.ScissorTest {
		s := st.scissor
		x0, y0 = max(x0, s.X), max(y0, s.Y)
		x1, y1 = min(x1, s.X+s.Width), min(y1, s.Y+s.Height)
	}
	return raster.Viewport{X: x0, Y: y0, Width: max(x1-x0, 0), Height: max(y1-y0, 0)}
}

// shadeVertices runs the vertex stage for every vertex of the draw in
// submission order.
func (x *executor) shadeVertices(d *drawCall, b *Bindings) []raster.ClipSpaceVertex {
	st := &d.st
	prog := st.pipeline.program
	format := prog.desc.VertexFormat
	out := make([]raster.ClipSpaceVertex, d.count)
	cache := make(map[int]raster.ClipSpaceVertex)
	for i := range d.count {
		v := d.first + i
		if d.indexed {
			v = readIndex(st.index, d.first+i)
			if cv, ok := cache[v]; ok {
				out[i] = cv
				continue
			}
		}
		pos, attrs := fetchVertex(st.vertex, format, v)
		cv := prog.stages.Vertex(v, pos, attrs, b)
		if d.indexed {
			cache[v] = cv
		}
		out[i] = cv
	}
	return out
}

func readIndex(b *buffer, i int) int {
	if b.indexFormat() == gputypes.IndexFormatUint16 {
		return int(binary.LittleEndian.Uint16(b.data[2*i:]))
	}
	return int(binary.LittleEndian.Uint32(b.data[4*i:]))
}

// fetchVertex decodes vertex v. The attribute named "position", or the
// first attribute, is the position; the others are passed in order.
// Vertices outside the buffer decode as zero.
func fetchVertex(b *buffer, format rhi.VertexFormat, v int) ([3]float32, []float32) {
	var pos [3]float32
	if format.IsEmpty() || b == nil {
		return pos, nil
	}
	stride := vertexStride(b, format)
	base := v * stride
	if base < 0 || base+format.Stride() > len(b.data) {
		return pos, nil
	}
	posIndex := 0
	for i, a := range format.Attributes {
		if a.Name == "position" {
			posIndex = i
			break
		}
	}
	var attrs []float32
	for i, a := range format.Attributes {
		vals := decodeAttribute(b.data[base+a.Offset:], a)
		if i == posIndex {
			copy(pos[:], vals)
			continue
		}
		attrs = append(attrs, vals...)
	}
	return pos, attrs
}

func decodeAttribute(p []byte, a rhi.VertexAttribute) []float32 {
	out := make([]float32, a.Components)
	for c := range out {
		switch a.Type {
		case rhi.DataFloat32:
			out[c] = math32.Float32frombits(binary.LittleEndian.Uint32(p[4*c:]))
		case rhi.DataInt32:
			out[c] = float32(int32(binary.LittleEndian.Uint32(p[4*c:])))
		case rhi.DataUint32:
			out[c] = float32(binary.LittleEndian.Uint32(p[4*c:]))
		case rhi.DataUnorm8:
			out[c] = float32(p[c]) / 255
		}
	}
	return out
}

// assemble groups shaded vertices into primitives and rasterizes them.
func (ps *pass) assemble(t rhi.PrimitiveTopology, v []raster.ClipSpaceVertex) {
	wire := ps.p.desc.Rasterizer.FillMode == rhi.FillWireframe
	switch t {
	case rhi.TopologyTriangleList:
		for i := 0; i+2 < len(v); i += 3 {
			ps.triangle([3]raster.ClipSpaceVertex{v[i], v[i+1], v[i+2]}, wire)
		}
	case rhi.TopologyTriangleStrip:
		for i := 0; i+2 < len(v); i++ {
			tri := [3]raster.ClipSpaceVertex{v[i], v[i+1], v[i+2]}
			if i%2 == 1 {
				tri[0], tri[1] = tri[1], tri[0]
			}
			ps.triangle(tri, wire)
		}
	case rhi.TopologyLineList:
		for i := 0; i+1 < len(v); i += 2 {
			ps.line(v[i], v[i+1])
		}
	case rhi.TopologyLineStrip:
		for i := 0; i+1 < len(v); i++ {
			ps.line(v[i], v[i+1])
		}
	case rhi.TopologyPointList:
		for _, p := range v {
			ps.point(p)
		}
	}
}

func (ps *pass) triangle(tri [3]raster.ClipSpaceVertex, wire bool) {
	rs := ps.p.desc.Rasterizer
	for _, c := range raster.ClipTriangleNearFar(tri) {
		if raster.ShouldCullClipSpace(c, cullMode(rs.CullMode), frontFace(rs.FrontFace)) {
			continue
		}
		back := raster.IsBackFacingClipSpace(c, frontFace(rs.FrontFace))
		if wire {
			ps.line(c[0], c[1])
			ps.line(c[1], c[2])
			ps.line(c[2], c[0])
			continue
		}
		screen := [3]raster.ScreenVertex{ps.toScreen(c[0]), ps.toScreen(c[1]), ps.toScreen(c[2])}
		for s := range ps.fb.samples {
			dx, dy := sampleOffset(ps.fb.samples, s)
			t := raster.Triangle{
				V0: shift(screen[0], dx, dy),
				V1: shift(screen[1], dx, dy),
				V2: shift(screen[2], dx, dy),
			}
			raster.Rasterize(t, ps.bounds, func(f raster.Fragment) {
				ps.fragment(s, f, back)
			})
		}
	}
}

// shift moves a vertex so that rasterizing at pixel centers samples at
// the offset position.
func shift(v raster.ScreenVertex, dx, dy float32) raster.ScreenVertex {
	v.X -= dx
	v.Y -= dy
	return v
}

// toScreen divides by w and applies the viewport transform.
func (ps *pass) toScreen(v raster.ClipSpaceVertex) raster.ScreenVertex {
	vp := ps.viewport
	w := v.Position[3]
	if w == 0 {
		w = math32.SmallestNonzeroFloat32
	}
	invW := 1 / w
	nx, ny, nz := v.Position[0]*invW, v.Position[1]*invW, v.Position[2]*invW
	sy := (1 - ny) * 0.5
	if ps.flipY {
		sy = (ny + 1) * 0.5
	}
	return raster.ScreenVertex{
		X:          vp.X + (nx+1)*0.5*vp.Width,
		Y:          vp.Y + sy*vp.Height,
		Z:          vp.MinDepth + nz*(vp.MaxDepth-vp.MinDepth),
		W:          invW,
		Attributes: v.Attributes,
	}
}

// line rasterizes a one pixel wide segment, covering every sample of the
// pixels it crosses.
func (ps *pass) line(a, b raster.ClipSpaceVertex) {
	if a.Position[3] <= 0 || b.Position[3] <= 0 {
		return
	}
	sa, sb := ps.toScreen(a), ps.toScreen(b)
	dx, dy := sb.X-sa.X, sb.Y-sa.Y
	steps := int(math32.Ceil(max(math32.Abs(dx), math32.Abs(dy))))
	if steps == 0 {
		steps = 1
	}
	for i := 0; i <= steps; i++ {
		t := float32(i) / float32(steps)
		f := raster.Fragment{
			X:          int(math32.Floor(sa.X + dx*t)),
			Y:          int(math32.Floor(sa.Y + dy*t)),
			Depth:      sa.Z + (sb.Z-sa.Z)*t,
			Bary:       [3]float32{1 - t, t, 0},
			Attributes: lerpAttributes(sa.Attributes, sb.Attributes, t),
		}
		ps.allSamples(f)
	}
}

func (ps *pass) point(v raster.ClipSpaceVertex) {
	if v.Position[3] <= 0 {
		return
	}
	s := ps.toScreen(v)
	ps.allSamples(raster.Fragment{
		X:          int(math32.Floor(s.X)),
		Y:          int(math32.Floor(s.Y)),
		Depth:      s.Z,
		Bary:       [3]float32{1, 0, 0},
		Attributes: s.Attributes,
	})
}

func (ps *pass) allSamples(f raster.Fragment) {
	b := ps.bounds
	if f.X < b.X || f.Y < b.Y || f.X >= b.X+b.Width || f.Y >= b.Y+b.Height {
		return
	}
	if f.Depth < 0 || f.Depth > 1 {
		return
	}
	for s := range ps.fb.samples {
		ps.fragment(s, f, false)
	}
}

func lerpAttributes(a, b []float32, t float32) []float32 {
	if len(a) == 0 || len(a) != len(b) {
		return nil
	}
	out := make([]float32, len(a))
	for i := range out {
		out[i] = a[i] + (b[i]-a[i])*t
	}
	return out
}

// fragment runs the stencil and depth tests, the fragment stage and the
// blend for one sample.
func (ps *pass) fragment(s int, f raster.Fragment, back bool) {
	stencil := ps.front
	if back {
		stencil = ps.back
	}
	if stencil.Enabled {
		sb := ps.fb.stencil[s]
		if !sb.Test(f.X, f.Y, stencil) {
			sb.Apply(f.X, f.Y, stencil.FailOp, stencil)
			return
		}
	}
	if ps.depthTest {
		passed := ps.fb.depth[s].TestAndSet(f.X, f.Y, f.Depth, ps.depthCmp, ps.depthWrite)
		if stencil.Enabled {
			op := stencil.PassOp
			if !passed {
				op = stencil.DepthFailOp
			}
			ps.fb.stencil[s].Apply(f.X, f.Y, op, stencil)
		}
		if !passed {
			return
		}
	} else if stencil.Enabled {
		ps.fb.stencil[s].Apply(f.X, f.Y, stencil.PassOp, stencil)
	}
	ps.samples++

	frag := ps.p.program.stages.Fragment
	if frag == nil {
		return
	}
	color := frag(f, ps.bindings)
	w := ps.fb.size.Width
	for i, plane := range ps.fb.colors {
		mask := ps.masks[i]
		if mask == gputypes.ColorWriteMaskNone {
			continue
		}
		px := plane.samples[s][(f.Y*w+f.X)*4:][:4]
		src := color
		if ps.blend[i].Enabled {
			src = raster.Blend(color, fromBytes(px), ps.blend[i])
		}
		out := toBytes(src)
		for ch, bit := range [4]gputypes.ColorWriteMask{
			gputypes.ColorWriteMaskRed, gputypes.ColorWriteMaskGreen,
			gputypes.ColorWriteMaskBlue, gputypes.ColorWriteMaskAlpha,
		} {
			if mask&bit != 0 {
				px[ch] = out[ch]
			}
		}
	}
}

// generateMips fills levels 1..n-1 by filtering each level from the one
// above it.
func generateMips(levels []*image.RGBA) {
	for i := 1; i < len(levels); i++ {
		src, dst := levels[i-1], levels[i]
		r := dst.Bounds()
		// Each band scales the whole level, clipped to its rows.
		_ = parallel.Rows(context.Background(), r.Dy(), func(b parallel.Band) error {
			band := dst.SubImage(image.Rect(r.Min.X, r.Min.Y+b.Y0, r.Max.X, r.Min.Y+b.Y1))
			draw.BiLinear.Scale(band.(draw.Image), r, src, src.Bounds(), draw.Src, nil)
			return nil
		})
	}
}
