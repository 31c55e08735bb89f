package software

import (
	"image"

	"github.com/gogpu/wgpu/hal/software/raster"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/parallel"
)

// samplePositions holds the standard sample offsets from the pixel center
// in 1/16 pixel units, indexed by sample count.
var samplePositions = map[int][][2]int{
	1: {{0, 0}},
	2: {{4, 4}, {-4, -4}},
	4: {{-2, -6}, {6, -2}, {-6, 2}, {2, 6}},
	8: {{1, -3}, {-1, 3}, {5, 1}, {-3, -5}, {-5, 5}, {-7, -1}, {3, 7}, {7, -7}},
}

func sampleOffset(samples, i int) (dx, dy float32) {
	p := samplePositions[samples][i]
	return float32(p[0]) / 16, float32(p[1]) / 16
}

// colorPlane is one color attachment with a plane of RGBA8 pixels per
// sample. A single-sample plane aliases its image; a multisampled plane
// resolves into it.
type colorPlane struct {
	img     *image.RGBA
	samples [][]byte
}

func newColorPlane(img *image.RGBA, samples int) *colorPlane {
	p := &colorPlane{img: img}
	if samples == 1 {
		p.samples = [][]byte{img.Pix}
		return p
	}
	n := img.Rect.Dx() * img.Rect.Dy() * 4
	p.samples = make([][]byte, samples)
	for i := range p.samples {
		p.samples[i] = make([]byte, n)
	}
	return p
}

func (p *colorPlane) multisampled() bool {
	return len(p.samples) > 1
}

// resolve averages the samples of every pixel into the image.
func (p *colorPlane) resolve() {
	if !p.multisampled() {
		return
	}
	w, h := p.img.Rect.Dx(), p.img.Rect.Dy()
	n := uint32(len(p.samples))
	parallel.ForEachRow(h, func(y int) {
		row := y * w * 4
		for i := row; i < row+w*4; i++ {
			var sum uint32
			for _, s := range p.samples {
				sum += uint32(s[i])
			}
			p.img.Pix[i] = uint8((sum + n/2) / n)
		}
	})
}

func (p *colorPlane) clear(c [4]uint8) {
	w, h := p.img.Rect.Dx(), p.img.Rect.Dy()
	for _, s := range p.samples {
		parallel.ForEachRow(h, func(y int) {
			row := s[y*w*4 : (y+1)*w*4]
			for i := 0; i < len(row); i += 4 {
				copy(row[i:i+4], c[:])
			}
		})
	}
}

// framebuffer is an immutable view of the attachments of a bound target.
// Draw and clear commands capture it when they are recorded.
type framebuffer struct {
	label   string
	size    rhi.Extent
	samples int
	colors  []*colorPlane

	// depth and stencil hold one buffer per sample; stencil is nil for
	// depth-only targets.
	depth   []*raster.DepthBuffer
	stencil []*raster.StencilBuffer
}

func newDepthPlanes(size rhi.Extent, samples int, withStencil bool) ([]*raster.DepthBuffer, []*raster.StencilBuffer) {
	depth := make([]*raster.DepthBuffer, samples)
	for i := range depth {
		depth[i] = raster.NewDepthBuffer(size.Width, size.Height)
	}
	if !withStencil {
		return depth, nil
	}
	stencil := make([]*raster.StencilBuffer, samples)
	for i := range stencil {
		stencil[i] = raster.NewStencilBuffer(size.Width, size.Height)
	}
	return depth, stencil
}

func (fb *framebuffer) clear(flags rhi.ClearFlags, color rhi.ColorRGBA, depth float32, stencil uint32) {
	if flags&rhi.ClearFlagColor != 0 {
		c := toBytes([4]float32{color.R, color.G, color.B, color.A})
		for _, p := range fb.colors {
			p.clear(c)
		}
	}
	if flags&rhi.ClearFlagDepth != 0 {
		for _, d := range fb.depth {
			d.Clear(depth)
		}
	}
	if flags&rhi.ClearFlagStencil != 0 {
		for _, s := range fb.stencil {
			s.Clear(uint8(stencil))
		}
	}
}

func (fb *framebuffer) resolve() {
	for _, p := range fb.colors {
		p.resolve()
	}
}

func toBytes(c [4]float32) [4]uint8 {
	var out [4]uint8
	for i, v := range c {
		out[i] = uint8(min(max(v, 0), 1)*255 + 0.5)
	}
	return out
}

func fromBytes(p []byte) [4]float32 {
	return [4]float32{
		float32(p[0]) / 255,
		float32(p[1]) / 255,
		float32(p[2]) / 255,
		float32(p[3]) / 255,
	}
}

// cloneImage returns a copy of img.
func cloneImage(img *image.RGBA) *image.RGBA {
	out := image.NewRGBA(img.Rect)
	copy(out.Pix, img.Pix)
	return out
}
