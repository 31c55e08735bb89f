package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/spf13/cobra"
	"golang.org/x/image/draw"

	"github.com/gogpu/rhi"
)

type renderTargetOptions struct {
	size    int
	samples int
	angle   float32
}

// renderTargetResult is the output of the render target scene.
type renderTargetResult struct {
	Surface *image.RGBA

	// Levels holds every MIP level of the render target texture.
	Levels []*image.RGBA

	// Samples is the sample count the render target was created with.
	Samples int

	// Saved is the surface state before the render target was bound and
	// Restored the state read back after restoring it.
	Saved, Restored rhi.SurfaceState
}

func newRenderTargetCommand(o *options) *cobra.Command {
	var (
		ro      renderTargetOptions
		output  string
		mips    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "rendertarget",
		Short: "Render a cube into a multisampled texture and map it onto a cube",
		Long: `Renders a textured cube into a render target with a depth buffer and
a color texture cleared to green, generates the MIP chain of the texture
and draws a second cube textured with it to the surface. The sample count
falls back to the largest supported one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs, cfg, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer rs.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			res, err := runRenderTargetScene(ctx, rs, cfg.Samples, ro)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "render target %dx%d, %d samples, %d MIP levels\n",
				ro.size, ro.size, res.Samples, len(res.Levels))
			if err := writePNG(output, res.Surface); err != nil {
				return err
			}
			if mips != "" {
				return writePNG(mips, mipStrip(res.Levels))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&ro.size, "size", 512, "render target width and height")
	f.IntVar(&ro.samples, "rt-samples", 8, "render target sample count")
	f.Float32Var(&ro.angle, "angle", 0.6, "cube rotation in radians")
	f.StringVarP(&output, "output", "o", "rendertarget.png", "surface PNG file")
	f.StringVar(&mips, "mips", "", "write the MIP chain side by side to this PNG file")
	f.DurationVar(&timeout, "timeout", 30*time.Second, "time limit for GPU work")
	return cmd
}

// createTarget creates a render target with the largest supported sample
// count not above samples.
func createTarget(rs rhi.RenderSystem, samples int) (rhi.RenderTarget, error) {
	for n := max(samples, 1); ; n /= 2 {
		rt, err := rs.CreateRenderTarget(n)
		if err == nil || n == 1 || !errors.Is(err, rhi.ErrCapability) {
			return rt, err
		}
		rhi.Logger().Info("rhidemo: sample count unsupported, halving", "samples", n)
	}
}

// runRenderTargetScene renders the render target scene on a new render
// context of rs.
func runRenderTargetScene(ctx context.Context, rs rhi.RenderSystem, surfaceSamples int,
	ro renderTargetOptions) (renderTargetResult, error) {
	var res renderTargetResult
	s, err := newScene(rs, surfaceSamples)
	if err != nil {
		return res, err
	}
	rc := s.rc
	size := rhi.Extent{Width: ro.size, Height: ro.size}

	tex, err := rs.CreateTexture(rhi.TextureDescriptor{
		Label:  "render target color",
		Size:   size,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
	}, nil)
	if err != nil {
		return res, err
	}
	rt, err := createTarget(rs, ro.samples)
	if err != nil {
		return res, err
	}
	res.Samples = rt.Samples()
	if err := rt.AttachDepthBuffer(size); err != nil {
		return res, err
	}
	if err := rt.AttachTexture2D(tex, 0); err != nil {
		return res, err
	}
	inner, err := s.pipeline("render target cube", s.textured, rt.Samples())
	if err != nil {
		return res, err
	}
	outer, err := s.pipeline("surface cube", s.textured, surfaceSamples)
	if err != nil {
		return res, err
	}
	white := rhi.ColorRGBA{R: 1, G: 1, B: 1, A: 1}

	rc.SetClearColor(rhi.ColorRGBA{R: 0.1, G: 0.1, B: 0.15, A: 1})
	saved := rhi.SaveSurfaceState(rc)
	res.Saved = saved

	if err := rc.SetRenderTarget(rt); err != nil {
		return res, err
	}
	rc.SetViewport(rhi.NewViewport(size))
	rc.SetClearColor(rhi.ColorRGBA{R: 0.2, G: 0.7, B: 0.1, A: 1})
	if err := rc.ClearBuffers(rhi.ClearFlagColorDepth); err != nil {
		return res, err
	}
	if err := rc.SetTexture(s.checker, slotTexture, rhi.StageFlagFragment); err != nil {
		return res, err
	}
	if err := s.drawCube(inner, cubeTransform(1, 0, 5, ro.angle), white); err != nil {
		return res, err
	}
	if err := rc.UnsetRenderTarget(); err != nil {
		return res, err
	}
	if tex.MipLevels() > 1 {
		if err := rc.GenerateMips(tex); err != nil {
			return res, err
		}
	}
	saved.Restore(rc)
	res.Restored = rhi.SaveSurfaceState(rc)

	if err := rc.ClearBuffers(rhi.ClearFlagColorDepth); err != nil {
		return res, err
	}
	if err := rc.SetTexture(tex, slotTexture, rhi.StageFlagFragment); err != nil {
		return res, err
	}
	if err := s.drawCube(outer, cubeTransform(s.aspect(), 0, 5, -ro.angle), white); err != nil {
		return res, err
	}
	if err := rc.Present(); err != nil {
		return res, err
	}

	if res.Surface, err = rc.ReadSurface(ctx); err != nil {
		return res, err
	}
	for level := range tex.MipLevels() {
		img, err := rs.ReadTexture(ctx, tex, level)
		if err != nil {
			return res, err
		}
		res.Levels = append(res.Levels, img)
	}
	return res, nil
}

// mipStrip places the levels left to right, top aligned.
func mipStrip(levels []*image.RGBA) *image.RGBA {
	var w, h int
	for _, l := range levels {
		w += l.Bounds().Dx()
		h = max(h, l.Bounds().Dy())
	}
	strip := image.NewRGBA(image.Rect(0, 0, w, h))
	x := 0
	for _, l := range levels {
		draw.Copy(strip, image.Pt(x, 0), l, l.Bounds(), draw.Src, nil)
		x += l.Bounds().Dx()
	}
	return strip
}
