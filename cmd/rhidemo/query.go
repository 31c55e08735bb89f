package main

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/spf13/cobra"

	"github.com/gogpu/rhi"
)

// queryReport holds the results of the query scene.
type queryReport struct {
	// Occlusion is the occlusion query result, if occlusion queries are
	// supported.
	Occlusion    uint64
	OcclusionSet bool

	// Primitives is the primitives-generated result, if supported.
	Primitives    uint64
	PrimitivesSet bool

	// Conditional reports whether the second cube was gated on the
	// occlusion result.
	Conditional bool
}

type queryOptions struct {
	hidden bool
	angle  float32
}

func newQueryCommand(o *options) *cobra.Command {
	var (
		qo      queryOptions
		output  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Draw a cube inside occlusion and primitive queries",
		Long: `Draws a cube while counting samples and primitives, then draws a
second cube gated on the occlusion result when render conditions are
supported. With --hidden the first cube is placed behind the camera.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs, cfg, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer rs.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			report, img, err := runQueryScene(ctx, rs, cfg.Samples, qo)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if report.OcclusionSet {
				fmt.Fprintf(out, "samples passed:      %d\n", report.Occlusion)
			}
			if report.PrimitivesSet {
				fmt.Fprintf(out, "primitives generated: %d\n", report.Primitives)
			}
			if report.Conditional {
				fmt.Fprintf(out, "second cube drawn:   %v\n", report.Occlusion > 0)
			}
			if output != "" {
				return writePNG(output, img)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&qo.hidden, "hidden", false, "place the queried cube out of view")
	f.Float32Var(&qo.angle, "angle", 0.6, "cube rotation in radians")
	f.StringVarP(&output, "output", "o", "", "write the surface to this PNG file")
	f.DurationVar(&timeout, "timeout", 30*time.Second, "time limit for GPU work")
	return cmd
}

// runQueryScene draws the query scene on a new render context of rs and
// returns the query results and the presented surface.
func runQueryScene(ctx context.Context, rs rhi.RenderSystem, samples int, qo queryOptions) (queryReport, *image.RGBA, error) {
	var report queryReport
	caps := rs.GetRenderingCaps()
	s, err := newScene(rs, samples)
	if err != nil {
		return report, nil, err
	}
	rc := s.rc
	solid, err := s.pipeline("query cube", s.program, samples)
	if err != nil {
		return report, nil, err
	}
	textured, err := s.pipeline("conditional cube", s.textured, samples)
	if err != nil {
		return report, nil, err
	}

	var occlusion, primitives rhi.Query
	switch {
	case caps.SupportsQuery(rhi.QuerySamplesPassed):
		occlusion, err = rs.CreateQuery(rhi.QueryDescriptor{
			Label: "occlusion", Type: rhi.QuerySamplesPassed, RenderCondition: caps.RenderCondition,
		})
	case caps.SupportsQuery(rhi.QueryAnySamplesPassed):
		occlusion, err = rs.CreateQuery(rhi.QueryDescriptor{
			Label: "occlusion", Type: rhi.QueryAnySamplesPassed, RenderCondition: caps.RenderCondition,
		})
	}
	if err != nil {
		return report, nil, err
	}
	if caps.PrimitiveQueries {
		if primitives, err = rs.CreateQuery(rhi.QueryDescriptor{Label: "primitives", Type: rhi.QueryPrimitivesGenerated}); err != nil {
			return report, nil, err
		}
	}

	rc.SetClearColor(rhi.ColorRGBA{R: 0.1, G: 0.1, B: 0.15, A: 1})
	if err := rc.ClearBuffers(rhi.ClearFlagColorDepth); err != nil {
		return report, nil, err
	}

	distance := float32(5)
	if qo.hidden {
		distance = -5
	}
	for _, q := range []rhi.Query{primitives, occlusion} {
		if q != nil {
			if err := rc.BeginQuery(q); err != nil {
				return report, nil, err
			}
		}
	}
	if err := s.drawCube(solid, cubeTransform(s.aspect(), 0, distance, qo.angle), rhi.ColorRGBA{R: 0.9, G: 0.4, B: 0.1, A: 1}); err != nil {
		return report, nil, err
	}
	for _, q := range []rhi.Query{occlusion, primitives} {
		if q != nil {
			if err := rc.EndQuery(q); err != nil {
				return report, nil, err
			}
		}
	}

	if occlusion != nil && caps.RenderCondition {
		if err := rc.BeginRenderCondition(occlusion, rhi.ConditionWait); err != nil {
			return report, nil, err
		}
		mvp := cubeTransform(s.aspect(), 2.5, 8, -qo.angle)
		if err := s.drawCube(textured, mvp, rhi.ColorRGBA{R: 1, G: 1, B: 1, A: 1}); err != nil {
			return report, nil, err
		}
		if err := rc.EndRenderCondition(); err != nil {
			return report, nil, err
		}
		report.Conditional = true
	}
	if err := rc.Present(); err != nil {
		return report, nil, err
	}

	if occlusion != nil {
		if report.Occlusion, err = rhi.GetAndSyncQueryResult(ctx, rc, occlusion); err != nil {
			return report, nil, err
		}
		report.OcclusionSet = true
	}
	if primitives != nil {
		if report.Primitives, err = rhi.GetAndSyncQueryResult(ctx, rc, primitives); err != nil {
			return report, nil, err
		}
		report.PrimitivesSet = true
	}
	img, err := rc.ReadSurface(ctx)
	if err != nil {
		return report, nil, err
	}
	return report, img, nil
}
