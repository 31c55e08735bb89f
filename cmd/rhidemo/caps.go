package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gogpu/rhi"
)

func newCapsCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "caps",
		Short: "Print the renderer and its capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs, _, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer rs.Close()
			return printCaps(cmd.OutOrStdout(), rs.Renderer(), rs.GetRenderingCaps())
		},
	}
}

func printCaps(w io.Writer, info rhi.RendererInfo, caps rhi.RenderingCaps) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := []struct {
		name  string
		value any
	}{
		{"backend", info.Backend},
		{"adapter", info.Adapter.Name},
		{"adapter type", info.Adapter.Type},
		{"api", info.API},
		{"constant buffers", caps.ConstantBuffers},
		{"tessellation shaders", caps.TessellationShaders},
		{"geometry shaders", caps.GeometryShaders},
		{"multisampling", caps.Multisampling},
		{"max samples", caps.MaxSamples},
		{"occlusion queries", caps.OcclusionQueries},
		{"primitive queries", caps.PrimitiveQueries},
		{"timer queries", caps.TimerQueries},
		{"render condition", caps.RenderCondition},
		{"wireframe fill", caps.WireframeFill},
		{"instanced drawing", caps.InstancedDrawing},
		{"max color attachments", caps.MaxColorAttachments},
		{"max texture size", caps.MaxTextureSize},
		{"max constant buffer size", caps.MaxConstantBufferSize},
		{"max patch vertices", caps.MaxPatchVertices},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%v\n", r.name, r.value)
	}
	return tw.Flush()
}
