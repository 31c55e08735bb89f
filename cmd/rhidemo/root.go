package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/gogpu/rhi"
)

// options are the flags shared by every command.
type options struct {
	backend string
	config  string
	width   int
	height  int
	samples int
	adapter string
	debug   bool
	verbose bool
}

func newRootCommand() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:           "rhidemo",
		Short:         "Render the rhi sample scenes off-screen",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging(cmd.ErrOrStderr(), o.verbose)
		},
	}
	f := cmd.PersistentFlags()
	f.StringVarP(&o.backend, "backend", "b", "", "backend to open (default: best available)")
	f.StringVarP(&o.config, "config", "c", "", "TOML configuration file")
	f.IntVar(&o.width, "width", 800, "surface width")
	f.IntVar(&o.height, "height", 600, "surface height")
	f.IntVar(&o.samples, "samples", 1, "surface sample count")
	f.StringVar(&o.adapter, "adapter", "", "adapter name substring")
	f.BoolVar(&o.debug, "debug", false, "log every submission")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newCapsCommand(o),
		newConfigCommand(o),
		newQueryCommand(o),
		newRenderTargetCommand(o),
	)
	return cmd
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	rhi.SetLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// loadConfig reads the configuration file, if any, and applies the flags
// set on the command line over it.
func (o *options) loadConfig(cmd *cobra.Command) (rhi.Config, error) {
	cfg := rhi.DefaultConfig()
	cfg.Label = "rhidemo"
	if o.config != "" {
		data, err := os.ReadFile(o.config)
		if err != nil {
			return cfg, err
		}
		if err := decodeConfig(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config %s: %w", o.config, err)
		}
	}
	changed := cmd.Flags().Changed
	if o.config == "" || changed("width") || changed("height") {
		cfg.SurfaceSize = rhi.Extent{Width: o.width, Height: o.height}
	}
	if o.config == "" || changed("samples") {
		cfg.Samples = o.samples
	}
	if changed("adapter") {
		cfg.Adapter = o.adapter
	}
	if changed("debug") {
		cfg.Debug = o.debug
	}
	return cfg.Normalize(), nil
}

// decodeConfig decodes TOML into cfg. Keys missing from data keep their
// value; unknown keys are an error.
func decodeConfig(data []byte, cfg *rhi.Config) error {
	return toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(cfg)
}

// open opens the configured backend.
func (o *options) open(cmd *cobra.Command) (rhi.RenderSystem, rhi.Config, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, cfg, err
	}
	var rs rhi.RenderSystem
	if o.backend == "" {
		rs, err = rhi.OpenDefault(rhi.WithConfig(cfg))
	} else {
		rs, err = rhi.Open(o.backend, rhi.WithConfig(cfg))
	}
	if err != nil {
		return nil, cfg, err
	}
	return rs, cfg, nil
}

func newConfigCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := toml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
