package rhi

import "log/slog"

// Config holds render system settings shared by all backends.
type Config struct {
	// Label prefixes debug labels of backend objects.
	Label string `toml:"label"`

	// FramesInFlight is the number of frames that may be recorded before
	// the oldest one must complete. It sizes the staging ring.
	FramesInFlight int `toml:"frames_in_flight"`

	// StagingChunkSize is the size of one staging chunk in bytes.
	StagingChunkSize uint64 `toml:"staging_chunk_size"`

	// SurfaceSize is the default surface size of new render contexts.
	SurfaceSize Extent `toml:"surface_size"`

	// Samples is the default surface sample count of new render contexts.
	Samples int `toml:"samples"`

	// Debug enables per-command validation logging.
	Debug bool `toml:"debug"`

	// Adapter selects a HAL adapter by substring of its name. Empty
	// selects the first adapter. Ignored by backends without adapters.
	Adapter string `toml:"adapter"`
}

// Default configuration values.
const (
	DefaultFramesInFlight   = 2
	DefaultStagingChunkSize = 256 * 1024
)

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Label:            "rhi",
		FramesInFlight:   DefaultFramesInFlight,
		StagingChunkSize: DefaultStagingChunkSize,
		SurfaceSize:      Extent{Width: 800, Height: 600},
		Samples:          1,
	}
}

// Normalize replaces zero fields with defaults.
func (c Config) Normalize() Config {
	d := DefaultConfig()
	if c.Label == "" {
		c.Label = d.Label
	}
	if c.FramesInFlight <= 0 {
		c.FramesInFlight = d.FramesInFlight
	}
	if c.StagingChunkSize == 0 {
		c.StagingChunkSize = d.StagingChunkSize
	}
	if c.SurfaceSize.IsZero() {
		c.SurfaceSize = d.SurfaceSize
	}
	if c.Samples <= 0 {
		c.Samples = d.Samples
	}
	return c
}

// LogValue implements slog.LogValuer.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("label", c.Label),
		slog.Int("frames_in_flight", c.FramesInFlight),
		slog.Uint64("staging_chunk_size", c.StagingChunkSize),
		slog.String("surface", c.SurfaceSize.String()),
		slog.Int("samples", c.Samples),
	)
}

// Option configures a render system during creation.
//
// Example:
//
//	rs, err := rhi.Open("software",
//		rhi.WithFramesInFlight(3),
//		rhi.WithSurfaceSize(1280, 720),
//	)
type Option func(*Config)

// WithConfig replaces the whole configuration. Later options still apply.
func WithConfig(c Config) Option {
	return func(o *Config) {
		*o = c
	}
}

// WithLabel sets the label prefix of backend objects.
func WithLabel(label string) Option {
	return func(o *Config) {
		o.Label = label
	}
}

// WithFramesInFlight sets how many frames may be in flight.
func WithFramesInFlight(n int) Option {
	return func(o *Config) {
		o.FramesInFlight = n
	}
}

// WithStagingChunkSize sets the staging chunk size in bytes.
func WithStagingChunkSize(size uint64) Option {
	return func(o *Config) {
		o.StagingChunkSize = size
	}
}

// WithSurfaceSize sets the default surface size of new render contexts.
func WithSurfaceSize(width, height int) Option {
	return func(o *Config) {
		o.SurfaceSize = Extent{Width: width, Height: height}
	}
}

// WithSamples sets the default surface sample count.
func WithSamples(n int) Option {
	return func(o *Config) {
		o.Samples = n
	}
}

// WithDebug enables validation logging.
func WithDebug(enabled bool) Option {
	return func(o *Config) {
		o.Debug = enabled
	}
}

// WithAdapter selects a HAL adapter by name substring.
func WithAdapter(name string) Option {
	return func(o *Config) {
		o.Adapter = name
	}
}

// NewConfig applies opts to the default configuration.
func NewConfig(opts ...Option) Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c.Normalize()
}
