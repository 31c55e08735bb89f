package rhi

import "testing"

func TestNewConfig_Defaults(t *testing.T) {
	c := NewConfig()
	if c != DefaultConfig() {
		t.Errorf("NewConfig() = %+v, want %+v", c, DefaultConfig())
	}
	if c.FramesInFlight != DefaultFramesInFlight || c.StagingChunkSize != DefaultStagingChunkSize {
		t.Errorf("ring settings = %d, %d", c.FramesInFlight, c.StagingChunkSize)
	}
}

func TestNewConfig_Options(t *testing.T) {
	c := NewConfig(
		WithLabel("scene"),
		WithFramesInFlight(3),
		WithStagingChunkSize(4096),
		WithSurfaceSize(320, 200),
		WithSamples(4),
		WithDebug(true),
		WithAdapter("llvmpipe"),
	)
	want := Config{
		Label:            "scene",
		FramesInFlight:   3,
		StagingChunkSize: 4096,
		SurfaceSize:      Extent{Width: 320, Height: 200},
		Samples:          4,
		Debug:            true,
		Adapter:          "llvmpipe",
	}
	if c != want {
		t.Errorf("NewConfig() = %+v, want %+v", c, want)
	}
}

func TestNewConfig_WithConfigThenOptions(t *testing.T) {
	base := Config{Label: "base", Samples: 4}
	c := NewConfig(WithConfig(base), WithSamples(8))
	if c.Label != "base" || c.Samples != 8 {
		t.Errorf("got %+v", c)
	}
	// Zero fields of the replaced config are normalized.
	if c.FramesInFlight != DefaultFramesInFlight || c.SurfaceSize != DefaultConfig().SurfaceSize {
		t.Errorf("zero fields not normalized: %+v", c)
	}
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Config
		want func(Config) bool
	}{
		{"negative frames", Config{FramesInFlight: -1}, func(c Config) bool { return c.FramesInFlight == DefaultFramesInFlight }},
		{"half surface", Config{SurfaceSize: Extent{Width: 10}}, func(c Config) bool { return c.SurfaceSize.Width == 800 }},
		{"zero samples", Config{}, func(c Config) bool { return c.Samples == 1 }},
		{"label kept", Config{Label: "x"}, func(c Config) bool { return c.Label == "x" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Normalize(); !tt.want(got) {
				t.Errorf("Normalize() = %+v", got)
			}
		})
	}
}
