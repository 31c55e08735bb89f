package rhi

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/gpucontext"
)

// Backend names.
const (
	BackendWGPU     = "wgpu"
	BackendSoftware = "software"
)

// Factory creates a render system from a configuration.
type Factory func(cfg Config) (RenderSystem, error)

// Priority order for backend selection (first available wins).
// Hardware through wgpu first, the CPU reference backend as fallback.
var priority = []string{BackendWGPU, BackendSoftware}

var backends = gpucontext.NewRegistry[Factory](
	gpucontext.WithPriority(priority...),
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it is replaced.
func Register(name string, factory Factory) {
	backends.Register(name, func() Factory { return factory })
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	backends.Unregister(name)
}

// Available returns the sorted names of registered backends.
func Available() []string {
	names := backends.Available()
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	return backends.Has(name)
}

// Open creates a render system with the named backend.
func Open(name string, opts ...Option) (RenderSystem, error) {
	factory := backends.Get(name)
	if factory == nil {
		return nil, fmt.Errorf("open %q: %w", name, ErrBackendNotAvailable)
	}
	return open(name, factory, opts)
}

// OpenDefault creates a render system with the best available backend.
// A backend whose factory reports ErrBackendNotAvailable (no usable
// adapter, for example) is skipped in favor of the next one.
func OpenDefault(opts ...Option) (RenderSystem, error) {
	if backends.BestName() == "" {
		return nil, ErrBackendNotAvailable
	}
	var errs []error
	for _, name := range candidates() {
		rs, err := Open(name, opts...)
		if err == nil {
			return rs, nil
		}
		if !errors.Is(err, ErrBackendNotAvailable) {
			return nil, err
		}
		Logger().Warn("rhi: backend unavailable, trying next", "backend", name, "err", err)
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

// candidates returns the registered backends, prioritized ones first.
func candidates() []string {
	var names []string
	for _, name := range priority {
		if backends.Has(name) {
			names = append(names, name)
		}
	}
	for _, name := range Available() {
		if !slices.Contains(priority, name) {
			names = append(names, name)
		}
	}
	return names
}

func open(name string, factory Factory, opts []Option) (RenderSystem, error) {
	cfg := NewConfig(opts...)
	rs, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}
	info := rs.Renderer()
	Logger().Info("rhi: render system opened",
		"backend", name,
		"adapter", info.Adapter.Name,
		"adapter_type", info.Adapter.Type.String(),
		"api", info.API,
		"config", cfg)
	return rs, nil
}
