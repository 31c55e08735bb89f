package wgpu

import (
	"fmt"
	"strings"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
)

// Option adjusts a System at creation.
type Option func(*settings)

type settings struct {
	info     gputypes.AdapterInfo
	limits   gputypes.Limits
	caps     []func(*rhi.RenderingCaps)
	instance hal.Instance
}

// WithAdapterInfo sets the adapter description the system reports.
func WithAdapterInfo(info gputypes.AdapterInfo) Option {
	return func(s *settings) { s.info = info }
}

// WithLimits sets the device limits the capabilities are derived from.
// The default is gputypes.DefaultLimits, the limits Open requests.
func WithLimits(l gputypes.Limits) Option {
	return func(s *settings) { s.limits = l }
}

// WithCaps lets fn restrict the capabilities the system reports and
// enforces.
func WithCaps(fn func(*rhi.RenderingCaps)) Option {
	return func(s *settings) { s.caps = append(s.caps, fn) }
}

// withInstance hands the instance to the system, which then owns and
// destroys the device and the instance on Close.
func withInstance(i hal.Instance) Option {
	return func(s *settings) { s.instance = i }
}

// Open selects the best registered HAL backend and adapter and opens a
// device on it. The placeholder noop adapter is never selected unless
// cfg.Adapter names it.
func Open(cfg rhi.Config) (*System, error) {
	backend, err := hal.SelectBestBackend()
	if err != nil {
		return nil, fmt.Errorf("wgpu: select HAL backend: %v: %w", err, rhi.ErrBackendNotAvailable)
	}
	var flags gputypes.InstanceFlags
	if cfg.Debug {
		flags = gputypes.InstanceFlagsDebug | gputypes.InstanceFlagsValidation
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: flags})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create %s instance: %v: %w", backend.Variant(), err, rhi.ErrBackendNotAvailable)
	}
	selected := selectAdapter(instance.EnumerateAdapters(nil), cfg.Adapter)
	if selected == nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: no usable %s adapter: %w", backend.Variant(), rhi.ErrBackendNotAvailable)
	}
	limits := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open device %q: %v: %w", selected.Info.Name, err, rhi.ErrCreation)
	}
	s, err := NewFromDevice(openDev.Device, openDev.Queue, cfg,
		WithAdapterInfo(selected.Info), WithLimits(limits), withInstance(instance))
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	rhi.Logger().Info("wgpu: device opened",
		"adapter", selected.Info.Name,
		"type", selected.Info.DeviceType.String(),
		"backend", selected.Info.Backend.String())
	return s, nil
}

// selectAdapter picks the adapter whose name contains name, or else the
// first discrete or integrated GPU, or else the first real adapter.
func selectAdapter(adapters []hal.ExposedAdapter, name string) *hal.ExposedAdapter {
	if name != "" {
		want := strings.ToLower(name)
		for i := range adapters {
			if strings.Contains(strings.ToLower(adapters[i].Info.Name), want) {
				return &adapters[i]
			}
		}
		return nil
	}
	var fallback *hal.ExposedAdapter
	for i := range adapters {
		info := adapters[i].Info
		if info.Backend == gputypes.BackendEmpty && info.DeviceType == gputypes.DeviceTypeOther {
			continue
		}
		if info.DeviceType == gputypes.DeviceTypeDiscreteGPU || info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			return &adapters[i]
		}
		if fallback == nil {
			fallback = &adapters[i]
		}
	}
	return fallback
}

// NewFromDevice creates a render system on a device the caller opened.
// The caller keeps ownership of the device: Close releases every object
// the system created but leaves the device open.
func NewFromDevice(device hal.Device, queue hal.Queue, cfg rhi.Config, opts ...Option) (*System, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("wgpu: nil device or queue: %w", rhi.ErrCreation)
	}
	st := settings{
		info:   gputypes.AdapterInfo{Name: "HAL device", DeviceType: gputypes.DeviceTypeOther},
		limits: gputypes.DefaultLimits(),
	}
	for _, opt := range opts {
		opt(&st)
	}
	s := &System{
		cfg:      cfg.Normalize(),
		caps:     capsFromLimits(st.limits),
		info:     st.info,
		dev:      device,
		queue:    queue,
		instance: st.instance,
		pool:     newEncoderPool(device),
		objects:  make(map[owned]struct{}),
		layouts:  make(map[string]*bindLayout),
	}
	for _, fn := range st.caps {
		fn(&s.caps)
	}
	return s, nil
}

// capsFromLimits derives the capabilities of a device opened with l.
func capsFromLimits(l gputypes.Limits) rhi.RenderingCaps {
	caps := rhi.RenderingCaps{
		ConstantBuffers:       true,
		Multisampling:         true,
		MaxSamples:            4,
		PrimitiveQueries:      true,
		InstancedDrawing:      true,
		MaxColorAttachments:   int(l.MaxColorAttachments),
		MaxTextureSize:        int(l.MaxTextureDimension2D),
		MaxConstantBufferSize: l.MaxUniformBufferBindingSize,
	}
	if caps.MaxColorAttachments == 0 {
		caps.MaxColorAttachments = 8
	}
	if caps.MaxConstantBufferSize == 0 {
		caps.MaxConstantBufferSize = 64 * 1024
	}
	return caps
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}
