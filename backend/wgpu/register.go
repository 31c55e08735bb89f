//go:build !nogpu

package wgpu

import (
	"github.com/gogpu/rhi"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

func init() {
	rhi.Register(rhi.BackendWGPU, func(cfg rhi.Config) (rhi.RenderSystem, error) {
		s, err := Open(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}
