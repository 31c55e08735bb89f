// Package rhi provides a multi-backend rendering hardware interface for Go.
//
// # Overview
//
// rhi exposes one client-facing API for buffers, textures, samplers,
// shaders, graphics pipelines, queries, render targets and command
// submission. Each native backend is a sibling implementation of the
// [RenderSystem] and [RenderContext] interfaces:
//
//   - backend/software: CPU reference backend with explicit resource
//     states, occlusion queries, predicated rendering and multisampling.
//   - backend/wgpu: backend over the gogpu/wgpu HAL (Vulkan, Metal, DX12,
//     GLES, or the pure Go noop and software devices).
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/rhi"
//		_ "github.com/gogpu/rhi/backend/software"
//	)
//
//	rs, err := rhi.OpenDefault()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer rs.Close()
//
//	rc, err := rs.CreateRenderContext(rhi.RenderContextDescriptor{
//		Resolution: rhi.Extent{Width: 800, Height: 600},
//	})
//
// # Capabilities
//
// Optional features (constant buffers, tessellation stages, multisampling,
// queries, render conditions) are reported by [RenderSystem.GetRenderingCaps].
// Creation entry points validate descriptors against the capabilities and
// fail with [ErrCapability] before any backend object exists.
//
// # Recording
//
// A [RenderContext] records commands in call order onto one logical
// command stream. Nothing recorded blocks the caller; [RenderContext.Flush]
// and [RenderContext.Present] submit the recorded work. The only explicit
// synchronization point is [GetAndSyncQueryResult], which blocks until the
// query result is available or the context is cancelled.
//
// # Resource States
//
// Buffers and textures carry an explicit [ResourceState]. Sub-resource
// updates transition a buffer to [StateCopyDest] and back to the state its
// kind requires, so a buffer is never read by a draw while it is a copy
// destination. Backends without an explicit state model keep the field for
// validation and skip the transition.
package rhi
