package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// stagingAllocator backs the upload ring with HAL buffers filled through
// the queue. A chunk is written only while no submission reads it, so
// the immediate queue write never races recorded copies.
type stagingAllocator struct {
	s *System
}

func (a stagingAllocator) CreateChunk(size uint64) (hal.Buffer, error) {
	raw, err := a.s.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "rhi staging",
		Size:  alignCopy(size),
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create staging buffer (%d bytes): %w", size, err)
	}
	return raw, nil
}

func (a stagingAllocator) DestroyChunk(raw hal.Buffer) {
	s := a.s
	s.dispose(func() { s.dev.DestroyBuffer(raw) })
}

func (a stagingAllocator) Write(raw hal.Buffer, offset uint64, data []byte) error {
	return a.s.queue.WriteBuffer(raw, offset, padCopy(data))
}
