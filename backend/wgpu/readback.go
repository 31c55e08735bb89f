package wgpu

import (
	"context"
	"fmt"
	"image"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
)

// copyPitchAlignment is the row pitch alignment of texture to buffer copies.
const copyPitchAlignment = 256

// readBuffer copies b into a mappable buffer on a dedicated encoder and
// waits for the copy.
func (s *System) readBuffer(ctx context.Context, b *buffer) ([]byte, error) {
	out := make([]byte, b.desc.Size)
	if b.desc.Size == 0 {
		return out, nil
	}
	err := s.readback(ctx, b.label, b.size, func(enc hal.CommandEncoder, dst hal.Buffer) {
		enc.CopyBufferToBuffer(b.raw, dst, []hal.BufferCopy{{Size: b.size}})
	}, func(mapped []byte) {
		copy(out, mapped)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// readTexture copies one level of raw into a mappable buffer and returns
// it with the row padding stripped.
func (s *System) readTexture(ctx context.Context, raw hal.Texture, size rhi.Extent, level uint32, label string) (*image.RGBA, error) {
	w, h := uint32(size.Width), uint32(size.Height)
	tight := w * 4
	pitch := (tight + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))

	err := s.readback(ctx, label, uint64(pitch)*uint64(h), func(enc hal.CommandEncoder, dst hal.Buffer) {
		enc.TransitionTextures([]hal.TextureBarrier{{
			Texture: raw,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageRenderAttachment,
				NewUsage: gputypes.TextureUsageCopySrc,
			},
		}})
		enc.CopyTextureToBuffer(raw, dst, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{BytesPerRow: pitch, RowsPerImage: h},
			TextureBase:  hal.ImageCopyTexture{Texture: raw, MipLevel: level, Aspect: gputypes.TextureAspectAll},
			Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		}})
		enc.TransitionTextures([]hal.TextureBarrier{{
			Texture: raw,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageCopySrc,
				NewUsage: gputypes.TextureUsageRenderAttachment,
			},
		}})
	}, func(mapped []byte) {
		if pitch == tight {
			copy(img.Pix, mapped)
			return
		}
		for row := range int(h) {
			src := mapped[row*int(pitch):]
			copy(img.Pix[row*img.Stride:(row+1)*img.Stride], src[:tight])
		}
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

// readback records record into a fresh encoder targeting a mappable
// buffer of size bytes, submits it, waits for it and hands the mapped
// bytes to read.
func (s *System) readback(ctx context.Context, label string, size uint64,
	record func(enc hal.CommandEncoder, dst hal.Buffer), read func(mapped []byte)) error {
	size = alignCopy(size)
	dst, err := s.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: label + " readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: readback of %q: %v: %w", label, err, rhi.ErrCreation)
	}
	defer s.dispose(func() { s.dev.DestroyBuffer(dst) })

	enc, err := s.pool.acquire(label + " readback")
	if err != nil {
		return err
	}
	record(enc, dst)
	idx, err := s.finish(enc)
	if err != nil {
		return fmt.Errorf("wgpu: readback of %q: %w", label, err)
	}
	if err := s.Wait(ctx, idx); err != nil {
		return fmt.Errorf("wgpu: readback of %q: %w", label, err)
	}

	m, err := s.dev.MapBuffer(dst, 0, size)
	if err != nil {
		return fmt.Errorf("wgpu: map readback of %q: %w", label, err)
	}
	read(unsafe.Slice((*byte)(m.Ptr), size))
	if err := s.dev.UnmapBuffer(dst); err != nil {
		return fmt.Errorf("wgpu: unmap readback of %q: %w", label, err)
	}
	return nil
}
