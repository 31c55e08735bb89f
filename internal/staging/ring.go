// Package staging implements the upload staging ring shared by the
// backends: one bump-allocated region per frame in flight, reused only
// after the submission that last read it has completed.
package staging

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned when allocating from a closed ring.
var ErrClosed = errors.New("staging: ring is closed")

// Allocator creates and fills host-visible chunks of backend memory.
// C is the backend's buffer handle type.
type Allocator[C any] interface {
	// CreateChunk allocates a chunk of at least size bytes.
	CreateChunk(size uint64) (C, error)

	// DestroyChunk releases a chunk created by CreateChunk.
	DestroyChunk(chunk C)

	// Write copies data into the chunk at offset.
	Write(chunk C, offset uint64, data []byte) error
}

// Fence reports and waits for submission completion.
type Fence interface {
	// Completed returns the highest completed submission index.
	Completed() uint64

	// Wait blocks until submission is complete or ctx is done.
	Wait(ctx context.Context, submission uint64) error
}

// Allocation is a region of a chunk holding uploaded bytes.
type Allocation[C any] struct {
	Chunk  C
	Offset uint64
	Size   uint64
}

// Stats counts ring activity.
type Stats struct {
	ChunksCreated  int
	ChunksRecycled int
	Oversized      int
	Waits          int
}

// chunk is a staging chunk with a bump pointer.
type chunk[C any] struct {
	handle C
	size   uint64
	offset uint64
}

// tryAllocate reserves size bytes, returning the offset.
func (c *chunk[C]) tryAllocate(size uint64) (uint64, bool) {
	if c.offset+size > c.size {
		return 0, false
	}
	off := c.offset
	c.offset += size
	return off, true
}

// slot holds the chunks used while recording one frame.
type slot[C any] struct {
	chunks    []chunk[C]
	oversized []C

	// submission is the last submission index that may read the slot.
	submission uint64
	// dirty is set once the slot has handed out memory since its last reset.
	dirty bool
}

// Ring is a per-frame staging allocator. Allocations made while recording
// frame i land in slot i mod N; when recording wraps around to a slot, the
// ring waits until the submission that last read that slot has completed
// before recycling its chunks.
//
// Ring is not safe for concurrent use; it belongs to one recorder.
type Ring[C any] struct {
	alloc     Allocator[C]
	fence     Fence
	chunkSize uint64
	alignment uint64

	slots   []slot[C]
	current int

	// free holds recycled chunks with their bump pointers reset.
	free []chunk[C]

	stats  Stats
	closed bool
}

// DefaultAlignment is the sub-allocation alignment (COPY_BUFFER_ALIGNMENT
// rounded up to the map alignment).
const DefaultAlignment uint64 = 8

// NewRing creates a ring with frames slots. chunkSize is the size of pooled
// chunks; larger uploads get dedicated chunks released with their slot.
func NewRing[C any](alloc Allocator[C], fence Fence, frames int, chunkSize uint64) *Ring[C] {
	if frames < 1 {
		frames = 1
	}
	return &Ring[C]{
		alloc:     alloc,
		fence:     fence,
		chunkSize: max(chunkSize, DefaultAlignment),
		alignment: DefaultAlignment,
		slots:     make([]slot[C], frames),
	}
}

// Frames returns the number of slots.
func (r *Ring[C]) Frames() int {
	return len(r.slots)
}

// Current returns the index of the slot receiving allocations.
func (r *Ring[C]) Current() int {
	return r.current
}

// Stats returns activity counters.
func (r *Ring[C]) Stats() Stats {
	return r.stats
}

// Allocate copies data into the current slot and returns its location.
func (r *Ring[C]) Allocate(ctx context.Context, data []byte) (Allocation[C], error) {
	var zero Allocation[C]
	if r.closed {
		return zero, ErrClosed
	}
	size := uint64(len(data))
	if size == 0 {
		return zero, nil
	}
	s := &r.slots[r.current]
	s.dirty = true
	aligned := alignUp(size, r.alignment)

	if aligned > r.chunkSize {
		handle, err := r.alloc.CreateChunk(size)
		if err != nil {
			return zero, fmt.Errorf("staging: create oversized chunk (%d bytes): %w", size, err)
		}
		if err := r.alloc.Write(handle, 0, data); err != nil {
			r.alloc.DestroyChunk(handle)
			return zero, fmt.Errorf("staging: write oversized chunk: %w", err)
		}
		s.oversized = append(s.oversized, handle)
		r.stats.Oversized++
		return Allocation[C]{Chunk: handle, Size: size}, nil
	}

	for i := range s.chunks {
		if off, ok := s.chunks[i].tryAllocate(aligned); ok {
			return r.write(&s.chunks[i], off, data)
		}
	}

	var c chunk[C]
	if n := len(r.free); n > 0 {
		c = r.free[n-1]
		r.free = r.free[:n-1]
		r.stats.ChunksRecycled++
	} else {
		handle, err := r.alloc.CreateChunk(r.chunkSize)
		if err != nil {
			return zero, fmt.Errorf("staging: create chunk: %w", err)
		}
		c = chunk[C]{handle: handle, size: r.chunkSize}
		r.stats.ChunksCreated++
	}
	s.chunks = append(s.chunks, c)
	last := &s.chunks[len(s.chunks)-1]
	off, _ := last.tryAllocate(aligned)
	return r.write(last, off, data)
}

func (r *Ring[C]) write(c *chunk[C], off uint64, data []byte) (Allocation[C], error) {
	if err := r.alloc.Write(c.handle, off, data); err != nil {
		c.offset = off
		return Allocation[C]{}, fmt.Errorf("staging: write chunk: %w", err)
	}
	return Allocation[C]{Chunk: c.handle, Offset: off, Size: uint64(len(data))}, nil
}

// MarkSubmitted records that submission reads every allocation made in the
// current slot so far.
func (r *Ring[C]) MarkSubmitted(submission uint64) {
	s := &r.slots[r.current]
	if s.dirty && submission > s.submission {
		s.submission = submission
	}
}

// Advance moves recording to the next slot. If that slot is still read by
// an incomplete submission, Advance waits for it before recycling the
// slot's chunks.
func (r *Ring[C]) Advance(ctx context.Context) error {
	if r.closed {
		return ErrClosed
	}
	next := (r.current + 1) % len(r.slots)
	if err := r.reclaim(ctx, &r.slots[next]); err != nil {
		return err
	}
	r.current = next
	return nil
}

// reclaim waits for the slot's last submission and recycles its memory.
func (r *Ring[C]) reclaim(ctx context.Context, s *slot[C]) error {
	if !s.dirty {
		return nil
	}
	if s.submission > r.fence.Completed() {
		r.stats.Waits++
		if err := r.fence.Wait(ctx, s.submission); err != nil {
			return fmt.Errorf("staging: wait for submission %d: %w", s.submission, err)
		}
	}
	for _, c := range s.chunks {
		c.offset = 0
		r.free = append(r.free, c)
	}
	for _, h := range s.oversized {
		r.alloc.DestroyChunk(h)
	}
	*s = slot[C]{}
	return nil
}

// Close waits for every slot and destroys all chunks.
func (r *Ring[C]) Close(ctx context.Context) error {
	if r.closed {
		return nil
	}
	var errs []error
	for i := range r.slots {
		if err := r.reclaim(ctx, &r.slots[i]); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range r.free {
		r.alloc.DestroyChunk(c.handle)
	}
	r.free = nil
	r.closed = true
	return errors.Join(errs...)
}

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}
