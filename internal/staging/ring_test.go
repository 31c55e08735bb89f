package staging

import (
	"context"
	"errors"
	"testing"
)

type fakeChunk struct {
	id   int
	data []byte
}

type fakeAllocator struct {
	next      int
	created   []*fakeChunk
	destroyed []*fakeChunk
	failWrite bool
}

func (a *fakeAllocator) CreateChunk(size uint64) (*fakeChunk, error) {
	a.next++
	c := &fakeChunk{id: a.next, data: make([]byte, size)}
	a.created = append(a.created, c)
	return c, nil
}

func (a *fakeAllocator) DestroyChunk(c *fakeChunk) {
	a.destroyed = append(a.destroyed, c)
}

func (a *fakeAllocator) Write(c *fakeChunk, offset uint64, data []byte) error {
	if a.failWrite {
		return errors.New("write failed")
	}
	copy(c.data[offset:], data)
	return nil
}

type fakeFence struct {
	completed uint64
	waits     []uint64
	waitErr   error
}

func (f *fakeFence) Completed() uint64 { return f.completed }

func (f *fakeFence) Wait(_ context.Context, submission uint64) error {
	f.waits = append(f.waits, submission)
	if f.waitErr != nil {
		return f.waitErr
	}
	f.completed = max(f.completed, submission)
	return nil
}

func TestRing_BumpAllocation(t *testing.T) {
	alloc := &fakeAllocator{}
	r := NewRing[*fakeChunk](alloc, &fakeFence{}, 2, 64)

	a, err := r.Allocate(context.Background(), []byte{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Allocate(context.Background(), []byte{4, 5})
	if err != nil {
		t.Fatal(err)
	}

	if a.Chunk != b.Chunk {
		t.Fatal("small allocations should share a chunk")
	}
	if a.Offset != 0 || b.Offset != DefaultAlignment {
		t.Errorf("offsets = %d, %d; want 0, %d", a.Offset, b.Offset, DefaultAlignment)
	}
	if got := b.Chunk.data[b.Offset : b.Offset+b.Size]; got[0] != 4 || got[1] != 5 {
		t.Errorf("chunk bytes = %v, want [4 5]", got)
	}
	if len(alloc.created) != 1 {
		t.Errorf("created %d chunks, want 1", len(alloc.created))
	}
}

func TestRing_ChunkOverflow(t *testing.T) {
	alloc := &fakeAllocator{}
	r := NewRing[*fakeChunk](alloc, &fakeFence{}, 1, 16)
	ctx := context.Background()

	for range 3 {
		if _, err := r.Allocate(ctx, make([]byte, 12)); err != nil {
			t.Fatal(err)
		}
	}
	if len(alloc.created) != 3 {
		t.Errorf("created %d chunks, want 3", len(alloc.created))
	}
}

func TestRing_Oversized(t *testing.T) {
	alloc := &fakeAllocator{}
	fence := &fakeFence{}
	r := NewRing[*fakeChunk](alloc, fence, 1, 16)
	ctx := context.Background()

	a, err := r.Allocate(ctx, make([]byte, 100))
	if err != nil {
		t.Fatal(err)
	}
	if a.Size != 100 || len(a.Chunk.data) != 100 {
		t.Fatalf("oversized allocation = %d bytes in %d byte chunk", a.Size, len(a.Chunk.data))
	}
	if r.Stats().Oversized != 1 {
		t.Errorf("Oversized = %d, want 1", r.Stats().Oversized)
	}

	r.MarkSubmitted(1)
	fence.completed = 1
	if err := r.Advance(ctx); err != nil {
		t.Fatal(err)
	}
	if len(alloc.destroyed) != 1 || alloc.destroyed[0] != a.Chunk {
		t.Errorf("oversized chunk not destroyed on reuse: %v", alloc.destroyed)
	}
}

func TestRing_WaitsBeforeSlotReuse(t *testing.T) {
	alloc := &fakeAllocator{}
	fence := &fakeFence{}
	r := NewRing[*fakeChunk](alloc, fence, 2, 64)
	ctx := context.Background()

	// Frame 0 writes slot 0 and is submitted as 1.
	first, err := r.Allocate(ctx, []byte{0xAA})
	if err != nil {
		t.Fatal(err)
	}
	r.MarkSubmitted(1)
	if err := r.Advance(ctx); err != nil {
		t.Fatal(err)
	}
	if len(fence.waits) != 0 {
		t.Fatalf("advancing into an unused slot waited: %v", fence.waits)
	}

	// Frame 1 writes slot 1, submitted as 2; nothing has completed yet.
	if _, err := r.Allocate(ctx, []byte{0xBB}); err != nil {
		t.Fatal(err)
	}
	r.MarkSubmitted(2)

	// Wrapping to slot 0 must wait for submission 1 before reuse.
	if err := r.Advance(ctx); err != nil {
		t.Fatal(err)
	}
	if len(fence.waits) != 1 || fence.waits[0] != 1 {
		t.Fatalf("waits = %v, want [1]", fence.waits)
	}
	if r.Current() != 0 {
		t.Fatalf("Current() = %d, want 0", r.Current())
	}

	// The recycled chunk is handed out again from offset zero.
	again, err := r.Allocate(ctx, []byte{0xCC})
	if err != nil {
		t.Fatal(err)
	}
	if again.Chunk != first.Chunk || again.Offset != 0 {
		t.Errorf("slot 0 chunk not recycled: got chunk %d offset %d", again.Chunk.id, again.Offset)
	}
	if r.Stats().ChunksRecycled != 1 {
		t.Errorf("ChunksRecycled = %d, want 1", r.Stats().ChunksRecycled)
	}
}

func TestRing_NoWaitWhenCompleted(t *testing.T) {
	fence := &fakeFence{}
	r := NewRing[*fakeChunk](&fakeAllocator{}, fence, 1, 64)
	ctx := context.Background()

	if _, err := r.Allocate(ctx, []byte{1}); err != nil {
		t.Fatal(err)
	}
	r.MarkSubmitted(5)
	fence.completed = 5
	if err := r.Advance(ctx); err != nil {
		t.Fatal(err)
	}
	if len(fence.waits) != 0 {
		t.Errorf("waited on completed submission: %v", fence.waits)
	}
}

func TestRing_WaitError(t *testing.T) {
	fence := &fakeFence{waitErr: context.Canceled}
	r := NewRing[*fakeChunk](&fakeAllocator{}, fence, 1, 64)
	ctx := context.Background()

	if _, err := r.Allocate(ctx, []byte{1}); err != nil {
		t.Fatal(err)
	}
	r.MarkSubmitted(1)
	if err := r.Advance(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Advance() error = %v, want context.Canceled", err)
	}
}

func TestRing_Close(t *testing.T) {
	alloc := &fakeAllocator{}
	r := NewRing[*fakeChunk](alloc, &fakeFence{}, 2, 64)
	ctx := context.Background()

	if _, err := r.Allocate(ctx, []byte{1}); err != nil {
		t.Fatal(err)
	}
	r.MarkSubmitted(1)
	if err := r.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if len(alloc.destroyed) != len(alloc.created) {
		t.Errorf("destroyed %d of %d chunks", len(alloc.destroyed), len(alloc.created))
	}
	if _, err := r.Allocate(ctx, []byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Allocate after Close error = %v, want ErrClosed", err)
	}
}

func TestRing_EmptyAllocation(t *testing.T) {
	alloc := &fakeAllocator{}
	r := NewRing[*fakeChunk](alloc, &fakeFence{}, 1, 64)
	a, err := r.Allocate(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.Size != 0 || len(alloc.created) != 0 {
		t.Errorf("empty allocation created chunks or size %d", a.Size)
	}
}
