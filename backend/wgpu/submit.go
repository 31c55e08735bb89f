package wgpu

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// encoderPool reuses hal.CommandEncoder instances across submissions.
// Encoders come back to the pool only after the submission holding their
// command buffer has completed and ResetAll has run.
type encoderPool struct {
	mu   sync.Mutex
	free []hal.CommandEncoder
	dev  hal.Device
}

// poolManagedSetter is implemented by HAL encoders that need special setup
// when managed by a pool (the Vulkan encoder).
type poolManagedSetter interface {
	SetPoolManaged(managed bool)
}

func newEncoderPool(dev hal.Device) *encoderPool {
	return &encoderPool{dev: dev}
}

// acquire returns an encoder that is recording.
func (p *encoderPool) acquire(label string) (hal.CommandEncoder, error) {
	var enc hal.CommandEncoder
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		enc = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
	}
	p.mu.Unlock()

	if enc == nil {
		var err error
		enc, err = p.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
		if err != nil {
			return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
		}
		if setter, ok := enc.(poolManagedSetter); ok {
			setter.SetPoolManaged(true)
		}
	}
	if err := enc.BeginEncoding(label); err != nil {
		p.release(enc)
		return nil, fmt.Errorf("wgpu: begin encoding %q: %w", label, err)
	}
	return enc, nil
}

// recycle resets enc together with its completed command buffer and
// returns it to the pool.
func (p *encoderPool) recycle(enc hal.CommandEncoder, cb hal.CommandBuffer) {
	enc.ResetAll([]hal.CommandBuffer{cb})
	p.release(enc)
}

func (p *encoderPool) release(enc hal.CommandEncoder) {
	p.mu.Lock()
	p.free = append(p.free, enc)
	p.mu.Unlock()
}

func (p *encoderPool) destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, enc := range p.free {
		enc.Destroy()
	}
	p.free = nil
}

// retiree is cleanup that runs once a submission has completed.
type retiree struct {
	after uint64
	fn    func()
}

// finish ends enc, submits the command buffer and schedules the encoder
// for reuse once the submission completes.
func (s *System) finish(enc hal.CommandEncoder) (uint64, error) {
	cb, err := enc.EndEncoding()
	if err != nil {
		enc.DiscardEncoding()
		s.pool.release(enc)
		return 0, fmt.Errorf("wgpu: end encoding: %w", err)
	}
	s.submitMu.Lock()
	idx, err := s.queue.Submit([]hal.CommandBuffer{cb})
	if err == nil {
		s.submitted = idx
	}
	s.submitMu.Unlock()
	if err != nil {
		s.pool.recycle(enc, cb)
		return 0, fmt.Errorf("wgpu: submit: %w", err)
	}
	s.retire(idx, func() { s.pool.recycle(enc, cb) })
	s.collect()
	return idx, nil
}

// lastSubmitted returns the index of the last submission.
func (s *System) lastSubmitted() uint64 {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	return s.submitted
}

// retire runs fn once submission after has completed.
func (s *System) retire(after uint64, fn func()) {
	s.retireMu.Lock()
	s.retirees = append(s.retirees, retiree{after: after, fn: fn})
	s.retireMu.Unlock()
}

// deferred is cleanup of an object that contexts recording at disposal
// time may still reference from commands they have not submitted.
type deferred struct {
	fn      func()
	after   uint64
	waiting map[*renderContext]struct{}
}

// dispose schedules fn for when no recorded or submitted command can
// reference the object any more: after the current submission, and after
// the next submission of every context that is recording.
func (s *System) dispose(fn func()) {
	d := &deferred{fn: fn, after: s.lastSubmitted(), waiting: make(map[*renderContext]struct{})}
	s.mu.Lock()
	for _, c := range s.contexts {
		if c.recording.Load() {
			d.waiting[c] = struct{}{}
		}
	}
	if len(d.waiting) > 0 {
		s.deferred = append(s.deferred, d)
	}
	s.mu.Unlock()
	if len(d.waiting) == 0 {
		s.retire(d.after, fn)
	}
}

// flushed records that c submitted its commands as submission idx, or
// dropped them when idx is zero, and retires the cleanup no longer
// waiting for any context.
func (s *System) flushed(c *renderContext, idx uint64) {
	var ready []*deferred
	s.mu.Lock()
	keep := s.deferred[:0]
	for _, d := range s.deferred {
		if _, ok := d.waiting[c]; ok {
			delete(d.waiting, c)
			d.after = max(d.after, idx)
		}
		if len(d.waiting) == 0 {
			ready = append(ready, d)
		} else {
			keep = append(keep, d)
		}
	}
	clear(s.deferred[len(keep):])
	s.deferred = keep
	s.mu.Unlock()
	for _, d := range ready {
		s.retire(d.after, d.fn)
	}
}

// collect runs the cleanup of every completed submission.
func (s *System) collect() {
	completed := s.Completed()
	s.retireMu.Lock()
	var due []retiree
	keep := s.retirees[:0]
	for _, r := range s.retirees {
		if r.after <= completed {
			due = append(due, r)
		} else {
			keep = append(keep, r)
		}
	}
	s.retirees = keep
	s.retireMu.Unlock()
	for _, r := range due {
		r.fn()
	}
}

// collectAll runs every pending cleanup. The device must be idle.
func (s *System) collectAll() {
	s.retireMu.Lock()
	due := s.retirees
	s.retirees = nil
	s.retireMu.Unlock()
	for _, r := range due {
		r.fn()
	}
}

// Completed returns the index of the last completed submission.
func (s *System) Completed() uint64 {
	return s.queue.PollCompleted()
}

// Wait blocks until submission has completed or ctx is done. The HAL
// offers no completion callback, so the queue is polled with a backoff.
func (s *System) Wait(ctx context.Context, submission uint64) error {
	delay := 50 * time.Microsecond
	for s.Completed() < submission {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, 2*time.Millisecond)
	}
	s.collect()
	return nil
}
