package software

import (
	"context"
	"sync"
	"sync/atomic"
)

// command is one recorded operation, executed on the device goroutine.
type command func(x *executor)

type batch struct {
	index uint64
	x     *executor
	cmds  []command
}

// device executes submitted batches in order on a single goroutine and
// publishes the index of the last completed batch as a monotonic fence.
type device struct {
	work chan batch
	done chan struct{}

	// mu orders submissions: indices are assigned and queued together.
	mu        sync.Mutex
	submitted uint64
	closed    bool

	completed atomic.Uint64

	sigMu  sync.Mutex
	signal chan struct{}
}

func newDevice() *device {
	d := &device{
		work:   make(chan batch, 16),
		done:   make(chan struct{}),
		signal: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *device) loop() {
	defer close(d.done)
	for b := range d.work {
		for _, cmd := range b.cmds {
			cmd(b.x)
		}
		d.complete(b.index)
	}
}

func (d *device) complete(index uint64) {
	d.completed.Store(index)
	d.sigMu.Lock()
	close(d.signal)
	d.signal = make(chan struct{})
	d.sigMu.Unlock()
}

// submit queues cmds and returns the submission index. Submitting to a
// closed device returns 0.
func (d *device) submit(x *executor, cmds []command) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0
	}
	d.submitted++
	d.work <- batch{index: d.submitted, x: x, cmds: cmds}
	return d.submitted
}

// Submitted returns the index of the last submission.
func (d *device) Submitted() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submitted
}

// Completed returns the index of the last completed submission.
func (d *device) Completed() uint64 {
	return d.completed.Load()
}

// Wait blocks until submission has completed or ctx is done.
func (d *device) Wait(ctx context.Context, submission uint64) error {
	for {
		if d.completed.Load() >= submission {
			return nil
		}
		d.sigMu.Lock()
		ch := d.signal
		d.sigMu.Unlock()
		if d.completed.Load() >= submission {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// run executes fn on the device goroutine after all earlier submissions
// and waits for it.
func (d *device) run(ctx context.Context, fn func()) error {
	idx := d.submit(nil, []command{func(*executor) { fn() }})
	if idx == 0 {
		return errDeviceClosed
	}
	return d.Wait(ctx, idx)
}

// close drains the queue and stops the device goroutine.
func (d *device) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.work)
	d.mu.Unlock()
	<-d.done
}
