package track

import (
	"fmt"

	"github.com/gogpu/rhi"
)

// Transition is one recorded resource state change.
type Transition struct {
	From, To rhi.ResourceState
}

// UploadTransitions returns the transitions that bracket a copy into a
// resource currently in state current that must end in target: into
// CopyDest before the copy, back to target after it.
func UploadTransitions(current, target rhi.ResourceState) (before, after []Transition) {
	if current != rhi.StateCopyDest {
		before = []Transition{{From: current, To: rhi.StateCopyDest}}
	}
	if target != rhi.StateCopyDest {
		after = []Transition{{From: rhi.StateCopyDest, To: target}}
	}
	return before, after
}

// Require returns an ErrValidation error if have differs from want.
func Require(what string, have, want rhi.ResourceState) error {
	if have != want {
		return fmt.Errorf("%s in state %s, want %s: %w", what, have, want, rhi.ErrValidation)
	}
	return nil
}

// RequireKind returns an ErrValidation error if a buffer of kind have is
// bound where kind want is expected.
func RequireKind(what string, have, want rhi.BufferKind) error {
	if have != want {
		return fmt.Errorf("%s: %s buffer bound as %s buffer: %w", what, have, want, rhi.ErrValidation)
	}
	return nil
}

// RequireRange returns an ErrValidation error unless elements
// [first, first+count) of the given stride lie within size bytes. The
// check is done in uint64 and cannot wrap.
func RequireRange(what string, first, count int, stride, size uint64) error {
	if first < 0 || count < 0 {
		return fmt.Errorf("%s: range of %d from %d: %w", what, count, first, rhi.ErrValidation)
	}
	if stride == 0 {
		return nil
	}
	capacity := size / stride
	if f, n := uint64(first), uint64(count); f > capacity || n > capacity-f {
		return fmt.Errorf("%s: elements [%d, %d+%d) overrun %d: %w", what, first, first, count, capacity, rhi.ErrValidation)
	}
	return nil
}
