package track

import (
	"fmt"

	"github.com/gogpu/rhi"
)

// AttachmentSet tracks the size and bind state of a render target's
// attachments. The first attachment fixes the size; every later one must
// match it.
type AttachmentSet struct {
	size  rhi.Extent
	color int
	depth bool
	bound bool
}

// AttachmentKind distinguishes color from depth attachments.
type AttachmentKind uint8

const (
	AttachColor AttachmentKind = iota
	AttachDepth
)

// Attach checks an attachment of the given size and, if it is accepted,
// calls commit and records it. On any error the set is left unchanged and
// commit is not called.
func (s *AttachmentSet) Attach(kind AttachmentKind, size rhi.Extent, commit func() error) error {
	if s.bound {
		return fmt.Errorf("attach to a bound render target: %w", rhi.ErrValidation)
	}
	if size.IsZero() {
		return fmt.Errorf("attachment size %s: %w", size, rhi.ErrCreation)
	}
	if s.Count() > 0 && size != s.size {
		return fmt.Errorf("attachment %s does not match render target %s: %w", size, s.size, rhi.ErrDimensionMismatch)
	}
	if kind == AttachDepth && s.depth {
		return fmt.Errorf("render target already has a depth attachment: %w", rhi.ErrValidation)
	}
	if commit != nil {
		if err := commit(); err != nil {
			return err
		}
	}
	s.size = size
	if kind == AttachDepth {
		s.depth = true
	} else {
		s.color++
	}
	return nil
}

// Reset removes every attachment.
func (s *AttachmentSet) Reset() error {
	if s.bound {
		return fmt.Errorf("detach from a bound render target: %w", rhi.ErrValidation)
	}
	*s = AttachmentSet{}
	return nil
}

// Size returns the fixed size, or zero when empty.
func (s *AttachmentSet) Size() rhi.Extent {
	return s.size
}

// Count returns the number of attachments.
func (s *AttachmentSet) Count() int {
	n := s.color
	if s.depth {
		n++
	}
	return n
}

// Colors returns the number of color attachments.
func (s *AttachmentSet) Colors() int {
	return s.color
}

// HasDepth reports whether a depth attachment is present.
func (s *AttachmentSet) HasDepth() bool {
	return s.depth
}

// Bind marks the set as bound for drawing.
func (s *AttachmentSet) Bind() error {
	if s.Count() == 0 {
		return fmt.Errorf("bind an empty render target: %w", rhi.ErrValidation)
	}
	s.bound = true
	return nil
}

// Unbind marks the set as no longer bound.
func (s *AttachmentSet) Unbind() {
	s.bound = false
}

// Bound reports whether the set is bound.
func (s *AttachmentSet) Bound() bool {
	return s.bound
}
