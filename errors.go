package rhi

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by all backends. Backends wrap these sentinels with
// the failing operation, so callers test with errors.Is.
var (
	// ErrCapability is returned at creation time when a descriptor requests a
	// feature the active backend does not support.
	ErrCapability = errors.New("rhi: capability not supported")

	// ErrResourceOverflow is returned when an update targets bytes outside
	// the destination's allocated capacity.
	ErrResourceOverflow = errors.New("rhi: resource overflow")

	// ErrDimensionMismatch is returned when a render target attachment does
	// not match the size fixed by the first attachment.
	ErrDimensionMismatch = errors.New("rhi: attachment dimension mismatch")

	// ErrValidation is returned when a resource is used in a state that is
	// incompatible with the use, or a recording call breaks its contract.
	ErrValidation = errors.New("rhi: validation failed")

	// ErrCreation is returned when an object cannot be created.
	ErrCreation = errors.New("rhi: creation failed")

	// ErrReleased is returned when a released object is used.
	ErrReleased = errors.New("rhi: object has been released")

	// ErrBackendNotAvailable is returned when a requested backend is not registered.
	ErrBackendNotAvailable = errors.New("rhi: backend not available")

	// ErrForeignObject is returned when an object created by another render
	// system or backend is passed in.
	ErrForeignObject = fmt.Errorf("rhi: object belongs to a different render system: %w", ErrValidation)

	// ErrQueryState is returned for an illegal query transition, such as
	// reading a result while the query is recording or nesting two queries
	// of the same kind. It also matches ErrValidation.
	ErrQueryState = fmt.Errorf("rhi: illegal query state: %w", ErrValidation)
)
