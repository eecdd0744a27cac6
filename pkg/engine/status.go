package engine

import (
	"errors"
	"fmt"
)

// Status is the stable numeric status vocabulary surfaced at the public
// API boundary. The values are part of the wire-level ABI shared with
// bindings and must never be reordered.
type Status int32

const (
	StatusSuccess           Status = 0  // call completed normally
	StatusInvalidHandle     Status = 1  // context is nil or closed
	StatusNotImplemented    Status = 2
	StatusInvalidPointer    Status = 3
	StatusInvalidSize       Status = 4 // a requested size is negative
	StatusMemoryError       Status = 5 // device allocation failed
	StatusInternalError     Status = 6 // caller defect (reentrancy, wrong mode)
	StatusPerfDegraded      Status = 7
	StatusSizeQueryMismatch Status = 8 // size-query start/stop out of order
	StatusSizeIncreased     Status = 9
	StatusSizeUnchanged     Status = 10
	StatusInvalidValue      Status = 11
	StatusContinue          Status = 12
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusInvalidHandle:
		return "invalid_handle"
	case StatusNotImplemented:
		return "not_implemented"
	case StatusInvalidPointer:
		return "invalid_pointer"
	case StatusInvalidSize:
		return "invalid_size"
	case StatusMemoryError:
		return "memory_error"
	case StatusInternalError:
		return "internal_error"
	case StatusPerfDegraded:
		return "perf_degraded"
	case StatusSizeQueryMismatch:
		return "size_query_mismatch"
	case StatusSizeIncreased:
		return "size_increased"
	case StatusSizeUnchanged:
		return "size_unchanged"
	case StatusInvalidValue:
		return "invalid_value"
	case StatusContinue:
		return "continue"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Sentinel errors returned by the memory arena. Callers are expected to
// test with errors.Is and translate to a Status with StatusOf at the
// public boundary.
var (
	// ErrDeviceMemory reports that the underlying device allocator could
	// not satisfy a request. This is the only error class expected in
	// production; everything below indicates a defect in the caller.
	ErrDeviceMemory = errors.New("engine: device memory allocation failed")

	// ErrPoolInUse reports that a second allocation was requested while a
	// previously returned Scratch is still live on the same context.
	ErrPoolInUse = errors.New("engine: device memory pool already in use")

	// ErrBadMode reports an operation invalid for the current memory
	// state, e.g. a real allocation while a size query is active.
	ErrBadMode = errors.New("engine: operation invalid in current memory state")

	// ErrInvalidSize reports a negative requested size.
	ErrInvalidSize = errors.New("engine: invalid allocation size")

	// ErrClosed reports use of a context after Close.
	ErrClosed = errors.New("engine: context is closed")
)

// StatusOf maps an error returned by the arena to the public status
// vocabulary. A nil error maps to StatusSuccess.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrDeviceMemory):
		return StatusMemoryError
	case errors.Is(err, ErrInvalidSize):
		return StatusInvalidSize
	case errors.Is(err, ErrClosed):
		return StatusInvalidHandle
	case errors.Is(err, ErrPoolInUse), errors.Is(err, ErrBadMode):
		return StatusInternalError
	default:
		return StatusInternalError
	}
}
