package engine

import "unsafe"

// Scratch is the scoped handle to one or more sub-buffers carved out of
// a context's pool by Malloc. The pointers stay valid until Release,
// which returns the arena to idle; the memory may be handed out again
// by the very next Malloc, so all device work using it must already be
// enqueued on the context's stream by then. The arena itself never
// synchronizes with the stream.
//
// A Scratch is not copyable (vet flags copies) and must be released
// exactly once per Malloc, normally with defer.
type Scratch struct {
	noCopy noCopy

	ctx    *Context
	ptrs   []unsafe.Pointer
	total  int64
	locked bool // this handle holds the context's in-use lock
	done   bool
}

// Ptrs returns the sub-buffer addresses in request order. Entries for
// zero-size requests are nil.
func (s *Scratch) Ptrs() []unsafe.Pointer { return s.ptrs }

// Ptr returns the i'th sub-buffer address.
func (s *Scratch) Ptr(i int) unsafe.Pointer { return s.ptrs[i] }

// Pointer returns the address of a single-buffer allocation. Calling it
// on a multi-buffer handle is a caller defect.
func (s *Scratch) Pointer() unsafe.Pointer {
	if len(s.ptrs) != 1 {
		panic("engine: Pointer called on multi-buffer scratch handle")
	}
	return s.ptrs[0]
}

// TotalSize returns the pool space consumed, i.e. the sum of the
// requested sizes after chunk rounding.
func (s *Scratch) TotalSize() int64 { return s.total }

// Release returns the arena to idle. Idempotent, and safe on handles
// that never locked the pool (zero-byte allocations), so a failed or
// empty request can never wedge the context.
func (s *Scratch) Release() {
	if s == nil || s.done {
		return
	}
	s.done = true
	if s.locked {
		s.ctx.state = memIdle
		s.locked = false
	}
}
