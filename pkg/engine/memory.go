package engine

import (
	"fmt"
	"unsafe"
)

const (
	// DefaultDeviceMemorySize is the pool size the first library-managed
	// allocation grows to when the request itself is smaller, so that a
	// typical workload never regrows.
	DefaultDeviceMemorySize = 4 * 1048576

	// MinChunkSize is the alignment boundary every sub-allocation is
	// rounded up to. Power of two, large enough for any element type.
	MinChunkSize = 64
)

// memState is the arena's explicit state machine. Query accumulation is
// only legal in memQuerying, real allocation only in memIdle; the
// invalid combinations are reported instead of silently misbehaving.
type memState int32

const (
	memIdle memState = iota
	memQuerying
	memAllocated
)

// MemoryStats is a point-in-time snapshot of the arena's bookkeeping,
// exposed for the diagnostics surface.
type MemoryStats struct {
	PoolSize      int64  `json:"pool_size"`
	InUse         bool   `json:"in_use"`
	QueryActive   bool   `json:"query_active"`
	Managed       bool   `json:"managed"`
	QuerySize     int64  `json:"query_size"`
	QueryPasses   uint64 `json:"query_passes"`
	Allocations   uint64 `json:"allocations"`
	Grows         uint64 `json:"grows"`
	PeakRequest   int64  `json:"peak_request"`
	WorkspaceSize int64  `json:"workspace_size"`
}

// roundUpChunk rounds size up to the next multiple of MinChunkSize.
// Sizes are rounded independently before summing; the resulting pool is
// conservatively larger than rounding the sum once, and callers depend
// on that when they pre-size pools from a query pass.
func roundUpChunk(size int64) int64 {
	if size <= 0 {
		return 0
	}
	return ((size - 1) | (MinChunkSize - 1)) + 1
}

// IsSizeQuery reports whether the context is currently being probed for
// its peak scratch requirement. Operations check this first and, when
// true, register their sizes with SetOptimalSize and return without
// doing any real work.
func (c *Context) IsSizeQuery() bool {
	return c.state == memQuerying
}

// StartSizeQuery begins a size-query pass, resetting the accumulator.
// Fails with StatusSizeQueryMismatch if a pass is already active or an
// allocation is outstanding; query passes do not nest.
func (c *Context) StartSizeQuery() Status {
	if c.closed {
		return StatusInvalidHandle
	}
	if c.state != memIdle {
		return StatusSizeQueryMismatch
	}
	c.state = memQuerying
	c.querySize = 0
	c.queryLast = StatusSizeUnchanged
	c.stats.QueryPasses++
	return StatusSuccess
}

// StopSizeQuery ends the pass and returns the accumulated size: the
// maximum over all SetOptimalSize calls of their chunk-rounded totals.
// That size becomes the floor for the next pool growth.
func (c *Context) StopSizeQuery() (int64, Status) {
	if c.closed {
		return 0, StatusInvalidHandle
	}
	if c.state != memQuerying {
		return 0, StatusSizeQueryMismatch
	}
	c.state = memIdle
	c.queryFloor = c.querySize
	return c.querySize, StatusSuccess
}

// SetOptimalSize registers an operation's scratch requirement during a
// size-query pass. Each size is rounded up to MinChunkSize before
// summing, matching the offsets a real Malloc of the same sizes would
// produce. Returns StatusSizeIncreased when the total raises the
// running maximum, StatusSizeUnchanged otherwise, and
// StatusInternalError when no query is active (a caller defect).
func (c *Context) SetOptimalSize(sizes ...int64) Status {
	if c.closed {
		return StatusInvalidHandle
	}
	if c.state != memQuerying {
		return StatusInternalError
	}
	var total int64
	for _, size := range sizes {
		if size < 0 {
			return StatusInvalidSize
		}
		total += roundUpChunk(size)
		if total < 0 {
			// The rounded sizes wrapped int64.
			return StatusInvalidSize
		}
	}
	if total > c.querySize {
		c.querySize = total
		c.queryLast = StatusSizeIncreased
		return StatusSizeIncreased
	}
	c.queryLast = StatusSizeUnchanged
	return StatusSizeUnchanged
}

// QueryStatus reports whether the most recent SetOptimalSize of the
// current pass increased the accumulated size. The surrounding API
// layer forwards this as its size-changed/size-unchanged return code.
func (c *Context) QueryStatus() Status {
	if c.state != memQuerying {
		return StatusSizeQueryMismatch
	}
	return c.queryLast
}

// NoScratch is the early return for operations that need no device
// scratch: during a query pass it registers nothing and reports
// size-unchanged, otherwise it is a caller defect.
func (c *Context) NoScratch() Status {
	if c.state != memQuerying {
		return StatusInternalError
	}
	c.queryLast = StatusSizeUnchanged
	return StatusSizeUnchanged
}

// Malloc carves one sub-buffer per requested size out of the context's
// pool and returns the scratch handle addressing them. Offsets are a
// running prefix sum of the chunk-rounded sizes, so every sub-buffer is
// disjoint and MinChunkSize-aligned; a zero size yields a nil pointer
// and consumes nothing. The pool grows if the total exceeds its current
// size (never shrinks) and growth honors the floor recorded by the last
// query pass. At most one live handle may exist per context; the caller
// must Release it, normally via defer, before the next Malloc.
func (c *Context) Malloc(sizes ...int64) (*Scratch, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("no sizes requested: %w", ErrInvalidSize)
	}
	switch c.state {
	case memQuerying:
		return nil, fmt.Errorf("allocation during size query: %w", ErrBadMode)
	case memAllocated:
		return nil, fmt.Errorf("previous scratch handle still live: %w", ErrPoolInUse)
	}

	offsets := make([]int64, len(sizes))
	var total int64
	for i, size := range sizes {
		if size < 0 {
			return nil, fmt.Errorf("size %d is negative: %w", size, ErrInvalidSize)
		}
		offsets[i] = total
		total += roundUpChunk(size)
		if total < 0 {
			// The rounded sizes wrapped int64; a wrapped total would
			// slip past reserve and hand out pointers beyond the pool.
			return nil, fmt.Errorf("requested sizes sum past the addressable range: %w", ErrInvalidSize)
		}
	}

	// A zero-byte request succeeds with nil pointers and never locks or
	// touches the pool.
	if total == 0 {
		return &Scratch{ctx: c, ptrs: make([]unsafe.Pointer, len(sizes))}, nil
	}

	if err := c.reserve(total); err != nil {
		return nil, err
	}

	ptrs := make([]unsafe.Pointer, len(sizes))
	for i, size := range sizes {
		if size > 0 {
			ptrs[i] = unsafe.Add(c.mem, uintptr(offsets[i]))
		}
	}

	c.state = memAllocated
	c.stats.Allocations++
	if total > c.stats.PeakRequest {
		c.stats.PeakRequest = total
	}
	return &Scratch{ctx: c, ptrs: ptrs, total: total, locked: true}, nil
}

// reserve makes the pool at least total bytes. An externally supplied
// pool is never grown or replaced; when library-managed, the old buffer
// is released and a larger one allocated, sized to the largest of the
// request, the last query pass and (for the first growth) the default.
func (c *Context) reserve(total int64) error {
	if total <= c.memSize {
		return nil
	}
	if !c.managed {
		return fmt.Errorf("supplied workspace of %d bytes is smaller than the %d required: %w",
			c.memSize, total, ErrDeviceMemory)
	}

	newSize := total
	if c.queryFloor > newSize {
		newSize = c.queryFloor
	}
	if c.mem == nil && newSize < DefaultDeviceMemorySize {
		newSize = DefaultDeviceMemorySize
	}

	alloc := c.dev.Allocator()
	if c.mem != nil {
		if err := alloc.Free(c.mem); err != nil {
			c.mem = nil
			c.memSize = 0
			return fmt.Errorf("release pool before growth: %w", err)
		}
		c.mem = nil
		c.memSize = 0
	}

	ptr, err := alloc.Malloc(newSize)
	if err != nil {
		c.log.Warn("pool growth failed", "requested", newSize, "error", err)
		return fmt.Errorf("grow pool to %d bytes: %w: %v", newSize, ErrDeviceMemory, err)
	}
	c.mem = ptr
	c.memSize = newSize
	c.stats.Grows++
	c.log.Debug("pool grown", "size", newSize)
	return nil
}

// SetDeviceMemorySize resizes the pool to an explicit, chunk-rounded
// size and marks it library-managed. Typical use is feeding back the
// result of a query pass so later Mallocs never grow. Fails while a
// scratch handle is live.
func (c *Context) SetDeviceMemorySize(size int64) error {
	if c.closed {
		return ErrClosed
	}
	if size < 0 {
		return fmt.Errorf("pool size %d is negative: %w", size, ErrInvalidSize)
	}
	if c.state == memAllocated {
		return fmt.Errorf("resize with live scratch handle: %w", ErrPoolInUse)
	}
	if c.mem != nil && c.managed {
		if err := c.dev.Allocator().Free(c.mem); err != nil {
			return fmt.Errorf("release previous pool: %w", err)
		}
	}
	c.mem = nil
	c.memSize = 0
	c.managed = true

	size = roundUpChunk(size)
	if size == 0 {
		return nil
	}
	ptr, err := c.dev.Allocator().Malloc(size)
	if err != nil {
		return fmt.Errorf("allocate %d byte pool: %w: %v", size, ErrDeviceMemory, err)
	}
	c.mem = ptr
	c.memSize = size
	c.stats.Grows++
	return nil
}

// SetWorkspace points the context at an externally owned pool. The
// caller keeps ownership and must free the memory after Close; the
// arena will fail requests larger than size rather than grow. Must be
// set before any allocation is live. Size the pool in MinChunkSize
// multiples: requests round up, so AcquireWorkspace can only claim a
// supplied pool whole when its size is already chunk-aligned.
func (c *Context) SetWorkspace(ptr unsafe.Pointer, size int64) error {
	if c.closed {
		return ErrClosed
	}
	if size < 0 || (ptr == nil && size > 0) {
		return fmt.Errorf("workspace %p/%d: %w", ptr, size, ErrInvalidSize)
	}
	if c.state == memAllocated {
		return fmt.Errorf("set workspace with live scratch handle: %w", ErrPoolInUse)
	}
	if c.mem != nil && c.managed {
		if err := c.dev.Allocator().Free(c.mem); err != nil {
			return fmt.Errorf("release previous pool: %w", err)
		}
	}
	c.mem = ptr
	c.memSize = size
	c.managed = false
	return nil
}

// DeviceMemorySize returns the pool's current size in bytes.
func (c *Context) DeviceMemorySize() int64 { return c.memSize }

// IsManagingDeviceMemory reports whether the pool is allocated and
// freed by the library, as opposed to supplied via SetWorkspace.
func (c *Context) IsManagingDeviceMemory() bool { return c.managed }

// MemoryStats returns a snapshot of the arena's counters.
func (c *Context) MemoryStats() MemoryStats {
	s := c.stats
	s.PoolSize = c.memSize
	s.InUse = c.state == memAllocated
	s.QueryActive = c.state == memQuerying
	s.Managed = c.managed
	s.QuerySize = c.querySize
	s.WorkspaceSize = c.WorkspaceSize
	return s
}
