// Package engine implements the per-session execution context for the
// quarry numerical runtime: device identity, an ordered execution
// stream, overridable call settings, and the scratch-memory arena that
// operations negotiate with through a two-phase size-query protocol.
package engine

import (
	"fmt"
	"unsafe"

	"github.com/google/uuid"

	"github.com/jbaileyhandle/quarry/internal/device"
	"github.com/jbaileyhandle/quarry/internal/logger"
)

// PointerMode selects whether scalar arguments passed to operations are
// host-resident or device-resident.
type PointerMode int32

const (
	PointerModeHost PointerMode = iota
	PointerModeDevice
)

func (m PointerMode) String() string {
	if m == PointerModeDevice {
		return "device"
	}
	return "host"
}

// AtomicsMode controls whether operations may use device atomics that
// trade bitwise reproducibility for speed.
type AtomicsMode int32

const (
	AtomicsNotAllowed AtomicsMode = iota
	AtomicsAllowed
)

// LogMode is a bitmask enabling per-call diagnostic logging layers.
type LogMode uint32

const (
	LogNone    LogMode = 0
	LogTrace   LogMode = 1 << 0
	LogBench   LogMode = 1 << 1
	LogProfile LogMode = 1 << 2
)

// Context is the per-session handle coordinating device identity, the
// execution stream, call settings, and the device-memory pool. Exactly
// one logical caller drives a context at a time; contexts share nothing,
// so independent contexts may be used from different goroutines freely.
type Context struct {
	id  string
	log logger.Logger

	dev    device.Device
	props  device.Props
	stream device.Stream

	// Event pair for timing kernel spans on the stream.
	startEvent device.Event
	stopEvent  device.Event

	// Settings. Each may be temporarily overridden with Push; nested
	// calls use PushPointerMode / PushAnyOrder so the prior value is
	// restored on every exit path.
	PointerMode PointerMode
	LogMode     LogMode
	AtomicsMode AtomicsMode

	// AnyOrder permits relaxed scheduling of partial results for calls
	// that tolerate reordering.
	AnyOrder bool

	// Ambient workspace published by an AcquireWorkspace handle for
	// kernel integrations that read context state instead of taking a
	// buffer argument. Weak reference only; the pool stays the owner.
	Workspace     unsafe.Pointer
	WorkspaceSize int64

	// Memory arena state, see memory.go.
	state      memState
	mem        unsafe.Pointer
	memSize    int64
	managed    bool // pool is allocated and freed by the library
	querySize  int64
	queryLast  Status
	queryFloor int64

	stats  MemoryStats
	closed bool
}

type option func(*newConfig)

type newConfig struct {
	kind  string
	index int
	log   logger.Logger
	dev   device.Device
}

// WithDevice selects the device backend ("host", "cuda" or "auto") and
// device index the context binds to.
func WithDevice(kind string, index int) option {
	return func(c *newConfig) {
		c.kind = kind
		c.index = index
	}
}

// WithLogger overrides the context's logger.
func WithLogger(log logger.Logger) option {
	return func(c *newConfig) { c.log = log }
}

// WithDeviceHandle injects an already-opened device. The context takes
// ownership and closes it on Close.
func WithDeviceHandle(dev device.Device) option {
	return func(c *newConfig) { c.dev = dev }
}

// New creates an execution context bound to one device. The memory pool
// is not allocated here; it is grown lazily by the first real Malloc.
func New(opts ...option) (*Context, error) {
	cfg := newConfig{kind: device.Auto}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.Default()
	}

	dev := cfg.dev
	if dev == nil {
		var err error
		dev, err = device.Open(cfg.kind, cfg.index)
		if err != nil {
			return nil, fmt.Errorf("open device: %w", err)
		}
	}

	stream, err := dev.NewStream()
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("create stream: %w", err)
	}
	startEvent, err := dev.NewEvent()
	if err != nil {
		_ = stream.Destroy()
		_ = dev.Close()
		return nil, fmt.Errorf("create start event: %w", err)
	}
	stopEvent, err := dev.NewEvent()
	if err != nil {
		_ = startEvent.Destroy()
		_ = stream.Destroy()
		_ = dev.Close()
		return nil, fmt.Errorf("create stop event: %w", err)
	}

	id := uuid.NewString()
	c := &Context{
		id:          id,
		log:         cfg.log.With("context", id),
		dev:         dev,
		props:       dev.Props(),
		stream:      stream,
		startEvent:  startEvent,
		stopEvent:   stopEvent,
		PointerMode: PointerModeHost,
		LogMode:     LogNone,
		AtomicsMode: AtomicsAllowed,
		managed:     true,
	}
	c.log.Debug("context created", "device", c.props.Name, "index", c.props.Index)
	return c, nil
}

// Close tears the context down: the pool is released if library-managed,
// then the timing events, stream and device are destroyed. A live
// Scratch at Close time is a caller defect and is reported as an error.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var firstErr error
	if c.state == memAllocated {
		firstErr = fmt.Errorf("close with live allocation: %w", ErrPoolInUse)
	}
	if c.mem != nil && c.managed {
		if err := c.dev.Allocator().Free(c.mem); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("free pool: %w", err)
		}
	}
	c.mem = nil
	c.memSize = 0
	c.Workspace = nil
	c.WorkspaceSize = 0

	if err := c.stopEvent.Destroy(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.startEvent.Destroy(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.stream.Destroy(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.dev.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	c.log.Debug("context closed")
	return firstErr
}

// ID returns the context's unique identifier.
func (c *Context) ID() string { return c.id }

// Device returns the capability snapshot taken when the context bound
// to its device.
func (c *Context) Device() device.Props { return c.props }

// Stream returns the context's ordered execution stream. All device
// work issued through this context is enqueued on it.
func (c *Context) Stream() device.Stream { return c.stream }

// Events returns the start/stop timing event pair.
func (c *Context) Events() (start, stop device.Event) {
	return c.startEvent, c.stopEvent
}

// PushPointerMode temporarily changes the pointer mode, returning the
// guard that restores the prior mode.
func (c *Context) PushPointerMode(mode PointerMode) *Pushed[PointerMode] {
	return Push(&c.PointerMode, mode)
}

// PushAnyOrder temporarily changes the relaxed-scheduling flag.
func (c *Context) PushAnyOrder(anyOrder bool) *Pushed[bool] {
	return Push(&c.AnyOrder, anyOrder)
}
