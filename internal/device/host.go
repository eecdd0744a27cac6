package device

import (
	"fmt"
	"sync"
	"time"
	"unsafe"
)

// hostDevice simulates an accelerator with page-aligned host memory.
// Streams are synchronous, so ordering is trivially program order and
// events time out to wall-clock spans.
type hostDevice struct {
	props Props
	alloc *hostAllocator
}

func newHost(index int) (Device, error) {
	return &hostDevice{
		props: Props{Kind: Host, Index: index, Name: fmt.Sprintf("host-%d", index)},
		alloc: &hostAllocator{slabs: make(map[unsafe.Pointer][]byte)},
	}, nil
}

func (d *hostDevice) Props() Props         { return d.props }
func (d *hostDevice) Allocator() Allocator { return d.alloc }

func (d *hostDevice) NewStream() (Stream, error) { return hostStream{}, nil }
func (d *hostDevice) NewEvent() (Event, error)   { return &hostEvent{}, nil }

func (d *hostDevice) Close() error { return d.alloc.releaseAll() }

// hostAllocator tracks live slabs so Close can reclaim leaks and Free
// can reject pointers it never handed out.
type hostAllocator struct {
	mu    sync.Mutex
	slabs map[unsafe.Pointer][]byte
}

func (a *hostAllocator) Malloc(n int64) (unsafe.Pointer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("host malloc of %d bytes", n)
	}
	// int(n) truncates on 32-bit platforms.
	if int64(int(n)) != n {
		return nil, fmt.Errorf("host malloc of %d bytes exceeds the address space", n)
	}
	b, err := mapSlab(int(n))
	if err != nil {
		return nil, fmt.Errorf("host malloc %d bytes: %w", n, err)
	}
	p := unsafe.Pointer(&b[0])
	a.mu.Lock()
	a.slabs[p] = b
	a.mu.Unlock()
	return p, nil
}

func (a *hostAllocator) Free(p unsafe.Pointer) error {
	if p == nil {
		return nil
	}
	a.mu.Lock()
	b, ok := a.slabs[p]
	delete(a.slabs, p)
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("host free of unknown pointer %p", p)
	}
	return unmapSlab(b)
}

func (a *hostAllocator) releaseAll() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for p, b := range a.slabs {
		if err := unmapSlab(b); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(a.slabs, p)
	}
	return firstErr
}

type hostStream struct{}

func (hostStream) Synchronize() error { return nil }
func (hostStream) Destroy() error     { return nil }

type hostEvent struct {
	at time.Time
}

func (e *hostEvent) Record(Stream) error {
	e.at = time.Now()
	return nil
}

func (e *hostEvent) Since(start Event) (time.Duration, error) {
	s, ok := start.(*hostEvent)
	if !ok {
		return 0, fmt.Errorf("start event is not a host event")
	}
	if s.at.IsZero() || e.at.IsZero() {
		return 0, fmt.Errorf("event not recorded")
	}
	return e.at.Sub(s.at), nil
}

func (e *hostEvent) Destroy() error { return nil }
