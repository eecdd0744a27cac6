package engine

import (
	"testing"
	"time"
	"unsafe"

	"github.com/jbaileyhandle/quarry/internal/device"
)

// fakeDevice implements device.Device against plain heap slabs so the
// arena's bookkeeping can be observed and allocation failures forced.
type fakeDevice struct {
	alloc *fakeAllocator
}

type fakeAllocator struct {
	fail    bool
	mallocs int
	frees   int
	lastN   int64
	slabs   map[unsafe.Pointer][]byte
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{alloc: &fakeAllocator{slabs: make(map[unsafe.Pointer][]byte)}}
}

func (d *fakeDevice) Props() device.Props {
	return device.Props{Kind: "fake", Name: "fake-0"}
}

func (d *fakeDevice) Allocator() device.Allocator { return d.alloc }

func (d *fakeDevice) NewStream() (device.Stream, error) { return fakeStream{}, nil }
func (d *fakeDevice) NewEvent() (device.Event, error)   { return &fakeEvent{}, nil }
func (d *fakeDevice) Close() error                      { return nil }

func (a *fakeAllocator) Malloc(n int64) (unsafe.Pointer, error) {
	if a.fail {
		return nil, errFakeOOM
	}
	a.mallocs++
	a.lastN = n
	// Over-allocate so the base is MinChunkSize-aligned like a real
	// device allocator's would be.
	raw := make([]byte, n+MinChunkSize)
	base := uintptr(unsafe.Pointer(&raw[0]))
	off := (MinChunkSize - base%MinChunkSize) % MinChunkSize
	p := unsafe.Pointer(&raw[off])
	a.slabs[p] = raw
	return p, nil
}

func (a *fakeAllocator) Free(p unsafe.Pointer) error {
	a.frees++
	delete(a.slabs, p)
	return nil
}

type fakeStream struct{}

func (fakeStream) Synchronize() error { return nil }
func (fakeStream) Destroy() error     { return nil }

type fakeEvent struct{ at time.Time }

func (e *fakeEvent) Record(device.Stream) error { e.at = time.Now(); return nil }
func (e *fakeEvent) Since(start device.Event) (time.Duration, error) {
	return e.at.Sub(start.(*fakeEvent).at), nil
}
func (e *fakeEvent) Destroy() error { return nil }

type fakeError string

func (e fakeError) Error() string { return string(e) }

const errFakeOOM = fakeError("fake device out of memory")

func newTestContext(t *testing.T) (*Context, *fakeAllocator) {
	t.Helper()
	dev := newFakeDevice()
	ctx, err := New(WithDeviceHandle(dev))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx, dev.alloc
}
