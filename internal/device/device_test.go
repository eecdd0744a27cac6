package device

import (
	"strings"
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", Auto, false},
		{"auto", Auto, false},
		{"host", Host, false},
		{"HOST", Host, false},
		{"  cuda  ", CUDA, false},
		{"tpu", "", true},
	}
	for _, tc := range tests {
		got, err := Normalize(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Normalize(%q): expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Normalize(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Normalize(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAvailableAlwaysListsHost(t *testing.T) {
	t.Parallel()

	if !strings.Contains(Available(), Host) {
		t.Fatalf("Available() = %q, missing host", Available())
	}
}

func TestOpenRejectsNegativeIndex(t *testing.T) {
	t.Parallel()

	if _, err := Open(Host, -1); err == nil {
		t.Fatal("Open with negative index succeeded")
	}
}

func TestHostAllocator(t *testing.T) {
	t.Parallel()

	dev, err := Open(Host, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dev.Close()

	props := dev.Props()
	if props.Kind != Host || props.Name != "host-0" {
		t.Fatalf("Props: %+v", props)
	}

	alloc := dev.Allocator()
	p, err := alloc.Malloc(4096)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}
	if p == nil {
		t.Fatal("Malloc returned nil pointer")
	}
	if uintptr(p)%64 != 0 {
		t.Fatalf("slab base misaligned: %#x", uintptr(p))
	}
	if err := alloc.Free(p); err != nil {
		t.Fatalf("Free: %v", err)
	}

	// The pointer left the slab map; a second free is a defect.
	if err := alloc.Free(p); err == nil {
		t.Fatal("double Free succeeded")
	}
	if err := alloc.Free(nil); err != nil {
		t.Fatalf("Free(nil): %v", err)
	}
	if _, err := alloc.Malloc(0); err == nil {
		t.Fatal("zero-byte Malloc succeeded")
	}
}

func TestHostCloseReclaimsLeakedSlabs(t *testing.T) {
	t.Parallel()

	dev, err := Open(Host, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := dev.Allocator().Malloc(1024); err != nil {
		t.Fatalf("Malloc: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close with live slab: %v", err)
	}
}

func TestHostEvents(t *testing.T) {
	t.Parallel()

	dev, err := Open(Host, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dev.Close()

	stream, err := dev.NewStream()
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	defer stream.Destroy()

	start, err := dev.NewEvent()
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	stop, err := dev.NewEvent()
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}

	if _, err := stop.Since(start); err == nil {
		t.Fatal("Since on unrecorded events succeeded")
	}

	if err := start.Record(stream); err != nil {
		t.Fatalf("Record: %v", err)
	}
	time.Sleep(time.Millisecond)
	if err := stop.Record(stream); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := stream.Synchronize(); err != nil {
		t.Fatalf("Synchronize: %v", err)
	}

	d, err := stop.Since(start)
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if d <= 0 {
		t.Fatalf("span: got %v, want > 0", d)
	}
}
