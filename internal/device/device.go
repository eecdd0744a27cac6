// Package device abstracts the accelerator backends the runtime can
// bind an execution context to: a real CUDA device when built with the
// cuda tag, or a host-memory simulation everywhere else.
package device

import (
	"fmt"
	"strings"
	"time"
	"unsafe"
)

const (
	Host = "host"
	CUDA = "cuda"
	Auto = "auto"
)

// Props is the capability snapshot taken when a device is opened.
type Props struct {
	Kind        string `json:"kind"`
	Index       int    `json:"index"`
	Name        string `json:"name"`
	TotalMemory int64  `json:"total_memory"`
}

// Allocator hands out raw device buffers. Buffers are not zeroed.
type Allocator interface {
	Malloc(n int64) (unsafe.Pointer, error)
	Free(p unsafe.Pointer) error
}

// Stream is an ordered queue of device work.
type Stream interface {
	Synchronize() error
	Destroy() error
}

// Event marks a point in a stream for timing.
type Event interface {
	Record(s Stream) error
	Since(start Event) (time.Duration, error)
	Destroy() error
}

// Device bundles one opened backend device.
type Device interface {
	Props() Props
	Allocator() Allocator
	NewStream() (Stream, error)
	NewEvent() (Event, error)
	Close() error
}

// Normalize canonicalizes a device kind name.
func Normalize(name string) (string, error) {
	kind := strings.ToLower(strings.TrimSpace(name))
	if kind == "" {
		return Auto, nil
	}
	switch kind {
	case Host, CUDA, Auto:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown device kind %q (expected auto, host, or cuda)", kind)
	}
}

// Available returns a comma-separated list of usable device kinds.
func Available() string {
	entries := []string{Host}
	if cudaEnabled {
		entries = append(entries, CUDA)
	}
	return strings.Join(entries, ",")
}

// Open binds to one device. Auto prefers cuda when compiled in and a
// device is present, falling back to the host simulation.
func Open(kind string, index int) (Device, error) {
	kind, err := Normalize(kind)
	if err != nil {
		return nil, err
	}
	if index < 0 {
		return nil, fmt.Errorf("device index %d is negative", index)
	}
	switch kind {
	case CUDA:
		return newCUDA(index)
	case Host:
		return newHost(index)
	default:
		if cudaEnabled {
			if dev, err := newCUDA(index); err == nil {
				return dev, nil
			}
		}
		return newHost(index)
	}
}
