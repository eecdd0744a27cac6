//go:build !unix

package device

import "unsafe"

// Heap-backed slabs for platforms without mmap. Go's allocator does not
// promise 64-byte bases, so over-allocate and slice to the alignment
// the arena's chunk math assumes. The allocator's slab map keeps the
// backing array reachable until Free drops it.
func mapSlab(n int) ([]byte, error) {
	const align = 64
	raw := make([]byte, n+align)
	off := int((align - uintptr(unsafe.Pointer(&raw[0]))%align) % align)
	return raw[off : off+n : off+n], nil
}

func unmapSlab(b []byte) error {
	return nil
}
