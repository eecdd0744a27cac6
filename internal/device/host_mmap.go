//go:build unix

package device

import "golang.org/x/sys/unix"

// mapSlab allocates an anonymous, page-aligned mapping. Page alignment
// over-satisfies any sub-allocation alignment the arena hands out.
func mapSlab(n int) ([]byte, error) {
	return unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

func unmapSlab(b []byte) error {
	return unix.Munmap(b)
}
