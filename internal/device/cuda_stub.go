//go:build !cuda

package device

import "fmt"

const cudaEnabled = false

func newCUDA(index int) (Device, error) {
	return nil, fmt.Errorf("cuda support not compiled in (build with -tags cuda)")
}
