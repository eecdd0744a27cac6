//go:build cuda

package device

/*
#cgo LDFLAGS: -lcudart

// Minimal CUDA runtime forward declarations to avoid requiring headers
// at compile time. The linker still needs libcudart with the cuda tag.
typedef void* cudaStream_t;
typedef void* cudaEvent_t;
typedef int cudaError_t;

extern const char* cudaGetErrorString(cudaError_t err);
extern cudaError_t cudaGetDeviceCount(int* count);
extern cudaError_t cudaSetDevice(int device);
extern cudaError_t cudaMemGetInfo(unsigned long long* free, unsigned long long* total);
extern cudaError_t cudaMalloc(void** ptr, unsigned long long size);
extern cudaError_t cudaFree(void* ptr);
extern cudaError_t cudaStreamCreate(cudaStream_t* stream);
extern cudaError_t cudaStreamDestroy(cudaStream_t stream);
extern cudaError_t cudaStreamSynchronize(cudaStream_t stream);
extern cudaError_t cudaEventCreate(cudaEvent_t* event);
extern cudaError_t cudaEventDestroy(cudaEvent_t event);
extern cudaError_t cudaEventRecord(cudaEvent_t event, cudaStream_t stream);
extern cudaError_t cudaEventSynchronize(cudaEvent_t event);
extern cudaError_t cudaEventElapsedTime(float* ms, cudaEvent_t start, cudaEvent_t end);

static const char* quarryCudaGetErrorString(cudaError_t err) {
	return cudaGetErrorString(err);
}

static int quarryCudaGetDeviceCount(int* out) {
	return (int)cudaGetDeviceCount(out);
}

static int quarryCudaSetDevice(int device) {
	return (int)cudaSetDevice(device);
}

static int quarryCudaMemGetInfo(unsigned long long* freeMem, unsigned long long* totalMem) {
	return (int)cudaMemGetInfo(freeMem, totalMem);
}

static int quarryCudaMalloc(void** ptr, unsigned long long size) {
	return (int)cudaMalloc(ptr, size);
}

static int quarryCudaFree(void* ptr) {
	return (int)cudaFree(ptr);
}

static int quarryCudaStreamCreate(cudaStream_t* out) {
	return (int)cudaStreamCreate(out);
}

static int quarryCudaStreamDestroy(cudaStream_t stream) {
	return (int)cudaStreamDestroy(stream);
}

static int quarryCudaStreamSynchronize(cudaStream_t stream) {
	return (int)cudaStreamSynchronize(stream);
}

static int quarryCudaEventCreate(cudaEvent_t* out) {
	return (int)cudaEventCreate(out);
}

static int quarryCudaEventDestroy(cudaEvent_t event) {
	return (int)cudaEventDestroy(event);
}

static int quarryCudaEventRecord(cudaEvent_t event, cudaStream_t stream) {
	return (int)cudaEventRecord(event, stream);
}

static int quarryCudaEventSynchronize(cudaEvent_t event) {
	return (int)cudaEventSynchronize(event);
}

static int quarryCudaEventElapsed(float* ms, cudaEvent_t start, cudaEvent_t end) {
	return (int)cudaEventElapsedTime(ms, start, end);
}
*/
import "C"

import (
	"fmt"
	"time"
	"unsafe"
)

const cudaEnabled = true

func cudaErr(op string, code C.int) error {
	if code == 0 {
		return nil
	}
	return fmt.Errorf("%s: %s (cuda error %d)",
		op, C.GoString(C.quarryCudaGetErrorString(C.cudaError_t(code))), int(code))
}

type cudaDevice struct {
	props Props
	alloc cudaAllocator
}

func newCUDA(index int) (Device, error) {
	var count C.int
	if err := cudaErr("cudaGetDeviceCount", C.quarryCudaGetDeviceCount(&count)); err != nil {
		return nil, err
	}
	if index >= int(count) {
		return nil, fmt.Errorf("cuda device %d not present (%d device(s) found)", index, int(count))
	}
	if err := cudaErr("cudaSetDevice", C.quarryCudaSetDevice(C.int(index))); err != nil {
		return nil, err
	}
	var freeMem, totalMem C.ulonglong
	if err := cudaErr("cudaMemGetInfo", C.quarryCudaMemGetInfo(&freeMem, &totalMem)); err != nil {
		return nil, err
	}
	return &cudaDevice{
		props: Props{
			Kind:        CUDA,
			Index:       index,
			Name:        fmt.Sprintf("cuda-%d", index),
			TotalMemory: int64(totalMem),
		},
	}, nil
}

func (d *cudaDevice) Props() Props         { return d.props }
func (d *cudaDevice) Allocator() Allocator { return d.alloc }

func (d *cudaDevice) NewStream() (Stream, error) {
	var s C.cudaStream_t
	if err := cudaErr("cudaStreamCreate", C.quarryCudaStreamCreate(&s)); err != nil {
		return nil, err
	}
	return cudaStream{s: s}, nil
}

func (d *cudaDevice) NewEvent() (Event, error) {
	var e C.cudaEvent_t
	if err := cudaErr("cudaEventCreate", C.quarryCudaEventCreate(&e)); err != nil {
		return nil, err
	}
	return cudaEvent{e: e}, nil
}

func (d *cudaDevice) Close() error { return nil }

type cudaAllocator struct{}

func (cudaAllocator) Malloc(n int64) (unsafe.Pointer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("cuda malloc of %d bytes", n)
	}
	var p unsafe.Pointer
	if err := cudaErr("cudaMalloc", C.quarryCudaMalloc(&p, C.ulonglong(n))); err != nil {
		return nil, err
	}
	return p, nil
}

func (cudaAllocator) Free(p unsafe.Pointer) error {
	if p == nil {
		return nil
	}
	return cudaErr("cudaFree", C.quarryCudaFree(p))
}

type cudaStream struct {
	s C.cudaStream_t
}

func (s cudaStream) Synchronize() error {
	return cudaErr("cudaStreamSynchronize", C.quarryCudaStreamSynchronize(s.s))
}

func (s cudaStream) Destroy() error {
	return cudaErr("cudaStreamDestroy", C.quarryCudaStreamDestroy(s.s))
}

type cudaEvent struct {
	e C.cudaEvent_t
}

func (e cudaEvent) Record(s Stream) error {
	cs, ok := s.(cudaStream)
	if !ok {
		return fmt.Errorf("stream is not a cuda stream")
	}
	return cudaErr("cudaEventRecord", C.quarryCudaEventRecord(e.e, cs.s))
}

func (e cudaEvent) Since(start Event) (time.Duration, error) {
	se, ok := start.(cudaEvent)
	if !ok {
		return 0, fmt.Errorf("start event is not a cuda event")
	}
	if err := cudaErr("cudaEventSynchronize", C.quarryCudaEventSynchronize(e.e)); err != nil {
		return 0, err
	}
	var ms C.float
	if err := cudaErr("cudaEventElapsedTime", C.quarryCudaEventElapsed(&ms, se.e, e.e)); err != nil {
		return 0, err
	}
	return time.Duration(float64(ms) * float64(time.Millisecond)), nil
}

func (e cudaEvent) Destroy() error {
	return cudaErr("cudaEventDestroy", C.quarryCudaEventDestroy(e.e))
}
