package allocator

import (
	"context"

	"github.com/google/uuid"

	"github.com/gfxbuf/bufmap/pkg/mapper"
)

// HeapAllocator backs buffers with process heap memory published to the
// mapping service's segment table. Handles stay importable within the
// process only; tests and single-process setups use it so they never
// touch /dev/shm.
type HeapAllocator struct{}

// NewHeapAllocator returns a heap-backed allocator.
func NewHeapAllocator() *HeapAllocator {
	return &HeapAllocator{}
}

// Allocate backs a buffer for desc with zeroed heap memory.
func (a *HeapAllocator) Allocate(ctx context.Context, desc mapper.Descriptor) (*mapper.RawHandle, error) {
	info, err := mapper.DecodeDescriptor(desc)
	if err != nil {
		return nil, err
	}
	l := computeLayout(info)
	id := uuid.New()
	mapper.PublishHeapSegment(id, make([]byte, l.size))
	return mapper.NewRawHandle(mapper.AllocationInfo{
		BufferID:       id,
		Info:           info,
		Stride:         l.stride,
		Size:           l.size,
		ReservedOffset: l.reservedOffset,
		ReservedSize:   info.ReservedSize,
		Heap:           true,
	}), nil
}

// Release withdraws the published segment. Live imports keep their
// reference to the memory until freed.
func (a *HeapAllocator) Release(raw *mapper.RawHandle) error {
	id, err := raw.BufferID()
	if err != nil {
		return err
	}
	mapper.ReleaseHeapSegment(id)
	return nil
}
