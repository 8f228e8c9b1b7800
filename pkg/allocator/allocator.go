// Package allocator provides reference allocator collaborators for the
// mapping service. An allocator consumes a Descriptor exactly once,
// physically backs the buffer, and hands back the raw handle the service
// imports. The mapping service itself never allocates memory.
package allocator

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	internalshm "github.com/gfxbuf/bufmap/internal/shm"
	"github.com/gfxbuf/bufmap/pkg/mapper"
)

// Allocator turns a descriptor into a raw buffer handle.
type Allocator interface {
	// Allocate backs a buffer for desc and returns its raw handle.
	Allocate(ctx context.Context, desc mapper.Descriptor) (*mapper.RawHandle, error)
	// Release frees the backing of a buffer this allocator produced.
	// Imports that are still mapped keep working until freed; no new
	// import will succeed afterwards.
	Release(raw *mapper.RawHandle) error
}

// Row stride is aligned to 64 pixels; the reserved region starts on a
// word boundary behind the pixel data. Importers learn both from the raw
// handle, so the convention is free to change per allocator.
const (
	strideAlignPixels = 64
	reservedAlign     = 8
)

type layout struct {
	stride         uint32
	reservedOffset uint64
	size           uint64
}

func computeLayout(info mapper.DescriptorInfo) layout {
	var l layout
	if info.Format == mapper.PixelFormatBlob {
		l.stride = info.Width
		l.reservedOffset = mapper.AlignUp(uint64(info.Width), reservedAlign)
	} else {
		l.stride = uint32(mapper.AlignUp(uint64(info.Width), strideAlignPixels))
		rowBytes := uint64(l.stride) * uint64(info.Format.BytesPerPixel())
		l.reservedOffset = mapper.AlignUp(rowBytes*uint64(info.Height)*uint64(info.LayerCount), reservedAlign)
	}
	l.size = l.reservedOffset + info.ReservedSize
	return l
}

// ShmAllocator backs buffers with named shared memory segments, so raw
// handles can cross the process boundary.
type ShmAllocator struct{}

// NewShmAllocator returns a shared-memory-backed allocator.
func NewShmAllocator() *ShmAllocator {
	return &ShmAllocator{}
}

// Allocate creates and sizes the segment, then unmaps it; importers
// re-open it by name. Transient mapping failures are retried briefly
// before surfacing ErrNoResources.
func (a *ShmAllocator) Allocate(ctx context.Context, desc mapper.Descriptor) (*mapper.RawHandle, error) {
	info, err := mapper.DecodeDescriptor(desc)
	if err != nil {
		return nil, err
	}
	l := computeLayout(info)
	id := uuid.New()
	name := mapper.SegmentName(id)
	if !mapper.CanCreateOnDevShm(l.size, "/dev/shm/"+name) {
		return nil, fmt.Errorf("%w: no space on /dev/shm for %d bytes", mapper.ErrNoResources, l.size)
	}
	op := func() error {
		region, err := internalshm.MapRegion(ctx, internalshm.MapOptions{
			Name:   name,
			Size:   int(l.size),
			Create: true,
		})
		if err != nil {
			if internalshm.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return internalshm.UnmapRegion(region)
	}
	if err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 3)); err != nil {
		if internalshm.IsTransient(err) {
			return nil, fmt.Errorf("%w: creating segment %s: %v", mapper.ErrNoResources, name, err)
		}
		return nil, fmt.Errorf("creating segment %s: %w", name, err)
	}
	return mapper.NewRawHandle(mapper.AllocationInfo{
		BufferID:       id,
		Info:           info,
		Stride:         l.stride,
		Size:           l.size,
		ReservedOffset: l.reservedOffset,
		ReservedSize:   info.ReservedSize,
	}), nil
}

// Release unlinks the segment backing raw.
func (a *ShmAllocator) Release(raw *mapper.RawHandle) error {
	id, err := raw.BufferID()
	if err != nil {
		return err
	}
	return internalshm.Unlink(mapper.SegmentName(id))
}
