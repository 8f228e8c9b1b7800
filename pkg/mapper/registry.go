package mapper

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"

	internalshm "github.com/gfxbuf/bufmap/internal/shm"
)

// The registries are process-wide, not per-Mapper: an imported handle is
// valid in every Mapper instance within the process. handleStates tracks
// each import's bookkeeping; stores refcounts the underlying buffer so N
// imports of the same buffer share one mapping and one metadata table.
var (
	handleStates = cmap.New[*bufferState]()
	stores       = cmap.New[*bufferStore]()
	heapSegments = cmap.New[[]byte]()

	nextHandleID atomic.Uint64
)

func handleKey(id uint64) string   { return strconv.FormatUint(id, 10) }
func storeKey(id uuid.UUID) string { return id.String() }

// SegmentName derives the shared segment name of a buffer. Allocators and
// importers must agree on it.
func SegmentName(id uuid.UUID) string {
	return "bufmap-" + id.String()
}

// PublishHeapSegment makes heap memory importable under id. It is the
// collaborator API for allocators that have no mappable segment, e.g. in
// tests. ReleaseHeapSegment undoes it once no further imports are wanted;
// live stores keep their reference.
func PublishHeapSegment(id uuid.UUID, mem []byte) {
	heapSegments.Set(storeKey(id), mem)
}

// ReleaseHeapSegment removes a published heap segment.
func ReleaseHeapSegment(id uuid.UUID) {
	heapSegments.Remove(storeKey(id))
}

// bufferStore is the per-underlying-buffer state shared by every import
// of that buffer within the process.
type bufferStore struct {
	bufferID       uuid.UUID
	info           DescriptorInfo
	stride         uint32
	size           uint64
	reservedOffset uint64
	reservedSize   uint64
	kind           segmentKind

	mem    []byte
	region *internalshm.MappedRegion // nil for heap-backed stores

	// metadata is global per buffer: a write through any import is
	// visible to every other import of the same buffer. Keys are
	// metadata.Type strings.
	metadata cmap.ConcurrentMap[string, []byte]

	// refs is guarded by storesMu.
	refs int
}

func (s *bufferStore) allocationInfo() AllocationInfo {
	return AllocationInfo{
		BufferID:       s.bufferID,
		Info:           s.info,
		Stride:         s.stride,
		Size:           s.size,
		ReservedOffset: s.reservedOffset,
		ReservedSize:   s.reservedSize,
		Heap:           s.kind == segmentHeap,
	}
}

// pixels returns the pixel portion of the backing store; the reserved
// region sits behind it.
func (s *bufferStore) pixels() []byte {
	return s.mem[:s.reservedOffset]
}

func (s *bufferStore) reserved() []byte {
	if s.reservedSize == 0 {
		return nil
	}
	return s.mem[s.reservedOffset : s.reservedOffset+s.reservedSize]
}

func (s *bufferStore) flush() error {
	if s.region != nil {
		return internalshm.FlushRegion(s.region)
	}
	return nil
}

// bufferState is the bookkeeping of one import: a lock-state machine over
// a shared store. The mutex protects the state machine itself, never the
// buffer contents (those are the caller's fence discipline).
type bufferState struct {
	handle *Handle
	store  *bufferStore

	mu          sync.Mutex
	lockCount   int
	writeLocked bool
	lockUsage   Usage
	lockRegion  Rect
}

func lookupState(h *Handle) (*bufferState, bool) {
	if h == nil {
		return nil, false
	}
	return handleStates.Get(handleKey(h.id))
}

// storesMu serializes store creation and teardown; lookups go through the
// concurrent map without it.
var storesMu sync.Mutex

// acquireStore maps or references the store backing payload. The mapping
// is created once per process and shared by subsequent imports.
func acquireStore(ctx context.Context, p handlePayload) (*bufferStore, error) {
	storesMu.Lock()
	defer storesMu.Unlock()
	if s, ok := stores.Get(storeKey(p.bufferID)); ok {
		s.refs++
		return s, nil
	}
	s, err := openStore(ctx, p)
	if err != nil {
		return nil, err
	}
	s.refs = 1
	stores.Set(storeKey(p.bufferID), s)
	return s, nil
}

func openStore(ctx context.Context, p handlePayload) (*bufferStore, error) {
	s := &bufferStore{
		bufferID:       p.bufferID,
		info:           p.descriptorInfo(),
		stride:         p.stride,
		size:           p.size,
		reservedOffset: p.reservedOffset,
		reservedSize:   p.reservedSize,
		kind:           p.kind,
		metadata:       cmap.New[[]byte](),
	}
	switch p.kind {
	case segmentHeap:
		mem, ok := heapSegments.Get(storeKey(p.bufferID))
		if !ok {
			return nil, fmt.Errorf("%w: heap segment %s not published", ErrBadBuffer, p.bufferID)
		}
		if uint64(len(mem)) < p.size {
			return nil, fmt.Errorf("%w: heap segment %s is %d bytes, want %d", ErrBadBuffer, p.bufferID, len(mem), p.size)
		}
		s.mem = mem
	case segmentShm:
		region, err := internalshm.MapRegion(ctx, internalshm.MapOptions{
			Name: SegmentName(p.bufferID),
			Size: int(p.size),
		})
		if err != nil {
			if internalshm.IsTransient(err) {
				return nil, fmt.Errorf("%w: mapping %s: %v", ErrNoResources, p.bufferID, err)
			}
			return nil, fmt.Errorf("%w: mapping %s: %v", ErrBadBuffer, p.bufferID, err)
		}
		s.mem = region.Addr
		s.region = region
	}
	return s, nil
}

// releaseStore drops one reference; the last reference unmaps.
func releaseStore(s *bufferStore) {
	storesMu.Lock()
	s.refs--
	last := s.refs == 0
	if last {
		stores.Remove(storeKey(s.bufferID))
	}
	storesMu.Unlock()
	if !last {
		return
	}
	if s.region != nil {
		if err := internalshm.UnmapRegion(s.region); err != nil {
			internalLogger.warnf("store %s unmap: %v", s.bufferID, err)
		}
	}
}
