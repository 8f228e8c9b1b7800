package mapper

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// A buffer handle exists in two forms. RawHandle is the untrusted wire
// form: freshly produced by an allocator or received from another process.
// It must never be used for data or metadata access. Handle is the
// process-local imported form issued by ImportBuffer; every other
// operation takes a Handle.

const (
	rawHandleMagic   uint32 = 0x47424648 // "GBFH"
	rawHandleVersion uint32 = 1

	// bufferID(4) + width,height,layerCount,format(4) + usage(2) +
	// stride(1) + size(2) + reservedOffset(2) + reservedSize(2) + kind(1)
	rawHandleCanonicalInts = 18

	// magic and version words precede the payload on the wire.
	rawHandleHeaderInts = 2
)

type segmentKind uint32

const (
	segmentShm segmentKind = iota + 1
	segmentHeap
)

// RawHandle is the transport form of a buffer handle: file descriptor
// slots plus integer words. Integer words beyond the canonical count are
// process-local runtime data appended by a previous importer; they are
// tolerated and ignored on import.
type RawHandle struct {
	Magic   uint32
	Version uint32
	Fds     []int
	Ints    []int32
}

// AllocationInfo is what an allocator records about a buffer it produced.
type AllocationInfo struct {
	BufferID       uuid.UUID
	Info           DescriptorInfo
	Stride         uint32
	Size           uint64
	ReservedOffset uint64
	ReservedSize   uint64
	// Heap marks a buffer backed by process heap memory published via
	// PublishHeapSegment instead of a named shared segment.
	Heap bool
}

type handlePayload struct {
	bufferID       uuid.UUID
	width          uint32
	height         uint32
	layerCount     uint32
	format         PixelFormat
	usage          Usage
	stride         uint32
	size           uint64
	reservedOffset uint64
	reservedSize   uint64
	kind           segmentKind
}

// NewRawHandle builds the wire form of a freshly allocated buffer. It is
// the allocator side of the contract; the service itself only consumes
// raw handles.
func NewRawHandle(alloc AllocationInfo) *RawHandle {
	p := handlePayload{
		bufferID:       alloc.BufferID,
		width:          alloc.Info.Width,
		height:         alloc.Info.Height,
		layerCount:     alloc.Info.LayerCount,
		format:         alloc.Info.Format,
		usage:          alloc.Info.Usage,
		stride:         alloc.Stride,
		size:           alloc.Size,
		reservedOffset: alloc.ReservedOffset,
		reservedSize:   alloc.ReservedSize,
		kind:           segmentShm,
	}
	var fds []int
	if alloc.Heap {
		p.kind = segmentHeap
	} else {
		// The mapped segment travels as one fd slot. The receiving side
		// re-opens by name, so the slot value itself is advisory.
		fds = []int{-1}
	}
	return &RawHandle{
		Magic:   rawHandleMagic,
		Version: rawHandleVersion,
		Fds:     fds,
		Ints:    encodePayload(p),
	}
}

func encodePayload(p handlePayload) []int32 {
	raw := make([]byte, rawHandleCanonicalInts*4)
	copy(raw[0:16], p.bufferID[:])
	le := binary.LittleEndian
	le.PutUint32(raw[16:], p.width)
	le.PutUint32(raw[20:], p.height)
	le.PutUint32(raw[24:], p.layerCount)
	le.PutUint32(raw[28:], uint32(p.format))
	le.PutUint64(raw[32:], uint64(p.usage))
	le.PutUint32(raw[40:], p.stride)
	le.PutUint64(raw[44:], p.size)
	le.PutUint64(raw[52:], p.reservedOffset)
	le.PutUint64(raw[60:], p.reservedSize)
	le.PutUint32(raw[68:], uint32(p.kind))
	ints := make([]int32, rawHandleCanonicalInts)
	for i := range ints {
		ints[i] = int32(le.Uint32(raw[i*4:]))
	}
	return ints
}

// decodeRawHandle checks structural well-formedness and recovers the
// payload. Every failure here is ErrBadBuffer: the handle bytes, not the
// caller's arguments, are wrong.
func decodeRawHandle(h *RawHandle) (handlePayload, error) {
	var p handlePayload
	if h == nil {
		return p, fmt.Errorf("%w: nil raw handle", ErrBadBuffer)
	}
	if h.Magic != rawHandleMagic {
		return p, fmt.Errorf("%w: handle magic %#x", ErrBadBuffer, h.Magic)
	}
	if h.Version != rawHandleVersion {
		return p, fmt.Errorf("%w: handle version %d", ErrBadBuffer, h.Version)
	}
	// A previous importer may have appended runtime words; fewer than the
	// canonical count is malformed, more is a passthrough handle.
	if len(h.Ints) < rawHandleCanonicalInts {
		return p, fmt.Errorf("%w: handle has %d int words, want >= %d", ErrBadBuffer, len(h.Ints), rawHandleCanonicalInts)
	}
	raw := make([]byte, rawHandleCanonicalInts*4)
	le := binary.LittleEndian
	for i := 0; i < rawHandleCanonicalInts; i++ {
		le.PutUint32(raw[i*4:], uint32(h.Ints[i]))
	}
	copy(p.bufferID[:], raw[0:16])
	p.width = le.Uint32(raw[16:])
	p.height = le.Uint32(raw[20:])
	p.layerCount = le.Uint32(raw[24:])
	p.format = PixelFormat(le.Uint32(raw[28:]))
	p.usage = Usage(le.Uint64(raw[32:]))
	p.stride = le.Uint32(raw[40:])
	p.size = le.Uint64(raw[44:])
	p.reservedOffset = le.Uint64(raw[52:])
	p.reservedSize = le.Uint64(raw[60:])
	p.kind = segmentKind(le.Uint32(raw[68:]))

	if p.bufferID == uuid.Nil {
		return p, fmt.Errorf("%w: nil buffer id", ErrBadBuffer)
	}
	if p.kind != segmentShm && p.kind != segmentHeap {
		return p, fmt.Errorf("%w: segment kind %d", ErrBadBuffer, p.kind)
	}
	if p.kind == segmentShm && len(h.Fds) < 1 {
		return p, fmt.Errorf("%w: shm handle without fd slot", ErrBadBuffer)
	}
	if p.width == 0 || p.height == 0 || p.layerCount == 0 {
		return p, fmt.Errorf("%w: handle dimensions %dx%dx%d", ErrBadBuffer, p.width, p.height, p.layerCount)
	}
	if p.format.BytesPerPixel() == 0 {
		return p, fmt.Errorf("%w: handle format %d", ErrBadBuffer, p.format)
	}
	if p.stride < p.width {
		return p, fmt.Errorf("%w: stride %d below width %d", ErrBadBuffer, p.stride, p.width)
	}
	// Bounds are checked without summing so a wrapping offset+size pair
	// cannot sneak past.
	if p.reservedOffset > p.size || p.reservedSize > p.size-p.reservedOffset {
		return p, fmt.Errorf("%w: reserved region at %d (+%d) outside %d-byte store", ErrBadBuffer, p.reservedOffset, p.reservedSize, p.size)
	}
	return p, nil
}

func (p handlePayload) descriptorInfo() DescriptorInfo {
	return DescriptorInfo{
		Width:        p.width,
		Height:       p.height,
		LayerCount:   p.layerCount,
		Format:       p.format,
		Usage:        p.usage,
		ReservedSize: p.reservedSize,
	}
}

// BufferID recovers the underlying buffer identity of a raw handle, for
// allocator collaborators that need to find the backing they produced.
func (h *RawHandle) BufferID() (uuid.UUID, error) {
	p, err := decodeRawHandle(h)
	if err != nil {
		return uuid.Nil, err
	}
	return p.bufferID, nil
}

// Handle is a process-local, trusted, independently released buffer
// reference. It is valid in every Mapper instance within the process
// until freed.
type Handle struct {
	id       uint64
	bufferID uuid.UUID
}

// ID is the process-local identity of this import. Two imports of the
// same raw handle have distinct IDs.
func (h *Handle) ID() uint64 {
	if h == nil {
		return 0
	}
	return h.id
}

// BufferID identifies the underlying buffer. Every import of the same
// buffer shares it.
func (h *Handle) BufferID() uuid.UUID {
	if h == nil {
		return uuid.Nil
	}
	return h.bufferID
}

// Export rebuilds the transport form of an imported handle, with the
// local import id appended as trailer words. A receiver importing this
// form sees a passthrough handle; GetTransportSize tells senders how many
// slots they may truncate the trailer down to.
func (m *Mapper) Export(h *Handle) (*RawHandle, error) {
	state, ok := lookupState(h)
	if !ok {
		return nil, fmt.Errorf("%w: export of unknown handle", ErrBadBuffer)
	}
	raw := NewRawHandle(state.store.allocationInfo())
	raw.Ints = append(raw.Ints, int32(h.id>>32), int32(h.id))
	return raw, nil
}
