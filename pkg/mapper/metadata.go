package mapper

import (
	"fmt"

	"github.com/valyala/bytebufferpool"

	"github.com/gfxbuf/bufmap/pkg/metadata"
)

// Metadata is global per buffer: a set through any import of a buffer is
// observed by gets through every other import of the same buffer. There
// is no cross-process lock; the writer must complete its writes before
// publishing the buffer (fences protect contents, never metadata).

// Get reads one metadata value. Allocation-fixed tokens are answered from
// the buffer's descriptor; dynamic tokens come from the shared table, or
// their registered default when never set.
func (m *Mapper) Get(h *Handle, t metadata.Type) ([]byte, error) {
	entry, ok := metadata.Default.Lookup(t)
	if !ok {
		return nil, fmt.Errorf("%w: metadata %s", ErrUnsupported, t)
	}
	state, found := lookupState(h)
	if !found {
		return nil, fmt.Errorf("%w: unknown handle", ErrBadBuffer)
	}
	return getFromStore(state.store, t, entry)
}

func getFromStore(store *bufferStore, t metadata.Type, entry *metadata.Entry) ([]byte, error) {
	if !entry.Gettable {
		return nil, fmt.Errorf("%w: metadata %s is not gettable", ErrUnsupported, t)
	}
	if v, ok := fixedValue(store, t); ok {
		return v, nil
	}
	if v, ok := store.metadata.Get(t.String()); ok {
		out := make([]byte, len(v))
		copy(out, v)
		return out, nil
	}
	if entry.Default != nil {
		out := make([]byte, len(entry.Default))
		copy(out, entry.Default)
		return out, nil
	}
	return nil, fmt.Errorf("%w: metadata %s has no value", ErrUnsupported, t)
}

// fixedValue answers the allocation-fixed standard tokens.
func fixedValue(store *bufferStore, t metadata.Type) ([]byte, bool) {
	switch t {
	case metadata.BufferID:
		return metadata.EncodeString(store.bufferID.String()), true
	case metadata.Name:
		return metadata.EncodeString(store.info.Name), true
	case metadata.Width:
		return metadata.EncodeU32(store.info.Width), true
	case metadata.Height:
		return metadata.EncodeU32(store.info.Height), true
	case metadata.LayerCount:
		return metadata.EncodeU32(store.info.LayerCount), true
	case metadata.PixelFormatRequested:
		return metadata.EncodeU32(uint32(store.info.Format)), true
	case metadata.Usage:
		return metadata.EncodeU64(uint64(store.info.Usage)), true
	case metadata.AllocationSize:
		return metadata.EncodeU64(store.size), true
	case metadata.Stride:
		return metadata.EncodeU32(store.stride), true
	case metadata.ReservedRegionSize:
		return metadata.EncodeU64(store.reservedSize), true
	}
	return nil, false
}

// Set writes one metadata value. Allocation-fixed tokens always fail with
// ErrBadValue, even on an invalid handle; unknown tokens and payloads the
// registry entry rejects fail with ErrUnsupported.
func (m *Mapper) Set(h *Handle, t metadata.Type, value []byte) error {
	entry, ok := metadata.Default.Lookup(t)
	if !ok {
		return fmt.Errorf("%w: metadata %s", ErrUnsupported, t)
	}
	// Settability is a property of the token, checked before the handle.
	if !entry.Settable {
		return fmt.Errorf("%w: metadata %s is never settable", ErrBadValue, t)
	}
	state, found := lookupState(h)
	if !found {
		return fmt.Errorf("%w: unknown handle", ErrBadBuffer)
	}
	if entry.Validate != nil {
		if err := entry.Validate(value); err != nil {
			return fmt.Errorf("%w: metadata %s: %v", ErrUnsupported, t, err)
		}
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	state.store.metadata.Set(t.String(), stored)
	metadataSetsTotal.Inc()
	return nil
}

// GetFromDescriptorInfo answers a metadata query from a not-yet-allocated
// description. Tokens whose value only exists post-allocation return
// ErrUnsupported.
func (m *Mapper) GetFromDescriptorInfo(info DescriptorInfo, t metadata.Type) ([]byte, error) {
	if _, ok := metadata.Default.Lookup(t); !ok {
		return nil, fmt.Errorf("%w: metadata %s", ErrUnsupported, t)
	}
	switch t {
	case metadata.Name:
		return metadata.EncodeString(info.Name), nil
	case metadata.Width:
		return metadata.EncodeU32(info.Width), nil
	case metadata.Height:
		return metadata.EncodeU32(info.Height), nil
	case metadata.LayerCount:
		return metadata.EncodeU32(info.LayerCount), nil
	case metadata.PixelFormatRequested:
		return metadata.EncodeU32(uint32(info.Format)), nil
	case metadata.Usage:
		return metadata.EncodeU64(uint64(info.Usage)), nil
	case metadata.ReservedRegionSize:
		return metadata.EncodeU64(info.ReservedSize), nil
	}
	return nil, fmt.Errorf("%w: metadata %s only exists after allocation", ErrUnsupported, t)
}

// ListSupportedMetadataTypes enumerates every token this instance
// recognizes, with gettable/settable capabilities.
func (m *Mapper) ListSupportedMetadataTypes() ([]metadata.Description, error) {
	return metadata.Default.List(), nil
}

// DumpEntry is one metadata value in a diagnostic snapshot. A token that
// is not currently gettable appears with an empty Value rather than as an
// error.
type DumpEntry struct {
	Type  metadata.Type
	Name  string
	Value []byte
}

// BufferDump is the diagnostic snapshot of one live imported buffer.
type BufferDump struct {
	HandleID uint64
	BufferID string
	Entries  []DumpEntry
}

// String renders the snapshot for humans.
func (d BufferDump) String() string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	fmt.Fprintf(buf, "handle %d buffer %s\n", d.HandleID, d.BufferID)
	for _, e := range d.Entries {
		fmt.Fprintf(buf, "  %-24s %s = %x\n", e.Name, e.Type, e.Value)
	}
	return buf.String()
}

// DumpBuffer snapshots all gettable metadata of one live imported buffer.
func (m *Mapper) DumpBuffer(h *Handle) (BufferDump, error) {
	state, ok := lookupState(h)
	if !ok {
		return BufferDump{}, fmt.Errorf("%w: unknown handle", ErrBadBuffer)
	}
	return dumpState(state), nil
}

// DumpBuffers snapshots every live imported buffer in the process.
func (m *Mapper) DumpBuffers() ([]BufferDump, error) {
	var out []BufferDump
	handleStates.IterCb(func(_ string, state *bufferState) {
		out = append(out, dumpState(state))
	})
	return out, nil
}

func dumpState(state *bufferState) BufferDump {
	d := BufferDump{
		HandleID: state.handle.ID(),
		BufferID: state.store.bufferID.String(),
	}
	for _, desc := range metadata.Default.List() {
		e := DumpEntry{Type: desc.Type, Name: desc.Name}
		if desc.Gettable {
			if entry, ok := metadata.Default.Lookup(desc.Type); ok {
				if v, err := getFromStore(state.store, desc.Type, entry); err == nil {
					e.Value = v
				}
			}
		}
		d.Entries = append(d.Entries, e)
	}
	return d
}
