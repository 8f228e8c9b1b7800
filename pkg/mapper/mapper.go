// Package mapper implements the graphics buffer mapping service: creating
// descriptors for an external allocator, importing raw buffer handles into
// process-local ones, CPU lock/unlock gated by fences, extensible
// namespaced metadata, and the reserved auxiliary region.
//
// Buffer contents are synchronized by fences only. Metadata carries no
// synchronization at all: a writer must finish its metadata writes before
// handing the buffer to another process. That discipline is a collaboration
// contract; the service does not and cannot enforce it.
package mapper

import (
	"context"
	"fmt"
	"math/bits"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Mapper is one instance of the mapping service. Instances share the
// process-wide handle registry: a handle imported through one Mapper is
// usable through any other.
type Mapper struct {
	conf   Config
	tracer trace.Tracer
	flush  *flushWorker

	importCounter metric.Int64Counter
	lockCounter   metric.Int64Counter
}

// New builds a Mapper. A nil conf uses DefaultConfig.
func New(conf *Config) (*Mapper, error) {
	if conf == nil {
		conf = DefaultConfig()
	}
	if err := VerifyConfig(conf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadValue, err)
	}
	fw, err := newFlushWorker(conf.FlushWorkerCount)
	if err != nil {
		return nil, fmt.Errorf("%w: flush worker: %v", ErrNoResources, err)
	}
	m := &Mapper{
		conf:   *conf,
		tracer: conf.Tracer,
		flush:  fw,
	}
	if conf.Meter != nil {
		m.importCounter, _ = conf.Meter.Int64Counter("bufmap.imports")
		m.lockCounter, _ = conf.Meter.Int64Counter("bufmap.locks")
	}
	return m, nil
}

// Close stops the flush workers. Imported handles stay valid; they belong
// to the process registry, not to this instance.
func (m *Mapper) Close() error {
	m.flush.close()
	return nil
}

// ImportBuffer converts a raw, untrusted handle into a process-local
// imported handle. Importing the same raw handle N times yields N
// independent handles, each with its own release obligation. A handle
// that already passed through another importer (trailer words present)
// imports fine.
func (m *Mapper) ImportBuffer(ctx context.Context, raw *RawHandle) (*Handle, error) {
	if m.tracer != nil {
		var span trace.Span
		ctx, span = m.tracer.Start(ctx, "mapper.ImportBuffer")
		defer span.End()
	}
	p, err := decodeRawHandle(raw)
	if err != nil {
		importFailuresTotal.Inc()
		return nil, err
	}
	if handleStates.Count() >= m.conf.MaxImportedBuffers {
		importFailuresTotal.Inc()
		return nil, fmt.Errorf("%w: %d buffers imported", ErrNoResources, m.conf.MaxImportedBuffers)
	}
	store, err := acquireStore(ctx, p)
	if err != nil {
		importFailuresTotal.Inc()
		return nil, err
	}
	h := &Handle{
		id:       nextHandleID.Add(1),
		bufferID: p.bufferID,
	}
	handleStates.Set(handleKey(h.id), &bufferState{handle: h, store: store})
	importsTotal.Inc()
	if m.importCounter != nil {
		m.importCounter.Add(ctx, 1)
	}
	internalLogger.debugf("imported buffer %s as handle %d", p.bufferID, h.id)
	return h, nil
}

// FreeBuffer releases everything the corresponding import created. The
// handle is permanently invalid afterwards: every further operation on it
// returns ErrBadBuffer.
func (m *Mapper) FreeBuffer(h *Handle) error {
	if h == nil {
		return fmt.Errorf("%w: nil handle", ErrBadBuffer)
	}
	state, ok := handleStates.Pop(handleKey(h.id))
	if !ok {
		return fmt.Errorf("%w: free of unknown handle %d", ErrBadBuffer, h.ID())
	}
	state.mu.Lock()
	if state.lockCount > 0 {
		internalLogger.warnf("handle %d freed while locked", h.id)
		state.lockCount = 0
		state.writeLocked = false
	}
	state.mu.Unlock()
	releaseStore(state.store)
	freesTotal.Inc()
	return nil
}

// ValidateBufferSize confirms the backing storage is at least as large as
// info plus stride imply.
func (m *Mapper) ValidateBufferSize(h *Handle, info DescriptorInfo, stride uint32) error {
	state, ok := lookupState(h)
	if !ok {
		return fmt.Errorf("%w: unknown handle", ErrBadBuffer)
	}
	if err := validateDescriptorInfo(info); err != nil {
		return err
	}
	store := state.store
	if stride < info.Width {
		return fmt.Errorf("%w: stride %d below width %d", ErrBadValue, stride, info.Width)
	}
	bpp := info.Format.BytesPerPixel()
	if bpp != store.info.Format.BytesPerPixel() {
		return fmt.Errorf("%w: format %d incompatible with allocated format %d", ErrBadValue, info.Format, store.info.Format)
	}
	need := uint64(info.Width)
	if info.Format != PixelFormatBlob {
		// Each multiplication is guarded: a description whose byte count
		// wraps uint64 must fail, not validate against a tiny store.
		var hiRow, hiPlane, hiTotal uint64
		hiRow, need = bits.Mul64(uint64(stride), uint64(bpp))
		hiPlane, need = bits.Mul64(need, uint64(info.Height))
		hiTotal, need = bits.Mul64(need, uint64(info.LayerCount))
		if hiRow|hiPlane|hiTotal != 0 {
			return fmt.Errorf("%w: %dx%dx%d at stride %d overflows byte count", ErrBadValue, info.Width, info.Height, info.LayerCount, stride)
		}
	}
	if need > store.reservedOffset {
		return fmt.Errorf("%w: need %d bytes, backing store has %d", ErrBadValue, need, store.reservedOffset)
	}
	return nil
}

// GetTransportSize reports how many fd and int slots a serialized form of
// the handle needs. Trailer words appended by importers are process-local
// and excluded, so a sender may truncate them; receivers accept both
// forms.
func (m *Mapper) GetTransportSize(h *Handle) (fdCount, intCount int, err error) {
	state, ok := lookupState(h)
	if !ok {
		return 0, 0, fmt.Errorf("%w: unknown handle", ErrBadBuffer)
	}
	if state.store.kind == segmentShm {
		fdCount = 1
	}
	return fdCount, rawHandleHeaderInts + rawHandleCanonicalInts, nil
}

// GetReservedRegion exposes the auxiliary shared region attached at
// allocation time. The returned slice addresses CPU-accessible, virtually
// contiguous memory of exactly the requested size; it stays valid until
// the last import of the buffer is freed, and must not be touched after
// that.
func (m *Mapper) GetReservedRegion(h *Handle) ([]byte, error) {
	state, ok := lookupState(h)
	if !ok {
		return nil, fmt.Errorf("%w: unknown handle", ErrBadBuffer)
	}
	return state.store.reserved(), nil
}
