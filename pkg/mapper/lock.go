package mapper

import (
	"context"
	"fmt"

	queuepkg "github.com/Workiva/go-datastructures/queue"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/trace"

	internalshm "github.com/gfxbuf/bufmap/internal/shm"
	"github.com/gfxbuf/bufmap/pkg/fence"
)

// Lock transitions a handle Unlocked -> Locked and returns the base
// address of the entire buffer (never just the access region). A zero
// region means the whole buffer. The acquire fence is awaited here before
// the memory is handed out; an empty fence needs no wait.
//
// Simultaneous read-only locks from multiple threads share the session.
// Any attempt that adds write intent while a session is open returns
// ErrNoResources instead of blocking, which keeps the race live and safe;
// the content outcome of such races is undefined by contract.
func (m *Mapper) Lock(ctx context.Context, h *Handle, cpuUsage Usage, region Rect, acquire *fence.Fence) ([]byte, error) {
	if m.tracer != nil {
		var span trace.Span
		ctx, span = m.tracer.Start(ctx, "mapper.Lock")
		defer span.End()
	}
	state, ok := lookupState(h)
	if !ok {
		return nil, fmt.Errorf("%w: unknown handle", ErrBadBuffer)
	}
	if cpuUsage == 0 || cpuUsage&^usageCPUMask != 0 {
		return nil, fmt.Errorf("%w: cpu usage %#x", ErrBadValue, uint64(cpuUsage))
	}
	store := state.store
	if cpuUsage&^store.info.Usage != 0 {
		return nil, fmt.Errorf("%w: buffer allocated without usage %#x", ErrBadBuffer, uint64(cpuUsage&^store.info.Usage))
	}
	if !region.IsZero() {
		if err := checkRegion(region, store.info); err != nil {
			return nil, err
		}
	}
	if !acquire.TryWait() {
		waitCtx, cancel := context.WithTimeout(ctx, m.conf.LockWaitTimeout)
		defer cancel()
		if err := acquire.Wait(waitCtx); err != nil {
			return nil, fmt.Errorf("%w: acquire fence: %v", ErrNoResources, err)
		}
	}

	wantWrite := cpuUsage&UsageCPUWrite != 0
	state.mu.Lock()
	if state.lockCount > 0 && (state.writeLocked || wantWrite) {
		state.mu.Unlock()
		lockContentionTotal.Inc()
		return nil, fmt.Errorf("%w: handle %d already locked", ErrNoResources, h.ID())
	}
	state.lockCount++
	state.writeLocked = wantWrite
	state.lockUsage = cpuUsage
	state.lockRegion = region
	state.mu.Unlock()

	locksTotal.Inc()
	if m.lockCounter != nil {
		m.lockCounter.Add(ctx, 1)
	}
	if debugMode {
		internalLogger.tracef("lock handle %d usage %#x region %+v", h.ID(), uint64(cpuUsage), region)
	}
	// Blob buffers map in place at their declared byte size; pixels()
	// already spans exactly that for them.
	return store.pixels(), nil
}

func checkRegion(r Rect, info DescriptorInfo) error {
	if r.Left < 0 || r.Top < 0 || r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: access region %+v", ErrBadValue, r)
	}
	if uint32(r.Left)+uint32(r.Width) > info.Width || uint32(r.Top)+uint32(r.Height) > info.Height {
		return fmt.Errorf("%w: access region %+v outside %dx%d", ErrBadValue, r, info.Width, info.Height)
	}
	return nil
}

// Unlock transitions Locked -> Unlocked. The returned fence signals once
// implementation-side pending work (cache flush) completes; an empty
// fence means there is nothing outstanding.
func (m *Mapper) Unlock(h *Handle) (*fence.Fence, error) {
	state, ok := lookupState(h)
	if !ok {
		return nil, fmt.Errorf("%w: unknown handle", ErrBadBuffer)
	}
	state.mu.Lock()
	if state.lockCount == 0 {
		state.mu.Unlock()
		return nil, fmt.Errorf("%w: handle %d not locked", ErrBadBuffer, h.ID())
	}
	state.lockCount--
	wasWrite := state.writeLocked
	last := state.lockCount == 0
	if last {
		state.writeLocked = false
		state.lockUsage = 0
		state.lockRegion = Rect{}
	}
	state.mu.Unlock()
	if debugMode {
		internalLogger.tracef("unlock handle %d write=%v", h.ID(), wasWrite)
	}
	if last && wasWrite {
		return m.flush.enqueue(state.store), nil
	}
	return fence.Empty(), nil
}

// FlushLockedBuffer flushes CPU-visible caches of a buffer that stays
// locked. The lock state does not change. Behavior is undefined but safe
// if non-CPU agents write the buffer concurrently.
func (m *Mapper) FlushLockedBuffer(h *Handle) (*fence.Fence, error) {
	state, ok := lookupState(h)
	if !ok {
		return nil, fmt.Errorf("%w: unknown handle", ErrBadBuffer)
	}
	state.mu.Lock()
	locked := state.lockCount > 0
	state.mu.Unlock()
	if !locked {
		return nil, fmt.Errorf("%w: flush of unlocked handle %d", ErrBadBuffer, h.ID())
	}
	return m.flush.enqueue(state.store), nil
}

// RereadLockedBuffer refreshes the locked CPU view from the most recent
// writer, including writers in other processes.
func (m *Mapper) RereadLockedBuffer(h *Handle) error {
	state, ok := lookupState(h)
	if !ok {
		return fmt.Errorf("%w: unknown handle", ErrBadBuffer)
	}
	state.mu.Lock()
	locked := state.lockCount > 0
	state.mu.Unlock()
	if !locked {
		return fmt.Errorf("%w: reread of unlocked handle %d", ErrBadBuffer, h.ID())
	}
	if state.store.region != nil {
		if err := internalshm.InvalidateRegion(state.store.region); err != nil {
			return fmt.Errorf("%w: %v", ErrNoResources, err)
		}
	}
	return nil
}

// flushWorker runs cache-flush jobs off the caller's thread. Jobs queue
// up on a Workiva queue and a small ants pool drains it; each job signals
// its release fence when the flush lands.
type flushWorker struct {
	jobs *queuepkg.Queue
	pool *ants.Pool
}

type flushJob struct {
	store *bufferStore
	f     *fence.Fence
}

func (j flushJob) run() {
	if err := j.store.flush(); err != nil {
		internalLogger.warnf("flush of buffer %s: %v", j.store.bufferID, err)
	}
	j.f.Signal()
}

func newFlushWorker(workers int) (*flushWorker, error) {
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	w := &flushWorker{
		jobs: queuepkg.New(64),
		pool: pool,
	}
	go w.dispatch()
	return w, nil
}

func (w *flushWorker) dispatch() {
	for {
		items, err := w.jobs.Get(1)
		if err != nil {
			// queue disposed
			return
		}
		for _, item := range items {
			job, ok := item.(flushJob)
			if !ok {
				continue
			}
			if err := w.pool.Submit(job.run); err != nil {
				job.run()
			}
		}
	}
}

// enqueue schedules a flush of store and returns the fence that will
// signal on completion. After close the flush happens inline.
func (w *flushWorker) enqueue(store *bufferStore) *fence.Fence {
	f := fence.New()
	if err := w.jobs.Put(flushJob{store: store, f: f}); err != nil {
		flushJob{store: store, f: f}.run()
	}
	return f
}

func (w *flushWorker) depth() int64 {
	return w.jobs.Len()
}

func (w *flushWorker) close() {
	w.jobs.Dispose()
	w.pool.Release()
}
