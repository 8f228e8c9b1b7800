package mapper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gfxbuf/bufmap/pkg/fence"
)

func newLockedTestMapper(t *testing.T) (*Mapper, *Handle) {
	t.Helper()
	m, err := New(nil)
	require.NoError(t, err)
	h, err := m.ImportBuffer(context.Background(), testRawHandle(testInfo()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = m.FreeBuffer(h)
		_ = m.Close()
	})
	return m, h
}

func TestLockZeroRegionIsWholeBuffer(t *testing.T) {
	m, h := newLockedTestMapper(t)
	ctx := context.Background()

	whole, err := m.Lock(ctx, h, UsageCPURead, Rect{}, nil)
	require.NoError(t, err)
	_, err = m.Unlock(h)
	require.NoError(t, err)

	sub, err := m.Lock(ctx, h, UsageCPURead, Rect{Left: 8, Top: 8, Width: 16, Height: 16}, nil)
	require.NoError(t, err)
	_, err = m.Unlock(h)
	require.NoError(t, err)

	// Both calls return the base address of the full buffer.
	require.NotEmpty(t, whole)
	assert.Same(t, &whole[0], &sub[0])
	info := testInfo()
	assert.Len(t, whole, int(info.Width*info.Format.BytesPerPixel()*info.Height))
}

func TestLockRejectsBadUsage(t *testing.T) {
	m, h := newLockedTestMapper(t)
	ctx := context.Background()

	_, err := m.Lock(ctx, h, 0, Rect{}, nil)
	assert.ErrorIs(t, err, ErrBadValue)

	// Non-CPU bits are not a lock usage.
	_, err = m.Lock(ctx, h, UsageGPUTexture, Rect{}, nil)
	assert.ErrorIs(t, err, ErrBadValue)
}

func TestLockRejectsUsageBeyondAllocation(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	info := testInfo()
	info.Usage = UsageCPURead
	h, err := m.ImportBuffer(context.Background(), testRawHandle(info))
	require.NoError(t, err)
	defer func() { _ = m.FreeBuffer(h) }()

	_, err = m.Lock(context.Background(), h, UsageCPUWrite, Rect{}, nil)
	assert.ErrorIs(t, err, ErrBadBuffer)
}

func TestLockRejectsOutOfBoundsRegion(t *testing.T) {
	m, h := newLockedTestMapper(t)
	ctx := context.Background()

	for _, r := range []Rect{
		{Left: -1, Top: 0, Width: 8, Height: 8},
		{Left: 0, Top: 0, Width: 0, Height: 8},
		{Left: 60, Top: 0, Width: 8, Height: 8},
		{Left: 0, Top: 60, Width: 8, Height: 8},
	} {
		_, err := m.Lock(ctx, h, UsageCPURead, r, nil)
		assert.ErrorIs(t, err, ErrBadValue, "region %+v", r)
	}
}

func TestLockWaitsForAcquireFence(t *testing.T) {
	m, h := newLockedTestMapper(t)

	f := fence.New()
	go func() {
		time.Sleep(20 * time.Millisecond)
		f.Signal()
	}()
	pixels, err := m.Lock(context.Background(), h, UsageCPUWrite, Rect{}, f)
	require.NoError(t, err)
	require.NotNil(t, pixels)
	_, err = m.Unlock(h)
	require.NoError(t, err)
}

func TestLockAcquireFenceTimeout(t *testing.T) {
	conf := DefaultConfig()
	conf.LockWaitTimeout = 30 * time.Millisecond
	m, err := New(conf)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	h, err := m.ImportBuffer(context.Background(), testRawHandle(testInfo()))
	require.NoError(t, err)
	defer func() { _ = m.FreeBuffer(h) }()

	_, err = m.Lock(context.Background(), h, UsageCPURead, Rect{}, fence.New())
	assert.ErrorIs(t, err, ErrNoResources)
}

func TestConcurrentReadLocksShareSession(t *testing.T) {
	m, h := newLockedTestMapper(t)
	ctx := context.Background()

	_, err := m.Lock(ctx, h, UsageCPURead, Rect{}, nil)
	require.NoError(t, err)
	_, err = m.Lock(ctx, h, UsageCPURead, Rect{}, nil)
	require.NoError(t, err)

	// Write intent on an open session fails fast instead of blocking.
	_, err = m.Lock(ctx, h, UsageCPURead|UsageCPUWrite, Rect{}, nil)
	assert.ErrorIs(t, err, ErrNoResources)

	_, err = m.Unlock(h)
	require.NoError(t, err)
	_, err = m.Unlock(h)
	require.NoError(t, err)

	// Fully unlocked again: write lock now succeeds.
	_, err = m.Lock(ctx, h, UsageCPUWrite, Rect{}, nil)
	require.NoError(t, err)
	_, err = m.Unlock(h)
	require.NoError(t, err)
}

func TestWriteLockExcludesReaders(t *testing.T) {
	m, h := newLockedTestMapper(t)
	ctx := context.Background()

	_, err := m.Lock(ctx, h, UsageCPUWrite, Rect{}, nil)
	require.NoError(t, err)
	_, err = m.Lock(ctx, h, UsageCPURead, Rect{}, nil)
	assert.ErrorIs(t, err, ErrNoResources)
	_, err = m.Unlock(h)
	require.NoError(t, err)
}

func TestUnlockSignalsReleaseFence(t *testing.T) {
	m, h := newLockedTestMapper(t)
	ctx := context.Background()

	pixels, err := m.Lock(ctx, h, UsageCPUWrite, Rect{}, nil)
	require.NoError(t, err)
	pixels[0] = 0x7f

	release, err := m.Unlock(h)
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, release.Wait(waitCtx))
}

func TestReadUnlockNeedsNoFlush(t *testing.T) {
	m, h := newLockedTestMapper(t)
	ctx := context.Background()

	_, err := m.Lock(ctx, h, UsageCPURead, Rect{}, nil)
	require.NoError(t, err)
	release, err := m.Unlock(h)
	require.NoError(t, err)
	// Read-only sessions leave nothing outstanding.
	assert.True(t, release.TryWait())
}

func TestOpsOnUnlockedHandle(t *testing.T) {
	m, h := newLockedTestMapper(t)

	_, err := m.Unlock(h)
	assert.ErrorIs(t, err, ErrBadBuffer)
	_, err = m.FlushLockedBuffer(h)
	assert.ErrorIs(t, err, ErrBadBuffer)
	assert.ErrorIs(t, m.RereadLockedBuffer(h), ErrBadBuffer)
}

func TestFlushAndRereadWhileLocked(t *testing.T) {
	m, h := newLockedTestMapper(t)
	ctx := context.Background()

	_, err := m.Lock(ctx, h, UsageCPUWrite, Rect{}, nil)
	require.NoError(t, err)

	f, err := m.FlushLockedBuffer(h)
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, f.Wait(waitCtx))

	// Still locked after the flush.
	require.NoError(t, m.RereadLockedBuffer(h))
	_, err = m.Unlock(h)
	require.NoError(t, err)
}

func TestDebugModeLockTracing(t *testing.T) {
	old := debugMode
	debugMode = true
	defer func() { debugMode = old }()

	m, h := newLockedTestMapper(t)
	ctx := context.Background()

	_, err := m.Lock(ctx, h, UsageCPUWrite, Rect{}, nil)
	require.NoError(t, err)
	_, err = m.Unlock(h)
	require.NoError(t, err)
}

func TestLockedDataVisibleThroughSecondImport(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	raw := testRawHandle(testInfo())
	a, err := m.ImportBuffer(ctx, raw)
	require.NoError(t, err)
	b, err := m.ImportBuffer(ctx, raw)
	require.NoError(t, err)
	defer func() {
		_ = m.FreeBuffer(a)
		_ = m.FreeBuffer(b)
	}()

	pixels, err := m.Lock(ctx, a, UsageCPUWrite, Rect{}, nil)
	require.NoError(t, err)
	pixels[0] = 0xc3
	release, err := m.Unlock(a)
	require.NoError(t, err)
	require.NoError(t, release.Wait(ctx))

	view, err := m.Lock(ctx, b, UsageCPURead, Rect{}, nil)
	require.NoError(t, err)
	assert.Equal(t, byte(0xc3), view[0])
	_, err = m.Unlock(b)
	require.NoError(t, err)
}
