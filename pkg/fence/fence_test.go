package fence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilFenceIsEmpty(t *testing.T) {
	var f *Fence
	assert.True(t, f.TryWait())
	assert.NoError(t, f.Wait(context.Background()))
	f.Signal() // must not panic
	select {
	case <-f.Done():
	default:
		t.Fatal("nil fence Done channel should be closed")
	}
}

func TestEmptyFence(t *testing.T) {
	f := Empty()
	assert.True(t, f.TryWait())
	assert.NoError(t, f.Wait(context.Background()))
}

func TestSignalOnce(t *testing.T) {
	f := New()
	assert.False(t, f.TryWait())
	f.Signal()
	f.Signal()
	assert.True(t, f.TryWait())
	assert.NoError(t, f.Wait(context.Background()))
}

func TestWaitBlocksUntilSignal(t *testing.T) {
	f := New()
	go func() {
		time.Sleep(20 * time.Millisecond)
		f.Signal()
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.Wait(ctx))
}

func TestWaitHonorsContext(t *testing.T) {
	f := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := f.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	// The fence is still usable afterwards.
	f.Signal()
	assert.NoError(t, f.Wait(context.Background()))
}
