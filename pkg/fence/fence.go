// Package fence provides a signal-once synchronization token for gating
// access to buffer contents.
//
// A Fence represents the completion of some prior work. It starts pending
// and becomes signaled exactly once; waiters observe "signaled means safe"
// and nothing more. A nil *Fence is the empty fence: it is already
// signaled and waiting on it is a no-op. Fences are decoupled from any OS
// primitive so callers can back them with whatever completion mechanism
// they have.
package fence

import (
	"context"
	"sync"
)

// Fence is a signal-once completion token.
type Fence struct {
	once sync.Once
	done chan struct{}
}

// New returns a pending fence.
func New() *Fence {
	return &Fence{done: make(chan struct{})}
}

// Empty returns an already-signaled fence.
func Empty() *Fence {
	f := New()
	f.Signal()
	return f
}

// Signal marks the fence signaled. Signaling more than once is a no-op.
func (f *Fence) Signal() {
	if f == nil {
		return
	}
	f.once.Do(func() { close(f.done) })
}

// TryWait reports whether the fence is already signaled, without blocking.
func (f *Fence) TryWait() bool {
	if f == nil {
		return true
	}
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the fence signals or ctx is done. It returns nil when
// the fence signaled and the context error otherwise.
func (f *Fence) Wait(ctx context.Context) error {
	if f == nil {
		return nil
	}
	select {
	case <-f.done:
		return nil
	default:
	}
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done exposes the underlying completion channel for select loops.
// The channel of a nil fence is a closed channel.
func (f *Fence) Done() <-chan struct{} {
	if f == nil {
		return closedChan
	}
	return f.done
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()
