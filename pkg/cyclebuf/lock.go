package cyclebuf

import (
	"context"
	"sync"
	"sync/atomic"
)

const (
	flagIdle uint32 = 0
	flagBusy uint32 = 1
)

// LockFlag marks a span of buffered bytes as referenced by another goroutine.
//
// The owner calls Acquire before a locked Append. The CycleBuffer holding the
// span clears the flag, exactly once, when its consumer drains past the end of
// the span. The buffer never sets the flag and never waits on it. The owner
// keeps the flag alive until it has been released.
type LockFlag struct {
	state atomic.Uint32

	mu   sync.Mutex
	done chan struct{}
}

// Acquire moves the flag to busy. It reports false if it was already busy.
func (f *LockFlag) Acquire() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.state.CompareAndSwap(flagIdle, flagBusy) {
		return false
	}
	f.done = make(chan struct{})
	return true
}

func (f *LockFlag) Busy() bool {
	return f.state.Load() == flagBusy
}

// Done returns a channel closed when the current busy period ends.
// On an idle flag the returned channel is already closed.
func (f *LockFlag) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done == nil || !f.Busy() {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return f.done
}

// Wait blocks until the flag is released or ctx is done.
func (f *LockFlag) Wait(ctx context.Context) error {
	select {
	case <-f.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release clears the flag with an atomic AND and wakes waiters.
// A second release of the same busy period is a no-op.
func (f *LockFlag) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.And(flagIdle) == flagIdle {
		return
	}
	if f.done != nil {
		close(f.done)
		f.done = nil
	}
}
