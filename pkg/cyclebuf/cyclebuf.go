// Package cyclebuf implements a growable circular byte buffer whose unread
// bytes can be handed to another goroutine without copying.
package cyclebuf

import (
	"fmt"

	"go.uber.org/zap"
)

const unlocked = -1

var logger = zap.NewNop()

// SetLogger replaces the package logger. A nil logger restores the nop logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l.Named("cyclebuf")
}

// ------|++++++++++++++++|--------------------|
//     head              tail               capacity
// head < capacity; tail < capacity; head == tail means empty.
// The buffer grows before it can fill up, so it is never "full".

// CycleBuffer is a growable circular byte buffer sitting between a producer
// that appends chunks and a consumer that drains them in order.
// It is not safe for concurrent use; callers serialize every method.
type CycleBuffer struct {
	buff     []byte
	capacity int
	head     int
	tail     int

	locked     *LockFlag
	lockedTail int
}

func New(capacity int) *CycleBuffer {
	if capacity < 1 {
		panic(fmt.Sprintf("cyclebuf: invalid capacity %d", capacity))
	}
	return &CycleBuffer{
		buff:       make([]byte, capacity),
		capacity:   capacity,
		lockedTail: unlocked,
	}
}

// Len returns the number of unread bytes.
func (cb *CycleBuffer) Len() int {
	n := cb.tail - cb.head
	if n < 0 {
		n += cb.capacity
	}
	return n
}

func (cb *CycleBuffer) Cap() int {
	return cb.capacity
}

// ContiguousLen is the longest unread run starting at head that does not
// cross the physical end of the storage.
func (cb *CycleBuffer) ContiguousLen() int {
	return min(cb.Len(), cb.capacity-cb.head)
}

// Bytes returns the contiguous unread run. The slice aliases the buffer's
// storage and is only meaningful until the next Append, MarkAsRead or Clear.
func (cb *CycleBuffer) Bytes() []byte {
	return cb.buff[cb.head : cb.head+cb.ContiguousLen()]
}

// Locked reports whether a lock span is outstanding.
func (cb *CycleBuffer) Locked() bool {
	return cb.lockedTail != unlocked
}

// Append copies p in at tail, growing the buffer first if p does not fit.
// If lock is non-nil the caller must have acquired it; it is released once
// the consumer has drained every byte appended so far.
func (cb *CycleBuffer) Append(p []byte, lock *LockFlag) {
	if len(p) == 0 {
		return
	}
	if lock != nil {
		if !lock.Busy() {
			panic("cyclebuf: locked append with a flag that was not acquired")
		}
		if cb.locked != nil && cb.locked != lock {
			panic("cyclebuf: another lock span is still outstanding")
		}
	}

	// 1. make room. Doubling may need several rounds for a large p.
	for len(p)+cb.Len() >= cb.capacity {
		cb.grow()
	}

	// 2. copy, splitting at the physical end if needed
	count := len(p)
	length := min(count, cb.capacity-cb.tail)
	copy(cb.buff[cb.tail:], p[:length])
	if length < count {
		copy(cb.buff, p[length:])
		cb.tail = count - length
	} else {
		cb.tail += count
	}
	if cb.tail == cb.capacity {
		cb.tail = 0
	}

	// 3. the lock boundary is the position right after this span
	if lock != nil {
		cb.locked = lock
		cb.lockedTail = cb.tail
	}
}

// MarkAsRead advances head by n bytes. n must not exceed Len.
func (cb *CycleBuffer) MarkAsRead(n int) {
	if n < 0 || n > cb.Len() {
		panic(fmt.Sprintf("cyclebuf: mark %d bytes as read with %d buffered", n, cb.Len()))
	}
	if n == 0 {
		return
	}

	// distance to the lock boundary, measured before head moves
	boundary := -1
	if cb.lockedTail != unlocked {
		boundary = cb.lockedTail - cb.head
		if boundary <= 0 {
			boundary += cb.capacity
		}
	}

	cb.head += n
	if cb.head >= cb.capacity {
		cb.head -= cb.capacity
	}

	if boundary != -1 && n >= boundary {
		cb.locked.release()
		cb.locked = nil
		cb.lockedTail = unlocked
	}
}

// Clear forgets all buffered bytes and any lock span. It never releases
// the lock flag; whoever holds it is responsible for that.
func (cb *CycleBuffer) Clear() {
	cb.head = 0
	cb.tail = 0
	cb.locked = nil
	cb.lockedTail = unlocked
}

// grow doubles the capacity. The unread bytes move to a fresh storage slice
// starting at index 0, so a run previously returned by Bytes stays intact.
func (cb *CycleBuffer) grow() {
	count := cb.Len()
	size := cb.capacity * 2

	if cb.lockedTail != unlocked {
		cb.lockedTail -= cb.head
		if cb.lockedTail <= 0 {
			cb.lockedTail += cb.capacity
		}
	}

	cb.buff = Linearize(cb.buff, cb.head, cb.tail, size)
	logger.Info("extends a buffer size",
		zap.Int("from", cb.capacity), zap.Int("to", size), zap.Int("buffered", count))
	cb.capacity = size
	cb.head = 0
	cb.tail = count
}

func (cb *CycleBuffer) String() string {
	return fmt.Sprintf("CycleBuffer{capacity: %d, head: %d, tail: %d, count: %d, lockedTail: %d}",
		cb.capacity, cb.head, cb.tail, cb.Len(), cb.lockedTail)
}
