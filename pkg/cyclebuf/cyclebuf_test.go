package cyclebuf

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain consumes every buffered byte run by run, the way a sender does.
func drain(cb *CycleBuffer) []byte {
	var out []byte
	for cb.Len() > 0 {
		run := cb.Bytes()
		out = append(out, run...)
		cb.MarkAsRead(len(run))
	}
	return out
}

// snapshot returns the unread bytes without consuming them.
func snapshot(cb *CycleBuffer) []byte {
	return Linearize(cb.buff, cb.head, cb.tail, cb.Len())
}

func TestCycleBuffer_New(t *testing.T) {
	cb := New(64)
	assert.Equal(t, 0, cb.Len())
	assert.Equal(t, 64, cb.Cap())
	assert.Equal(t, 0, cb.ContiguousLen())
	assert.Empty(t, cb.Bytes())
	assert.False(t, cb.Locked())

	assert.Panics(t, func() { New(0) })
	assert.Panics(t, func() { New(-3) })
}

func TestCycleBuffer_Append(t *testing.T) {
	cb := New(64)
	cb.Append([]byte(strings.Repeat("abcd", 4)), nil)
	assert.Equal(t, 16, cb.Len())
	assert.Equal(t, 16, cb.ContiguousLen())
	assert.Equal(t, []byte(strings.Repeat("abcd", 4)), cb.Bytes())

	cb.Append([]byte(strings.Repeat("abcd", 8)), nil)
	assert.Equal(t, 48, cb.Len())
	assert.Equal(t, 64, cb.Cap())

	cb.MarkAsRead(20)
	assert.Equal(t, 28, cb.Len())
	assert.Equal(t, []byte(strings.Repeat("abcd", 12)[20:]), drain(cb))
	assert.Equal(t, 0, cb.Len())
}

func TestCycleBuffer_Wraparound(t *testing.T) {
	cb := New(8)
	cb.Append([]byte("abcdef"), nil)
	cb.MarkAsRead(6)
	require.Equal(t, 6, cb.head)

	// 2 bytes before the physical end, 3 after it
	cb.Append([]byte("12345"), nil)
	assert.Equal(t, 3, cb.tail)
	assert.Equal(t, 5, cb.Len())
	assert.Equal(t, 2, cb.ContiguousLen())
	assert.Equal(t, []byte("12"), cb.Bytes())

	cb.MarkAsRead(2)
	assert.Equal(t, 0, cb.head)
	assert.Equal(t, []byte("345"), cb.Bytes())
	assert.Equal(t, []byte("345"), drain(cb))
}

func TestCycleBuffer_AppendToPhysicalEnd(t *testing.T) {
	cb := New(8)
	cb.Append([]byte("abc"), nil)
	cb.MarkAsRead(3)
	cb.Append([]byte("defgh"), nil)
	assert.Equal(t, 0, cb.tail)
	assert.Equal(t, 5, cb.ContiguousLen())
	assert.Equal(t, []byte("defgh"), drain(cb))
	assert.Equal(t, 0, cb.head)
}

func TestCycleBuffer_Grow(t *testing.T) {
	t.Run("linear", func(t *testing.T) {
		cb := New(4)
		cb.Append([]byte("AB"), nil)
		assert.Equal(t, 4, cb.Cap())

		// 2 + 2 reaches capacity, so the buffer doubles first
		cb.Append([]byte("CD"), nil)
		assert.Equal(t, 8, cb.Cap())
		assert.Equal(t, []byte("ABCD"), snapshot(cb))

		cb.Append([]byte("EF"), nil)
		assert.Equal(t, 8, cb.Cap())
		assert.Equal(t, 6, cb.ContiguousLen())
		assert.Equal(t, []byte("ABCDEF"), cb.Bytes())
	})

	t.Run("wrapped", func(t *testing.T) {
		cb := New(8)
		cb.Append([]byte("abcdef"), nil)
		cb.MarkAsRead(4)
		cb.Append([]byte("ghi"), nil)
		require.Equal(t, 1, cb.tail)
		require.Equal(t, []byte("efghi"), snapshot(cb))

		cb.Append([]byte("jklm"), nil)
		assert.Equal(t, 16, cb.Cap())
		assert.Equal(t, 0, cb.head)
		assert.Equal(t, 9, cb.ContiguousLen())
		assert.Equal(t, []byte("efghijklm"), cb.Bytes())
	})

	t.Run("oversized", func(t *testing.T) {
		cb := New(4)
		payload := []byte(strings.Repeat("abcd", 5))
		cb.Append(payload, nil)
		assert.Equal(t, 32, cb.Cap())
		assert.Equal(t, payload, drain(cb))
	})

	t.Run("previous run stays intact", func(t *testing.T) {
		cb := New(4)
		cb.Append([]byte("xyz"), nil)
		run := cb.Bytes()
		cb.Append([]byte("0123456789"), nil)
		cb.MarkAsRead(3)
		cb.Append([]byte("!!!"), nil)
		assert.Equal(t, []byte("xyz"), run)
	})
}

func TestCycleBuffer_Lock(t *testing.T) {
	t.Run("released at boundary", func(t *testing.T) {
		var flag LockFlag
		cb := New(16)
		cb.Append([]byte("ab"), nil)
		require.True(t, flag.Acquire())
		cb.Append([]byte("cdef"), &flag)
		assert.True(t, cb.Locked())

		cb.MarkAsRead(3)
		assert.True(t, flag.Busy())
		cb.MarkAsRead(2)
		assert.True(t, flag.Busy())
		cb.MarkAsRead(1)
		assert.False(t, flag.Busy())
		assert.False(t, cb.Locked())

		cb.Append([]byte("gh"), nil)
		cb.MarkAsRead(2)
		assert.False(t, flag.Busy())
	})

	t.Run("released when crossed", func(t *testing.T) {
		var flag LockFlag
		cb := New(16)
		require.True(t, flag.Acquire())
		cb.Append([]byte("abc"), &flag)
		cb.Append([]byte("def"), nil)
		cb.MarkAsRead(5)
		assert.False(t, flag.Busy())
		assert.False(t, cb.Locked())
	})

	t.Run("boundary at physical end", func(t *testing.T) {
		var flag LockFlag
		cb := New(8)
		cb.Append([]byte("abcdef"), nil)
		cb.MarkAsRead(6)
		require.True(t, flag.Acquire())
		cb.Append([]byte("gh"), &flag)
		require.Equal(t, 0, cb.lockedTail)

		cb.MarkAsRead(1)
		assert.True(t, flag.Busy())
		cb.MarkAsRead(1)
		assert.False(t, flag.Busy())
	})

	t.Run("boundary past physical end", func(t *testing.T) {
		var flag LockFlag
		cb := New(8)
		cb.Append([]byte("abcdef"), nil)
		cb.MarkAsRead(6)
		require.True(t, flag.Acquire())
		cb.Append([]byte("ghijk"), &flag)
		require.Equal(t, 3, cb.lockedTail)

		cb.MarkAsRead(2)
		assert.True(t, flag.Busy())
		cb.MarkAsRead(2)
		assert.True(t, flag.Busy())
		cb.MarkAsRead(1)
		assert.False(t, flag.Busy())
	})

	t.Run("survives growth", func(t *testing.T) {
		var flag LockFlag
		cb := New(8)
		cb.Append([]byte("abcdef"), nil)
		cb.MarkAsRead(5)
		require.True(t, flag.Acquire())
		cb.Append([]byte("ghi"), &flag)
		cb.Append([]byte("jklmnop"), nil)
		require.Equal(t, 16, cb.Cap())

		cb.MarkAsRead(3)
		assert.True(t, flag.Busy())
		cb.MarkAsRead(1)
		assert.False(t, flag.Busy())
		assert.Equal(t, []byte("jklmnop"), drain(cb))
	})

	t.Run("same flag extends span", func(t *testing.T) {
		var flag LockFlag
		cb := New(16)
		require.True(t, flag.Acquire())
		cb.Append([]byte("ab"), &flag)
		cb.Append([]byte("cd"), &flag)
		cb.MarkAsRead(2)
		assert.True(t, flag.Busy())
		cb.MarkAsRead(2)
		assert.False(t, flag.Busy())
	})

	t.Run("second flag panics", func(t *testing.T) {
		var first, second LockFlag
		cb := New(16)
		require.True(t, first.Acquire())
		require.True(t, second.Acquire())
		cb.Append([]byte("ab"), &first)
		assert.Panics(t, func() { cb.Append([]byte("cd"), &second) })
	})

	t.Run("idle flag panics", func(t *testing.T) {
		var flag LockFlag
		cb := New(16)
		assert.Panics(t, func() { cb.Append([]byte("ab"), &flag) })
	})

	t.Run("empty append keeps lock state", func(t *testing.T) {
		var flag LockFlag
		cb := New(16)
		require.True(t, flag.Acquire())
		cb.Append(nil, &flag)
		assert.False(t, cb.Locked())
		assert.True(t, flag.Busy())
	})
}

func TestCycleBuffer_Clear(t *testing.T) {
	var flag LockFlag
	cb := New(8)
	cb.Append([]byte("abcdef"), nil)
	cb.MarkAsRead(5)
	require.True(t, flag.Acquire())
	cb.Append([]byte("ghi"), &flag)

	cb.Clear()
	assert.Equal(t, 0, cb.Len())
	assert.Equal(t, 0, cb.ContiguousLen())
	assert.False(t, cb.Locked())
	assert.Equal(t, 8, cb.Cap())
	// the flag belongs to the caller
	assert.True(t, flag.Busy())

	fresh := New(8)
	for _, chunk := range []string{"abc", "defg", "h"} {
		cb.Append([]byte(chunk), nil)
		fresh.Append([]byte(chunk), nil)
	}
	assert.Equal(t, fresh.String(), cb.String())
	assert.Equal(t, drain(fresh), drain(cb))
}

func TestCycleBuffer_MarkAsRead(t *testing.T) {
	cb := New(8)
	cb.Append([]byte("abc"), nil)

	cb.MarkAsRead(0)
	assert.Equal(t, 0, cb.head)
	assert.Equal(t, 3, cb.tail)

	assert.Panics(t, func() { cb.MarkAsRead(4) })
	assert.Panics(t, func() { cb.MarkAsRead(-1) })
	assert.Equal(t, 3, cb.Len())

	cb.Append(nil, nil)
	assert.Equal(t, 0, cb.head)
	assert.Equal(t, 3, cb.tail)
}

func TestCycleBuffer_RandomOps(t *testing.T) {
	rng := rand.New(rand.NewSource(1680))
	cb := New(5)
	var model []byte
	var next byte

	for i := 0; i < 5000; i++ {
		if rng.Intn(2) == 0 {
			chunk := make([]byte, rng.Intn(13))
			for j := range chunk {
				chunk[j] = next
				next++
			}
			cb.Append(chunk, nil)
			model = append(model, chunk...)
		} else {
			n := rng.Intn(len(model) + 1)
			cb.MarkAsRead(n)
			model = model[n:]
		}

		require.Equal(t, len(model), cb.Len())
		require.Less(t, cb.Len(), cb.Cap())
		require.True(t, bytes.Equal(model, snapshot(cb)), "step %d: %s", i, cb)

		run := cb.ContiguousLen()
		wrapped := 0
		if cb.head+cb.Len() > cb.Cap() {
			wrapped = cb.tail
		}
		require.Equal(t, cb.Len(), run+wrapped)
	}
}
