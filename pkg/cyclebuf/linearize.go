package cyclebuf

import "fmt"

// Linearize copies the unread region [head, tail) of a circular storage into
// a newly allocated slice of length size, starting at index 0. When the region
// wraps, the high segment [head, len(storage)) comes first and the low segment
// [0, tail) follows it. head == tail is an empty region.
//
// size must hold the unread bytes. The input storage is never modified.
func Linearize(storage []byte, head, tail, size int) []byte {
	capacity := len(storage)
	count := tail - head
	if count < 0 {
		count += capacity
	}
	if size < count {
		panic(fmt.Sprintf("cyclebuf: linearize %d bytes into %d", count, size))
	}

	out := make([]byte, size)
	if head <= tail {
		copy(out, storage[head:tail])
		return out
	}
	n := copy(out, storage[head:])
	copy(out[n:], storage[:tail])
	return out
}
