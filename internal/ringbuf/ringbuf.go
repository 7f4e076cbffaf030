// Package ringbuf provides a fixed-capacity history buffer that evicts the
// oldest element on overflow. It is not safe for concurrent use; each buffer
// is owned by a single goroutine (one symbol worker in the engine).
package ringbuf

// History keeps the most recent Cap() values pushed into it.
// Storage is a power-of-two ring for bitwise modulo; the logical capacity is
// exactly what was requested.
type History[T any] struct {
	buf   []T
	mask  uint64
	limit int

	head uint64 // next write position
	size int

	evicted uint64
}

// New creates a history holding at most capacity values. Minimum capacity is 1.
func New[T any](capacity int) *History[T] {
	if capacity < 1 {
		capacity = 1
	}
	n := nextPow2(capacity)
	return &History[T]{
		buf:   make([]T, n),
		mask:  uint64(n - 1),
		limit: capacity,
	}
}

// Push appends v, evicting the oldest value when the history is full.
func (h *History[T]) Push(v T) {
	h.buf[h.head&h.mask] = v
	h.head++
	if h.size < h.limit {
		h.size++
		return
	}
	h.evicted++
}

// Len returns the number of values currently held.
func (h *History[T]) Len() int { return h.size }

// Cap returns the logical capacity.
func (h *History[T]) Cap() int { return h.limit }

// Evicted returns how many values have been dropped to make room.
func (h *History[T]) Evicted() uint64 { return h.evicted }

// At returns the i-th value, oldest first (0 <= i < Len()).
func (h *History[T]) At(i int) T {
	start := h.head - uint64(h.size)
	return h.buf[(start+uint64(i))&h.mask]
}

// Latest returns the newest value and true, or the zero value and false when empty.
func (h *History[T]) Latest() (T, bool) {
	if h.size == 0 {
		var zero T
		return zero, false
	}
	return h.buf[(h.head-1)&h.mask], true
}

// Last copies the newest n values (fewer if not available), oldest first.
func (h *History[T]) Last(n int) []T {
	if n > h.size {
		n = h.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	start := h.head - uint64(n)
	for i := 0; i < n; i++ {
		out[i] = h.buf[(start+uint64(i))&h.mask]
	}
	return out
}

// Slice copies every held value, oldest first.
func (h *History[T]) Slice() []T {
	return h.Last(h.size)
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
