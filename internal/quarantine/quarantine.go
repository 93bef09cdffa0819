// Package quarantine provides a FIFO delay line that releases values only
// once a fixed horizon has elapsed since they were stored.
//
// The buffer never inspects anything but its front entry, so a value
// observed at time t is released by the first PopMatured call with
// now >= t+horizon. Callers must pop at least as often as they add for the
// buffer to stay bounded; no cap is applied unless WithCapacity is given.
package quarantine

import (
	"github.com/banshee-data/birdgame/internal/monitoring"
)

// Entry is a value awaiting maturation.
type Entry[T any] struct {
	Time  float64
	Value T
}

// Buffer is a delay line of entries ordered by arrival. Times passed to
// Add are expected to be non-decreasing; this is not validated.
type Buffer[T any] struct {
	entries  []Entry[T]
	head     int
	capacity int // 0 means unbounded
	dropped  int
}

// Option configures a Buffer.
type Option func(*bufferOptions)

type bufferOptions struct {
	capacity int
}

// WithCapacity bounds the buffer to n pending entries. When full, Add
// drops the oldest pending entry to make room. n <= 0 means unbounded.
func WithCapacity(n int) Option {
	return func(o *bufferOptions) {
		if n < 0 {
			n = 0
		}
		o.capacity = n
	}
}

// New creates an empty buffer.
func New[T any](opts ...Option) *Buffer[T] {
	var o bufferOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Buffer[T]{capacity: o.capacity}
}

// Add appends a value observed at time t to the back of the buffer.
func (b *Buffer[T]) Add(t float64, value T) {
	if b.capacity > 0 && b.Len() >= b.capacity {
		oldest := b.entries[b.head]
		b.discardFront()
		b.dropped++
		monitoring.Logf("quarantine full (capacity=%d): dropped entry from t=%v", b.capacity, oldest.Time)
	}
	b.entries = append(b.entries, Entry[T]{Time: t, Value: value})
}

// PopMatured removes and returns the front value if now-front.Time >=
// horizon. Otherwise the buffer is left untouched and ok is false.
func (b *Buffer[T]) PopMatured(now, horizon float64) (value T, ok bool) {
	if b.Len() == 0 {
		return value, false
	}
	front := b.entries[b.head]
	if now-front.Time < horizon {
		return value, false
	}
	b.discardFront()
	return front.Value, true
}

// Peek returns the front entry without removing it.
func (b *Buffer[T]) Peek() (Entry[T], bool) {
	if b.Len() == 0 {
		return Entry[T]{}, false
	}
	return b.entries[b.head], true
}

// Len returns the number of pending entries.
func (b *Buffer[T]) Len() int {
	return len(b.entries) - b.head
}

// Dropped returns how many entries were discarded by the capacity bound.
func (b *Buffer[T]) Dropped() int {
	return b.dropped
}

func (b *Buffer[T]) discardFront() {
	var zero Entry[T]
	b.entries[b.head] = zero
	b.head++

	// Compact once the consumed prefix dominates the backing array.
	if b.head > 32 && b.head*2 >= len(b.entries) {
		n := copy(b.entries, b.entries[b.head:])
		clear(b.entries[n:])
		b.entries = b.entries[:n]
		b.head = 0
	}
}
