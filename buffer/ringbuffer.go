// Package buffer provides a lock-free ring buffer used to keep the most recent
// history samples of a source. Each slot stores an atomic pointer so readers
// either see a complete sample or the previous one, never a partially written
// value, and presentation reads never block the poll cycle.
package buffer

import (
	"sync/atomic"
)

// DefaultCapacity is the number of samples retained per series.
const DefaultCapacity = 120

type entry[T any] struct {
	id    uint64
	value T
}

// RingBuffer is a fixed-capacity FIFO. Once full, each Add evicts the oldest
// element. Add must be called by one writer at a time; reads may run
// concurrently with the writer.
type RingBuffer[T any] struct {
	// Each slot is an atomic pointer so the writer publishes a finished entry
	// in one step. Combined with the monotonic id this removes the need for a
	// mutex on the read side.
	slots    []atomic.Pointer[entry[T]]
	capacity int
	total    atomic.Uint64 // Total values added (may exceed capacity)
}

// NewRingBuffer allocates a ring buffer with the specified capacity.
// Non-positive capacities fall back to DefaultCapacity.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RingBuffer[T]{
		slots:    make([]atomic.Pointer[entry[T]], capacity),
		capacity: capacity,
	}
}

// Add appends a value, assigning a monotonic id so readers can skip over
// stale entries when the buffer wraps.
func (rb *RingBuffer[T]) Add(v T) {
	newID := rb.total.Add(1)
	idx := (newID - 1) % uint64(rb.capacity)
	// Publishing via atomic.Store ensures readers either see the previous entry or this one
	rb.slots[idx].Store(&entry[T]{id: newID, value: v})
}

// GetRecent returns the n most recent values, newest first.
func (rb *RingBuffer[T]) GetRecent(n int) []T {
	if n <= 0 {
		return []T{}
	}
	total := rb.total.Load()
	available := rb.available(total)
	if n > available {
		n = available
	}

	result := make([]T, 0, n)
	minIndex := total - uint64(available)
	for idx := total; idx > minIndex && len(result) < n; {
		idx--
		// id check skips slots that were overwritten after wraparound
		if e := rb.slots[idx%uint64(rb.capacity)].Load(); e != nil && e.id == idx+1 {
			result = append(result, e.value)
		}
	}
	return result
}

// Snapshot returns every retained value in insertion order, oldest first.
func (rb *RingBuffer[T]) Snapshot() []T {
	recent := rb.GetRecent(rb.capacity)
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent
}

// Len returns the number of retained values.
func (rb *RingBuffer[T]) Len() int {
	return rb.available(rb.total.Load())
}

// Cap returns the buffer capacity.
func (rb *RingBuffer[T]) Cap() int {
	return rb.capacity
}

// GetCount returns the total number of values added (may be > capacity).
func (rb *RingBuffer[T]) GetCount() int {
	return int(rb.total.Load())
}

func (rb *RingBuffer[T]) available(total uint64) int {
	if total > uint64(rb.capacity) {
		return rb.capacity
	}
	return int(total)
}
