// Package outbound holds frames that could not be handed to a transport yet.
package outbound

import (
	"errors"
	"sync"
)

// ErrFull is returned by Push under OverflowReject when the queue is at
// capacity.
var ErrFull = errors.New("outbound queue full")

// Overflow selects what Push does when the queue is full.
type Overflow string

const (
	DropOldest Overflow = "drop_oldest"
	Reject     Overflow = "reject"
)

const initialCapacity = 16

// Queue is a bounded FIFO. The backing ring starts small and doubles up to
// maxSize.
type Queue[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	maxSize  int
	overflow Overflow

	// Stats
	totalPushed    int64
	totalPopped    int64
	totalDropped   int64
	totalRejected  int64
	totalDiscarded int64
}

// NewQueue creates a queue holding at most maxSize items.
func NewQueue[T any](maxSize int, overflow Overflow) *Queue[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	if overflow != Reject {
		overflow = DropOldest
	}

	capacity := min(initialCapacity, maxSize)
	return &Queue[T]{
		buf:      make([]T, capacity),
		maxSize:  maxSize,
		overflow: overflow,
	}
}

// Push appends item. Under DropOldest a full queue evicts its head, which is
// returned with dropped=true. Under Reject a full queue returns ErrFull.
func (q *Queue[T]) Push(item T) (evicted T, dropped bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == q.maxSize {
		if q.overflow == Reject {
			q.totalRejected++
			return evicted, false, ErrFull
		}
		evicted = q.popLocked()
		dropped = true
		q.totalPopped-- // eviction is not a delivery
		q.totalDropped++
	}

	if q.count == len(q.buf) {
		q.grow()
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % len(q.buf)
	q.count++
	q.totalPushed++

	return evicted, dropped, nil
}

// Peek returns the head without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.buf[q.head], true
}

// Pop removes and returns the head.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// Discard empties the queue and returns what it held, oldest first.
func (q *Queue[T]) Discard() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}

	result := make([]T, 0, q.count)
	for q.count > 0 {
		result = append(result, q.popLocked())
	}
	q.totalPopped -= int64(len(result))
	q.totalDiscarded += int64(len(result))

	return result
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Len:            q.count,
		MaxSize:        q.maxSize,
		TotalPushed:    q.totalPushed,
		TotalPopped:    q.totalPopped,
		TotalDropped:   q.totalDropped,
		TotalRejected:  q.totalRejected,
		TotalDiscarded: q.totalDiscarded,
	}
}

// Stats contains queue statistics.
type Stats struct {
	Len            int
	MaxSize        int
	TotalPushed    int64
	TotalPopped    int64 // Handed to a transport
	TotalDropped   int64 // Evicted by DropOldest
	TotalRejected  int64 // Refused by Reject
	TotalDiscarded int64 // Cleared by Discard
}

// popLocked removes the head. Must be called with lock held and count > 0.
func (q *Queue[T]) popLocked() T {
	item := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero // Clear reference for GC
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.totalPopped++
	return item
}

// grow doubles the ring, capped at maxSize. Must be called with lock held.
func (q *Queue[T]) grow() {
	newCapacity := min(len(q.buf)*2, q.maxSize)
	newBuf := make([]T, newCapacity)

	if q.count > 0 {
		if q.head < q.tail {
			copy(newBuf, q.buf[q.head:q.tail])
		} else {
			// Wrapped: [head...end) + [0...tail)
			n := copy(newBuf, q.buf[q.head:])
			copy(newBuf[n:], q.buf[:q.tail])
		}
	}

	q.buf = newBuf
	q.head = 0
	q.tail = q.count
}
