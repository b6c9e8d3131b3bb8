// File: reactor/mpsc_queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded multi-producer/single-consumer ring buffer: each executor
// worker's local queue. executor.submit lets any goroutine enqueue onto a
// given worker's queue (many producers, hashed by an atomic counter), but
// only that worker's own goroutine ever dequeues from it, in run/drain
// (executor.go). That asymmetry is what lets dequeue skip the CAS loop
// enqueue still needs: with a single consumer there is never a second
// goroutine racing to claim q.head, so advancing it is a plain increment
// once a cell's sequence confirms a producer has filled it.
//
// Sequence-numbered cells following the pattern by Dmitry Vyukov for MPMC
// queues, specialized here to a single consumer.

package reactor

import "sync/atomic"

const cacheLinePad = 64

type cell[T any] struct {
	sequence atomic.Uint64
	data     T
}

// mpscQueue is a bounded ring buffer for many producers and exactly one
// consumer goroutine.
type mpscQueue[T any] struct {
	head  uint64
	_     [cacheLinePad]byte
	tail  uint64
	_     [cacheLinePad]byte
	mask  uint64
	cells []cell[T]
}

// newMPSCQueue creates a queue with capacity rounded up to a power of two.
func newMPSCQueue[T any](capacity int) *mpscQueue[T] {
	if capacity < 2 {
		capacity = 2
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	q := &mpscQueue[T]{
		mask:  uint64(size - 1),
		cells: make([]cell[T], size),
	}
	for i := range q.cells {
		q.cells[i].sequence.Store(uint64(i))
	}
	return q
}

// enqueue adds val; returns false if the queue is full. Called
// concurrently by any number of producer goroutines, so tail is still
// claimed with a CAS retry loop.
func (q *mpscQueue[T]) enqueue(val T) bool {
	for {
		tail := atomic.LoadUint64(&q.tail)
		index := tail & q.mask
		c := &q.cells[index]
		seq := c.sequence.Load()
		dif := int64(seq) - int64(tail)

		switch {
		case dif == 0:
			if atomic.CompareAndSwapUint64(&q.tail, tail, tail+1) {
				c.data = val
				c.sequence.Store(tail + 1)
				return true
			}
		case dif < 0:
			return false
		}
	}
}

// dequeue removes and returns an item; ok is false if the queue is empty.
// Callable from exactly one goroutine at a time (the owning worker): head
// is a plain field, not a CAS target, since there is no second consumer
// to race against.
func (q *mpscQueue[T]) dequeue() (item T, ok bool) {
	head := q.head
	index := head & q.mask
	c := &q.cells[index]
	seq := c.sequence.Load()
	if int64(seq)-int64(head+1) != 0 {
		var zero T
		return zero, false
	}
	item = c.data
	q.head = head + 1
	c.sequence.Store(head + q.mask + 1)
	return item, true
}
