package fiberrt

import "sync"

// RunQueue is a mutex-guarded double-ended queue of ready-to-run Fibers,
// one per SchedulingGroup. Producers always push to the tail; the owning
// group's workers dequeue from the head (FIFO, preserving per-producer
// submission order per spec.md §5); thieves take from the tail (spec.md
// §4.D: "pops from the tail of the run queue (opposite end from the
// worker's local dequeue)"), the same two-ended access pattern as a
// Chase-Lev work-stealing deque. spec.md §5 allows "a single MPMC ring"
// guarded by a lock in place of a lock-free deque (DESIGN.md #7); no
// lock-free implementation is wired here because the pack supplies no
// ecosystem library for one.
type RunQueue struct {
	mu    sync.Mutex
	items []*Fiber
}

// NewRunQueue builds an empty run queue with room for n fibers before the
// backing slice must grow.
func NewRunQueue(capacityHint int) *RunQueue {
	if capacityHint < 0 {
		capacityHint = 0
	}
	return &RunQueue{items: make([]*Fiber, 0, capacityHint)}
}

// PushTail appends f, the entry point for both a freshly spawned fiber and
// one a worker is re-queuing after a voluntary Yield.
func (q *RunQueue) PushTail(f *Fiber) {
	q.mu.Lock()
	q.items = append(q.items, f)
	q.mu.Unlock()
}

// PopTail removes and returns the most recently pushed fiber. Returns
// nil, false on an empty queue.
func (q *RunQueue) PopTail() (*Fiber, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if n == 0 {
		return nil, false
	}
	f := q.items[n-1]
	q.items[n-1] = nil
	q.items = q.items[:n-1]
	return f, true
}

// PopHead removes and returns the oldest fiber in the queue, the owning
// group's preferred pick (FIFO, preserving per-producer submission
// order). Returns nil, false on an empty queue.
func (q *RunQueue) PopHead() (*Fiber, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	f := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return f, true
}

// Len reports the current queue depth.
func (q *RunQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// StealMany pops up to max fibers from the tail, the end opposite the
// owning group's local (head) dequeue, for a single steal pass that
// takes a batch rather than one fiber at a time, reducing lock
// contention against the victim's own producers.
func (q *RunQueue) StealMany(max int) []*Fiber {
	if max <= 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if n == 0 {
		return nil
	}
	if max > n {
		max = n
	}
	start := n - max
	stolen := make([]*Fiber, max)
	copy(stolen, q.items[start:])
	for i := start; i < n; i++ {
		q.items[i] = nil
	}
	q.items = q.items[:start]
	return stolen
}
