package accel

import (
	"errors"
	"sync"
)

// ErrQueueDestroyed is returned when work is submitted to a destroyed queue.
var ErrQueueDestroyed = errors.New("accel: queue destroyed")

// Queue is an ordered execution stream. Work submitted with Enqueue runs in
// FIFO order when the queue is synchronized; validation happens at
// submission time so callers learn about bad arguments immediately.
type Queue struct {
	mu        sync.Mutex
	pending   []func()
	executed  uint64
	destroyed bool
}

// NewQueue creates an empty execution queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends work to the queue.
func (q *Queue) Enqueue(op func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.destroyed {
		return ErrQueueDestroyed
	}
	q.pending = append(q.pending, op)
	return nil
}

// Synchronize runs all pending work in submission order.
func (q *Queue) Synchronize() {
	q.mu.Lock()
	ops := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, op := range ops {
		op()
	}

	q.mu.Lock()
	q.executed += uint64(len(ops))
	q.mu.Unlock()
}

// Pending returns the number of submitted operations not yet executed.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Executed returns the total number of operations executed so far.
func (q *Queue) Executed() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.executed
}

// Destroy drains the queue and rejects further work. Safe to call more
// than once.
func (q *Queue) Destroy() {
	q.Synchronize()
	q.mu.Lock()
	q.destroyed = true
	q.mu.Unlock()
}
