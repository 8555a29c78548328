// internal/jsbind/queue.go
package jsbind

import "sync"

// jobQueue is an unbounded FIFO. push never blocks, so transport dispatch
// can hand work to the runtime while the runtime itself waits on the
// transport.
type jobQueue struct {
	mu    sync.Mutex
	items []func()
	ready chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{ready: make(chan struct{}, 1)}
}

func (q *jobQueue) push(job func()) {
	q.mu.Lock()
	q.items = append(q.items, job)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// next removes and returns the oldest job, or nil when the queue is empty.
func (q *jobQueue) next() func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	job := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return job
}
