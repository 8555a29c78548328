// internal/ipc/mailbox.go
package ipc

import "sync"

// mailbox is an unbounded FIFO. push never blocks, so a slow consumer cannot
// stall the goroutine feeding it (a reader loop that must keep reading
// replies, for instance).
type mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{signal: make(chan struct{}, 1)}
}

func (m *mailbox[T]) push(item T) {
	m.mu.Lock()
	m.items = append(m.items, item)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// pop waits for the next item. It returns false once done is closed and the
// queue is observed empty.
func (m *mailbox[T]) pop(done <-chan struct{}) (T, bool) {
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			item := m.items[0]
			var zero T
			m.items[0] = zero
			m.items = m.items[1:]
			m.mu.Unlock()
			return item, true
		}
		m.mu.Unlock()

		select {
		case <-m.signal:
		case <-done:
			var zero T
			return zero, false
		}
	}
}

// len is only used by tests and metrics.
func (m *mailbox[T]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
