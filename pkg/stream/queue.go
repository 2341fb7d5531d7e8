package stream

import "sync"

// frameQueue is the bounded hand-off between the reader pool and the
// consumer. Producers never block: when the buffer is full the oldest
// frame is evicted so fresh data wins. The consumer side is a plain
// channel receive.
type frameQueue struct {
	mu sync.Mutex
	ch chan RawFrame
}

func newFrameQueue(capacity int) *frameQueue {
	return &frameQueue{ch: make(chan RawFrame, capacity)}
}

// push enqueues one frame, evicting the oldest when full, and reports
// whether an eviction happened. The lock keeps evict-and-send atomic
// across producers so every overflow is counted exactly once.
func (q *frameQueue) push(f RawFrame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case q.ch <- f:
		return false
	default:
	}

	dropped := false
	select {
	case <-q.ch:
		dropped = true
	default:
		// The consumer freed a slot between the attempts.
	}
	select {
	case q.ch <- f:
	default:
	}
	return dropped
}

// frames exposes the consumer side of the queue.
func (q *frameQueue) frames() <-chan RawFrame {
	return q.ch
}

// close ends the consumer stream. Only called after every producer has
// exited.
func (q *frameQueue) close() {
	close(q.ch)
}
