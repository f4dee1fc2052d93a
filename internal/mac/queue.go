package mac

import (
	"time"

	"mesh-mac-simulation/internal/frame"
)

// OutboundFrame is a frame accepted from the upper layer. Data is the
// encoded form handed to the radio on every attempt.
type OutboundFrame struct {
	Frame    *frame.Frame
	Data     []byte
	Enqueued time.Duration
}

// txQueue owns the single in-flight frame and the FIFO behind it.
type txQueue struct {
	current  *OutboundFrame
	pending  []*OutboundFrame
	retries  int
	capacity int
}

func newTxQueue(capacity int) *txQueue {
	return &txQueue{capacity: capacity}
}

func (q *txQueue) full() bool {
	return q.capacity > 0 && len(q.pending) >= q.capacity
}

func (q *txQueue) push(f *OutboundFrame) {
	q.pending = append(q.pending, f)
}

// promote makes the head of the FIFO the current frame if none is active.
func (q *txQueue) promote() *OutboundFrame {
	if q.current == nil && len(q.pending) > 0 {
		q.current = q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
	}
	return q.current
}

// release discards the current frame and returns it.
func (q *txQueue) release() *OutboundFrame {
	f := q.current
	q.current = nil
	return f
}

func (q *txQueue) hasWork() bool { return q.current != nil || len(q.pending) > 0 }

func (q *txQueue) len() int { return len(q.pending) }
