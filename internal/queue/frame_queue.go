// Package queue provides the FIFO outbound frame queue used by the throttle connection.
//
// The queue is unbounded in principle; producers are throttled upstream by the
// safety interlock, so the practical depth stays in the single digits. A
// buffered notify channel lets a single consumer block until items arrive
// without polling.
package queue

import "sync"

// FrameQueue is a mutex-protected FIFO queue of framed protocol messages.
//
// Enqueue never blocks. A consumer waits on Notify and then drains the queue
// with Dequeue until it reports empty.
type FrameQueue struct {
	mu     sync.Mutex
	items  [][]byte
	notify chan struct{}
}

// NewFrameQueue creates a new FrameQueue with the given preallocated capacity.
func NewFrameQueue(prealloc int) *FrameQueue {
	return &FrameQueue{
		items:  make([][]byte, 0, prealloc),
		notify: make(chan struct{}, 1),
	}
}

// Enqueue adds a frame to the tail of the queue and signals the consumer.
func (q *FrameQueue) Enqueue(frame []byte) {
	q.mu.Lock()
	q.items = append(q.items, frame)
	q.mu.Unlock()

	// non-blocking signal; one pending signal is enough for the drain loop
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Requeue puts a frame back at the head of the queue and signals the
// consumer. Used when a dequeued frame could not be transmitted, so FIFO
// order is preserved across a reconnect.
func (q *FrameQueue) Requeue(frame []byte) {
	q.mu.Lock()
	q.items = append([][]byte{frame}, q.items...)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the frame at the head of the queue.
// It returns false if the queue is empty.
func (q *FrameQueue) Dequeue() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	frame := q.items[0]
	q.items = q.items[1:]

	return frame, true
}

// Notify returns the channel signalled when frames are enqueued.
func (q *FrameQueue) Notify() <-chan struct{} {
	return q.notify
}

// Length returns the number of frames in the queue.
func (q *FrameQueue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Reset drops all queued frames.
func (q *FrameQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = q.items[:0]
}
