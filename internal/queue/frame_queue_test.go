package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFrameQueueFIFO(t *testing.T) {
	require := require.New(t)

	q := NewFrameQueue(4)
	require.Equal(0, q.Length())

	_, ok := q.Dequeue()
	require.False(ok)

	q.Enqueue([]byte("first"))
	q.Enqueue([]byte("second"))
	q.Enqueue([]byte("third"))
	require.Equal(3, q.Length())

	frame, ok := q.Dequeue()
	require.True(ok)
	require.Equal([]byte("first"), frame)

	frame, ok = q.Dequeue()
	require.True(ok)
	require.Equal([]byte("second"), frame)

	frame, ok = q.Dequeue()
	require.True(ok)
	require.Equal([]byte("third"), frame)

	_, ok = q.Dequeue()
	require.False(ok)
}

func TestFrameQueueNotify(t *testing.T) {
	require := require.New(t)

	q := NewFrameQueue(1)

	done := make(chan []byte, 1)
	go func() {
		<-q.Notify()
		frame, ok := q.Dequeue()
		if ok {
			done <- frame
		}
	}()

	q.Enqueue([]byte("payload"))

	select {
	case frame := <-done:
		require.Equal([]byte("payload"), frame)
	case <-time.After(time.Second):
		t.Fatal("consumer never woke up")
	}
}

func TestFrameQueueRequeue(t *testing.T) {
	require := require.New(t)

	q := NewFrameQueue(2)
	q.Enqueue([]byte("second"))

	// an unsent frame goes back to the head and wakes the consumer again
	q.Requeue([]byte("first"))
	require.Equal(2, q.Length())

	select {
	case <-q.Notify():
	default:
		t.Fatal("requeue did not signal the consumer")
	}

	frame, ok := q.Dequeue()
	require.True(ok)
	require.Equal([]byte("first"), frame)

	frame, ok = q.Dequeue()
	require.True(ok)
	require.Equal([]byte("second"), frame)
}

func TestFrameQueueReset(t *testing.T) {
	require := require.New(t)

	q := NewFrameQueue(2)
	q.Enqueue([]byte("a"))
	q.Enqueue([]byte("b"))
	q.Reset()
	require.Equal(0, q.Length())

	_, ok := q.Dequeue()
	require.False(ok)
}
