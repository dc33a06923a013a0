package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/automaton/internal/ir"
)

func TestInvocationQueue_EnqueueDequeue(t *testing.T) {
	q := newInvocationQueue()

	ok := q.Enqueue(&ir.Invocation{ID: "inv-1"})
	require.True(t, ok, "enqueue should succeed")

	got, ok := q.TryDequeue()
	require.True(t, ok, "dequeue should succeed")
	assert.Equal(t, "inv-1", got.ID)
}

func TestInvocationQueue_FIFO(t *testing.T) {
	q := newInvocationQueue()
	for _, id := range []string{"A", "B", "C"} {
		q.Enqueue(&ir.Invocation{ID: id})
	}

	for _, want := range []string{"A", "B", "C"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.ID)
	}
}

func TestInvocationQueue_TryDequeue_Empty(t *testing.T) {
	q := newInvocationQueue()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestInvocationQueue_WaitSignals(t *testing.T) {
	q := newInvocationQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(&ir.Invocation{ID: "late"})
	}()

	select {
	case <-q.Wait():
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, "late", got.ID)
	case <-time.After(time.Second):
		t.Fatal("wait did not fire")
	}
}

func TestInvocationQueue_Close(t *testing.T) {
	q := newInvocationQueue()
	q.Enqueue(&ir.Invocation{ID: "kept"})
	q.Close()
	q.Close()

	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(&ir.Invocation{ID: "after-close"}), "enqueue after close should return false")

	_, open := <-q.Wait()
	assert.False(t, open, "wait channel closes with the queue")

	got, ok := q.TryDequeue()
	require.True(t, ok, "queued invocations survive close")
	assert.Equal(t, "kept", got.ID)
}

func TestInvocationQueue_Len(t *testing.T) {
	q := newInvocationQueue()
	assert.Equal(t, 0, q.Len())

	q.Enqueue(&ir.Invocation{ID: "1"})
	q.Enqueue(&ir.Invocation{ID: "2"})
	assert.Equal(t, 2, q.Len())

	q.TryDequeue()
	assert.Equal(t, 1, q.Len())
}

func TestInvocationQueue_ThreadSafe(t *testing.T) {
	q := newInvocationQueue()

	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(&ir.Invocation{})
			}
		}()
	}

	var received int
	var mu sync.Mutex
	var consumers sync.WaitGroup
	stop := make(chan struct{})
	for c := 0; c < 3; c++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				if _, ok := q.TryDequeue(); ok {
					mu.Lock()
					received++
					mu.Unlock()
					continue
				}
				select {
				case <-stop:
					return
				case <-q.Wait():
				case <-time.After(time.Millisecond):
				}
			}
		}()
	}

	wg.Wait()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received == producers*perProducer
	}, 5*time.Second, time.Millisecond)
	close(stop)
	consumers.Wait()
}
