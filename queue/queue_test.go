// video2audio/queue/queue_test.go
package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[int]()
	for i := 0; i < 5; i++ {
		assert.True(t, q.Push(i))
	}
	assert.Equal(t, 5, q.Len())

	for i := 0; i < 5; i++ {
		v, err := q.Pop(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_PopWaitsForPush(t *testing.T) {
	q := New[string]()
	got := make(chan string, 1)
	go func() {
		v, err := q.Pop(context.Background())
		if err == nil {
			got <- v
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push("hello")

	select {
	case v := <-got:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Push")
	}
}

func TestQueue_PopHonoursContext(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_Drain(t *testing.T) {
	q := New[int]()
	assert.Nil(t, q.Drain(0))
	for i := 1; i <= 5; i++ {
		q.Push(i)
	}

	assert.Equal(t, []int{1, 2}, q.Drain(2))
	assert.Equal(t, []int{3, 4, 5}, q.Drain(0))
	assert.Equal(t, 0, q.Len())
}

func TestQueue_Close(t *testing.T) {
	t.Run("hands out remaining items then reports closed", func(t *testing.T) {
		q := New[int]()
		q.Push(7)
		q.Close()
		q.Close()

		assert.False(t, q.Push(8))
		v, err := q.Pop(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 7, v)

		_, err = q.Pop(context.Background())
		assert.ErrorIs(t, err, ErrClosed)
	})

	t.Run("wakes blocked consumers", func(t *testing.T) {
		q := New[int]()
		errs := make(chan error, 3)
		for i := 0; i < 3; i++ {
			go func() {
				_, err := q.Pop(context.Background())
				errs <- err
			}()
		}
		time.Sleep(20 * time.Millisecond)
		q.Close()
		for i := 0; i < 3; i++ {
			select {
			case err := <-errs:
				assert.ErrorIs(t, err, ErrClosed)
			case <-time.After(time.Second):
				t.Fatal("consumer not woken by Close")
			}
		}
	})
}

func TestQueue_ConcurrentProducersAndConsumers(t *testing.T) {
	const producers, perProducer, consumers = 8, 250, 4
	q := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := make(map[int]int)
	var consumed sync.WaitGroup
	consumed.Add(producers * perProducer)

	for c := 0; c < consumers; c++ {
		go func() {
			for {
				v, err := q.Pop(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[v]++
				mu.Unlock()
				consumed.Done()
			}
		}()
	}

	var produced sync.WaitGroup
	for p := 0; p < producers; p++ {
		produced.Add(1)
		go func(p int) {
			defer produced.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(p*perProducer + i)
			}
		}(p)
	}
	produced.Wait()
	consumed.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, producers*perProducer)
	for v, n := range seen {
		assert.Equal(t, 1, n, "item %d delivered %d times", v, n)
	}
}
