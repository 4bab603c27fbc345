// video2audio/events/channel_test.go
package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_PublishAndDrain(t *testing.T) {
	ch := NewChannel()
	ch.Publish(Status("a", "queued"))
	ch.Publish(Progress("a", 10))
	ch.Publish(Failure("a", "boom"))

	assert.Equal(t, 3, ch.Pending())
	first := ch.Drain(1)
	require.Len(t, first, 1)
	assert.Equal(t, KindStatus, first[0].Kind)
	assert.Equal(t, "queued", first[0].Value)
	assert.Equal(t, uint64(1), first[0].Seq)
	assert.False(t, first[0].At.IsZero())

	rest := ch.Drain(0)
	require.Len(t, rest, 2)
	assert.Equal(t, 10, rest[0].Value)
	assert.Equal(t, KindError, rest[1].Kind)
	assert.Equal(t, uint64(3), rest[1].Seq)

	assert.Empty(t, ch.Drain(0), "drain never blocks on an empty channel")
}

func TestChannel_Next(t *testing.T) {
	ch := NewChannel()
	go func() {
		time.Sleep(10 * time.Millisecond)
		ch.Publish(Progress("a", 42))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	e, err := ch.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, e.Value)
}

func TestChannel_PerTaskOrderUnderConcurrentProducers(t *testing.T) {
	const tasks, perTask = 6, 200
	ch := NewChannel()

	var wg sync.WaitGroup
	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for p := 1; p <= perTask; p++ {
				ch.Publish(Progress(id, p))
			}
		}(fmt.Sprintf("task-%d", i))
	}
	wg.Wait()

	all := ch.Drain(0)
	require.Len(t, all, tasks*perTask)

	last := make(map[string]int)
	var lastSeq uint64
	for _, e := range all {
		p := e.Value.(int)
		assert.Equal(t, last[e.TaskID]+1, p, "out of order for %s", e.TaskID)
		last[e.TaskID] = p
		assert.Greater(t, e.Seq, lastSeq)
		lastSeq = e.Seq
	}
}

func TestChannel_Subscribe(t *testing.T) {
	ch := NewChannel()

	var mu sync.Mutex
	var got []int
	unsubscribe := ch.Subscribe(func(e Event) {
		mu.Lock()
		got = append(got, e.Value.(int))
		mu.Unlock()
	})

	for i := 1; i <= 50; i++ {
		ch.Publish(Progress("a", i))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 50
	}, time.Second, 5*time.Millisecond)

	unsubscribe()
	unsubscribe()
	ch.Publish(Progress("a", 51))
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i+1, v)
	}
	// polling consumers still see everything
	assert.Equal(t, 51, ch.Pending())
}

func TestChannel_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	ch := NewChannel()
	release := make(chan struct{})
	delivered := make(chan struct{}, 100)
	ch.Subscribe(func(e Event) {
		<-release
		delivered <- struct{}{}
	})

	start := time.Now()
	for i := 0; i < 100; i++ {
		ch.Publish(Progress("a", i))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(release)
	for i := 0; i < 100; i++ {
		select {
		case <-delivered:
		case <-time.After(time.Second):
			t.Fatalf("only %d events delivered", i)
		}
	}
}

func TestChannel_Close(t *testing.T) {
	ch := NewChannel()
	var mu sync.Mutex
	count := 0
	ch.Subscribe(func(e Event) {
		time.Sleep(time.Millisecond)
		mu.Lock()
		count++
		mu.Unlock()
	})

	for i := 0; i < 10; i++ {
		ch.Publish(Progress("a", i))
	}
	ch.Close()

	mu.Lock()
	assert.Equal(t, 10, count, "Close waits for subscribers to flush")
	mu.Unlock()

	ch.Publish(Progress("a", 99))
	assert.Len(t, ch.Drain(0), 10)

	unsubscribe := ch.Subscribe(func(Event) {})
	unsubscribe()
}

func TestChannel_WithoutBacklog(t *testing.T) {
	ch := NewChannel(WithoutBacklog())
	defer ch.Close()
	assert.False(t, ch.Polling())

	got := make(chan Event, 10)
	unsubscribe := ch.Subscribe(func(e Event) { got <- e })
	defer unsubscribe()

	for i := 0; i < 1000; i++ {
		ch.Publish(Progress("a", i%100))
	}

	assert.Equal(t, 0, ch.Pending(), "nothing is retained for pollers")
	assert.Empty(t, ch.Drain(0))
	_, err := ch.Next(context.Background())
	assert.ErrorIs(t, err, ErrNoBacklog)

	// subscribers still see everything, in order
	for i := 0; i < 1000; i++ {
		select {
		case e := <-got:
			assert.Equal(t, uint64(i+1), e.Seq)
		case <-time.After(2 * time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
	assert.True(t, NewChannel().Polling())
}
