// video2audio/events/channel.go
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"video2audio/queue"
)

// ErrNoBacklog is returned by Next on a channel built WithoutBacklog.
var ErrNoBacklog = errors.New("event backlog is disabled")

type Kind string

const (
	KindProgress Kind = "progress"
	KindStatus   Kind = "status"
	KindError    Kind = "error"
)

// Event is one task state change. Value is an int percentage for progress
// events, the status name for status events and the diagnostic text for error
// events.
type Event struct {
	Seq    uint64      `json:"seq"`
	TaskID string      `json:"taskId"`
	Kind   Kind        `json:"kind"`
	Value  interface{} `json:"value"`
	At     time.Time   `json:"at"`
}

func Progress(taskID string, percent int) Event {
	return Event{TaskID: taskID, Kind: KindProgress, Value: percent}
}

func Status(taskID, status string) Event {
	return Event{TaskID: taskID, Kind: KindStatus, Value: status}
}

func Failure(taskID, message string) Event {
	return Event{TaskID: taskID, Kind: KindError, Value: message}
}

// Channel fans task events out to a polling backlog and to any number of push
// subscribers. Publish never blocks and nothing is dropped while the channel
// is open; every consumer sees events in publish order. The backlog holds
// every event until it is drained.
type Channel struct {
	mu      sync.Mutex
	seq     uint64
	closed  bool
	backlog *queue.Queue[Event]
	subs    map[uint64]*subscription
	nextSub uint64
}

type subscription struct {
	q    *queue.Queue[Event]
	stop context.CancelFunc
	done chan struct{}
}

type Option func(*Channel)

// WithoutBacklog builds a push-only channel for processes where nobody polls,
// so undrained events do not pile up.
func WithoutBacklog() Option {
	return func(c *Channel) { c.backlog = nil }
}

func NewChannel(opts ...Option) *Channel {
	c := &Channel{
		backlog: queue.New[Event](),
		subs:    make(map[uint64]*subscription),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Polling reports whether Drain and Next are served.
func (c *Channel) Polling() bool {
	return c.backlog != nil
}

// Publish stamps e with a sequence number and time and enqueues it for every
// consumer. Events published after Close are discarded.
func (c *Channel) Publish(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.seq++
	e.Seq = c.seq
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if c.backlog != nil {
		c.backlog.Push(e)
	}
	for _, s := range c.subs {
		s.q.Push(e)
	}
}

// Drain returns up to max backlog events without waiting; max <= 0 returns all.
func (c *Channel) Drain(max int) []Event {
	if c.backlog == nil {
		return nil
	}
	return c.backlog.Drain(max)
}

// Next waits for the next backlog event.
func (c *Channel) Next(ctx context.Context) (Event, error) {
	if c.backlog == nil {
		return Event{}, ErrNoBacklog
	}
	return c.backlog.Pop(ctx)
}

// Pending reports how many events are waiting in the backlog.
func (c *Channel) Pending() int {
	if c.backlog == nil {
		return 0
	}
	return c.backlog.Len()
}

// Subscribe delivers every event published from now on to fn, in order, on a
// goroutine owned by the subscription. A slow fn only delays its own
// deliveries. The returned func unsubscribes and waits for fn to return; it
// must not be called from inside fn.
func (c *Channel) Subscribe(fn func(Event)) (unsubscribe func()) {
	ctx, stop := context.WithCancel(context.Background())
	s := &subscription{
		q:    queue.New[Event](),
		stop: stop,
		done: make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		stop()
		close(s.done)
		return func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = s
	c.mu.Unlock()

	go func() {
		defer close(s.done)
		for {
			e, err := s.q.Pop(ctx)
			if err != nil {
				return
			}
			fn(e)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			s.stop()
			s.q.Close()
			<-s.done
		})
	}
}

// Close stops accepting events. Subscribers finish delivering what they
// already hold; Close waits for them.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := make([]*subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	if c.backlog != nil {
		c.backlog.Close()
	}
	for _, s := range subs {
		s.q.Close()
		<-s.done
	}
}
