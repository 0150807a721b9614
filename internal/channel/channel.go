package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrClosed is returned by Subscription.Next once the channel has been
// closed or the subscription itself was closed.
var ErrClosed = errors.New("channel closed")

// LaggedError reports that a subscription fell behind the retained ring
// buffer. It is returned exactly once per lag episode; the next call to
// Next resumes at the oldest frame still retained.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("subscription lagged, skipped %d frames", e.Skipped)
}

// Frame is one opaque unit of payload moving through the relay, stamped
// with its arrival time. The payload is shared between all subscriptions
// that receive the frame and must be treated as read-only.
type Frame struct {
	Payload   []byte
	Timestamp time.Time
}

// Channel is a bounded multi-consumer broadcast channel. It keeps the most
// recent frames in a ring buffer indexed by a monotonically increasing
// sequence. All state is guarded by a single mutex; waiting for a new frame
// happens on a notify channel that is closed and replaced on every publish,
// so no suspension ever holds the lock.
type Channel struct {
	capacity uint64

	mu     sync.Mutex
	buf    []Frame
	head   uint64 // sequence of the oldest retained frame
	tail   uint64 // sequence the next published frame will get
	subs   map[*Subscription]struct{}
	closed bool
	notify chan struct{}
}

// Subscription is a cursor into the channel's frame sequence. It starts at
// the tail current at Subscribe time, so no history is replayed.
type Subscription struct {
	ch     *Channel
	cursor uint64
	closed bool
}

// New creates a channel retaining the given number of frames. capacity must
// be positive.
func New(capacity int) *Channel {
	if capacity <= 0 {
		panic(fmt.Sprintf("channel: capacity must be positive, got %d", capacity))
	}
	return &Channel{
		capacity: uint64(capacity),
		buf:      make([]Frame, capacity),
		subs:     make(map[*Subscription]struct{}),
		notify:   make(chan struct{}),
	}
}

// Publish appends a frame to the shared sequence and wakes all waiting
// subscriptions. It never blocks: when the ring is full the oldest frame is
// evicted and any subscription still pointing at it will observe a
// LaggedError on its next read. Publishing on a closed channel is a no-op.
//
// The return value is the number of subscriptions that were not lagged at
// publish time, for diagnostics only.
func (c *Channel) Publish(f Frame) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0
	}

	c.buf[c.tail%c.capacity] = f
	c.tail++
	if c.tail-c.head > c.capacity {
		c.head++
	}

	delivered := 0
	for s := range c.subs {
		if s.cursor >= c.head {
			delivered++
		}
	}

	close(c.notify)
	c.notify = make(chan struct{})

	return delivered
}

// Subscribe registers a new cursor at the current tail.
func (c *Channel) Subscribe() *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Subscription{ch: c, cursor: c.tail}
	if !c.closed {
		c.subs[s] = struct{}{}
	}
	return s
}

// Close tears the channel down. All outstanding and future Next calls
// resolve with ErrClosed. Idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.notify)
}

// Next returns the next frame in publish order. It blocks until a frame is
// available, the channel closes, or ctx ends. When the subscription has
// fallen behind retained history it returns a *LaggedError once and resumes
// from the oldest retained frame on the following call.
func (s *Subscription) Next(ctx context.Context) (Frame, error) {
	for {
		c := s.ch
		c.mu.Lock()

		if s.closed || c.closed {
			c.mu.Unlock()
			return Frame{}, ErrClosed
		}

		if s.cursor < c.head {
			skipped := c.head - s.cursor
			s.cursor = c.head
			c.mu.Unlock()
			return Frame{}, &LaggedError{Skipped: skipped}
		}

		if s.cursor < c.tail {
			f := c.buf[s.cursor%c.capacity]
			s.cursor++
			c.mu.Unlock()
			return f, nil
		}

		wait := c.notify
		c.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		}
	}
}

// Close deregisters the subscription. Subsequent Next calls return
// ErrClosed. A Next already blocked in another goroutine is not woken;
// cancel its context to unblock it. Idempotent.
func (s *Subscription) Close() {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()

	s.closed = true
	delete(s.ch.subs, s)
}
