// Package stream provides the fan-out primitive behind every event
// channel in this module.
//
// A Broadcaster delivers each published value to every current
// subscriber, in publish order, with no coalescing and no drops. Each
// subscriber gets its own growable buffer, so one slow consumer never
// blocks the publisher or its siblings.
package stream

import "sync"

// subscriberBufferSize is the initial per-subscriber buffer capacity.
const subscriberBufferSize = 16

// Broadcaster fans values out to any number of subscribers. The zero
// value is not usable; use NewBroadcaster.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[int]*subscriber[T]
	nextID int
	closed bool
}

type subscriber[T any] struct {
	buf *buffer[T]
	ch  chan T
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[int]*subscriber[T])}
}

// Subscribe registers a new listener and returns its receive channel
// plus a cancel function. The channel is closed when the subscription
// is cancelled or the broadcaster closes; already-buffered values are
// still delivered first. Subscribing to a closed broadcaster returns an
// immediately-closed channel.
func (b *Broadcaster[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()
		ch := make(chan T)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	sub := &subscriber[T]{
		buf: newBuffer[T](subscriberBufferSize),
		ch:  make(chan T),
	}
	b.subs[id] = sub
	b.mu.Unlock()

	// Pump buffered values to the subscriber channel in order.
	go func() {
		for {
			v, ok := sub.buf.pop()
			if !ok {
				close(sub.ch)
				return
			}
			sub.ch <- v
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			sub.buf.close()
			// Drain so the pump goroutine is never stuck on a receiver
			// that has gone away.
			go func() {
				for range sub.ch {
				}
			}()
		})
	}
	return sub.ch, cancel
}

// Publish delivers v to every current subscriber. Values published
// before a Subscribe call are not replayed to the new subscriber.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		sub.buf.push(v)
	}
}

// Close shuts the broadcaster down. Subscriber channels close after
// their buffered values drain. Idempotent.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[int]*subscriber[T])
	b.mu.Unlock()

	for _, sub := range subs {
		sub.buf.close()
	}
}
