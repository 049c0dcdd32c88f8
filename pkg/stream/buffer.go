package stream

import "sync"

// buffer is an unbounded FIFO that doubles its capacity when it reaches
// 70% full. It decouples publishers from slow subscribers without
// dropping or reordering events.
type buffer[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []T
	head     int
	tail     int
	count    int
	capacity int
	closed   bool
}

func newBuffer[T any](initialCapacity int) *buffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &buffer[T]{
		items:    make([]T, initialCapacity),
		capacity: initialCapacity,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// push appends an item, growing the ring if needed. Returns false if
// the buffer is closed.
func (b *buffer[T]) push(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := (b.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.grow()
	}

	b.items[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++

	b.cond.Signal()
	return true
}

// pop blocks until an item is available or the buffer is closed. After
// close, remaining items are still drained before ok turns false.
func (b *buffer[T]) pop() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}

	if b.count == 0 {
		var zero T
		return zero, false
	}

	item := b.items[b.head]
	var zero T
	b.items[b.head] = zero
	b.head = (b.head + 1) % b.capacity
	b.count--

	return item, true
}

// close wakes all waiters. Idempotent.
func (b *buffer[T]) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// grow doubles capacity. Must be called with the lock held.
func (b *buffer[T]) grow() {
	newCapacity := b.capacity * 2
	items := make([]T, newCapacity)

	if b.count > 0 {
		if b.head < b.tail {
			copy(items, b.items[b.head:b.tail])
		} else {
			n := copy(items, b.items[b.head:])
			copy(items[n:], b.items[:b.tail])
		}
	}

	b.items = items
	b.head = 0
	b.tail = b.count
	b.capacity = newCapacity
}
