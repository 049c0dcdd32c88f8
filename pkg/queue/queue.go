package queue

import (
	"sort"
	"sync"

	"github.com/viaduct-io/wireline/pkg/wire"
)

// Options configures a Queue.
type Options struct {
	// MaxSize bounds the number of pending messages. Must be >= 1.
	MaxSize int

	// Deduplicate rejects a message whose id is already queued.
	Deduplicate bool
}

// Queue is a bounded, priority-ordered store of pending messages. All
// methods are safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	entries []wire.Message
	ids     map[string]struct{}
	opts    Options
}

// New creates an empty queue.
func New(opts Options) *Queue {
	if opts.MaxSize < 1 {
		opts.MaxSize = 1
	}
	return &Queue{
		entries: make([]wire.Message, 0, opts.MaxSize),
		ids:     make(map[string]struct{}),
		opts:    opts,
	}
}

// Enqueue appends a message and re-sorts. Returns false when the queue
// is full or, with deduplication on, when the id is already present.
func (q *Queue) Enqueue(m wire.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.opts.MaxSize {
		return false
	}
	if q.opts.Deduplicate {
		if _, dup := q.ids[m.ID]; dup {
			return false
		}
	}

	q.entries = append(q.entries, m)
	q.ids[m.ID] = struct{}{}
	q.resort()
	return true
}

// Dequeue removes and returns the highest-priority message. The second
// result is false when the queue is empty.
func (q *Queue) Dequeue() (wire.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return wire.Message{}, false
	}

	m := q.entries[0]
	q.entries = q.entries[1:]
	delete(q.ids, m.ID)
	return m, true
}

// Peek returns the head without removing it.
func (q *Queue) Peek() (wire.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return wire.Message{}, false
	}
	return q.entries[0], true
}

// Remove deletes the message with the given id. Returns false when no
// such entry exists.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, m := range q.entries {
		if m.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			delete(q.ids, id)
			return true
		}
	}
	return false
}

// Clear drops every pending message.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = q.entries[:0]
	q.ids = make(map[string]struct{})
}

// UpdateRetryCount replaces the stored message with its WithRetry copy,
// provided it still has retry budget. Returns false otherwise.
func (q *Queue) UpdateRetryCount(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, m := range q.entries {
		if m.ID != id {
			continue
		}
		if !m.CanRetry() {
			return false
		}
		q.entries[i] = m.WithRetry()
		q.resort()
		return true
	}
	return false
}

// Len returns the number of pending messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot returns a copy of the pending messages in priority order.
func (q *Queue) Snapshot() []wire.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]wire.Message, len(q.entries))
	copy(out, q.entries)
	return out
}

// Stats describes the queue at a point in time. Computed on demand.
type Stats struct {
	Size        int
	Capacity    int
	Utilization float64 // percent
	Retryable   int
	AckRequired int
	ByKind      map[wire.Kind]int
}

// Stats computes a snapshot of queue statistics.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{
		Size:     len(q.entries),
		Capacity: q.opts.MaxSize,
		ByKind:   make(map[wire.Kind]int),
	}
	s.Utilization = float64(s.Size) / float64(s.Capacity) * 100

	for _, m := range q.entries {
		if m.CanRetry() {
			s.Retryable++
		}
		if m.RequiresAck {
			s.AckRequired++
		}
		s.ByKind[m.Kind()]++
	}
	return s
}

// resort re-establishes priority order. Must be called with the lock
// held. The comparator is a strict weak ordering: control before
// ack-required before plain, then lower retry count, then earlier
// creation time; sort.SliceStable keeps insertion order among full ties.
func (q *Queue) resort() {
	sort.SliceStable(q.entries, func(i, j int) bool {
		a, b := q.entries[i], q.entries[j]

		ac, bc := a.Kind() == wire.KindControl, b.Kind() == wire.KindControl
		if ac != bc {
			return ac
		}
		if a.RequiresAck != b.RequiresAck {
			return a.RequiresAck
		}
		if a.RetryCount != b.RetryCount {
			return a.RetryCount < b.RetryCount
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
