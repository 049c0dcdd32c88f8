package client

import (
	"context"
	"fmt"

	"github.com/viaduct-io/wireline/pkg/wire"
)

// Journal persists pending messages so a queue survives process
// restarts. internal/persist provides a Postgres implementation; any
// store that round-trips the wire JSON envelope works.
type Journal interface {
	// SaveQueue replaces the persisted snapshot with msgs.
	SaveQueue(ctx context.Context, msgs []wire.Message) error

	// LoadQueue returns the persisted snapshot, oldest first.
	LoadQueue(ctx context.Context) ([]wire.Message, error)
}

// AttachJournal wires a journal into the manager. Call before Connect.
func (m *Manager) AttachJournal(j Journal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal = j
}

// RestorePending loads the journaled snapshot into the queue. Messages
// rejected by the queue (capacity, duplicates) are counted but not
// fatal. Returns how many messages were enqueued.
func (m *Manager) RestorePending(ctx context.Context) (int, error) {
	m.mu.Lock()
	j := m.journal
	m.mu.Unlock()
	if j == nil {
		return 0, nil
	}

	msgs, err := j.LoadQueue(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore pending: %w", err)
	}

	restored := 0
	for _, msg := range msgs {
		if m.queue.Enqueue(msg) {
			restored++
		}
	}
	if restored > 0 {
		m.logger.Info("pending queue restored", "count", restored)
	}
	return restored, nil
}

// PersistPending writes the current queue snapshot to the journal.
// Returns how many messages were saved.
func (m *Manager) PersistPending(ctx context.Context) (int, error) {
	m.mu.Lock()
	j := m.journal
	m.mu.Unlock()
	if j == nil {
		return 0, nil
	}

	snapshot := m.queue.Snapshot()
	if err := j.SaveQueue(ctx, snapshot); err != nil {
		return 0, fmt.Errorf("persist pending: %w", err)
	}
	return len(snapshot), nil
}
