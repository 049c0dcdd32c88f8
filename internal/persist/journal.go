package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/viaduct-io/wireline/pkg/wire"
)

// Schema is the DDL for the journal table. Applied with EnsureSchema;
// kept here so deployments that manage migrations themselves can lift
// it verbatim.
const Schema = `
CREATE TABLE IF NOT EXISTS queue_journal (
    instance_id TEXT NOT NULL,
    position    INTEGER NOT NULL,
    message_id  TEXT NOT NULL,
    envelope    JSONB NOT NULL,
    saved_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (instance_id, position)
);
`

// Journal persists queue snapshots to PostgreSQL. Each instance owns
// one snapshot, keyed by instance id; SaveQueue replaces the previous
// snapshot atomically.
type Journal struct {
	pool       *pgxpool.Pool
	instanceID string
}

// NewJournal wraps an existing pool. The instance id scopes snapshots
// so several clients can share one database.
func NewJournal(pool *pgxpool.Pool, instanceID string) *Journal {
	return &Journal{pool: pool, instanceID: instanceID}
}

// EnsureSchema creates the journal table when it does not exist yet.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure journal schema: %w", err)
	}
	return nil
}

// SaveQueue replaces this instance's snapshot with msgs, preserving
// their order. An empty slice clears the snapshot.
func (j *Journal) SaveQueue(ctx context.Context, msgs []wire.Message) error {
	tx, err := j.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin journal tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM queue_journal WHERE instance_id = $1`, j.instanceID); err != nil {
		return fmt.Errorf("clear journal: %w", err)
	}

	if len(msgs) > 0 {
		batch := &pgx.Batch{}
		for i, msg := range msgs {
			envelope, err := wire.Encode(msg)
			if err != nil {
				return fmt.Errorf("encode message %s: %w", msg.ID, err)
			}
			batch.Queue(
				`INSERT INTO queue_journal (instance_id, position, message_id, envelope) VALUES ($1, $2, $3, $4)`,
				j.instanceID, i, msg.ID, envelope,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("write journal batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit journal tx: %w", err)
	}
	return nil
}

// LoadQueue returns this instance's snapshot in its saved order.
func (j *Journal) LoadQueue(ctx context.Context) ([]wire.Message, error) {
	rows, err := j.pool.Query(ctx,
		`SELECT envelope FROM queue_journal WHERE instance_id = $1 ORDER BY position`,
		j.instanceID)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var msgs []wire.Message
	for rows.Next() {
		var envelope []byte
		if err := rows.Scan(&envelope); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		msg, err := wire.Decode(envelope)
		if err != nil {
			return nil, fmt.Errorf("decode journal envelope: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read journal rows: %w", err)
	}
	return msgs, nil
}

// Clear removes this instance's snapshot.
func (j *Journal) Clear(ctx context.Context) error {
	if _, err := j.pool.Exec(ctx,
		`DELETE FROM queue_journal WHERE instance_id = $1`, j.instanceID); err != nil {
		return fmt.Errorf("clear journal: %w", err)
	}
	return nil
}
