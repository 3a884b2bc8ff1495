// Package queue implements the per-user durable FIFO queue.
//
// Messages must be processed in arrival order while multiple worker
// invocations may run in parallel, so ordering lives here rather than in the
// scheduler: each (namespace, user, kind) triple maps to one ordered list in
// the store, pops are exclusive, and workers drain until empty. A crash
// between a pop and the completion of processing loses exactly that entry's
// in-flight work, which is why delivery is at-least-once and handlers must
// tolerate duplicates.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domerrors "github.com/hermod-chat/hermod/internal/errors"
	"github.com/hermod-chat/hermod/internal/storage"
)

// Kind identifies one of the per-user queue kinds.
type Kind string

const (
	// KindMessage is the queue for free-text and attachment messages.
	KindMessage Kind = "messages"
	// KindPostback is the queue for structured postback/referral events.
	KindPostback Kind = "postbacks"
)

// Key identifies one FIFO list in the durable store. The same
// (namespace, userID, kind) always maps to the same key and different
// users or kinds never collide.
func Key(namespace, userID string, kind Kind) string {
	return fmt.Sprintf("%s:users:%s:%s", namespace, userID, kind)
}

// Queue is an interface to the durable FIFO lists stored in SQLite.
type Queue struct {
	db *storage.DB
}

// New creates a queue backed by the given store.
func New(db *storage.DB) *Queue {
	return &Queue{db: db}
}

// Push appends entry to the tail of the list at key. A store failure is
// returned as a StorageError, never swallowed.
func (q *Queue) Push(ctx context.Context, key string, entry []byte) error {
	_, err := q.db.Conn().ExecContext(ctx,
		`INSERT INTO queue_entries (queue_key, payload, enqueued_at) VALUES (?, ?, ?)`,
		key, entry, time.Now().Unix(),
	)
	if err != nil {
		return domerrors.NewStorageError("push", key, err)
	}
	return nil
}

// Pop removes and returns the head of the list at key. Returns
// errors.ErrQueueEmpty when the list is empty. The single
// DELETE ... RETURNING statement makes removal exclusive: two concurrent
// pops on the same key can never return the same entry.
func (q *Queue) Pop(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := q.db.Conn().QueryRowContext(ctx, `
		DELETE FROM queue_entries
		WHERE id = (
			SELECT id FROM queue_entries
			WHERE queue_key = ?
			ORDER BY id
			LIMIT 1
		)
		RETURNING payload
	`, key).Scan(&payload)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domerrors.ErrQueueEmpty
	}
	if err != nil {
		return nil, domerrors.NewStorageError("pop", key, err)
	}
	return payload, nil
}

// Depth returns the number of entries currently queued at key.
func (q *Queue) Depth(ctx context.Context, key string) (int, error) {
	var n int
	err := q.db.Conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_entries WHERE queue_key = ?`, key,
	).Scan(&n)
	if err != nil {
		return 0, domerrors.NewStorageError("depth", key, err)
	}
	return n, nil
}
