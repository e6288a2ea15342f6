// Package queue implements the durable change queue: an ordered, append-only
// log of local mutations not yet confirmed by the server, with per-entry
// retry accounting.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dstepanov-dev/localnotes/internal/common"
	"github.com/dstepanov-dev/localnotes/internal/dbx"
	"github.com/dstepanov-dev/localnotes/internal/models"
	"github.com/google/uuid"
)

// Queue provides access to the pending_changes table.
type Queue struct {
	db dbx.DBTX
}

// New returns a Queue bound to the given DBTX.
func New(db dbx.DBTX) *Queue {
	return &Queue{db: db}
}

// Enqueue appends a change entry with the given timestamp and a zero retry
// count. The queue never deduplicates: a later update for the same entity may
// follow an earlier unprocessed one, and the push reconciler reads live row
// state at drain time, so duplicates only cost an extra idempotent push.
func (q *Queue) Enqueue(ctx context.Context, t models.EntityType, entityID string, op models.Operation, payload json.RawMessage, ts int64) (string, error) {
	id := uuid.NewString()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO pending_changes (id, entity_type, entity_id, op, payload, ts, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`, id, string(t), entityID, string(op), []byte(payload), ts)
	if err != nil {
		return "", fmt.Errorf("%w: failed to enqueue change for %s/%s: %v", common.ErrStorage, t, entityID, err)
	}
	return id, nil
}

// Drain returns every queued entry ordered FIFO by timestamp. Rowid breaks
// ties between entries enqueued within the same millisecond.
func (q *Queue) Drain(ctx context.Context) ([]*models.PendingChange, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, op, payload, ts, retry_count
		FROM pending_changes ORDER BY ts ASC, rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to drain queue: %v", common.ErrStorage, err)
	}
	defer rows.Close()

	var result []*models.PendingChange
	for rows.Next() {
		ch, err := scanChange(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: queue iteration failed: %v", common.ErrStorage, err)
	}
	return result, nil
}

func scanChange(scan func(dest ...any) error) (*models.PendingChange, error) {
	var (
		ch      models.PendingChange
		et, op  string
		payload []byte
	)
	if err := scan(&ch.ID, &et, &ch.EntityID, &op, &payload, &ch.Timestamp, &ch.RetryCount); err != nil {
		return nil, fmt.Errorf("%w: change scan failed: %v", common.ErrStorage, err)
	}
	ch.EntityType = models.EntityType(et)
	ch.Operation = models.Operation(op)
	if len(payload) > 0 {
		ch.Payload = payload
	}
	return &ch, nil
}

// Remove deletes a single entry, typically on confirmed success.
func (q *Queue) Remove(ctx context.Context, changeID string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM pending_changes WHERE id = ?`, changeID); err != nil {
		return fmt.Errorf("%w: failed to remove change %s: %v", common.ErrStorage, changeID, err)
	}
	return nil
}

// IncrementRetry bumps the retry counter of an entry and returns the new
// count. The cap itself is enforced by the push reconciler.
func (q *Queue) IncrementRetry(ctx context.Context, changeID string) (int, error) {
	_, err := q.db.ExecContext(ctx,
		`UPDATE pending_changes SET retry_count = retry_count + 1 WHERE id = ?`, changeID)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to increment retry for %s: %v", common.ErrStorage, changeID, err)
	}
	var count int
	err = q.db.QueryRowContext(ctx,
		`SELECT retry_count FROM pending_changes WHERE id = ?`, changeID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: change %s", common.ErrNotFound, changeID)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read retry count for %s: %v", common.ErrStorage, changeID, err)
	}
	return count, nil
}

// DeleteForEntity drops every queued entry for one entity. Used by conflict
// resolution, where queued work is superseded or discarded.
func (q *Queue) DeleteForEntity(ctx context.Context, t models.EntityType, entityID string) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM pending_changes WHERE entity_type = ? AND entity_id = ?`, string(t), entityID)
	if err != nil {
		return fmt.Errorf("%w: failed to delete changes for %s/%s: %v", common.ErrStorage, t, entityID, err)
	}
	return nil
}

// CountForEntity returns the number of queued entries for one entity.
func (q *Queue) CountForEntity(ctx context.Context, t models.EntityType, entityID string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_changes WHERE entity_type = ? AND entity_id = ?`,
		string(t), entityID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count changes for %s/%s: %v", common.ErrStorage, t, entityID, err)
	}
	return n, nil
}

// HasPending reports whether any queued entry exists for one entity.
func (q *Queue) HasPending(ctx context.Context, t models.EntityType, entityID string) (bool, error) {
	n, err := q.CountForEntity(ctx, t, entityID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Len returns the total number of queued entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_changes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: failed to count queue: %v", common.ErrStorage, err)
	}
	return n, nil
}
