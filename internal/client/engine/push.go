package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dstepanov-dev/localnotes/internal/client/queue"
	"github.com/dstepanov-dev/localnotes/internal/client/store"
	"github.com/dstepanov-dev/localnotes/internal/common"
	"github.com/dstepanov-dev/localnotes/internal/dbx"
	"github.com/dstepanov-dev/localnotes/internal/models"
)

// pushAll drains the change queue against the remote service, one entry at a
// time in FIFO order. A failed entry never aborts the drain; it is either
// left queued for the next cycle, or dropped once its retry count reaches the
// cap, in which case a terminal error string is returned for the status
// surface.
func (e *Engine) pushAll(ctx context.Context) []string {
	changes, err := e.queue.Drain(ctx)
	if err != nil {
		e.log.Error(ctx, "failed to drain change queue", "err", err)
		return []string{err.Error()}
	}

	var terminal []string
	for _, ch := range changes {
		err := e.pushChange(ctx, ch)
		if err == nil {
			continue
		}

		if errors.Is(err, common.ErrVersionConflict) {
			// Server advanced past the local version. The entity is parked
			// in conflict state and the entry stays queued; no retry
			// accounting, this is a state transition, not a failure.
			if serr := e.markConflict(ctx, ch.EntityType, ch.EntityID); serr != nil {
				e.log.Error(ctx, "failed to mark conflict", "type", ch.EntityType, "id", ch.EntityID, "err", serr)
			}
			e.log.Warn(ctx, "push conflict", "type", ch.EntityType, "id", ch.EntityID)
			continue
		}

		retries, rerr := e.queue.IncrementRetry(ctx, ch.ID)
		if rerr != nil {
			e.log.Error(ctx, "failed to record push retry", "change", ch.ID, "err", rerr)
			continue
		}
		if retries >= e.retryCap {
			if rerr := e.queue.Remove(ctx, ch.ID); rerr != nil {
				e.log.Error(ctx, "failed to drop exhausted change", "change", ch.ID, "err", rerr)
				continue
			}
			msg := fmt.Sprintf("gave up on %s %s/%s after %d attempts: %v",
				ch.Operation, ch.EntityType, ch.EntityID, retries, err)
			terminal = append(terminal, msg)
			e.log.Error(ctx, "push permanently failed", "type", ch.EntityType, "id", ch.EntityID, "attempts", retries, "err", err)
			continue
		}
		e.log.Warn(ctx, "push failed, will retry", "type", ch.EntityType, "id", ch.EntityID, "attempt", retries, "err", err)
	}
	return terminal
}

func (e *Engine) pushChange(ctx context.Context, ch *models.PendingChange) error {
	switch ch.Operation {
	case models.OpCreate:
		return e.pushCreate(ctx, ch)
	case models.OpUpdate:
		return e.pushUpdate(ctx, ch)
	case models.OpDelete:
		return e.pushDelete(ctx, ch)
	default:
		// Unknown operations cannot succeed on retry either; drop them.
		e.log.Error(ctx, "dropping change with unknown operation", "op", ch.Operation, "change", ch.ID)
		return e.queue.Remove(ctx, ch.ID)
	}
}

func (e *Engine) pushCreate(ctx context.Context, ch *models.PendingChange) error {
	rec, err := e.store.Get(ctx, ch.EntityType, ch.EntityID)
	if err != nil {
		return err
	}
	if rec == nil {
		// Row was deleted locally before its first push; the queued delete
		// that follows handles the server side.
		return e.queue.Remove(ctx, ch.ID)
	}
	if rec.Trashed && rec.ServerUpdatedAt == 0 {
		// Trashed before ever reaching the server: nothing worth creating
		// remotely, acknowledge locally.
		return e.ackLocal(ctx, ch, rec)
	}

	confirmed, err := e.remote.Insert(ctx, ch.EntityType, rec.Record)
	if err != nil {
		return err
	}
	return e.ack(ctx, ch, rec, confirmed)
}

func (e *Engine) pushUpdate(ctx context.Context, ch *models.PendingChange) error {
	// Push live row state, not the queued snapshot: if several mutations were
	// queued before this drain, the first entry already carries the newest
	// local edits and later entries become idempotent re-pushes.
	rec, err := e.store.Get(ctx, ch.EntityType, ch.EntityID)
	if err != nil {
		return err
	}
	if rec == nil {
		return e.queue.Remove(ctx, ch.ID)
	}

	vi, err := e.remote.GetVersion(ctx, ch.EntityType, ch.EntityID)
	if err != nil {
		return err
	}
	if vi == nil {
		// The id is unknown server-side, likely a lost insert; recover by
		// creating. Known limitation: this also resurrects rows another
		// device deleted deliberately.
		confirmed, err := e.remote.Insert(ctx, ch.EntityType, rec.Record)
		if err != nil {
			return err
		}
		return e.ack(ctx, ch, rec, confirmed)
	}
	if vi.Version > rec.Version {
		return fmt.Errorf("%w: server at v%d, local at v%d", common.ErrVersionConflict, vi.Version, rec.Version)
	}

	confirmed, err := e.remote.Update(ctx, ch.EntityType, rec.Record, false)
	if err != nil {
		return err
	}
	return e.ack(ctx, ch, rec, confirmed)
}

func (e *Engine) pushDelete(ctx context.Context, ch *models.PendingChange) error {
	// The local row was removed optimistically at mutation time; only the
	// server side is left. Delete is idempotent: not-found counts as done.
	if err := e.remote.Delete(ctx, ch.EntityType, ch.EntityID); err != nil {
		return err
	}
	return e.queue.Remove(ctx, ch.ID)
}

// ack records a server confirmation: envelope and concurrency metadata are
// refreshed and the queue entry removed, in one transaction so the
// pending⇔queued invariant can't be observed broken. Domain fields are left
// alone; the server confirmed exactly what was pushed.
func (e *Engine) ack(ctx context.Context, ch *models.PendingChange, pushed *models.LocalRecord, confirmed *models.Record) error {
	return dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		st := store.New(tx)
		q := queue.New(tx)

		if err := q.Remove(ctx, ch.ID); err != nil {
			return err
		}

		cur, err := st.Get(ctx, ch.EntityType, ch.EntityID)
		if err != nil {
			return err
		}
		if cur == nil {
			// Deleted locally while the push was in flight; the queued
			// delete will reconcile the server.
			return nil
		}
		if cur.Version > pushed.Version {
			// A newer local edit landed mid-push. Keep its fields and its
			// pending state; only note that the server has seen something.
			cur.ServerUpdatedAt = confirmed.UpdatedAt
			return st.Put(ctx, ch.EntityType, cur)
		}

		remaining, err := q.CountForEntity(ctx, ch.EntityType, ch.EntityID)
		if err != nil {
			return err
		}
		cur.Version = confirmed.Version
		cur.UpdatedAt = confirmed.UpdatedAt
		cur.ServerUpdatedAt = confirmed.UpdatedAt
		cur.LocalUpdatedAt = confirmed.UpdatedAt
		if remaining == 0 {
			cur.SyncStatus = models.StatusSynced
		} else {
			cur.SyncStatus = models.StatusPending
		}
		return st.Put(ctx, ch.EntityType, cur)
	})
}

// ackLocal acknowledges a change without any network call (the trashed
// never-synced create skip). ServerUpdatedAt stays zero: the server has
// still never seen this row.
func (e *Engine) ackLocal(ctx context.Context, ch *models.PendingChange, rec *models.LocalRecord) error {
	return dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		st := store.New(tx)
		q := queue.New(tx)
		if err := q.Remove(ctx, ch.ID); err != nil {
			return err
		}
		remaining, err := q.CountForEntity(ctx, ch.EntityType, ch.EntityID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			rec.SyncStatus = models.StatusSynced
			return st.Put(ctx, ch.EntityType, rec)
		}
		return nil
	})
}

func (e *Engine) markConflict(ctx context.Context, t models.EntityType, id string) error {
	return e.store.SetStatus(ctx, t, id, models.StatusConflict)
}
