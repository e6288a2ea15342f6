package engine

import (
	"context"
	"fmt"

	"github.com/dstepanov-dev/localnotes/internal/client/queue"
	"github.com/dstepanov-dev/localnotes/internal/client/store"
	"github.com/dstepanov-dev/localnotes/internal/dbx"
	"github.com/dstepanov-dev/localnotes/internal/models"
)

// pullAll fetches server snapshots for every entity type and merges them into
// the local mirror. Unlike push, any merge failure aborts the whole sync: a
// partially applied batch observed by the UI is worse than no batch.
func (e *Engine) pullAll(ctx context.Context, full bool) error {
	owner := e.sess.UserID()
	start := e.now().UnixMilli()

	for _, t := range models.EntityTypes {
		if err := e.pullType(ctx, t, owner, full, start); err != nil {
			return fmt.Errorf("pull %s: %w", t, err)
		}
	}
	return nil
}

func (e *Engine) pullType(ctx context.Context, t models.EntityType, owner string, full bool, start int64) error {
	since, err := e.meta.LastSync(ctx, t)
	if err != nil {
		return err
	}
	// No watermark means this type has never completed a pull; an
	// incremental fetch would silently miss everything older.
	fullMode := full || since == 0

	var recs []models.Record
	if fullMode {
		recs, err = e.remote.FetchAll(ctx, t)
	} else {
		recs, err = e.remote.FetchSince(ctx, t, since)
	}
	if err != nil {
		return err
	}

	err = dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		st := store.New(tx)
		q := queue.New(tx)

		seen := make(map[string]struct{}, len(recs))
		for _, rec := range recs {
			seen[rec.ID] = struct{}{}
			if err := e.mergeRecord(ctx, st, q, t, rec); err != nil {
				return err
			}
		}

		if fullMode {
			// A full fetch is the complete remote set: any synced local row
			// missing from it was deleted remotely. Rows with
			// unacknowledged local work are never evicted this way. An
			// incremental fetch is partial by construction, so absence from
			// it carries no deletion signal.
			locals, err := st.List(ctx, t, owner)
			if err != nil {
				return err
			}
			for _, l := range locals {
				if _, ok := seen[l.ID]; ok {
					continue
				}
				if l.SyncStatus != models.StatusSynced {
					continue
				}
				if err := st.Delete(ctx, t, l.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// The watermark moves only after the merge commits, and to the sync
	// start time rather than commit time so server writes racing this pull
	// are fetched again next cycle.
	return e.meta.SetLastSync(ctx, t, start)
}

// mergeRecord applies one fetched server row under the merge rules protecting
// unacknowledged local work.
func (e *Engine) mergeRecord(ctx context.Context, st *store.Store, q *queue.Queue, t models.EntityType, rec models.Record) error {
	local, err := st.Get(ctx, t, rec.ID)
	if err != nil {
		return err
	}

	queued, err := q.HasPending(ctx, t, rec.ID)
	if err != nil {
		return err
	}
	dirty := local != nil && (local.SyncStatus != models.StatusSynced || queued)

	if rec.Deleted {
		// Server tombstone. Drop the synced local copy; never drop local
		// work that hasn't been acknowledged.
		if local == nil || dirty {
			return nil
		}
		return st.Delete(ctx, t, rec.ID)
	}

	if local == nil && queued {
		// The row was removed optimistically and its delete change is still
		// queued; writing the fetched copy back would resurrect it.
		return nil
	}

	if dirty {
		// Domain fields stay untouched. If the server state is strictly
		// newer than the last local mutation, a remote edit raced the local
		// one: park the row for explicit resolution.
		if rec.UpdatedAt > local.LocalUpdatedAt && local.SyncStatus == models.StatusPending {
			return st.SetStatus(ctx, t, rec.ID, models.StatusConflict)
		}
		return nil
	}

	if local != nil && local.LocalUpdatedAt > rec.UpdatedAt {
		// Stale read: the synced local copy is ahead of what this fetch
		// returned. Skip; the next push reconciles.
		return nil
	}

	merged := &models.LocalRecord{
		Record:          rec,
		SyncStatus:      models.StatusSynced,
		LocalUpdatedAt:  rec.UpdatedAt,
		ServerUpdatedAt: rec.UpdatedAt,
	}
	merged.Deleted = false
	if local != nil {
		// Device-only semantics the server doesn't know about survive the
		// overwrite.
		merged.Trashed = local.Trashed
	}
	return st.Put(ctx, t, merged)
}
