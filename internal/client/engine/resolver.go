package engine

import (
	"context"
	"fmt"

	"github.com/dstepanov-dev/localnotes/internal/client/queue"
	"github.com/dstepanov-dev/localnotes/internal/client/store"
	"github.com/dstepanov-dev/localnotes/internal/common"
	"github.com/dstepanov-dev/localnotes/internal/dbx"
	"github.com/dstepanov-dev/localnotes/internal/models"
)

// Choice selects the winning side of a conflict. No automatic merge is ever
// attempted; reconciling diverged note content automatically would need
// operational-transform machinery this system deliberately avoids.
type Choice string

const (
	// ChoiceServer discards local work and adopts the server's row.
	ChoiceServer Choice = "server"
	// ChoiceLocal force-pushes the local row, overwriting the server.
	ChoiceLocal Choice = "local"
)

// ResolveConflict is the terminal state for a conflicted entity: adopt one
// side, drop every queued entry for it, and mark it synced.
func (e *Engine) ResolveConflict(ctx context.Context, t models.EntityType, id string, choice Choice) error {
	var err error
	switch choice {
	case ChoiceServer:
		err = e.resolveServer(ctx, t, id)
	case ChoiceLocal:
		err = e.resolveLocal(ctx, t, id)
	default:
		return fmt.Errorf("unknown resolution choice %q", choice)
	}
	if err != nil {
		return err
	}
	e.refreshStatus(ctx, nil, false)
	return nil
}

// resolveServer adopts the server's current row unconditionally; queued local
// work for the entity is discarded.
func (e *Engine) resolveServer(ctx context.Context, t models.EntityType, id string) error {
	rec, err := e.remote.Fetch(ctx, t, id)
	if err != nil {
		return err
	}

	return dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		st := store.New(tx)
		q := queue.New(tx)

		if rec == nil || rec.Deleted {
			// The server no longer has the row; adopting its view means
			// deleting ours.
			if err := st.Delete(ctx, t, id); err != nil {
				return err
			}
			return q.DeleteForEntity(ctx, t, id)
		}

		local, err := st.Get(ctx, t, id)
		if err != nil {
			return err
		}
		adopted := &models.LocalRecord{
			Record:          *rec,
			SyncStatus:      models.StatusSynced,
			LocalUpdatedAt:  rec.UpdatedAt,
			ServerUpdatedAt: rec.UpdatedAt,
		}
		adopted.Deleted = false
		if local != nil {
			adopted.Trashed = local.Trashed
		}
		if err := st.Put(ctx, t, adopted); err != nil {
			return err
		}
		return q.DeleteForEntity(ctx, t, id)
	})
}

// resolveLocal pushes the local row to the server bypassing the version
// check, bumps past the server's version, and marks the row synced. Queued
// entries are superseded by the forced push and dropped.
func (e *Engine) resolveLocal(ctx context.Context, t models.EntityType, id string) error {
	local, err := e.store.Get(ctx, t, id)
	if err != nil {
		return err
	}
	if local == nil {
		return fmt.Errorf("%w: %s/%s", common.ErrNotFound, t, id)
	}

	vi, err := e.remote.GetVersion(ctx, t, id)
	if err != nil {
		return err
	}

	rec := local.Record
	if vi != nil && vi.Version >= rec.Version {
		rec.Version = vi.Version + 1
	}

	var confirmed *models.Record
	if vi == nil {
		confirmed, err = e.remote.Insert(ctx, t, rec)
	} else {
		confirmed, err = e.remote.Update(ctx, t, rec, true)
	}
	if err != nil {
		return err
	}

	return dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		st := store.New(tx)
		q := queue.New(tx)

		local.Version = confirmed.Version
		local.UpdatedAt = confirmed.UpdatedAt
		local.LocalUpdatedAt = confirmed.UpdatedAt
		local.ServerUpdatedAt = confirmed.UpdatedAt
		local.SyncStatus = models.StatusSynced
		if err := st.Put(ctx, t, local); err != nil {
			return err
		}
		return q.DeleteForEntity(ctx, t, id)
	})
}
