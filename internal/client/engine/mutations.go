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

// The mutation API is the UI layer's write path: each call writes the local
// mirror and enqueues the change in one transaction (keeping the
// pending⇔queued invariant), returns immediately, and triggers a background
// sync it does not await.

type validatable interface{ Validate() error }

func marshalValidated(payload any) ([]byte, error) {
	if v, ok := payload.(validatable); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrInvalidPayload, err)
		}
	}
	return models.MarshalPayload(payload)
}

// Create stores a new entity optimistically and queues its create. Returns
// the freshly generated id.
func (e *Engine) Create(ctx context.Context, t models.EntityType, payload any) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", common.ErrInvalidEntityType, t)
	}
	owner := e.sess.UserID()
	if owner == "" {
		return "", common.ErrUnauthorized
	}
	data, err := marshalValidated(payload)
	if err != nil {
		return "", err
	}

	id := models.NewID()
	now := e.now().UnixMilli()
	rec := &models.LocalRecord{
		Record: models.Record{
			ID:        id,
			OwnerID:   owner,
			Payload:   data,
			Version:   1,
			UpdatedAt: now,
		},
		SyncStatus:     models.StatusPending,
		LocalUpdatedAt: now,
	}

	err = dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := store.New(tx).Put(ctx, t, rec); err != nil {
			return err
		}
		_, err := queue.New(tx).Enqueue(ctx, t, id, models.OpCreate, data, now)
		return err
	})
	if err != nil {
		return "", err
	}

	e.ScheduleSync()
	return id, nil
}

// Update replaces an entity's domain fields, bumps its version, and queues
// the update.
func (e *Engine) Update(ctx context.Context, t models.EntityType, id string, payload any) error {
	data, err := marshalValidated(payload)
	if err != nil {
		return err
	}
	now := e.now().UnixMilli()

	err = dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		st := store.New(tx)
		rec, err := st.Get(ctx, t, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%w: %s/%s", common.ErrNotFound, t, id)
		}
		rec.Payload = data
		rec.Version++
		rec.UpdatedAt = now
		rec.LocalUpdatedAt = now
		if rec.SyncStatus != models.StatusConflict {
			rec.SyncStatus = models.StatusPending
		}
		if err := st.Put(ctx, t, rec); err != nil {
			return err
		}
		_, err = queue.New(tx).Enqueue(ctx, t, id, models.OpUpdate, data, now)
		return err
	})
	if err != nil {
		return err
	}

	e.ScheduleSync()
	return nil
}

// Delete removes the local row immediately and queues the remote delete.
func (e *Engine) Delete(ctx context.Context, t models.EntityType, id string) error {
	now := e.now().UnixMilli()

	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		st := store.New(tx)
		rec, err := st.Get(ctx, t, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%w: %s/%s", common.ErrNotFound, t, id)
		}
		if err := st.Delete(ctx, t, id); err != nil {
			return err
		}
		_, err = queue.New(tx).Enqueue(ctx, t, id, models.OpDelete, nil, now)
		return err
	})
	if err != nil {
		return err
	}

	e.ScheduleSync()
	return nil
}

// SetTrashed flips the device-only trash flag. No change is queued: the
// server does not track this flag, so there is nothing to push.
func (e *Engine) SetTrashed(ctx context.Context, t models.EntityType, id string, trashed bool) error {
	return dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		st := store.New(tx)
		rec, err := st.Get(ctx, t, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%w: %s/%s", common.ErrNotFound, t, id)
		}
		rec.Trashed = trashed
		return st.Put(ctx, t, rec)
	})
}

// Get returns one entity from the local mirror, or nil when absent. Reads
// never touch the network.
func (e *Engine) Get(ctx context.Context, t models.EntityType, id string) (*models.LocalRecord, error) {
	return e.store.Get(ctx, t, id)
}

// List returns the signed-in user's entities of a type from the local mirror.
func (e *Engine) List(ctx context.Context, t models.EntityType) ([]*models.LocalRecord, error) {
	return e.store.List(ctx, t, e.sess.UserID())
}
