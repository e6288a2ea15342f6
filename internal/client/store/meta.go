package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dstepanov-dev/localnotes/internal/common"
	"github.com/dstepanov-dev/localnotes/internal/dbx"
	"github.com/dstepanov-dev/localnotes/internal/models"
)

// SyncMeta stores per-entity-type incremental-sync watermarks in the
// sync_meta key/value table.
type SyncMeta struct {
	db dbx.DBTX
}

func NewSyncMeta(db dbx.DBTX) *SyncMeta {
	return &SyncMeta{db: db}
}

func lastSyncKey(t models.EntityType) string {
	return "last_sync_" + string(t)
}

// LastSync returns the stored watermark for a type, zero when none exists.
func (m *SyncMeta) LastSync(ctx context.Context, t models.EntityType) (int64, error) {
	var value int64
	err := m.db.QueryRowContext(ctx,
		`SELECT value FROM sync_meta WHERE key = ?`, lastSyncKey(t)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get last sync for %s: %v", common.ErrStorage, t, err)
	}
	return value, nil
}

// SetLastSync persists the watermark for a type.
func (m *SyncMeta) SetLastSync(ctx context.Context, t models.EntityType, ts int64) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, lastSyncKey(t), ts)
	if err != nil {
		return fmt.Errorf("%w: failed to set last sync for %s: %v", common.ErrStorage, t, err)
	}
	return nil
}

// Clear drops every stored watermark, forcing the next sync to run full pulls.
func (m *SyncMeta) Clear(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM sync_meta`); err != nil {
		return fmt.Errorf("%w: failed to clear sync meta: %v", common.ErrStorage, err)
	}
	return nil
}
