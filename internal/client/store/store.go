// Package store implements the durable local mirror: one table per entity
// type holding domain records plus their sync envelopes, and the sync_meta
// table with per-type incremental-sync watermarks.
//
// All methods run against a dbx.DBTX, so the same repository serves both
// standalone reads and the merge transactions driven by the sync engine.
// No network access happens here.
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

// Store provides row-level access to the mirrored entity tables.
type Store struct {
	db dbx.DBTX
}

// New returns a Store bound to the given DBTX.
func New(db dbx.DBTX) *Store {
	return &Store{db: db}
}

// tableFor maps an entity type onto its table name. The switch doubles as the
// whitelist keeping table names out of reach of query parameters.
func tableFor(t models.EntityType) (string, error) {
	switch t {
	case models.EntityNotes:
		return "notes", nil
	case models.EntityTags:
		return "tags", nil
	case models.EntityNoteTags:
		return "note_tags", nil
	case models.EntityFolders:
		return "folders", nil
	}
	return "", fmt.Errorf("%w: %q", common.ErrInvalidEntityType, t)
}

const recordColumns = `id, owner_id, payload, version, updated_at, trashed, sync_status, local_updated_at, server_updated_at`

func scanRecord(scan func(dest ...any) error) (*models.LocalRecord, error) {
	var (
		r       models.LocalRecord
		payload []byte
		trashed int
		status  string
	)
	err := scan(&r.ID, &r.OwnerID, &payload, &r.Version, &r.UpdatedAt, &trashed, &status, &r.LocalUpdatedAt, &r.ServerUpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Payload = payload
	r.Trashed = trashed != 0
	r.SyncStatus = models.SyncStatus(status)
	return &r, nil
}

// Get returns a single row, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, t models.EntityType, id string) (*models.LocalRecord, error) {
	table, err := tableFor(t)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, recordColumns, table), id)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get %s/%s: %v", common.ErrStorage, t, id, err)
	}
	return rec, nil
}

// Put upserts a row unconditionally, envelope included. Callers decide merge
// policy before calling.
func (s *Store) Put(ctx context.Context, t models.EntityType, rec *models.LocalRecord) error {
	table, err := tableFor(t)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			payload = excluded.payload,
			version = excluded.version,
			updated_at = excluded.updated_at,
			trashed = excluded.trashed,
			sync_status = excluded.sync_status,
			local_updated_at = excluded.local_updated_at,
			server_updated_at = excluded.server_updated_at`, table, recordColumns)
	trashed := 0
	if rec.Trashed {
		trashed = 1
	}
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.OwnerID, []byte(rec.Payload), rec.Version, rec.UpdatedAt,
		trashed, string(rec.SyncStatus), rec.LocalUpdatedAt, rec.ServerUpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert %s/%s: %v", common.ErrStorage, t, rec.ID, err)
	}
	return nil
}

// List returns all rows of a type owned by the given account.
func (s *Store) List(ctx context.Context, t models.EntityType, ownerID string) ([]*models.LocalRecord, error) {
	table, err := tableFor(t)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE owner_id = ? ORDER BY updated_at DESC`, recordColumns, table), ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list %s: %v", common.ErrStorage, t, err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListByStatus returns all rows of a type in the given sync state, across owners.
func (s *Store) ListByStatus(ctx context.Context, t models.EntityType, status models.SyncStatus) ([]*models.LocalRecord, error) {
	table, err := tableFor(t)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE sync_status = ?`, recordColumns, table), string(status))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list %s by status: %v", common.ErrStorage, t, err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]*models.LocalRecord, error) {
	var result []*models.LocalRecord
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("%w: row scan failed: %v", common.ErrStorage, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration failed: %v", common.ErrStorage, err)
	}
	return result, nil
}

// Delete removes a row. Deleting an absent row is not an error.
func (s *Store) Delete(ctx context.Context, t models.EntityType, id string) error {
	table, err := tableFor(t)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id); err != nil {
		return fmt.Errorf("%w: failed to delete %s/%s: %v", common.ErrStorage, t, id, err)
	}
	return nil
}

// SetStatus rewrites only the sync envelope status of a row.
func (s *Store) SetStatus(ctx context.Context, t models.EntityType, id string, status models.SyncStatus) error {
	table, err := tableFor(t)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET sync_status = ? WHERE id = ?`, table), string(status), id)
	if err != nil {
		return fmt.Errorf("%w: failed to set status on %s/%s: %v", common.ErrStorage, t, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s/%s", common.ErrNotFound, t, id)
	}
	return nil
}

// CountPending returns the number of rows in pending state across all types.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	total := 0
	for _, t := range models.EntityTypes {
		table, err := tableFor(t)
		if err != nil {
			return 0, err
		}
		var n int
		err = s.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE sync_status = ?`, table),
			string(models.StatusPending)).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("%w: failed to count pending %s: %v", common.ErrStorage, t, err)
		}
		total += n
	}
	return total, nil
}

// Conflict identifies one conflicted row for the status surface.
type Conflict struct {
	EntityType models.EntityType
	EntityID   string
}

// ListConflicts returns every row currently in conflict state, across all types.
func (s *Store) ListConflicts(ctx context.Context) ([]Conflict, error) {
	var result []Conflict
	for _, t := range models.EntityTypes {
		recs, err := s.ListByStatus(ctx, t, models.StatusConflict)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			result = append(result, Conflict{EntityType: t, EntityID: rec.ID})
		}
	}
	return result, nil
}
