package records

import (
	"errors"
	"fmt"
	"time"

	"github.com/dstepanov-dev/localnotes/internal/common"
	"github.com/dstepanov-dev/localnotes/internal/models"
	"gorm.io/gorm"
)

// Service owns all reads and writes of the records table. Timestamps are
// stamped from the server clock on every accepted write; client-submitted
// updated_at values are never trusted for ordering decisions.
type Service struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewService returns a Service. A nil clock selects time.Now.
func NewService(db *gorm.DB, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: db, clock: clock}
}

func (s *Service) now() int64 {
	return s.clock().UnixMilli()
}

// List returns every live record of a type owned by the account.
func (s *Service) List(owner string, t models.EntityType) ([]models.Record, error) {
	var rows []Record
	err := s.db.
		Where("entity_type = ? AND owner_id = ? AND deleted = ?", string(t), owner, false).
		Order("updated_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return toWire(rows), nil
}

// ListSince returns records of a type modified at or after the given unix-ms
// timestamp, tombstones included so deletions propagate to incremental pulls.
func (s *Service) ListSince(owner string, t models.EntityType, since int64) ([]models.Record, error) {
	var rows []Record
	err := s.db.
		Where("entity_type = ? AND owner_id = ? AND updated_at >= ?", string(t), owner, since).
		Order("updated_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list records since %d: %w", since, err)
	}
	return toWire(rows), nil
}

// Get returns one live record. Absent and tombstoned rows both report
// common.ErrNotFound: a deleted record is gone as far as clients are concerned.
func (s *Service) Get(owner string, t models.EntityType, id string) (*models.Record, error) {
	row, err := s.load(owner, t, id)
	if err != nil {
		return nil, err
	}
	if row.Deleted {
		return nil, common.ErrNotFound
	}
	wire := row.toWire()
	return &wire, nil
}

// GetVersion returns the concurrency metadata of one live record.
func (s *Service) GetVersion(owner string, t models.EntityType, id string) (*models.VersionInfo, error) {
	row, err := s.load(owner, t, id)
	if err != nil {
		return nil, err
	}
	if row.Deleted {
		return nil, common.ErrNotFound
	}
	return &models.VersionInfo{Version: row.Version, UpdatedAt: row.UpdatedAt}, nil
}

// Insert stores a new record, stamping the server time. Re-inserting an
// existing id is accepted idempotently so clients can safely retry a create
// whose acknowledgement was lost; a tombstoned id is revived.
func (s *Service) Insert(owner string, t models.EntityType, rec models.Record) (*models.Record, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidEntityType, t)
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("%w: record id is required", common.ErrInvalidPayload)
	}

	version := rec.Version
	if version < 1 {
		version = 1
	}
	row := Record{
		EntityType: string(t),
		ID:         rec.ID,
		OwnerID:    owner,
		Payload:    string(rec.Payload),
		Version:    version,
		UpdatedAt:  s.now(),
		Deleted:    false,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing Record
		err := tx.Where("entity_type = ? AND id = ?", string(t), rec.ID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&row).Error
		case err != nil:
			return err
		case existing.OwnerID != owner:
			return common.ErrUnauthorized
		default:
			if existing.Version > row.Version {
				row.Version = existing.Version
			}
			return tx.Model(&Record{}).
				Where("entity_type = ? AND id = ?", string(t), rec.ID).
				Updates(map[string]any{
					"payload":    row.Payload,
					"version":    row.Version,
					"updated_at": row.UpdatedAt,
					"deleted":    false,
				}).Error
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert record: %w", err)
	}
	wire := row.toWire()
	return &wire, nil
}

// Update stores new domain fields for an existing record. Unless force is
// set, a stored version ahead of the submitted one is rejected with
// common.ErrVersionConflict; force is the conflict resolver's overwrite path.
func (s *Service) Update(owner string, t models.EntityType, id string, rec models.Record, force bool) (*models.Record, error) {
	var updated Record
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing Record
		err := tx.Where("entity_type = ? AND id = ? AND owner_id = ?", string(t), id, owner).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.ErrNotFound
		}
		if err != nil {
			return err
		}
		if existing.Deleted {
			return common.ErrNotFound
		}
		if !force && existing.Version > rec.Version {
			return common.ErrVersionConflict
		}

		version := rec.Version
		if version < existing.Version {
			version = existing.Version
		}
		updated = existing
		updated.Payload = string(rec.Payload)
		updated.Version = version
		updated.UpdatedAt = s.now()
		return tx.Model(&Record{}).
			Where("entity_type = ? AND id = ?", string(t), id).
			Updates(map[string]any{
				"payload":    updated.Payload,
				"version":    updated.Version,
				"updated_at": updated.UpdatedAt,
			}).Error
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrVersionConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	wire := updated.toWire()
	return &wire, nil
}

// Delete tombstones a record so the deletion reaches incremental pulls.
// Deleting an absent id succeeds; clients treat delete as idempotent.
func (s *Service) Delete(owner string, t models.EntityType, id string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing Record
		err := tx.Where("entity_type = ? AND id = ? AND owner_id = ?", string(t), id, owner).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if existing.Deleted {
			return nil
		}
		return tx.Model(&Record{}).
			Where("entity_type = ? AND id = ?", string(t), id).
			Updates(map[string]any{
				"deleted":    true,
				"version":    existing.Version + 1,
				"updated_at": s.now(),
			}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (s *Service) load(owner string, t models.EntityType, id string) (*Record, error) {
	var row Record
	err := s.db.Where("entity_type = ? AND id = ? AND owner_id = ?", string(t), id, owner).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	return &row, nil
}

func toWire(rows []Record) []models.Record {
	result := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toWire())
	}
	return result
}
