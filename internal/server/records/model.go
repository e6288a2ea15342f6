// Package records implements the backend's entity storage: one table of
// generic records keyed by entity type and id, with version and timestamp
// metadata driving the clients' optimistic concurrency, and tombstones so
// incremental pulls can propagate deletions.
package records

import "github.com/dstepanov-dev/localnotes/internal/models"

// Record is the persisted server-side entity row.
type Record struct {
	EntityType string `gorm:"column:entity_type;primaryKey;size:32;not null"`
	ID         string `gorm:"column:id;primaryKey;size:64;not null"`
	OwnerID    string `gorm:"column:owner_id;size:190;not null;index:idx_records_owner_updated,priority:1"`
	Payload    string `gorm:"column:payload;type:text;not null"`
	Version    int64  `gorm:"column:version;not null;default:1"`
	UpdatedAt  int64  `gorm:"column:updated_at;not null;index:idx_records_owner_updated,priority:2"`
	Deleted    bool   `gorm:"column:deleted;not null;default:false"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "records"
}

func (r Record) toWire() models.Record {
	return models.Record{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Payload:   []byte(r.Payload),
		Version:   r.Version,
		UpdatedAt: r.UpdatedAt,
		Deleted:   r.Deleted,
	}
}
