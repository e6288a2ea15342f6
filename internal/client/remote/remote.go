// Package remote defines the client's view of the sync backend: an abstract
// data service the reconcilers push to and pull from, plus a websocket
// subscriber for change notifications.
package remote

import (
	"context"

	"github.com/dstepanov-dev/localnotes/internal/models"
)

// Service is the remote data-service contract the sync engine reconciles
// against. Implementations map transport failures onto the sentinel errors in
// internal/common: ErrUnavailable for connectivity/timeouts, ErrUnauthorized
// for rejected credentials, ErrVersionConflict for optimistic-concurrency
// rejections.
type Service interface {
	// Ping checks reachability. Used for online/offline probing.
	Ping(ctx context.Context) error

	// FetchAll returns every live record of a type owned by the account.
	FetchAll(ctx context.Context, t models.EntityType) ([]models.Record, error)

	// FetchSince returns records modified at or after the given unix-ms
	// timestamp, including tombstones for deletions in that window.
	FetchSince(ctx context.Context, t models.EntityType, since int64) ([]models.Record, error)

	// Fetch returns a single record, or nil when the id is absent.
	Fetch(ctx context.Context, t models.EntityType, id string) (*models.Record, error)

	// Insert stores a new record. The server confirms version and updated_at;
	// retried inserts of the same id are accepted idempotently.
	Insert(ctx context.Context, t models.EntityType, rec models.Record) (*models.Record, error)

	// Update stores new domain fields for an existing record. With force set
	// the server skips its version gate; used only by conflict resolution.
	Update(ctx context.Context, t models.EntityType, rec models.Record, force bool) (*models.Record, error)

	// Delete removes a record. Deleting an absent id succeeds.
	Delete(ctx context.Context, t models.EntityType, id string) error

	// GetVersion returns the server's concurrency metadata for a record, or
	// nil when the id is absent.
	GetVersion(ctx context.Context, t models.EntityType, id string) (*models.VersionInfo, error)
}
