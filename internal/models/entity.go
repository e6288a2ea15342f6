// Package models holds the domain records mirrored between device and server,
// the per-row sync bookkeeping attached to local copies, and the queued
// change entries awaiting push.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EntityType identifies one of the mirrored tables.
type EntityType string

const (
	EntityNotes    EntityType = "notes"
	EntityTags     EntityType = "tags"
	EntityNoteTags EntityType = "note_tags"
	EntityFolders  EntityType = "folders"
)

// EntityTypes lists all mirrored types in pull order. Folders and tags come
// before notes so freshly materialized notes never reference a folder the
// local mirror has not seen yet.
var EntityTypes = []EntityType{EntityFolders, EntityTags, EntityNotes, EntityNoteTags}

// Valid reports whether t names a known mirrored table.
func (t EntityType) Valid() bool {
	switch t {
	case EntityNotes, EntityTags, EntityNoteTags, EntityFolders:
		return true
	}
	return false
}

// SyncStatus is the reconciliation state of a local row.
type SyncStatus string

const (
	// StatusSynced means the local row matches the last known server state.
	StatusSynced SyncStatus = "synced"
	// StatusPending means the row has unacknowledged local mutations.
	StatusPending SyncStatus = "pending"
	// StatusConflict means the server advanced past a locally pending version.
	StatusConflict SyncStatus = "conflict"
)

// Operation is the kind of mutation recorded in the change queue.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Record is the generic entity shape shared by all mirrored types: a
// client-generated id, the owning account, the domain fields as JSON, and
// optimistic-concurrency metadata. This is also the wire representation.
type Record struct {
	ID      string          `json:"id"`
	OwnerID string          `json:"owner_id"`
	Payload json.RawMessage `json:"payload"`
	Version int64           `json:"version"`
	// UpdatedAt is unix milliseconds. Once a row has been confirmed by the
	// server this value is server-authoritative.
	UpdatedAt int64 `json:"updated_at"`
	// Deleted marks a server-side tombstone on the wire. Local rows are
	// removed instead of tombstoned.
	Deleted bool `json:"deleted,omitempty"`
}

// LocalRecord is a Record as stored in the local mirror: the domain record
// plus the sync envelope and device-only flags.
type LocalRecord struct {
	Record

	SyncStatus SyncStatus
	// LocalUpdatedAt is the unix-ms timestamp of the last local mutation.
	LocalUpdatedAt int64
	// ServerUpdatedAt is the timestamp of the last confirmed server state,
	// zero when the row has never been acknowledged.
	ServerUpdatedAt int64
	// Trashed is a device-only soft-delete flag the server does not track.
	// Pull merges must preserve it.
	Trashed bool
}

// PendingChange is one entry of the durable change queue.
type PendingChange struct {
	ID         string
	EntityType EntityType
	EntityID   string
	Operation  Operation
	// Payload is the row state at enqueue time. Updates are pushed from live
	// row state, so this is informational for them; deletes carry none.
	Payload    json.RawMessage
	Timestamp  int64
	RetryCount int
}

// VersionInfo is the server's stored concurrency metadata for one row.
type VersionInfo struct {
	Version   int64 `json:"version"`
	UpdatedAt int64 `json:"updated_at"`
}

// NewID returns a fresh collision-resistant entity identifier.
func NewID() string { return uuid.NewString() }

// NowUnixMilli is the timestamp convention used across the mirror.
func NowUnixMilli() int64 { return time.Now().UnixMilli() }
