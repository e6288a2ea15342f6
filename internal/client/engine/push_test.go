package engine

import (
	"context"
	"testing"

	"github.com/dstepanov-dev/localnotes/internal/common"
	"github.com/dstepanov-dev/localnotes/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPush_CreateReachesServerAndAcks(t *testing.T) {
	fake := newFakeRemote()
	e, _ := newTestEngine(t, fake, false)
	ctx := context.Background()

	id, err := e.Create(ctx, models.EntityNotes, models.Note{Title: "groceries"})
	require.NoError(t, err)

	terminal := e.pushAll(ctx)
	assert.Empty(t, terminal)

	remote, ok := fake.get(models.EntityNotes, id)
	require.True(t, ok)
	assert.Equal(t, int64(1), remote.Version)

	local, err := e.Get(ctx, models.EntityNotes, id)
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.Equal(t, models.StatusSynced, local.SyncStatus)
	assert.Equal(t, remote.Version, local.Version)
	// server-confirmed timestamp lands in every envelope field
	assert.Equal(t, remote.UpdatedAt, local.UpdatedAt)
	assert.Equal(t, remote.UpdatedAt, local.ServerUpdatedAt)
	assert.Equal(t, remote.UpdatedAt, local.LocalUpdatedAt)
	assert.Equal(t, 0, queueLen(t, e))
}

func TestPush_DrainsOfflineBacklogInOrder(t *testing.T) {
	fake := newFakeRemote()
	e, _ := newTestEngine(t, fake, false)
	ctx := context.Background()

	// a week offline: create a note, edit it, create another, delete the second
	noteA, err := e.Create(ctx, models.EntityNotes, models.Note{Title: "draft"})
	require.NoError(t, err)
	require.NoError(t, e.Update(ctx, models.EntityNotes, noteA, models.Note{Title: "final"}))
	noteB, err := e.Create(ctx, models.EntityNotes, models.Note{Title: "scratch"})
	require.NoError(t, err)
	require.NoError(t, e.Delete(ctx, models.EntityNotes, noteB))

	terminal := e.pushAll(ctx)
	assert.Empty(t, terminal)
	assert.Equal(t, 0, queueLen(t, e))

	// A exists remotely with the edited payload, B never materialized
	remote, ok := fake.get(models.EntityNotes, noteA)
	require.True(t, ok)
	assert.JSONEq(t, `{"title":"final","content":""}`, string(remote.Payload))
	_, ok = fake.get(models.EntityNotes, noteB)
	assert.False(t, ok)

	local, err := e.Get(ctx, models.EntityNotes, noteA)
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.Equal(t, models.StatusSynced, local.SyncStatus)
}

func TestPush_VersionConflictParksEntity(t *testing.T) {
	fake := newFakeRemote()
	e, _ := newTestEngine(t, fake, false)
	ctx := context.Background()

	fake.seed(models.EntityNotes, models.Record{
		ID: "n1", OwnerID: "u1", Payload: []byte(`{"title":"other device"}`), Version: 5, UpdatedAt: 9000,
	})
	seedLocal(t, e, models.EntityNotes, &models.LocalRecord{
		Record:         models.Record{ID: "n1", OwnerID: "u1", Payload: []byte(`{"title":"mine"}`), Version: 2, UpdatedAt: 8000},
		SyncStatus:     models.StatusPending,
		LocalUpdatedAt: 8000,
	})
	seedQueued(t, e, models.EntityNotes, "n1", models.OpUpdate, 8000)

	terminal := e.pushAll(ctx)
	assert.Empty(t, terminal)

	local, err := e.Get(ctx, models.EntityNotes, "n1")
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.Equal(t, models.StatusConflict, local.SyncStatus)
	// local payload untouched, entry still queued, no retry burned
	assert.JSONEq(t, `{"title":"mine"}`, string(local.Payload))
	changes, err := e.queue.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, 0, changes[0].RetryCount)

	// server copy untouched
	remote, _ := fake.get(models.EntityNotes, "n1")
	assert.JSONEq(t, `{"title":"other device"}`, string(remote.Payload))
}

func TestPush_RetryCapDropsEntry(t *testing.T) {
	fake := newFakeRemote()
	fake.failInsert = common.ErrUnavailable

	e, _ := newTestEngine(t, fake, false)
	e.retryCap = 2
	ctx := context.Background()

	id, err := e.Create(ctx, models.EntityNotes, models.Note{Title: "doomed"})
	require.NoError(t, err)

	// first failure: retry accounting only
	terminal := e.pushAll(ctx)
	assert.Empty(t, terminal)
	assert.Equal(t, 1, queueLen(t, e))

	// second failure reaches the cap: entry dropped, failure surfaced
	terminal = e.pushAll(ctx)
	require.Len(t, terminal, 1)
	assert.Contains(t, terminal[0], "gave up on")
	assert.Contains(t, terminal[0], id)
	assert.Equal(t, 0, queueLen(t, e))
}

func TestPush_TrashedNeverSyncedCreateSkipsServer(t *testing.T) {
	fake := newFakeRemote()
	e, _ := newTestEngine(t, fake, false)
	ctx := context.Background()

	id, err := e.Create(ctx, models.EntityNotes, models.Note{Title: "trash me"})
	require.NoError(t, err)
	require.NoError(t, e.SetTrashed(ctx, models.EntityNotes, id, true))

	terminal := e.pushAll(ctx)
	assert.Empty(t, terminal)

	// nothing worth creating remotely
	assert.Equal(t, 0, fake.insertCalls)
	assert.Equal(t, 0, queueLen(t, e))

	local, err := e.Get(ctx, models.EntityNotes, id)
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.Equal(t, models.StatusSynced, local.SyncStatus)
	assert.True(t, local.Trashed)
	assert.Equal(t, int64(0), local.ServerUpdatedAt)
}

func TestPush_UpdateFallsBackToCreateWhenServerLostTheRow(t *testing.T) {
	fake := newFakeRemote()
	e, _ := newTestEngine(t, fake, false)
	ctx := context.Background()

	seedLocal(t, e, models.EntityNotes, &models.LocalRecord{
		Record:          models.Record{ID: "n1", OwnerID: "u1", Payload: []byte(`{"title":"x"}`), Version: 3, UpdatedAt: 8000},
		SyncStatus:      models.StatusPending,
		LocalUpdatedAt:  8000,
		ServerUpdatedAt: 7000,
	})
	seedQueued(t, e, models.EntityNotes, "n1", models.OpUpdate, 8000)

	terminal := e.pushAll(ctx)
	assert.Empty(t, terminal)

	assert.Equal(t, 1, fake.insertCalls)
	assert.Equal(t, 0, fake.updateCalls)
	remote, ok := fake.get(models.EntityNotes, "n1")
	require.True(t, ok)
	assert.Equal(t, int64(3), remote.Version)
	assert.Equal(t, 0, queueLen(t, e))
}

func TestPush_DeleteOfAbsentRemoteRowSucceeds(t *testing.T) {
	fake := newFakeRemote()
	e, _ := newTestEngine(t, fake, false)
	ctx := context.Background()

	seedQueued(t, e, models.EntityNotes, "gone", models.OpDelete, 100)

	terminal := e.pushAll(ctx)
	assert.Empty(t, terminal)
	assert.Equal(t, 1, fake.deleteCalls)
	assert.Equal(t, 0, queueLen(t, e))
}

func TestPush_CreateForLocallyDeletedRowIsDropped(t *testing.T) {
	fake := newFakeRemote()
	e, _ := newTestEngine(t, fake, false)
	ctx := context.Background()

	// create entry without a backing row: the row was deleted before its
	// first push and the queued delete handles the server side
	seedQueued(t, e, models.EntityNotes, "ghost", models.OpCreate, 100)

	terminal := e.pushAll(ctx)
	assert.Empty(t, terminal)
	assert.Equal(t, 0, fake.insertCalls)
	assert.Equal(t, 0, queueLen(t, e))
}

func TestPush_AckPreservesNewerLocalEdit(t *testing.T) {
	fake := newFakeRemote()
	e, _ := newTestEngine(t, fake, false)
	ctx := context.Background()

	id, err := e.Create(ctx, models.EntityNotes, models.Note{Title: "v1"})
	require.NoError(t, err)

	// an edit lands while the insert is in flight
	fake.onInsert = func() {
		fake.onInsert = nil
		require.NoError(t, e.Update(ctx, models.EntityNotes, id, models.Note{Title: "v2"}))
	}

	terminal := e.pushAll(ctx)
	assert.Empty(t, terminal)

	local, err := e.Get(ctx, models.EntityNotes, id)
	require.NoError(t, err)
	require.NotNil(t, local)
	// the mid-flight edit survives the ack and stays pending
	assert.Equal(t, models.StatusPending, local.SyncStatus)
	assert.JSONEq(t, `{"title":"v2","content":""}`, string(local.Payload))
	assert.Equal(t, int64(2), local.Version)
	assert.NotZero(t, local.ServerUpdatedAt)
	// the edit's own queue entry is still there
	assert.Equal(t, 1, queueLen(t, e))
}
