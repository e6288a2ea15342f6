package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/dstepanov-dev/localnotes/internal/client/store"
	"github.com/dstepanov-dev/localnotes/internal/common"
	"github.com/dstepanov-dev/localnotes/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEnqueueDrain_FIFO(t *testing.T) {
	db := setupDB(t)
	q := New(db)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, models.EntityNotes, "n1", models.OpCreate, json.RawMessage(`{"title":"a"}`), 100)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.EntityNotes, "n2", models.OpCreate, nil, 300)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.EntityTags, "t1", models.OpUpdate, nil, 200)
	require.NoError(t, err)

	changes, err := q.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	// ordered by enqueue timestamp, not insertion order
	assert.Equal(t, "n1", changes[0].EntityID)
	assert.Equal(t, "t1", changes[1].EntityID)
	assert.Equal(t, "n2", changes[2].EntityID)
	assert.Equal(t, models.OpCreate, changes[0].Operation)
	assert.Equal(t, json.RawMessage(`{"title":"a"}`), changes[0].Payload)
	assert.Equal(t, 0, changes[0].RetryCount)
}

func TestDrain_SameTimestampKeepsInsertionOrder(t *testing.T) {
	db := setupDB(t)
	q := New(db)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, models.EntityNotes, "first", models.OpCreate, nil, 500)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.EntityNotes, "second", models.OpUpdate, nil, 500)
	require.NoError(t, err)

	changes, err := q.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "first", changes[0].EntityID)
	assert.Equal(t, "second", changes[1].EntityID)
}

func TestRemove(t *testing.T) {
	db := setupDB(t)
	q := New(db)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, models.EntityNotes, "n1", models.OpCreate, nil, 100)
	require.NoError(t, err)

	require.NoError(t, q.Remove(ctx, id))
	// removing twice is fine
	require.NoError(t, q.Remove(ctx, id))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestIncrementRetry(t *testing.T) {
	db := setupDB(t)
	q := New(db)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, models.EntityNotes, "n1", models.OpUpdate, nil, 100)
	require.NoError(t, err)

	count, err := q.IncrementRetry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = q.IncrementRetry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = q.IncrementRetry(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDeleteForEntity(t *testing.T) {
	db := setupDB(t)
	q := New(db)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, models.EntityNotes, "n1", models.OpCreate, nil, 100)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.EntityNotes, "n1", models.OpUpdate, nil, 200)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.EntityNotes, "n2", models.OpCreate, nil, 300)
	require.NoError(t, err)
	// same id under a different type stays
	_, err = q.Enqueue(ctx, models.EntityTags, "n1", models.OpCreate, nil, 400)
	require.NoError(t, err)

	require.NoError(t, q.DeleteForEntity(ctx, models.EntityNotes, "n1"))

	changes, err := q.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "n2", changes[0].EntityID)
	assert.Equal(t, models.EntityTags, changes[1].EntityType)
}

func TestCountForEntityAndHasPending(t *testing.T) {
	db := setupDB(t)
	q := New(db)
	ctx := context.Background()

	has, err := q.HasPending(ctx, models.EntityNotes, "n1")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = q.Enqueue(ctx, models.EntityNotes, "n1", models.OpCreate, nil, 100)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.EntityNotes, "n1", models.OpUpdate, nil, 200)
	require.NoError(t, err)

	n, err := q.CountForEntity(ctx, models.EntityNotes, "n1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	has, err = q.HasPending(ctx, models.EntityNotes, "n1")
	require.NoError(t, err)
	assert.True(t, has)
}
