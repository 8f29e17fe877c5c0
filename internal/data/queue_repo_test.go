package data

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradebench/gradebench/internal/core"
	"github.com/gradebench/gradebench/internal/testutil"
)

func TestQueueRepo_LeaseRead(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	ctx := context.Background()
	clock := NewFixedTimeProvider(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	repo := NewQueueRepo(db, QueueRepoConfig{TimeProvider: clock})

	payload := json.RawMessage(`{"repository":"org/repo"}`)
	id, err := repo.Send(ctx, core.SendParams{Queue: "evaluations", Payload: payload})
	require.NoError(t, err)
	require.NotZero(t, id)

	// First claim advances visible_at past the lease and counts the read.
	msgs, err := repo.LeaseRead(ctx, core.LeaseReadParams{Queue: "evaluations", VisibilitySeconds: 30, MaxCount: 5})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, 1, msgs[0].ReadCount)
	assert.JSONEq(t, string(payload), string(msgs[0].Payload))
	assert.WithinDuration(t, clock.Now().Add(30*time.Second), msgs[0].VisibleAt, time.Second)

	// While leased the message is invisible to everyone else.
	again, err := repo.LeaseRead(ctx, core.LeaseReadParams{Queue: "evaluations", VisibilitySeconds: 30, MaxCount: 5})
	require.NoError(t, err)
	assert.Empty(t, again)

	// Once the lease expires the message is redelivered with a bumped read_count.
	clock.AddTime(31 * time.Second)
	redelivered, err := repo.LeaseRead(ctx, core.LeaseReadParams{Queue: "evaluations", VisibilitySeconds: 30, MaxCount: 5})
	require.NoError(t, err)
	require.Len(t, redelivered, 1)
	assert.Equal(t, id, redelivered[0].ID)
	assert.Equal(t, 2, redelivered[0].ReadCount)
}

func TestQueueRepo_LeaseRead_FIFOAndMaxCount(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	ctx := context.Background()
	clock := NewFixedTimeProvider(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	repo := NewQueueRepo(db, QueueRepoConfig{TimeProvider: clock})

	var ids []int64
	for _, repoName := range []string{"org/a", "org/b", "org/c"} {
		id, err := repo.Send(ctx, core.SendParams{
			Queue:   "evaluations",
			Payload: json.RawMessage(`{"repository":"` + repoName + `"}`),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	msgs, err := repo.LeaseRead(ctx, core.LeaseReadParams{Queue: "evaluations", VisibilitySeconds: 30, MaxCount: 2})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, ids[0], msgs[0].ID)
	assert.Equal(t, ids[1], msgs[1].ID)

	rest, err := repo.LeaseRead(ctx, core.LeaseReadParams{Queue: "evaluations", VisibilitySeconds: 30, MaxCount: 2})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, ids[2], rest[0].ID)
}

func TestQueueRepo_SendWithDelay(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	ctx := context.Background()
	clock := NewFixedTimeProvider(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	repo := NewQueueRepo(db, QueueRepoConfig{TimeProvider: clock})

	_, err := repo.Send(ctx, core.SendParams{
		Queue:   "evaluations",
		Payload: json.RawMessage(`{"repository":"org/delayed"}`),
		Delay:   time.Minute,
	})
	require.NoError(t, err)

	msgs, err := repo.LeaseRead(ctx, core.LeaseReadParams{Queue: "evaluations", VisibilitySeconds: 30})
	require.NoError(t, err)
	assert.Empty(t, msgs)

	clock.AddTime(time.Minute)
	msgs, err = repo.LeaseRead(ctx, core.LeaseReadParams{Queue: "evaluations", VisibilitySeconds: 30})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestQueueRepo_Delete(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	ctx := context.Background()
	clock := NewFixedTimeProvider(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	repo := NewQueueRepo(db, QueueRepoConfig{TimeProvider: clock})

	id, err := repo.Send(ctx, core.SendParams{Queue: "evaluations", Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)

	deleted, err := repo.Delete(ctx, "evaluations", id)
	require.NoError(t, err)
	assert.True(t, deleted)

	// Deleted messages never come back, even after the lease window.
	clock.AddTime(time.Hour)
	msgs, err := repo.LeaseRead(ctx, core.LeaseReadParams{Queue: "evaluations", VisibilitySeconds: 30})
	require.NoError(t, err)
	assert.Empty(t, msgs)

	deleted, err = repo.Delete(ctx, "evaluations", id)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestQueueRepo_Archive(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	ctx := context.Background()
	clock := NewFixedTimeProvider(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	repo := NewQueueRepo(db, QueueRepoConfig{TimeProvider: clock})

	id, err := repo.Send(ctx, core.SendParams{Queue: "evaluations", Payload: json.RawMessage(`{"bad":true}`)})
	require.NoError(t, err)

	_, err = repo.LeaseRead(ctx, core.LeaseReadParams{Queue: "evaluations", VisibilitySeconds: 30})
	require.NoError(t, err)

	archived, err := repo.Archive(ctx, "evaluations", id)
	require.NoError(t, err)
	assert.True(t, archived)

	var archivedCount, readCount int
	err = db.QueryRow(`SELECT count(*), max(read_count) FROM queue_archive WHERE message_id = $1`, id).
		Scan(&archivedCount, &readCount)
	require.NoError(t, err)
	assert.Equal(t, 1, archivedCount)
	assert.Equal(t, 1, readCount)

	clock.AddTime(time.Hour)
	msgs, err := repo.LeaseRead(ctx, core.LeaseReadParams{Queue: "evaluations", VisibilitySeconds: 30})
	require.NoError(t, err)
	assert.Empty(t, msgs)

	archived, err = repo.Archive(ctx, "evaluations", id)
	require.NoError(t, err)
	assert.False(t, archived)
}

func TestQueueRepo_ArchiveByBatch(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	ctx := context.Background()
	clock := NewFixedTimeProvider(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	repo := NewQueueRepo(db, QueueRepoConfig{TimeProvider: clock})

	for _, payload := range []string{
		`{"repository":"org/a","batch_id":"batch-1"}`,
		`{"repository":"org/b","batch_id":"batch-1"}`,
		`{"repository":"org/c","batch_id":"batch-2"}`,
	} {
		_, err := repo.Send(ctx, core.SendParams{Queue: "evaluations", Payload: json.RawMessage(payload)})
		require.NoError(t, err)
	}

	archived, err := repo.ArchiveByBatch(ctx, "evaluations", "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 2, archived)

	// The other batch's message is untouched.
	msgs, err := repo.LeaseRead(ctx, core.LeaseReadParams{Queue: "evaluations", VisibilitySeconds: 30, MaxCount: 10})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"repository":"org/c","batch_id":"batch-2"}`, string(msgs[0].Payload))

	var archiveRows int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM queue_archive WHERE queue_name = 'evaluations'`).Scan(&archiveRows))
	assert.Equal(t, 2, archiveRows)

	archived, err = repo.ArchiveByBatch(ctx, "evaluations", "batch-1")
	require.NoError(t, err)
	assert.Zero(t, archived)
}

func TestQueueRepo_Stats(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	ctx := context.Background()
	clock := NewFixedTimeProvider(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	repo := NewQueueRepo(db, QueueRepoConfig{TimeProvider: clock})

	for i := 0; i < 3; i++ {
		_, err := repo.Send(ctx, core.SendParams{Queue: "evaluations", Payload: json.RawMessage(`{}`)})
		require.NoError(t, err)
	}
	leased, err := repo.LeaseRead(ctx, core.LeaseReadParams{Queue: "evaluations", VisibilitySeconds: 60, MaxCount: 1})
	require.NoError(t, err)
	require.Len(t, leased, 1)

	archivedID, err := repo.Send(ctx, core.SendParams{Queue: "evaluations", Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)
	_, err = repo.Archive(ctx, "evaluations", archivedID)
	require.NoError(t, err)

	stats, err := repo.Stats(ctx, "evaluations")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Visible)
	assert.Equal(t, 1, stats.Leased)
	assert.Equal(t, 1, stats.Archived)
}
