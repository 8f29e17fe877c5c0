package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradebench/gradebench/internal/core"
	"github.com/gradebench/gradebench/internal/domain/model"
	"github.com/gradebench/gradebench/internal/testutil"
)

func TestBatchRepo_Recompute(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	ctx := context.Background()
	batchRepo := NewBatchRepo(db, BatchRepoConfig{})
	jobRepo := NewJobRepo(db, JobRepoConfig{})
	resultRepo := NewResultRepo(db)

	batch, err := batchRepo.Create(ctx, "owner-1", "launch review")
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusPending, batch.Status)

	jobIDs := make(map[string]string)
	for _, repository := range []string{"org/a", "org/b"} {
		job, jerr := jobRepo.Create(ctx, &model.CreateJobRequest{
			BatchID: &batch.ID,
			Payload: model.JobPayload{
				Repository: repository,
				OwnerID:    "owner-1",
				Rubric:     `{"items":[{"id":"c1"}]}`,
				BatchID:    batch.ID,
			},
		})
		require.NoError(t, jerr)
		jobIDs[repository] = job.ID
	}

	// Jobs exist but nothing has finished: pending, rollup counts the repos.
	recomputed, err := batchRepo.Recompute(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusPending, recomputed.Status)
	assert.Equal(t, 2, recomputed.TotalRepositories)
	assert.Zero(t, recomputed.CompletedRepositories)
	assert.Nil(t, recomputed.AverageScore)

	// One job fails with zero completions: the batch is failed.
	failed, err := jobRepo.Fail(ctx, jobIDs["org/a"], "engine unavailable")
	require.NoError(t, err)
	require.True(t, failed)

	recomputed, err = batchRepo.Recompute(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, recomputed.Status)

	// A result lands for the other repo: partial success means analyzing, and
	// the earlier failure no longer marks the whole batch failed.
	saveResult(t, resultRepo, jobIDs["org/b"], "org/b", 80)

	recomputed, err = batchRepo.Recompute(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusAnalyzing, recomputed.Status)
	assert.Equal(t, 1, recomputed.CompletedRepositories)
	require.NotNil(t, recomputed.AverageScore)
	assert.InDelta(t, 80.0, *recomputed.AverageScore, 0.001)

	// A retry job for the failed repo succeeds: every repo is covered, so the
	// batch completes and the average spans both results.
	retry, err := jobRepo.Create(ctx, &model.CreateJobRequest{
		BatchID: &batch.ID,
		Payload: model.JobPayload{
			Repository: "org/a",
			OwnerID:    "owner-1",
			Rubric:     `{"items":[{"id":"c1"}]}`,
			BatchID:    batch.ID,
			IsRetry:    true,
		},
	})
	require.NoError(t, err)
	saveResult(t, resultRepo, retry.ID, "org/a", 60)

	recomputed, err = batchRepo.Recompute(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, recomputed.Status)
	assert.Equal(t, 2, recomputed.TotalRepositories)
	assert.Equal(t, 2, recomputed.CompletedRepositories)
	require.NotNil(t, recomputed.AverageScore)
	assert.InDelta(t, 70.0, *recomputed.AverageScore, 0.001)
}

func TestBatchRepo_Recompute_NotFound(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	_, err := NewBatchRepo(db, BatchRepoConfig{}).Recompute(context.Background(), "no-such-batch")
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func saveResult(t *testing.T, repo *ResultRepo, jobID, repository string, score int) {
	t.Helper()

	_, err := repo.Save(context.Background(), core.SaveResultParams{
		JobID:      jobID,
		Repository: repository,
		Document: model.ScoreDocument{
			TotalScore: score,
			Items:      []model.ScoreItem{{ID: "c1", Label: "Correctness", Score: score}},
		},
	})
	require.NoError(t, err)
}
