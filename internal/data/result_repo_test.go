package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradebench/gradebench/internal/core"
	"github.com/gradebench/gradebench/internal/domain/model"
	"github.com/gradebench/gradebench/internal/testutil"
)

// seedJob inserts a batch and one pending job under it, returning both ids.
func seedJob(t *testing.T, db *sql.DB, repository string) (batchID, jobID string) {
	t.Helper()

	ctx := context.Background()
	batch, err := NewBatchRepo(db, BatchRepoConfig{}).Create(ctx, "owner-1", "launch review")
	require.NoError(t, err)

	job, err := NewJobRepo(db, JobRepoConfig{}).Create(ctx, &model.CreateJobRequest{
		BatchID: &batch.ID,
		Payload: model.JobPayload{
			Repository: repository,
			OwnerID:    "owner-1",
			Rubric:     `{"items":[{"id":"c1"},{"id":"c2"}]}`,
			BatchID:    batch.ID,
		},
	})
	require.NoError(t, err)
	return batch.ID, job.ID
}

func TestResultRepo_Save_Idempotent(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	ctx := context.Background()
	repo := NewResultRepo(db)
	batchID, jobID := seedJob(t, db, "org/repo")

	first := model.ScoreDocument{
		TotalScore: 70,
		Items: []model.ScoreItem{
			{ID: "c1", Label: "Correctness", Score: 80, Positives: "works", Negatives: "slow"},
			{ID: "c2", Label: "Style", Score: 60, Positives: "tidy", Negatives: "terse"},
		},
	}
	resultID, err := repo.Save(ctx, core.SaveResultParams{
		JobID:      jobID,
		Repository: "org/repo",
		Document:   first,
		Metadata:   &model.EvaluationMetadata{Turns: 3, DurationMs: 1200},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resultID)

	// A redelivered message saves again with a fresher document. Same summary
	// row, criteria rewritten to mirror the latest save.
	second := model.ScoreDocument{
		TotalScore: 85,
		Items: []model.ScoreItem{
			{ID: "c1", Label: "Correctness", Score: 90, Positives: "works", Negatives: ""},
			{ID: "c3", Label: "Tests", Score: 80, Positives: "covered", Negatives: ""},
		},
	}
	secondID, err := repo.Save(ctx, core.SaveResultParams{
		JobID:      jobID,
		Repository: "org/repo",
		Document:   second,
	})
	require.NoError(t, err)
	assert.Equal(t, resultID, secondID)

	var rows int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM results WHERE job_id = $1`, jobID).Scan(&rows))
	assert.Equal(t, 1, rows)

	saved, err := repo.GetByJobID(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 85, saved.TotalScore)
	require.NotNil(t, saved.BatchID)
	assert.Equal(t, batchID, *saved.BatchID)

	criteria, err := repo.ListCriteria(ctx, resultID)
	require.NoError(t, err)
	require.Len(t, criteria, 2)
	assert.Equal(t, "c1", criteria[0].CriterionID)
	assert.Equal(t, 90, criteria[0].Score)
	assert.Equal(t, "c3", criteria[1].CriterionID)
}

func TestResultRepo_Save_MissingJob(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	repo := NewResultRepo(db)
	_, err := repo.Save(context.Background(), core.SaveResultParams{
		JobID:      "no-such-job",
		Repository: "org/repo",
		Document: model.ScoreDocument{
			TotalScore: 50,
			Items:      []model.ScoreItem{{ID: "c1", Label: "Correctness", Score: 50}},
		},
	})
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestResultRepo_GetByJobID_NotFound(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	_, err := NewResultRepo(db).GetByJobID(context.Background(), "no-such-job")
	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestResultRepo_DeleteByRepository(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	ctx := context.Background()
	repo := NewResultRepo(db)
	batchID, jobID := seedJob(t, db, "org/repo")

	resultID, err := repo.Save(ctx, core.SaveResultParams{
		JobID:      jobID,
		Repository: "org/repo",
		Document: model.ScoreDocument{
			TotalScore: 75,
			Items:      []model.ScoreItem{{ID: "c1", Label: "Correctness", Score: 75}},
		},
	})
	require.NoError(t, err)

	deleted, err := repo.DeleteByRepository(ctx, batchID, "org/repo")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	// Criterion rows cascade with the summary.
	var criteriaRows int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM result_criteria WHERE result_id = $1`, resultID).Scan(&criteriaRows))
	assert.Zero(t, criteriaRows)

	deleted, err = repo.DeleteByRepository(ctx, batchID, "org/repo")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
