package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gradebench/gradebench/internal/core"
	"github.com/gradebench/gradebench/internal/data/pgxutil"
	"github.com/gradebench/gradebench/internal/domain/model"
)

// JobRepoConfig holds configuration options for the job repository.
type JobRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for job records. A job row is the
// durable history of one evaluation; it outlives its queue message and never
// transitions backward.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo with the given database connection.
func NewJobRepo(db *sql.DB, cfg JobRepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &JobRepo{DB: db, timeProvider: tp, logger: cfg.Logger}
}

const jobColumns = `id, batch_id, status, payload, result, error, created_at, updated_at`

// Create inserts a new pending job.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	now := r.timeProvider.Now().UTC()

	var job *model.Job
	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			INSERT INTO jobs (id, batch_id, status, payload, created_at, updated_at)
			VALUES ($1, $2, 'pending', $3, $4, $4)
			RETURNING `+jobColumns, id, req.BatchID, payload, now)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Job])
		if cerr != nil {
			return cerr
		}
		job = &collected
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	if r.logger != nil {
		r.logger.DebugContext(ctx, "job created", "job_id", job.ID, "batch_id", req.BatchID)
	}
	return job, nil
}

// EnsureExists inserts the job if it is absent. A unique-constraint conflict
// on the id is swallowed so that queue redelivery stays idempotent.
func (r *JobRepo) EnsureExists(ctx context.Context, params core.EnsureJobParams) error {
	if params.ID == "" {
		return errors.New("job id is required")
	}
	if err := params.Payload.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(params.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	now := r.timeProvider.Now().UTC()
	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO jobs (id, batch_id, status, payload, created_at, updated_at)
		VALUES ($1, $2, 'pending', $3, $4, $4)
	`, params.ID, params.BatchID, payload, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil
		}
		return fmt.Errorf("ensure job exists: %w", err)
	}
	return nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Job])
		if cerr != nil {
			return cerr
		}
		job = &collected
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// MarkProcessing transitions a claimed job to processing. Marking a job that
// is already processing is a no-op success so a redelivered message does not
// error out. Returns false if the job is in a terminal state or missing.
func (r *JobRepo) MarkProcessing(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'processing', updated_at = $2
		WHERE id = $1 AND status IN ('pending', 'processing')
	`, id, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark job processing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark processing rows affected: %w", err)
	}
	return affected > 0, nil
}

// Complete marks a processing job as completed with its result document.
func (r *JobRepo) Complete(ctx context.Context, id string, result json.RawMessage) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'completed',
		    result = $2,
		    error = NULL,
		    updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`, id, []byte(result), r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}

	if r.logger != nil && affected > 0 {
		r.logger.DebugContext(ctx, "job completed", "job_id", id)
	}
	return affected > 0, nil
}

// Fail marks a job as failed with the given error message. The error string
// is stored verbatim and surfaced to the batch view.
func (r *JobRepo) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	if errMsg == "" {
		return false, errors.New("error message required")
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'failed',
		    error = $2,
		    updated_at = $3
		WHERE id = $1 AND status IN ('pending', 'processing')
	`, id, errMsg, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("fail job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail rows affected: %w", err)
	}

	if r.logger != nil && affected > 0 {
		r.logger.DebugContext(ctx, "job failed", "job_id", id, "error", errMsg)
	}
	return affected > 0, nil
}

// ListByBatch returns all jobs under a batch, oldest first.
func (r *JobRepo) ListByBatch(ctx context.Context, batchID string) ([]*model.Job, error) {
	var jobs []*model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE batch_id = $1
			ORDER BY created_at ASC, id ASC
		`, batchID)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectRows(rows, pgx.RowToStructByName[model.Job])
		if cerr != nil {
			return cerr
		}
		for i := range collected {
			jobs = append(jobs, &collected[i])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs by batch: %w", err)
	}
	return jobs, nil
}

// Stats returns counts of jobs in each lifecycle state.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
	  SELECT
	    count(*) FILTER (WHERE status = 'pending')    AS pending,
	    count(*) FILTER (WHERE status = 'processing') AS processing,
	    count(*) FILTER (WHERE status = 'completed')  AS completed,
	    count(*) FILTER (WHERE status = 'failed')     AS failed
	  FROM jobs
	`).Scan(&s.Pending, &s.Processing, &s.Completed, &s.Failed)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return &s, nil
}

// DeleteByRepository removes all job rows for one repository within a batch
// and returns the number deleted.
func (r *JobRepo) DeleteByRepository(ctx context.Context, batchID, repository string) (int, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE batch_id = $1
		  AND payload->>'repository' = $2
	`, batchID, repository)
	if err != nil {
		return 0, fmt.Errorf("delete jobs by repository: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete rows affected: %w", err)
	}
	return int(affected), nil
}
