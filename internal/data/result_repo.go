package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gradebench/gradebench/internal/core"
	"github.com/gradebench/gradebench/internal/data/pgxutil"
	"github.com/gradebench/gradebench/internal/domain/model"
)

// ResultRepo persists completed evaluations: one summary row per
// (job_id, repository) plus one child row per rubric criterion. Both levels
// upsert on conflict, so redelivery of an already-processed message rewrites
// the same rows instead of duplicating them.
type ResultRepo struct {
	DB *sql.DB
}

// NewResultRepo constructs a ResultRepo.
func NewResultRepo(db *sql.DB) *ResultRepo {
	return &ResultRepo{DB: db}
}

const resultColumns = `id, job_id, batch_id, repository, total_score, detail, metadata, created_at, updated_at`

// Save upserts the summary and criterion rows for a completed job and returns
// the summary id. The owning batch is resolved via the job row; a missing job
// (repository removed mid-flight) is an error the caller logs, not fatal.
func (r *ResultRepo) Save(ctx context.Context, params core.SaveResultParams) (string, error) {
	if params.JobID == "" {
		return "", errors.New("job_id is required")
	}
	if params.Repository == "" {
		return "", errors.New("repository is required")
	}

	detail, err := json.Marshal(params.Document)
	if err != nil {
		return "", fmt.Errorf("marshal score document: %w", err)
	}
	var metadata []byte
	if params.Metadata != nil {
		metadata, err = json.Marshal(params.Metadata)
		if err != nil {
			return "", fmt.Errorf("marshal metadata: %w", err)
		}
	}

	var resultID string
	err = pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			var batchID *string
			if scanErr := tx.QueryRow(ctx,
				`SELECT batch_id FROM jobs WHERE id = $1`, params.JobID,
			).Scan(&batchID); scanErr != nil {
				if errors.Is(scanErr, pgx.ErrNoRows) {
					return ErrJobNotFound
				}
				return fmt.Errorf("look up owning job: %w", scanErr)
			}

			if upsertErr := tx.QueryRow(ctx, `
				INSERT INTO results (id, job_id, batch_id, repository, total_score, detail, metadata, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
				ON CONFLICT (job_id, repository)
				DO UPDATE SET
					total_score = EXCLUDED.total_score,
					detail = EXCLUDED.detail,
					metadata = EXCLUDED.metadata,
					updated_at = now()
				RETURNING id
			`, uuid.NewString(), params.JobID, batchID, params.Repository,
				params.Document.TotalScore, detail, metadata,
			).Scan(&resultID); upsertErr != nil {
				return fmt.Errorf("upsert result summary: %w", upsertErr)
			}

			criterionIDs := make([]string, 0, len(params.Document.Items))
			for _, item := range params.Document.Items {
				criterionIDs = append(criterionIDs, item.ID)
				if _, execErr := tx.Exec(ctx, `
					INSERT INTO result_criteria (result_id, criterion_id, label, score, commentary_positive, commentary_negative)
					VALUES ($1, $2, $3, $4, $5, $6)
					ON CONFLICT (result_id, criterion_id)
					DO UPDATE SET
						label = EXCLUDED.label,
						score = EXCLUDED.score,
						commentary_positive = EXCLUDED.commentary_positive,
						commentary_negative = EXCLUDED.commentary_negative
				`, resultID, item.ID, item.Label, item.Score, item.Positives, item.Negatives); execErr != nil {
					return fmt.Errorf("upsert criterion %s: %w", item.ID, execErr)
				}
			}

			// Drop criteria that are no longer part of the latest document so
			// the child rows always mirror the last save exactly.
			if _, execErr := tx.Exec(ctx, `
				DELETE FROM result_criteria
				WHERE result_id = $1 AND criterion_id <> ALL($2)
			`, resultID, criterionIDs); execErr != nil {
				return fmt.Errorf("prune stale criteria: %w", execErr)
			}
			return nil
		},
	})
	if err != nil {
		return "", err
	}
	return resultID, nil
}

// GetByJobID retrieves the result summary for a job.
func (r *ResultRepo) GetByJobID(ctx context.Context, jobID string) (*model.Result, error) {
	var result *model.Result
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx,
			`SELECT `+resultColumns+` FROM results WHERE job_id = $1`, jobID)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Result])
		if cerr != nil {
			return cerr
		}
		result = &collected
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return result, nil
}

// ListByBatch returns all result summaries under a batch.
func (r *ResultRepo) ListByBatch(ctx context.Context, batchID string) ([]*model.Result, error) {
	var results []*model.Result
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			SELECT `+resultColumns+`
			FROM results
			WHERE batch_id = $1
			ORDER BY repository ASC
		`, batchID)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectRows(rows, pgx.RowToStructByName[model.Result])
		if cerr != nil {
			return cerr
		}
		for i := range collected {
			results = append(results, &collected[i])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list results by batch: %w", err)
	}
	return results, nil
}

// ListCriteria returns the criterion rows under a result summary.
func (r *ResultRepo) ListCriteria(ctx context.Context, resultID string) ([]*model.ResultCriterion, error) {
	var criteria []*model.ResultCriterion
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			SELECT result_id, criterion_id, label, score, commentary_positive, commentary_negative
			FROM result_criteria
			WHERE result_id = $1
			ORDER BY criterion_id ASC
		`, resultID)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectRows(rows, pgx.RowToStructByName[model.ResultCriterion])
		if cerr != nil {
			return cerr
		}
		for i := range collected {
			criteria = append(criteria, &collected[i])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list result criteria: %w", err)
	}
	return criteria, nil
}

// DeleteByRepository removes the result rows for one repository within a
// batch. Criterion rows cascade with the summary.
func (r *ResultRepo) DeleteByRepository(ctx context.Context, batchID, repository string) (int, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM results
		WHERE batch_id = $1 AND repository = $2
	`, batchID, repository)
	if err != nil {
		return 0, fmt.Errorf("delete results by repository: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete rows affected: %w", err)
	}
	return int(affected), nil
}
