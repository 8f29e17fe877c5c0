package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gradebench/gradebench/internal/data/pgxutil"
	"github.com/gradebench/gradebench/internal/domain/model"
)

// BatchRepoConfig holds configuration options for the batch repository.
type BatchRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// BatchRepo provides database operations for batch records. The rollup columns
// (total/completed repositories, average score, status) are denormalized and
// owned exclusively by Recompute.
type BatchRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewBatchRepo creates a new BatchRepo with the given database connection.
func NewBatchRepo(db *sql.DB, cfg BatchRepoConfig) *BatchRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &BatchRepo{DB: db, timeProvider: tp, logger: cfg.Logger}
}

const batchColumns = `id, owner_id, name, total_repositories, completed_repositories, average_score, status, created_at, updated_at`

// Create inserts a new batch with an empty rollup.
func (r *BatchRepo) Create(ctx context.Context, ownerID, name string) (*model.Batch, error) {
	if ownerID == "" {
		return nil, errors.New("owner_id is required")
	}
	if name == "" {
		return nil, errors.New("name is required")
	}

	now := r.timeProvider.Now().UTC()

	var batch *model.Batch
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			INSERT INTO batches (id, owner_id, name, total_repositories, completed_repositories, status, created_at, updated_at)
			VALUES ($1, $2, $3, 0, 0, 'pending', $4, $4)
			RETURNING `+batchColumns, uuid.NewString(), ownerID, name, now)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Batch])
		if cerr != nil {
			return cerr
		}
		batch = &collected
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert batch: %w", err)
	}

	if r.logger != nil {
		r.logger.DebugContext(ctx, "batch created", "batch_id", batch.ID, "owner_id", ownerID)
	}
	return batch, nil
}

// GetByID retrieves a batch by its ID.
func (r *BatchRepo) GetByID(ctx context.Context, id string) (*model.Batch, error) {
	var batch *model.Batch
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = $1`, id)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Batch])
		if cerr != nil {
			return cerr
		}
		batch = &collected
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return batch, nil
}

// ListByOwner returns an owner's batches, newest first.
func (r *BatchRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.Batch, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var batches []*model.Batch
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			SELECT `+batchColumns+`
			FROM batches
			WHERE owner_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2 OFFSET $3
		`, ownerID, limit, offset)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectRows(rows, pgx.RowToStructByName[model.Batch])
		if cerr != nil {
			return cerr
		}
		for i := range collected {
			batches = append(batches, &collected[i])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list batches by owner: %w", err)
	}
	return batches, nil
}

// Recompute rereads the batch's jobs and results and rewrites the rollup
// columns from scratch. The derivation is pure, so redundant or concurrent
// calls converge on the same row; a later call with fresher children wins.
func (r *BatchRepo) Recompute(ctx context.Context, batchID string) (*model.Batch, error) {
	var batch *model.Batch
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			var rollup model.BatchRollup
			if scanErr := tx.QueryRow(ctx, `
				SELECT
				  (SELECT count(DISTINCT payload->>'repository') FROM jobs WHERE batch_id = $1)      AS total,
				  (SELECT count(DISTINCT repository) FROM results WHERE batch_id = $1)               AS completed,
				  (SELECT avg(total_score)::float8 FROM results WHERE batch_id = $1)                 AS average,
				  (SELECT count(*) > 0 FROM jobs WHERE batch_id = $1 AND status = 'failed')          AS any_failed
			`, batchID).Scan(&rollup.TotalRepositories, &rollup.CompletedRepositories,
				&rollup.AverageScore, &rollup.AnyFailed); scanErr != nil {
				return fmt.Errorf("read rollup: %w", scanErr)
			}

			status := model.DeriveBatchStatus(rollup)

			rows, qerr := tx.Query(ctx, `
				UPDATE batches
				SET total_repositories = $2,
				    completed_repositories = $3,
				    average_score = $4,
				    status = $5,
				    updated_at = $6
				WHERE id = $1
				RETURNING `+batchColumns,
				batchID, rollup.TotalRepositories, rollup.CompletedRepositories,
				rollup.AverageScore, status, r.timeProvider.Now().UTC())
			if qerr != nil {
				return fmt.Errorf("write rollup: %w", qerr)
			}
			defer rows.Close()
			collected, cerr := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Batch])
			if cerr != nil {
				return cerr
			}
			batch = &collected
			return nil
		},
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("recompute batch: %w", err)
	}

	if r.logger != nil {
		r.logger.DebugContext(ctx, "batch rollup recomputed",
			"batch_id", batch.ID,
			"status", batch.Status,
			"completed", batch.CompletedRepositories,
			"total", batch.TotalRepositories)
	}
	return batch, nil
}

// Delete removes a batch. Child jobs and results cascade at the schema level.
func (r *BatchRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM batches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rows affected: %w", err)
	}
	if affected == 0 {
		return ErrBatchNotFound
	}
	return nil
}
