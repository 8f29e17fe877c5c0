package data

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gradebench/gradebench/internal/core"
	"github.com/gradebench/gradebench/internal/data/pgxutil"
	"github.com/gradebench/gradebench/internal/domain/model"
)

// QueueRepoConfig holds configuration options for the queue repository.
type QueueRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// QueueRepo implements the four queue primitives over the queue_messages table.
// Leasing uses a FOR UPDATE SKIP LOCKED claim so concurrent pollers never
// double-claim a row.
type QueueRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewQueueRepo creates a new QueueRepo with the given database connection.
func NewQueueRepo(db *sql.DB, cfg QueueRepoConfig) *QueueRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &QueueRepo{DB: db, timeProvider: tp, logger: cfg.Logger}
}

const queueMessageColumns = `id, queue_name, payload, enqueued_at, visible_at, read_count`

// SQL used by LeaseRead to atomically claim visible messages.
const leaseReadUpdateSQL = `
  WITH cte AS (
    SELECT id FROM queue_messages
    WHERE queue_name = $1 AND visible_at <= $2
    ORDER BY id
    LIMIT $3
    FOR UPDATE SKIP LOCKED
  )
  UPDATE queue_messages m
  SET visible_at = $4,
      read_count = m.read_count + 1
  FROM cte
  WHERE m.id = cte.id
  RETURNING m.id, m.queue_name, m.payload, m.enqueued_at, m.visible_at, m.read_count`

// Send inserts a message that becomes visible after the given delay.
func (r *QueueRepo) Send(ctx context.Context, params core.SendParams) (int64, error) {
	if params.Queue == "" {
		return 0, fmt.Errorf("queue name is required")
	}
	if len(params.Payload) == 0 {
		return 0, fmt.Errorf("payload is required")
	}

	now := r.timeProvider.Now().UTC()
	visibleAt := now.Add(params.Delay)

	var id int64
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO queue_messages (queue_name, payload, enqueued_at, visible_at, read_count)
		VALUES ($1, $2, $3, $4, 0)
		RETURNING id
	`, params.Queue, []byte(params.Payload), now, visibleAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}

	if r.logger != nil {
		r.logger.DebugContext(ctx, "message enqueued", "queue", params.Queue, "message_id", id, "visible_at", visibleAt)
	}
	return id, nil
}

// LeaseRead claims up to MaxCount visible messages, advancing each message's
// visible_at by the visibility timeout and incrementing its read_count. An
// empty result is not an error.
func (r *QueueRepo) LeaseRead(ctx context.Context, params core.LeaseReadParams) ([]*model.QueueMessage, error) {
	if params.VisibilitySeconds <= 0 {
		return nil, fmt.Errorf("visibility timeout must be positive")
	}
	maxCount := params.MaxCount
	if maxCount <= 0 {
		maxCount = 1
	}

	var messages []*model.QueueMessage
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			now := r.timeProvider.Now().UTC()
			leaseUntil := now.Add(time.Duration(params.VisibilitySeconds) * time.Second)

			rows, qerr := tx.Query(ctx, leaseReadUpdateSQL, params.Queue, now, maxCount, leaseUntil)
			if qerr != nil {
				return fmt.Errorf("lease read: %w", qerr)
			}
			defer rows.Close()

			collected, cerr := pgx.CollectRows(rows, pgx.RowToStructByName[model.QueueMessage])
			if cerr != nil {
				return fmt.Errorf("collect messages: %w", cerr)
			}
			for i := range collected {
				messages = append(messages, &collected[i])
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	// UPDATE ... FROM does not promise output order; restore FIFO-ish id order.
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })

	return messages, nil
}

// Delete permanently removes a message. Returns false if it was already gone.
func (r *QueueRepo) Delete(ctx context.Context, queue string, id int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM queue_messages
		WHERE queue_name = $1 AND id = $2
	`, queue, id)
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete rows affected: %w", err)
	}
	return affected > 0, nil
}

// Archive moves a message out of the live queue into the archive table.
// Archived messages are never redelivered. Returns false if already gone.
func (r *QueueRepo) Archive(ctx context.Context, queue string, id int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		WITH moved AS (
			DELETE FROM queue_messages
			WHERE queue_name = $1 AND id = $2
			RETURNING id, queue_name, payload, enqueued_at, read_count
		)
		INSERT INTO queue_archive (message_id, queue_name, payload, enqueued_at, read_count, archived_at)
		SELECT id, queue_name, payload, enqueued_at, read_count, $3
		FROM moved
	`, queue, id, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("archive message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("archive rows affected: %w", err)
	}

	if r.logger != nil && affected > 0 {
		r.logger.DebugContext(ctx, "message archived", "queue", queue, "message_id", id)
	}
	return affected > 0, nil
}

// ArchiveByBatch moves every live message whose payload carries the given
// batch id into the archive and returns how many moved. Used when a batch is
// deleted so its queued work does not wait for lease-and-discard.
func (r *QueueRepo) ArchiveByBatch(ctx context.Context, queue, batchID string) (int, error) {
	res, err := r.DB.ExecContext(ctx, `
		WITH moved AS (
			DELETE FROM queue_messages
			WHERE queue_name = $1 AND payload->>'batch_id' = $2
			RETURNING id, queue_name, payload, enqueued_at, read_count
		)
		INSERT INTO queue_archive (message_id, queue_name, payload, enqueued_at, read_count, archived_at)
		SELECT id, queue_name, payload, enqueued_at, read_count, $3
		FROM moved
	`, queue, batchID, r.timeProvider.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("archive messages by batch: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive by batch rows affected: %w", err)
	}

	if r.logger != nil && affected > 0 {
		r.logger.DebugContext(ctx, "batch messages archived", "queue", queue, "batch_id", batchID, "count", affected)
	}
	return int(affected), nil
}

// Stats returns counts of visible, leased, and archived messages for a queue.
func (r *QueueRepo) Stats(ctx context.Context, queue string) (*model.QueueStats, error) {
	now := r.timeProvider.Now().UTC()

	var s model.QueueStats
	err := r.DB.QueryRowContext(ctx, `
	  SELECT
	    (SELECT count(*) FROM queue_messages WHERE queue_name = $1 AND visible_at <= $2) AS visible,
	    (SELECT count(*) FROM queue_messages WHERE queue_name = $1 AND visible_at > $2)  AS leased,
	    (SELECT count(*) FROM queue_archive  WHERE queue_name = $1)                      AS archived
	`, queue, now).Scan(&s.Visible, &s.Leased, &s.Archived)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return &s, nil
}
