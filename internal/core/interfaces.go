// Package core defines the ports between the service layer and the data layer.
// Services depend on these interfaces, not on concrete repositories.
package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gradebench/gradebench/internal/domain/model"
)

// SendParams groups parameters for QueueRepository.Send.
type SendParams struct {
	Queue   string
	Payload json.RawMessage
	Delay   time.Duration
}

// LeaseReadParams groups parameters for QueueRepository.LeaseRead.
type LeaseReadParams struct {
	Queue             string
	VisibilitySeconds int
	MaxCount          int
}

// QueueRepository defines the four queue primitives over the message store.
// LeaseRead must be contention-safe: concurrent callers never receive the same
// message while its lease is unexpired.
type QueueRepository interface {
	Send(ctx context.Context, params SendParams) (int64, error)
	LeaseRead(ctx context.Context, params LeaseReadParams) ([]*model.QueueMessage, error)
	Delete(ctx context.Context, queue string, id int64) (bool, error)
	Archive(ctx context.Context, queue string, id int64) (bool, error)
	// ArchiveByBatch archives every live message whose payload belongs to the
	// batch and returns how many moved.
	ArchiveByBatch(ctx context.Context, queue, batchID string) (int, error)
	Stats(ctx context.Context, queue string) (*model.QueueStats, error)
}

// EnsureJobParams groups parameters for JobRepository.EnsureExists.
type EnsureJobParams struct {
	ID      string
	BatchID *string
	Payload model.JobPayload
}

// JobRepository defines job record operations. Jobs never transition backward;
// a retry is a new row.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	// EnsureExists inserts the job if absent; a duplicate id is swallowed, not
	// an error, so queue redelivery stays idempotent.
	EnsureExists(ctx context.Context, params EnsureJobParams) error
	GetByID(ctx context.Context, id string) (*model.Job, error)
	MarkProcessing(ctx context.Context, id string) (bool, error)
	Complete(ctx context.Context, id string, result json.RawMessage) (bool, error)
	Fail(ctx context.Context, id, errMsg string) (bool, error)
	ListByBatch(ctx context.Context, batchID string) ([]*model.Job, error)
	Stats(ctx context.Context) (*model.JobStats, error)
	DeleteByRepository(ctx context.Context, batchID, repository string) (int, error)
}

// SaveResultParams groups parameters for ResultRepository.Save.
type SaveResultParams struct {
	JobID      string
	Repository string
	Document   model.ScoreDocument
	Metadata   *model.EvaluationMetadata
}

// ResultRepository persists completed evaluations. Save upserts the summary
// keyed on (job_id, repository) and each criterion keyed on (result_id,
// criterion_id), so redelivery never duplicates rows.
type ResultRepository interface {
	Save(ctx context.Context, params SaveResultParams) (string, error)
	GetByJobID(ctx context.Context, jobID string) (*model.Result, error)
	ListByBatch(ctx context.Context, batchID string) ([]*model.Result, error)
	ListCriteria(ctx context.Context, resultID string) ([]*model.ResultCriterion, error)
	DeleteByRepository(ctx context.Context, batchID, repository string) (int, error)
}

// BatchRepository defines batch persistence plus the rollup recompute.
type BatchRepository interface {
	Create(ctx context.Context, ownerID, name string) (*model.Batch, error)
	GetByID(ctx context.Context, id string) (*model.Batch, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.Batch, error)
	// Recompute rereads child jobs/results and rewrites the denormalized rollup.
	// Pure recomputation: safe to call redundantly and concurrently.
	Recompute(ctx context.Context, batchID string) (*model.Batch, error)
	Delete(ctx context.Context, id string) error
}

// SecretRepository is the opaque get/put credential store.
type SecretRepository interface {
	Put(ctx context.Context, req model.PutSecretRequest) (*model.Secret, error)
	Get(ctx context.Context, ownerID, secretType string) (*model.Secret, error)
	Delete(ctx context.Context, ownerID, secretType string) (bool, error)
}

// BatchSummaryCache is a read-through cache for batch rollups, invalidated on
// every recompute.
type BatchSummaryCache interface {
	Get(ctx context.Context, batchID string) (*model.Batch, error)
	Set(ctx context.Context, batch *model.Batch) error
	Invalidate(ctx context.Context, batchID string) error
}

// EvaluateParams groups parameters for Evaluator.Evaluate.
type EvaluateParams struct {
	Repository string
	APIKey     string
	Rubric     string
}

// EvaluationOutcome is the engine's document plus accounting metadata.
type EvaluationOutcome struct {
	Document model.ScoreDocument
	Metadata model.EvaluationMetadata
}

// Evaluator is the external analysis engine boundary. Implementations must
// honour the context deadline and return a distinguished timeout error rather
// than hanging.
type Evaluator interface {
	Evaluate(ctx context.Context, params EvaluateParams) (*EvaluationOutcome, error)
}
