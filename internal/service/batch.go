package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gradebench/gradebench/internal/core"
	"github.com/gradebench/gradebench/internal/data"
	"github.com/gradebench/gradebench/internal/domain/model"
)

// BatchServiceOptions groups dependencies for BatchService.
type BatchServiceOptions struct {
	BatchRepo  core.BatchRepository  // Required
	JobRepo    core.JobRepository    // Required
	QueueRepo  core.QueueRepository  // Required
	ResultRepo core.ResultRepository // Required
	Cache      core.BatchSummaryCache
	Logger     *slog.Logger

	// DrainTrigger kicks off a worker drain cycle after messages are enqueued.
	// Invoked asynchronously; a trigger failure is logged, never fatal, since
	// any later poll drains the same messages.
	DrainTrigger func(ctx context.Context)
}

// BatchService orchestrates batch creation and the retry/add/remove flows.
type BatchService struct {
	batchRepo  core.BatchRepository
	jobRepo    core.JobRepository
	queueRepo  core.QueueRepository
	resultRepo core.ResultRepository
	cache      core.BatchSummaryCache
	logger     *slog.Logger
	drain      func(ctx context.Context)
}

// NewBatchService constructs a new BatchService.
func NewBatchService(opts BatchServiceOptions) (*BatchService, error) {
	if opts.BatchRepo == nil {
		return nil, errors.New("BatchRepository is required")
	}
	if opts.JobRepo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.QueueRepo == nil {
		return nil, errors.New("QueueRepository is required")
	}
	if opts.ResultRepo == nil {
		return nil, errors.New("ResultRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "batch_service")
	}

	return &BatchService{
		batchRepo:  opts.BatchRepo,
		jobRepo:    opts.JobRepo,
		queueRepo:  opts.QueueRepo,
		resultRepo: opts.ResultRepo,
		cache:      opts.Cache,
		logger:     logger,
		drain:      opts.DrainTrigger,
	}, nil
}

// MustNewBatchService constructs a new BatchService and panics on error.
func MustNewBatchService(opts BatchServiceOptions) *BatchService {
	svc, err := NewBatchService(opts)
	if err != nil {
		panic(err)
	}
	return svc
}

// Create validates the request, inserts the batch with one pending job and one
// queue message per repository, recomputes the rollup, and triggers a drain.
func (s *BatchService) Create(ctx context.Context, req model.CreateBatchRequest) (*model.Batch, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	batch, err := s.batchRepo.Create(ctx, req.OwnerID, req.Name)
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	for _, repo := range req.Repositories {
		payload := model.JobPayload{
			Repository: repo,
			OwnerID:    req.OwnerID,
			Rubric:     req.Rubric,
			BatchID:    batch.ID,
		}
		if err := s.enqueueJob(ctx, batch.ID, payload); err != nil {
			return nil, err
		}
	}

	updated, err := s.batchRepo.Recompute(ctx, batch.ID)
	if err != nil {
		return nil, fmt.Errorf("recompute batch: %w", err)
	}

	s.triggerDrain(ctx)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "batch created",
			"batch_id", batch.ID, "owner_id", req.OwnerID, "repositories", len(req.Repositories))
	}
	return updated, nil
}

// enqueueJob creates a job row and its queue message sharing one id. The job
// insert is idempotent so a partially-failed create can be replayed safely.
func (s *BatchService) enqueueJob(ctx context.Context, batchID string, payload model.JobPayload) error {
	jobID := uuid.NewString()
	if err := s.jobRepo.EnsureExists(ctx, core.EnsureJobParams{
		ID:      jobID,
		BatchID: &batchID,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("create job for %s: %w", payload.Repository, err)
	}

	envelope, err := json.Marshal(messageEnvelope{JobID: jobID, JobPayload: payload})
	if err != nil {
		return fmt.Errorf("marshal message payload: %w", err)
	}
	if _, err := s.queueRepo.Send(ctx, core.SendParams{
		Queue:   model.QueueEvaluations,
		Payload: envelope,
	}); err != nil {
		return fmt.Errorf("enqueue message for %s: %w", payload.Repository, err)
	}
	return nil
}

// GetView returns a batch with its child jobs and results.
func (s *BatchService) GetView(ctx context.Context, batchID string) (*model.BatchView, error) {
	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	jobs, err := s.jobRepo.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	results, err := s.resultRepo.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return &model.BatchView{Batch: *batch, Jobs: jobs, Results: results}, nil
}

// GetSummary returns a batch's rollup, served from the cache when possible.
func (s *BatchService) GetSummary(ctx context.Context, batchID string) (*model.Batch, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, batchID); err == nil && cached != nil {
			return cached, nil
		} else if err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "batch cache read failed", "batch_id", batchID, "error", err)
		}
	}

	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, batch); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "batch cache write failed", "batch_id", batchID, "error", err)
		}
	}
	return batch, nil
}

// List returns an owner's batches with pagination.
func (s *BatchService) List(ctx context.Context, ownerID string, limit, offset int) ([]*model.Batch, error) {
	if ownerID == "" {
		return nil, errors.New("owner_id is required")
	}
	return s.batchRepo.ListByOwner(ctx, ownerID, limit, offset)
}

// AddRepository appends a repository to an existing batch: a new pending job
// plus a queue message. The repository must not already be present
// (case-sensitive exact match).
func (s *BatchService) AddRepository(ctx context.Context, batchID, repository, rubric string) (*model.Batch, error) {
	if repository == "" {
		return nil, errors.New("repository is required")
	}
	if rubric == "" {
		return nil, errors.New("rubric is required")
	}

	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	present, err := s.repositoryInBatch(ctx, batchID, repository)
	if err != nil {
		return nil, err
	}
	if present {
		return nil, data.ErrRepositoryExists
	}

	payload := model.JobPayload{
		Repository: repository,
		OwnerID:    batch.OwnerID,
		Rubric:     rubric,
		BatchID:    batchID,
		IsAddition: true,
	}
	if err := s.enqueueJob(ctx, batchID, payload); err != nil {
		return nil, err
	}

	updated, err := s.recomputeAndInvalidate(ctx, batchID)
	if err != nil {
		return nil, err
	}
	s.triggerDrain(ctx)
	return updated, nil
}

// Retry re-runs a failed repository: its result (if any) is deleted and a new
// pending job is enqueued. The old failed job row stays untouched for audit.
func (s *BatchService) Retry(ctx context.Context, batchID, repository string) (*model.Batch, error) {
	if repository == "" {
		return nil, errors.New("repository is required")
	}

	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	present, err := s.repositoryInBatch(ctx, batchID, repository)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, data.ErrRepositoryNotInBatch
	}

	rubric, err := s.rubricForRepository(ctx, batchID, repository)
	if err != nil {
		return nil, err
	}

	if _, err := s.resultRepo.DeleteByRepository(ctx, batchID, repository); err != nil {
		return nil, fmt.Errorf("delete result for retry: %w", err)
	}

	payload := model.JobPayload{
		Repository: repository,
		OwnerID:    batch.OwnerID,
		Rubric:     rubric,
		BatchID:    batchID,
		IsRetry:    true,
	}
	if err := s.enqueueJob(ctx, batchID, payload); err != nil {
		return nil, err
	}

	updated, err := s.recomputeAndInvalidate(ctx, batchID)
	if err != nil {
		return nil, err
	}
	s.triggerDrain(ctx)
	return updated, nil
}

// RemoveRepository deletes a repository's jobs and result from a batch. An
// in-flight lease for that repository is not cancelled; the worker's orphaned
// save fails, gets logged, and its message is archived.
func (s *BatchService) RemoveRepository(ctx context.Context, batchID, repository string) (*model.Batch, error) {
	if repository == "" {
		return nil, errors.New("repository is required")
	}

	if _, err := s.batchRepo.GetByID(ctx, batchID); err != nil {
		return nil, err
	}

	if _, err := s.resultRepo.DeleteByRepository(ctx, batchID, repository); err != nil {
		return nil, fmt.Errorf("delete results: %w", err)
	}
	deleted, err := s.jobRepo.DeleteByRepository(ctx, batchID, repository)
	if err != nil {
		return nil, fmt.Errorf("delete jobs: %w", err)
	}
	if deleted == 0 {
		return nil, data.ErrRepositoryNotInBatch
	}

	return s.recomputeAndInvalidate(ctx, batchID)
}

// Delete removes a batch; jobs and results cascade. Live queue messages for
// the batch are archived best-effort so they do not sit in the queue until a
// poller leases them; any stragglers (leased mid-flight) are still archived by
// the drain loop when their job lookup fails.
func (s *BatchService) Delete(ctx context.Context, batchID string) error {
	if err := s.batchRepo.Delete(ctx, batchID); err != nil {
		return err
	}
	archived, err := s.queueRepo.ArchiveByBatch(ctx, model.QueueEvaluations, batchID)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "archiving queued batch messages failed",
				"batch_id", batchID, "error", err)
		}
	} else if archived > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "queued batch messages archived",
			"batch_id", batchID, "count", archived)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, batchID); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "batch cache invalidation failed", "batch_id", batchID, "error", err)
		}
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "batch deleted", "batch_id", batchID)
	}
	return nil
}

// Recompute re-derives a batch's rollup on demand.
func (s *BatchService) Recompute(ctx context.Context, batchID string) (*model.Batch, error) {
	return s.recomputeAndInvalidate(ctx, batchID)
}

func (s *BatchService) recomputeAndInvalidate(ctx context.Context, batchID string) (*model.Batch, error) {
	batch, err := s.batchRepo.Recompute(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, batchID); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "batch cache invalidation failed", "batch_id", batchID, "error", err)
		}
	}
	return batch, nil
}

func (s *BatchService) repositoryInBatch(ctx context.Context, batchID, repository string) (bool, error) {
	jobs, err := s.jobRepo.ListByBatch(ctx, batchID)
	if err != nil {
		return false, fmt.Errorf("list batch jobs: %w", err)
	}
	for _, job := range jobs {
		payload, perr := job.DecodedPayload()
		if perr != nil {
			continue
		}
		if payload.Repository == repository {
			return true, nil
		}
	}
	return false, nil
}

// rubricForRepository recovers the rubric from the repository's most recent
// job so a retry runs against the same criteria as the original attempt.
func (s *BatchService) rubricForRepository(ctx context.Context, batchID, repository string) (string, error) {
	jobs, err := s.jobRepo.ListByBatch(ctx, batchID)
	if err != nil {
		return "", fmt.Errorf("list batch jobs: %w", err)
	}
	rubric := ""
	for _, job := range jobs {
		payload, perr := job.DecodedPayload()
		if perr != nil {
			continue
		}
		if payload.Repository == repository {
			rubric = payload.Rubric
		}
	}
	if rubric == "" {
		return "", data.ErrRepositoryNotInBatch
	}
	return rubric, nil
}

func (s *BatchService) triggerDrain(ctx context.Context) {
	if s.drain == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil && s.logger != nil {
				s.logger.Error("drain trigger panicked", "panic", r)
			}
		}()
		triggerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Minute)
		defer cancel()
		s.drain(triggerCtx)
	}()
}
