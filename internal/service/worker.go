package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gradebench/gradebench/internal/core"
	"github.com/gradebench/gradebench/internal/data"
	"github.com/gradebench/gradebench/internal/domain/model"
	"github.com/gradebench/gradebench/internal/domain/queue"
	"github.com/gradebench/gradebench/internal/evaluator"
)

// messageEnvelope is the queue message body: the job id plus the typed work
// description, so a worker can resolve the job row without a second lookup key.
type messageEnvelope struct {
	JobID string `json:"job_id"`
	model.JobPayload
}

// DrainItem records the handling of one leased message within a drain cycle.
type DrainItem struct {
	MessageID int64  `json:"message_id"`
	JobID     string `json:"job_id"`
	Resolved  bool   `json:"resolved"`
}

// DrainSummary is the outcome of one full drain cycle.
type DrainSummary struct {
	Processed int         `json:"processed"`
	Items     []DrainItem `json:"items"`
	Errored   bool        `json:"errored"`
	LastError string      `json:"last_error,omitempty"`
}

// ProcessOutcome is the result of processing one job.
type ProcessOutcome struct {
	JobID     string `json:"job_id"`
	Completed bool   `json:"completed"`
	Error     string `json:"error,omitempty"`
}

// WorkerServiceOptions groups dependencies for WorkerService.
type WorkerServiceOptions struct {
	QueueRepo  core.QueueRepository  // Required
	JobRepo    core.JobRepository    // Required
	ResultRepo core.ResultRepository // Required
	BatchRepo  core.BatchRepository  // Required: rollup recompute after job/result changes
	SecretRepo core.SecretRepository // Required: engine credentials per owner
	Evaluator  core.Evaluator        // Required
	Policy     *queue.VisibilityPolicy
	Cache      core.BatchSummaryCache // Optional: invalidated after recompute
	Logger     *slog.Logger           // Optional

	// InterMessageDelay spaces out executor invocations within one drain cycle.
	InterMessageDelay time.Duration
}

// WorkerService drains the evaluation queue. One drain cycle is sequential and
// single-message-at-a-time; parallelism comes from concurrent cycles, which is
// safe because leasing is contention-safe and all side effects are idempotent
// per job/repository key.
type WorkerService struct {
	queueRepo  core.QueueRepository
	jobRepo    core.JobRepository
	resultRepo core.ResultRepository
	batchRepo  core.BatchRepository
	secretRepo core.SecretRepository
	evaluator  core.Evaluator
	policy     *queue.VisibilityPolicy
	cache      core.BatchSummaryCache
	logger     *slog.Logger
	delay      time.Duration
}

// NewWorkerService constructs a new WorkerService.
func NewWorkerService(opts WorkerServiceOptions) (*WorkerService, error) {
	if opts.QueueRepo == nil {
		return nil, errors.New("QueueRepository is required")
	}
	if opts.JobRepo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.ResultRepo == nil {
		return nil, errors.New("ResultRepository is required")
	}
	if opts.BatchRepo == nil {
		return nil, errors.New("BatchRepository is required")
	}
	if opts.SecretRepo == nil {
		return nil, errors.New("SecretRepository is required")
	}
	if opts.Evaluator == nil {
		return nil, errors.New("Evaluator is required")
	}
	if opts.Policy == nil {
		return nil, errors.New("VisibilityPolicy is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "worker_service")
	}

	return &WorkerService{
		queueRepo:  opts.QueueRepo,
		jobRepo:    opts.JobRepo,
		resultRepo: opts.ResultRepo,
		batchRepo:  opts.BatchRepo,
		secretRepo: opts.SecretRepo,
		evaluator:  opts.Evaluator,
		policy:     opts.Policy,
		cache:      opts.Cache,
		logger:     logger,
		delay:      opts.InterMessageDelay,
	}, nil
}

// MustNewWorkerService constructs a new WorkerService and panics on error.
func MustNewWorkerService(opts WorkerServiceOptions) *WorkerService {
	svc, err := NewWorkerService(opts)
	if err != nil {
		panic(err)
	}
	return svc
}

// DrainQueue runs one full drain cycle: lease one message at a time, process
// its job, resolve the message (delete on success, archive on failure), and
// repeat until the queue is empty. A failure to resolve a message halts the
// cycle immediately; the message re-surfaces once its lease expires.
func (s *WorkerService) DrainQueue(ctx context.Context) (*DrainSummary, error) {
	summary := &DrainSummary{}
	visibility := s.policy.Resolve(0)

	for {
		if err := ctx.Err(); err != nil {
			summary.Errored = true
			summary.LastError = err.Error()
			return summary, nil
		}

		messages, err := s.queueRepo.LeaseRead(ctx, core.LeaseReadParams{
			Queue:             model.QueueEvaluations,
			VisibilitySeconds: visibility.Seconds,
			MaxCount:          1,
		})
		if err != nil {
			// Transient infrastructure error; nothing was leased so no job
			// state is at risk.
			summary.Errored = true
			summary.LastError = err.Error()
			return summary, fmt.Errorf("lease read: %w", err)
		}
		if len(messages) == 0 {
			return summary, nil
		}

		msg := messages[0]
		item, halt := s.handleMessage(ctx, msg, summary)
		summary.Items = append(summary.Items, item)
		summary.Processed++
		if halt {
			return summary, nil
		}

		if s.delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.delay):
			}
		}
	}
}

// handleMessage processes one leased message end to end. The returned halt
// flag is true only for the poison condition: the message itself could not be
// deleted or archived.
func (s *WorkerService) handleMessage(ctx context.Context, msg *model.QueueMessage, summary *DrainSummary) (DrainItem, bool) {
	item := DrainItem{MessageID: msg.ID}

	var envelope messageEnvelope
	if err := json.Unmarshal(msg.Payload, &envelope); err != nil || envelope.JobID == "" {
		detail := "message payload missing job_id"
		if err != nil {
			detail = err.Error()
		}
		s.log(ctx, slog.LevelWarn, "archiving malformed message", "message_id", msg.ID, "error", detail)
		summary.Errored = true
		summary.LastError = "malformed message payload: " + detail
		return item, !s.resolve(ctx, msg.ID, false, &item, summary)
	}
	item.JobID = envelope.JobID

	if verr := envelope.JobPayload.Validate(); verr != nil {
		// The job id is known, so record the failure on the job row before
		// archiving. Otherwise the job stays pending forever with no message
		// left to drive it.
		s.log(ctx, slog.LevelWarn, "archiving invalid message payload", "message_id", msg.ID, "job_id", envelope.JobID, "error", verr)
		if _, ferr := s.jobRepo.Fail(ctx, envelope.JobID, "invalid job payload: "+verr.Error()); ferr != nil {
			s.log(ctx, slog.LevelWarn, "failed to mark job failed", "job_id", envelope.JobID, "error", ferr)
		} else {
			s.recomputeBatch(ctx, envelope.BatchID)
		}
		summary.Errored = true
		summary.LastError = verr.Error()
		return item, !s.resolve(ctx, msg.ID, false, &item, summary)
	}

	outcome, err := s.ProcessOne(ctx, envelope.JobID, &envelope.JobPayload)
	if err != nil {
		// Orphaned message: its job row was removed (batch deletion or
		// repository removal). Archive it so it never redelivers.
		if errors.Is(err, data.ErrJobNotFound) {
			s.log(ctx, slog.LevelWarn, "archiving orphaned message", "message_id", msg.ID, "job_id", envelope.JobID)
			summary.Errored = true
			summary.LastError = err.Error()
			return item, !s.resolve(ctx, msg.ID, false, &item, summary)
		}
		// Infrastructure failure before any terminal state was reached. Leave
		// the message leased; it becomes visible again after the timeout.
		summary.Errored = true
		summary.LastError = err.Error()
		s.log(ctx, slog.LevelError, "processing aborted, message left leased", "message_id", msg.ID, "job_id", envelope.JobID, "error", err)
		return item, false
	}

	if !outcome.Completed {
		summary.Errored = true
		summary.LastError = outcome.Error
	}
	return item, !s.resolve(ctx, msg.ID, outcome.Completed, &item, summary)
}

// resolve deletes a successfully processed message or archives a failed one.
// Returns false on the poison condition.
func (s *WorkerService) resolve(ctx context.Context, messageID int64, success bool, item *DrainItem, summary *DrainSummary) bool {
	var err error
	if success {
		_, err = s.queueRepo.Delete(ctx, model.QueueEvaluations, messageID)
	} else {
		_, err = s.queueRepo.Archive(ctx, model.QueueEvaluations, messageID)
	}
	if err != nil {
		summary.Errored = true
		summary.LastError = err.Error()
		s.log(ctx, slog.LevelError, "failed to resolve message, halting drain", "message_id", messageID, "error", err)
		return false
	}
	item.Resolved = true
	return true
}

// ProcessOne performs the full lifecycle for a single job: mark processing,
// fetch credentials, invoke the engine, persist the outcome. It never touches
// the queue, so the drain loop and direct administrative invocation share it.
// A data.ErrJobNotFound return means the job row no longer exists.
func (s *WorkerService) ProcessOne(ctx context.Context, jobID string, payload *model.JobPayload) (*ProcessOutcome, error) {
	if jobID == "" {
		return nil, errors.New("job id is required")
	}
	if payload == nil {
		return nil, errors.New("job payload is required")
	}

	claimed, err := s.jobRepo.MarkProcessing(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}
	if !claimed {
		// Terminal or missing. A redelivered message for an already-resolved
		// job is settled by the job's recorded outcome.
		job, gerr := s.jobRepo.GetByID(ctx, jobID)
		if gerr != nil {
			return nil, gerr
		}
		outcome := &ProcessOutcome{JobID: jobID, Completed: job.Status == model.JobStatusCompleted}
		if job.Error != nil {
			outcome.Error = *job.Error
		}
		return outcome, nil
	}

	secret, err := s.secretRepo.Get(ctx, payload.OwnerID, model.SecretTypeEngineAPIKey)
	if err != nil {
		if errors.Is(err, data.ErrSecretNotFound) {
			return s.failJob(ctx, jobID, payload, "missing engine api key credential for owner "+payload.OwnerID)
		}
		return nil, fmt.Errorf("get engine credential: %w", err)
	}

	result, err := s.evaluator.Evaluate(ctx, core.EvaluateParams{
		Repository: payload.Repository,
		APIKey:     secret.Value,
		Rubric:     payload.Rubric,
	})
	if err != nil {
		if errors.Is(err, evaluator.ErrEvaluationTimeout) {
			s.log(ctx, slog.LevelWarn, "evaluation timed out", "job_id", jobID, "repository", payload.Repository)
		}
		return s.failJob(ctx, jobID, payload, err.Error())
	}

	if _, err := s.resultRepo.Save(ctx, core.SaveResultParams{
		JobID:      jobID,
		Repository: payload.Repository,
		Document:   result.Document,
		Metadata:   &result.Metadata,
	}); err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("save result: %w", err)
	}

	resultJSON, err := json.Marshal(result.Document)
	if err != nil {
		return nil, fmt.Errorf("marshal result document: %w", err)
	}
	if _, err := s.jobRepo.Complete(ctx, jobID, resultJSON); err != nil {
		return nil, fmt.Errorf("complete job: %w", err)
	}

	s.recomputeBatch(ctx, payload.BatchID)
	s.log(ctx, slog.LevelInfo, "job completed", "job_id", jobID, "repository", payload.Repository, "total_score", result.Document.TotalScore)
	return &ProcessOutcome{JobID: jobID, Completed: true}, nil
}

// ProcessJob looks up a job by id and runs ProcessOne on it. Administrative
// entrypoint for manually driving a single job without the queue.
func (s *WorkerService) ProcessJob(ctx context.Context, jobID string) (*ProcessOutcome, error) {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	payload, err := job.DecodedPayload()
	if err != nil {
		return nil, err
	}
	return s.ProcessOne(ctx, job.ID, payload)
}

func (s *WorkerService) failJob(ctx context.Context, jobID string, payload *model.JobPayload, errMsg string) (*ProcessOutcome, error) {
	if _, err := s.jobRepo.Fail(ctx, jobID, errMsg); err != nil {
		return nil, fmt.Errorf("fail job: %w", err)
	}
	s.recomputeBatch(ctx, payload.BatchID)
	s.log(ctx, slog.LevelWarn, "job failed", "job_id", jobID, "repository", payload.Repository, "error", errMsg)
	return &ProcessOutcome{JobID: jobID, Completed: false, Error: errMsg}, nil
}

// recomputeBatch refreshes the owning batch's rollup after a job or result
// change. Best effort: the rollup is eventually consistent and any later
// recompute converges on the same values.
func (s *WorkerService) recomputeBatch(ctx context.Context, batchID string) {
	if batchID == "" {
		return
	}
	if _, err := s.batchRepo.Recompute(ctx, batchID); err != nil {
		s.log(ctx, slog.LevelWarn, "batch recompute failed", "batch_id", batchID, "error", err)
		return
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, batchID); err != nil {
			s.log(ctx, slog.LevelWarn, "batch cache invalidation failed", "batch_id", batchID, "error", err)
		}
	}
}

func (s *WorkerService) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Log(ctx, level, msg, args...)
	}
}
