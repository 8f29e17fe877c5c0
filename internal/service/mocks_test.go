package service

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/gradebench/gradebench/internal/core"
	"github.com/gradebench/gradebench/internal/domain/model"
)

// Mock implementations for testing.

type mockQueueRepo struct {
	mock.Mock
}

func (m *mockQueueRepo) Send(ctx context.Context, params core.SendParams) (int64, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockQueueRepo) LeaseRead(ctx context.Context, params core.LeaseReadParams) ([]*model.QueueMessage, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.QueueMessage), args.Error(1)
}

func (m *mockQueueRepo) Delete(ctx context.Context, queue string, id int64) (bool, error) {
	args := m.Called(ctx, queue, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockQueueRepo) Archive(ctx context.Context, queue string, id int64) (bool, error) {
	args := m.Called(ctx, queue, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockQueueRepo) ArchiveByBatch(ctx context.Context, queue, batchID string) (int, error) {
	args := m.Called(ctx, queue, batchID)
	return args.Int(0), args.Error(1)
}

func (m *mockQueueRepo) Stats(ctx context.Context, queue string) (*model.QueueStats, error) {
	args := m.Called(ctx, queue)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueueStats), args.Error(1)
}

type mockJobRepo struct {
	mock.Mock
}

func (m *mockJobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *mockJobRepo) EnsureExists(ctx context.Context, params core.EnsureJobParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *mockJobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *mockJobRepo) MarkProcessing(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockJobRepo) Complete(ctx context.Context, id string, result json.RawMessage) (bool, error) {
	args := m.Called(ctx, id, result)
	return args.Bool(0), args.Error(1)
}

func (m *mockJobRepo) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	args := m.Called(ctx, id, errMsg)
	return args.Bool(0), args.Error(1)
}

func (m *mockJobRepo) ListByBatch(ctx context.Context, batchID string) ([]*model.Job, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Job), args.Error(1)
}

func (m *mockJobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.JobStats), args.Error(1)
}

func (m *mockJobRepo) DeleteByRepository(ctx context.Context, batchID, repository string) (int, error) {
	args := m.Called(ctx, batchID, repository)
	return args.Int(0), args.Error(1)
}

type mockResultRepo struct {
	mock.Mock
}

func (m *mockResultRepo) Save(ctx context.Context, params core.SaveResultParams) (string, error) {
	args := m.Called(ctx, params)
	return args.String(0), args.Error(1)
}

func (m *mockResultRepo) GetByJobID(ctx context.Context, jobID string) (*model.Result, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Result), args.Error(1)
}

func (m *mockResultRepo) ListByBatch(ctx context.Context, batchID string) ([]*model.Result, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Result), args.Error(1)
}

func (m *mockResultRepo) ListCriteria(ctx context.Context, resultID string) ([]*model.ResultCriterion, error) {
	args := m.Called(ctx, resultID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ResultCriterion), args.Error(1)
}

func (m *mockResultRepo) DeleteByRepository(ctx context.Context, batchID, repository string) (int, error) {
	args := m.Called(ctx, batchID, repository)
	return args.Int(0), args.Error(1)
}

type mockBatchRepo struct {
	mock.Mock
}

func (m *mockBatchRepo) Create(ctx context.Context, ownerID, name string) (*model.Batch, error) {
	args := m.Called(ctx, ownerID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Batch), args.Error(1)
}

func (m *mockBatchRepo) GetByID(ctx context.Context, id string) (*model.Batch, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Batch), args.Error(1)
}

func (m *mockBatchRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.Batch, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Batch), args.Error(1)
}

func (m *mockBatchRepo) Recompute(ctx context.Context, batchID string) (*model.Batch, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Batch), args.Error(1)
}

func (m *mockBatchRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockSecretRepo struct {
	mock.Mock
}

func (m *mockSecretRepo) Put(ctx context.Context, req model.PutSecretRequest) (*model.Secret, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Secret), args.Error(1)
}

func (m *mockSecretRepo) Get(ctx context.Context, ownerID, secretType string) (*model.Secret, error) {
	args := m.Called(ctx, ownerID, secretType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Secret), args.Error(1)
}

func (m *mockSecretRepo) Delete(ctx context.Context, ownerID, secretType string) (bool, error) {
	args := m.Called(ctx, ownerID, secretType)
	return args.Bool(0), args.Error(1)
}

type mockEvaluator struct {
	mock.Mock
}

func (m *mockEvaluator) Evaluate(ctx context.Context, params core.EvaluateParams) (*core.EvaluationOutcome, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core.EvaluationOutcome), args.Error(1)
}

type mockBatchCache struct {
	mock.Mock
}

func (m *mockBatchCache) Get(ctx context.Context, batchID string) (*model.Batch, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Batch), args.Error(1)
}

func (m *mockBatchCache) Set(ctx context.Context, batch *model.Batch) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

func (m *mockBatchCache) Invalidate(ctx context.Context, batchID string) error {
	args := m.Called(ctx, batchID)
	return args.Error(0)
}
