package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gradebench/gradebench/internal/core"
	"github.com/gradebench/gradebench/internal/domain/model"
)

// SecretServiceOptions groups dependencies for SecretService.
type SecretServiceOptions struct {
	Repo   core.SecretRepository // Required
	Logger *slog.Logger          // Optional
}

// SecretService manages owner-scoped engine credentials.
type SecretService struct {
	repo   core.SecretRepository
	logger *slog.Logger
}

// NewSecretService constructs a new SecretService.
func NewSecretService(opts SecretServiceOptions) (*SecretService, error) {
	if opts.Repo == nil {
		return nil, errors.New("SecretRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "secret_service")
	}
	return &SecretService{repo: opts.Repo, logger: logger}, nil
}

// MustNewSecretService constructs a new SecretService and panics on error.
func MustNewSecretService(opts SecretServiceOptions) *SecretService {
	svc, err := NewSecretService(opts)
	if err != nil {
		panic(err)
	}
	return svc
}

// Put stores or replaces a credential. The stored value is never logged.
func (s *SecretService) Put(ctx context.Context, req model.PutSecretRequest) (*model.Secret, error) {
	secret, err := s.repo.Put(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("put secret: %w", err)
	}
	if s.logger != nil {
		s.logger.DebugContext(ctx, "secret stored", "owner_id", secret.OwnerID, "secret_type", secret.SecretType)
	}
	return secret, nil
}

// Get fetches a credential for an owner.
func (s *SecretService) Get(ctx context.Context, ownerID, secretType string) (*model.Secret, error) {
	return s.repo.Get(ctx, ownerID, secretType)
}

// Delete removes a credential.
func (s *SecretService) Delete(ctx context.Context, ownerID, secretType string) (bool, error) {
	return s.repo.Delete(ctx, ownerID, secretType)
}
