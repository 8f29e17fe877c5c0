package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")
	// ErrBatchNotFound is returned when a batch is not found.
	ErrBatchNotFound = errors.New("batch not found")
	// ErrResultNotFound is returned when no result exists for a job.
	ErrResultNotFound = errors.New("result not found")
	// ErrSecretNotFound is returned when an owner has no secret of the requested type.
	ErrSecretNotFound = errors.New("secret not found")
	// ErrRepositoryExists is returned when adding a repository already present in a batch.
	ErrRepositoryExists = errors.New("repository already present in batch")
	// ErrRepositoryNotInBatch is returned when retrying or removing a repository the batch does not contain.
	ErrRepositoryNotInBatch = errors.New("repository does not belong to batch")
)
