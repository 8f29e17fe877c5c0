package model

import (
	"errors"
	"strings"
	"time"
)

// BatchStatus is the derived rollup status of a batch. It is recomputed from
// child jobs and results, never set directly by callers.
type BatchStatus string

const (
	// BatchStatusPending indicates no repository has completed yet and none has failed.
	BatchStatusPending BatchStatus = "pending"
	// BatchStatusAnalyzing indicates some but not all repositories have results.
	BatchStatusAnalyzing BatchStatus = "analyzing"
	// BatchStatusCompleted indicates every repository has a result.
	BatchStatusCompleted BatchStatus = "completed"
	// BatchStatusFailed indicates nothing completed and at least one job failed.
	BatchStatusFailed BatchStatus = "failed"
)

// Valid returns true if the BatchStatus is one of the known states.
func (s BatchStatus) Valid() bool {
	return s == BatchStatusPending || s == BatchStatusAnalyzing ||
		s == BatchStatusCompleted || s == BatchStatusFailed
}

// BatchRollup holds the figures Recompute derives from a batch's children.
type BatchRollup struct {
	TotalRepositories     int
	CompletedRepositories int
	AverageScore          *float64
	AnyFailed             bool
}

// DeriveBatchStatus maps a rollup to the batch status. A batch with partial
// success is analyzing, never failed; failed requires zero completions plus at
// least one failed job.
func DeriveBatchStatus(r BatchRollup) BatchStatus {
	switch {
	case r.CompletedRepositories == 0 && r.AnyFailed:
		return BatchStatusFailed
	case r.CompletedRepositories == 0:
		return BatchStatusPending
	case r.CompletedRepositories < r.TotalRepositories:
		return BatchStatusAnalyzing
	default:
		return BatchStatusCompleted
	}
}

// Batch is a named collection of repository-evaluation jobs owned by one
// caller, with denormalized rollup statistics kept eventually consistent by
// the aggregator.
type Batch struct {
	ID                    string      `json:"id"                      db:"id"`
	OwnerID               string      `json:"owner_id"                db:"owner_id"`
	Name                  string      `json:"name"                    db:"name"`
	TotalRepositories     int         `json:"total_repositories"      db:"total_repositories"`
	CompletedRepositories int         `json:"completed_repositories"  db:"completed_repositories"`
	AverageScore          *float64    `json:"average_score,omitempty" db:"average_score"`
	Status                BatchStatus `json:"status"                  db:"status"`
	CreatedAt             time.Time   `json:"created_at"              db:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"              db:"updated_at"`
}

// CreateBatchRequest is the enqueue entrypoint payload.
type CreateBatchRequest struct {
	OwnerID      string   `json:"owner_id"`
	Name         string   `json:"name"`
	Repositories []string `json:"repositories"`
	Rubric       string   `json:"rubric"`
}

// Validate validates the CreateBatchRequest fields. Repository identifiers are
// compared case-sensitively; duplicates within one request are rejected.
func (r *CreateBatchRequest) Validate() error {
	if strings.TrimSpace(r.OwnerID) == "" {
		return errors.New("owner_id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(r.Rubric) == "" {
		return errors.New("rubric is required")
	}
	if len(r.Repositories) == 0 {
		return errors.New("at least one repository is required")
	}
	seen := make(map[string]struct{}, len(r.Repositories))
	for _, repo := range r.Repositories {
		if strings.TrimSpace(repo) == "" {
			return errors.New("repository identifiers must not be blank")
		}
		if _, dup := seen[repo]; dup {
			return errors.New("duplicate repository: " + repo)
		}
		seen[repo] = struct{}{}
	}
	return nil
}

// BatchView is a batch with its child jobs and results, as served to callers.
type BatchView struct {
	Batch   Batch     `json:"batch"`
	Jobs    []*Job    `json:"jobs"`
	Results []*Result `json:"results"`
}
