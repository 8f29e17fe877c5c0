// Package model defines the core data types shared by the gradebench queue,
// stores, and services.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of an evaluation job.
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting for a worker.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates a worker has claimed the job.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates the evaluation finished and a result was saved.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the evaluation failed; Error holds the detail.
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the JobStatus is one of the known states.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusProcessing ||
		s == JobStatusCompleted || s == JobStatusFailed
}

// Terminal returns true once a job can no longer transition.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobPayload is the typed unit-of-work description carried by both the job row
// and its queue message. Optional flags are explicit fields rather than loose
// map keys so they can be validated at the queue boundary.
type JobPayload struct {
	Repository string `json:"repository"`
	OwnerID    string `json:"owner_id"`
	Rubric     string `json:"rubric"`
	BatchID    string `json:"batch_id,omitempty"`
	IsRetry    bool   `json:"is_retry,omitempty"`
	IsAddition bool   `json:"is_addition,omitempty"`
}

// Validate checks the payload fields required before a job may be enqueued.
func (p *JobPayload) Validate() error {
	if strings.TrimSpace(p.Repository) == "" {
		return errors.New("repository is required")
	}
	if strings.TrimSpace(p.OwnerID) == "" {
		return errors.New("owner_id is required")
	}
	if strings.TrimSpace(p.Rubric) == "" {
		return errors.New("rubric is required")
	}
	return nil
}

// DecodeJobPayload parses and validates a raw payload from the queue or job row.
func DecodeJobPayload(raw json.RawMessage) (*JobPayload, error) {
	if len(raw) == 0 {
		return nil, errors.New("payload is required")
	}
	var p JobPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode job payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Job is one unit of work: evaluate one repository against a rubric. Jobs
// outlive their queue message and serve as the historical record; a failed
// repository is retried with a brand-new job row, never by resetting this one.
type Job struct {
	ID        string          `json:"id"                 db:"id"`
	BatchID   *string         `json:"batch_id,omitempty" db:"batch_id"`
	Status    JobStatus       `json:"status"             db:"status"`
	Payload   json.RawMessage `json:"payload"            db:"payload"`
	Result    json.RawMessage `json:"result,omitempty"   db:"result"`
	Error     *string         `json:"error,omitempty"    db:"error"`
	CreatedAt time.Time       `json:"created_at"         db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"         db:"updated_at"`
}

// DecodedPayload returns the typed payload of the job.
func (j *Job) DecodedPayload() (*JobPayload, error) {
	return DecodeJobPayload(j.Payload)
}

// CreateJobRequest describes a job row to insert. ID may be pre-assigned so
// the queue message and job row share an identifier.
type CreateJobRequest struct {
	ID      string     `json:"id,omitempty"`
	BatchID *string    `json:"batch_id,omitempty"`
	Payload JobPayload `json:"payload"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if err := r.Payload.Validate(); err != nil {
		return err
	}
	if r.BatchID != nil && strings.TrimSpace(*r.BatchID) == "" {
		return errors.New("batch_id must not be blank when set")
	}
	return nil
}

// JobStats counts jobs per lifecycle state.
type JobStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}
