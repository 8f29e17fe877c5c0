package model

import (
	"encoding/json"
	"time"
)

// Result is the summary row for a completed evaluation. At most one row exists
// per (job_id, repository); redelivered messages land on the same row.
type Result struct {
	ID         string          `json:"id"                 db:"id"`
	JobID      string          `json:"job_id"             db:"job_id"`
	BatchID    *string         `json:"batch_id,omitempty" db:"batch_id"`
	Repository string          `json:"repository"         db:"repository"`
	TotalScore int             `json:"total_score"        db:"total_score"`
	Detail     json.RawMessage `json:"detail"             db:"detail"`
	Metadata   json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time       `json:"created_at"         db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"         db:"updated_at"`
}

// ResultCriterion is one scored rubric criterion under a result summary.
// At most one row exists per (result_id, criterion_id).
type ResultCriterion struct {
	ResultID    string `json:"result_id"   db:"result_id"`
	CriterionID string `json:"criterion_id" db:"criterion_id"`
	Label       string `json:"label"        db:"label"`
	Score       int    `json:"score"        db:"score"`
	Positive    string `json:"positive"     db:"commentary_positive"`
	Negative    string `json:"negative"     db:"commentary_negative"`
}

// EvaluationMetadata records how the external engine arrived at a result.
type EvaluationMetadata struct {
	Turns      int     `json:"turns,omitempty"`
	CostUSD    float64 `json:"cost_usd,omitempty"`
	DurationMs int64   `json:"duration_ms,omitempty"`
}
