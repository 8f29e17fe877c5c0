package model

import (
	"encoding/json"
	"time"
)

// QueueEvaluations is the queue drained by the evaluation worker.
const QueueEvaluations = "evaluations"

// QueueMessage is a durable queue row. A message is eligible for leasing once
// visible_at has passed; leasing advances visible_at by the visibility timeout
// and increments read_count. Delete and Archive are the only terminal states.
type QueueMessage struct {
	ID         int64           `json:"id"          db:"id"`
	QueueName  string          `json:"queue_name"  db:"queue_name"`
	Payload    json.RawMessage `json:"payload"     db:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at" db:"enqueued_at"`
	VisibleAt  time.Time       `json:"visible_at"  db:"visible_at"`
	ReadCount  int             `json:"read_count"  db:"read_count"`
}

// QueueStats reports the shape of a queue at a point in time.
type QueueStats struct {
	Visible  int `json:"visible"`
	Leased   int `json:"leased"`
	Archived int `json:"archived"`
}
