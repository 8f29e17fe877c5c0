package httpx

import (
	"net/http"

	"github.com/gradebench/gradebench/internal/core"
	"github.com/gradebench/gradebench/internal/domain/model"
)

// StatsHandlers exposes queue and job counters for operational visibility.
type StatsHandlers struct {
	QueueRepo core.QueueRepository
	JobRepo   core.JobRepository
}

type statsResponse struct {
	Queue *model.QueueStats `json:"queue"`
	Jobs  *model.JobStats   `json:"jobs"`
}

// Get returns the current queue shape and job lifecycle counts.
func (h *StatsHandlers) Get(w http.ResponseWriter, r *http.Request) {
	queueStats, err := h.QueueRepo.Stats(r.Context(), model.QueueEvaluations)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "queue_stats_failed", Err: err})
		return
	}
	jobStats, err := h.JobRepo.Stats(r.Context())
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "job_stats_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, statsResponse{Queue: queueStats, Jobs: jobStats})
}
