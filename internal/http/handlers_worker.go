package httpx

import (
	"errors"
	"net/http"

	"github.com/gradebench/gradebench/internal/data"
	"github.com/gradebench/gradebench/internal/service"
)

// WorkerHandlers exposes the drain-cycle trigger and the single-job entrypoint.
type WorkerHandlers struct {
	Svc *service.WorkerService
}

// Poll runs one full drain cycle and returns its summary. A clean empty-queue
// run and a run that recorded per-message failures both return 200; only a
// failure to lease at all is a 500.
func (h *WorkerHandlers) Poll(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Svc.DrainQueue(r.Context())
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "drain_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}

// ProcessJob runs the single-job lifecycle for the given job id without
// touching the queue. Administrative entrypoint.
func (h *WorkerHandlers) ProcessJob(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.Svc.ProcessJob(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "job_not_found", Err: err})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "process_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, outcome)
}
