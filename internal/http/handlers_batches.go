package httpx

import (
	"errors"
	"net/http"

	"github.com/gradebench/gradebench/internal/data"
	"github.com/gradebench/gradebench/internal/domain/model"
	"github.com/gradebench/gradebench/internal/service"
)

// BatchHandlers provides HTTP handlers for batch operations.
type BatchHandlers struct {
	Svc *service.BatchService
}

// Create handles batch creation: N repositories become N pending jobs and N
// queue messages, and a drain cycle is triggered asynchronously.
func (h *BatchHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateBatchRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	batch, err := h.Svc.Create(r.Context(), req)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "create_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusCreated, batch)
}

// Get returns the full batch view: rollup, jobs, and results.
func (h *BatchHandlers) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.Svc.GetView(r.Context(), r.PathValue("id"))
	if err != nil {
		writeBatchError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// GetSummary returns just the batch rollup, served through the cache.
func (h *BatchHandlers) GetSummary(w http.ResponseWriter, r *http.Request) {
	batch, err := h.Svc.GetSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		writeBatchError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, batch)
}

// List returns an owner's batches.
func (h *BatchHandlers) List(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_query", Err: errors.New("owner_id is required")})
		return
	}
	limit := parseIntQuery(r, "limit", 50)
	offset := parseIntQuery(r, "offset", 0)

	batches, err := h.Svc.List(r.Context(), ownerID, limit, offset)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "list_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, batches)
}

type repositoryRequest struct {
	Repository string `json:"repository"`
	Rubric     string `json:"rubric,omitempty"`
}

// AddRepository appends a repository to an existing batch.
func (h *BatchHandlers) AddRepository(w http.ResponseWriter, r *http.Request) {
	var req repositoryRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	batch, err := h.Svc.AddRepository(r.Context(), r.PathValue("id"), req.Repository, req.Rubric)
	if err != nil {
		writeBatchError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, batch)
}

// Retry re-enqueues a repository that belongs to the batch. The old failed job
// row is preserved for audit.
func (h *BatchHandlers) Retry(w http.ResponseWriter, r *http.Request) {
	var req repositoryRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	batch, err := h.Svc.Retry(r.Context(), r.PathValue("id"), req.Repository)
	if err != nil {
		writeBatchError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, batch)
}

// RemoveRepository deletes a repository's jobs and result from the batch.
func (h *BatchHandlers) RemoveRepository(w http.ResponseWriter, r *http.Request) {
	var req repositoryRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	batch, err := h.Svc.RemoveRepository(r.Context(), r.PathValue("id"), req.Repository)
	if err != nil {
		writeBatchError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, batch)
}

// Delete removes a batch and cascades to its jobs and results.
func (h *BatchHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeBatchError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeBatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, data.ErrBatchNotFound):
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "batch_not_found", Err: err})
	case errors.Is(err, data.ErrRepositoryExists):
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "repository_exists", Err: err})
	case errors.Is(err, data.ErrRepositoryNotInBatch):
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "repository_not_in_batch", Err: err})
	default:
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "batch_request_failed", Err: err})
	}
}
