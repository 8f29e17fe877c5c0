package httpx

import (
	"errors"
	"net/http"

	"github.com/gradebench/gradebench/internal/data"
	"github.com/gradebench/gradebench/internal/domain/model"
	"github.com/gradebench/gradebench/internal/service"
)

// SecretHandlers provides HTTP handlers for engine credentials.
type SecretHandlers struct {
	Svc *service.SecretService
}

// secretResponse never carries the credential value back to the caller.
type secretResponse struct {
	ID         string `json:"id"`
	OwnerID    string `json:"owner_id"`
	SecretType string `json:"secret_type"`
}

// Put stores or replaces an owner's credential.
func (h *SecretHandlers) Put(w http.ResponseWriter, r *http.Request) {
	var req model.PutSecretRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	secret, err := h.Svc.Put(r.Context(), req)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "put_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, secretResponse{
		ID:         secret.ID,
		OwnerID:    secret.OwnerID,
		SecretType: secret.SecretType,
	})
}

// Head reports whether a credential exists without exposing its value.
func (h *SecretHandlers) Head(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("owner_id")
	secretType := r.PathValue("type")

	if _, err := h.Svc.Get(r.Context(), ownerID, secretType); err != nil {
		if errors.Is(err, data.ErrSecretNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete removes an owner's credential.
func (h *SecretHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.Svc.Delete(r.Context(), r.PathValue("owner_id"), r.PathValue("type"))
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "delete_failed", Err: err})
		return
	}
	if !deleted {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "secret_not_found", Err: data.ErrSecretNotFound})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
