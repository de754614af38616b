package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"llmshield/internal/models"
	"llmshield/internal/storage"
)

// CreateKey handles API key creation. The response carries the raw key; it
// is shown exactly once and cannot be recovered afterwards.
// POST /api/v1/keys
func (h *Handlers) CreateKey(w http.ResponseWriter, r *http.Request) {
	var req models.CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	key, secret, err := h.authService.CreateKey(r.Context(), &req)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrCodeValidationFailed, err.Error())
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, &models.CreateKeyResponse{
		Key:       secret.Expose(),
		ID:        key.ID,
		Name:      key.Name,
		Tier:      string(key.Tier),
		KeyPrefix: key.KeyPrefix,
		CreatedAt: key.CreatedAt,
		ExpiresAt: key.ExpiresAt,
	})
}

// ListKeys handles key listing. Responses never include hashes or raw keys.
// GET /api/v1/keys
func (h *Handlers) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.authService.ListKeys(r.Context())
	if err != nil {
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrCodeInternal, "Failed to list keys")
		return
	}

	resp := &models.ListKeysResponse{Keys: make([]*models.KeyResponse, 0, len(keys)), Count: len(keys)}
	for _, key := range keys {
		resp.Keys = append(resp.Keys, models.NewKeyResponse(key))
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// GetKey handles single key retrieval.
// GET /api/v1/keys/{key_id}
func (h *Handlers) GetKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.authService.GetKey(r.Context(), mux.Vars(r)["key_id"])
	if err != nil {
		h.writeKeyError(w, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, models.NewKeyResponse(key))
}

// UpdateKey handles partial key updates.
// PATCH /api/v1/keys/{key_id}
func (h *Handlers) UpdateKey(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrCodeValidationFailed, err.Error())
		return
	}

	key, err := h.authService.UpdateKey(r.Context(), mux.Vars(r)["key_id"], &req)
	if err != nil {
		h.writeKeyError(w, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, models.NewKeyResponse(key))
}

// RevokeKey marks a key inactive. In-flight requests complete; the next
// validation of the key fails.
// POST /api/v1/keys/{key_id}/revoke
func (h *Handlers) RevokeKey(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["key_id"]
	if err := h.authService.RevokeKey(r.Context(), id); err != nil {
		h.writeKeyError(w, err)
		return
	}

	key, err := h.authService.GetKey(r.Context(), id)
	if err != nil {
		h.writeKeyError(w, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, models.NewKeyResponse(key))
}

// DeleteKey removes a key record entirely.
// DELETE /api/v1/keys/{key_id}
func (h *Handlers) DeleteKey(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.DeleteKey(r.Context(), mux.Vars(r)["key_id"]); err != nil {
		h.writeKeyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) writeKeyError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrKeyNotFound) {
		h.writeErrorResponse(w, http.StatusNotFound, models.ErrCodeNotFound, "API key not found")
		return
	}
	h.writeErrorResponse(w, http.StatusBadRequest, models.ErrCodeInvalidRequest, err.Error())
}
