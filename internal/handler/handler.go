// Package handler contains the HTTP API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/store"
)

// Handler contains all HTTP handlers
type Handler struct {
	store *store.Store
	cfg   *config.Config
}

// New creates a new Handler.
func New(s *store.Store, cfg *config.Config) *Handler {
	return &Handler{store: s, cfg: cfg}
}

// JSON helper to write JSON responses
func (h *Handler) JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error helper to write error responses
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// DecodeJSON helper to decode request body
func (h *Handler) DecodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// StoreError maps store errors onto HTTP responses. notFoundMsg is used for
// ErrNotFound; state conflicts map to 409.
func (h *Handler) StoreError(w http.ResponseWriter, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.Error(w, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, store.ErrJobNotTerminal):
		h.Error(w, http.StatusConflict, "Job is still queued or running")
	case errors.Is(err, store.ErrJobNotCancelable):
		h.Error(w, http.StatusConflict, "Job is already finished")
	case errors.Is(err, store.ErrNothingToRetry):
		h.Error(w, http.StatusConflict, "Job has no failed items to retry")
	default:
		h.Error(w, http.StatusInternalServerError, "Internal error")
	}
}

// queryInt reads an integer query parameter with a default.
func queryInt(r *http.Request, key string, defaultValue int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}
