package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shelfwatch/shelfwatch/internal/model"
)

var validStarFilters = map[string]bool{
	"all_stars":  true,
	"one_star":   true,
	"two_star":   true,
	"three_star": true,
	"four_star":  true,
	"five_star":  true,
}

// CreateReviewJob queues a review scrape for a set of ASINs
func (h *Handler) CreateReviewJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          *string  `json:"name"`
		Marketplace   string   `json:"marketplace"`
		ASINs         []string `json:"asins"`
		StarFilters   []string `json:"star_filters"`
		MaxReviews    int      `json:"max_reviews"`
		SortBy        string   `json:"sort_by"`
		KeywordFilter *string  `json:"keyword_filter"`
		ReviewerType  string   `json:"reviewer_type"`
	}
	if err := h.DecodeJSON(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.ASINs) == 0 {
		h.Error(w, http.StatusBadRequest, "asins is required")
		return
	}
	for _, f := range req.StarFilters {
		if !validStarFilters[f] {
			h.Error(w, http.StatusBadRequest, "Invalid star filter: "+f)
			return
		}
	}
	if req.Marketplace == "" {
		req.Marketplace = "com"
	}
	if req.MaxReviews <= 0 {
		req.MaxReviews = 100
	}
	if req.SortBy == "" {
		req.SortBy = "recent"
	}
	if req.SortBy != "recent" && req.SortBy != "helpful" {
		h.Error(w, http.StatusBadRequest, "Invalid sort_by")
		return
	}
	if req.ReviewerType == "" {
		req.ReviewerType = "all_reviews"
	}
	if req.ReviewerType != "all_reviews" && req.ReviewerType != "avp_only_reviews" {
		h.Error(w, http.StatusBadRequest, "Invalid reviewer_type")
		return
	}

	job := &model.ReviewJob{
		Name:          req.Name,
		Marketplace:   req.Marketplace,
		MaxReviews:    req.MaxReviews,
		SortBy:        req.SortBy,
		KeywordFilter: req.KeywordFilter,
		ReviewerType:  req.ReviewerType,
	}
	if len(req.StarFilters) > 0 {
		filters, err := json.Marshal(req.StarFilters)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "Invalid star filters")
			return
		}
		job.StarFilters = filters
	}

	if err := h.store.CreateReviewJob(r.Context(), job, dedupe(req.ASINs)); err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to create job")
		return
	}
	h.JSON(w, http.StatusCreated, job)
}

// ListReviewJobs lists review jobs, newest first
func (h *Handler) ListReviewJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.store.ListReviewJobs(r.Context(),
		model.JobStatus(r.URL.Query().Get("status")),
		queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	h.JSON(w, http.StatusOK, jobs)
}

// GetReviewJob returns a job with its per-ASIN progress
func (h *Handler) GetReviewJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.store.GetReviewJob(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		h.StoreError(w, err, "Job not found")
		return
	}
	h.JSON(w, http.StatusOK, job)
}

// ListJobReviews returns the reviews collected by a job, optionally
// filtered to one ASIN via ?asin=
func (h *Handler) ListJobReviews(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if _, err := h.store.GetReviewJob(r.Context(), jobID); err != nil {
		h.StoreError(w, err, "Job not found")
		return
	}
	reviews, err := h.store.ListReviews(r.Context(), jobID, r.URL.Query().Get("asin"))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to list reviews")
		return
	}
	h.JSON(w, http.StatusOK, reviews)
}

// CancelReviewJob cancels a queued or running job
func (h *Handler) CancelReviewJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if err := h.store.CancelReviewJob(r.Context(), jobID); err != nil {
		h.StoreError(w, err, "Job not found")
		return
	}
	job, err := h.store.GetReviewJob(r.Context(), jobID)
	if err != nil {
		h.StoreError(w, err, "Job not found")
		return
	}
	h.JSON(w, http.StatusOK, job)
}

// RetryReviewJob requeues a finished job's failed ASINs
func (h *Handler) RetryReviewJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if err := h.store.RetryReviewJob(r.Context(), jobID); err != nil {
		h.StoreError(w, err, "Job not found")
		return
	}
	job, err := h.store.GetReviewJob(r.Context(), jobID)
	if err != nil {
		h.StoreError(w, err, "Job not found")
		return
	}
	h.JSON(w, http.StatusOK, job)
}

// DeleteReviewJob deletes a finished job with its items and reviews
func (h *Handler) DeleteReviewJob(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteReviewJob(r.Context(), chi.URLParam(r, "jobId")); err != nil {
		h.StoreError(w, err, "Job not found")
		return
	}
	h.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetAsinHistory returns aggregate scrape history for one ASIN
func (h *Handler) GetAsinHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.store.ListAsinHistory(r.Context(), chi.URLParam(r, "asin"))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to list ASIN history")
		return
	}
	h.JSON(w, http.StatusOK, history)
}

// dedupe drops duplicate entries preserving order.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
