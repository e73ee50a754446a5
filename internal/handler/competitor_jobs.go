package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shelfwatch/shelfwatch/internal/model"
)

// CreateCompetitorJob queues a manual competitor scrape. With no
// competitor_ids the job covers every active competitor in the
// marketplace. Each item snapshots the competitor's ASIN.
func (h *Handler) CreateCompetitorJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          *string  `json:"name"`
		Marketplace   string   `json:"marketplace"`
		CompetitorIDs []string `json:"competitor_ids"`
	}
	if err := h.DecodeJSON(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Marketplace == "" {
		req.Marketplace = "com"
	}

	var competitors []*model.Competitor
	var err error
	if len(req.CompetitorIDs) > 0 {
		competitors, err = h.store.ListCompetitorsByIDs(r.Context(), dedupe(req.CompetitorIDs))
	} else {
		competitors, err = h.store.ListCompetitors(r.Context(), req.Marketplace, true)
	}
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to resolve competitors")
		return
	}
	if len(competitors) == 0 {
		h.Error(w, http.StatusBadRequest, "No competitors to scrape")
		return
	}

	items := make([]*model.CompetitorItem, 0, len(competitors))
	for _, comp := range competitors {
		items = append(items, &model.CompetitorItem{
			CompetitorID: comp.ID,
			ASIN:         comp.ASIN,
		})
	}

	job := &model.CompetitorJob{
		Name:        req.Name,
		Marketplace: req.Marketplace,
		JobType:     model.CompetitorJobManual,
	}
	if err := h.store.CreateCompetitorJob(r.Context(), job, items); err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to create job")
		return
	}
	h.JSON(w, http.StatusCreated, job)
}

// ListCompetitorJobs lists competitor jobs, newest first
func (h *Handler) ListCompetitorJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.store.ListCompetitorJobs(r.Context(),
		model.JobStatus(r.URL.Query().Get("status")),
		queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	h.JSON(w, http.StatusOK, jobs)
}

// GetCompetitorJob returns a competitor job with its items
func (h *Handler) GetCompetitorJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.store.GetCompetitorJob(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		h.StoreError(w, err, "Job not found")
		return
	}
	h.JSON(w, http.StatusOK, job)
}

// CancelCompetitorJob cancels a queued or running competitor job
func (h *Handler) CancelCompetitorJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if err := h.store.CancelCompetitorJob(r.Context(), jobID); err != nil {
		h.StoreError(w, err, "Job not found")
		return
	}
	job, err := h.store.GetCompetitorJob(r.Context(), jobID)
	if err != nil {
		h.StoreError(w, err, "Job not found")
		return
	}
	h.JSON(w, http.StatusOK, job)
}

// RetryCompetitorJob requeues a finished competitor job's failed items
func (h *Handler) RetryCompetitorJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if err := h.store.RetryCompetitorJob(r.Context(), jobID); err != nil {
		h.StoreError(w, err, "Job not found")
		return
	}
	job, err := h.store.GetCompetitorJob(r.Context(), jobID)
	if err != nil {
		h.StoreError(w, err, "Job not found")
		return
	}
	h.JSON(w, http.StatusOK, job)
}

// DeleteCompetitorJob deletes a finished competitor job
func (h *Handler) DeleteCompetitorJob(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteCompetitorJob(r.Context(), chi.URLParam(r, "jobId")); err != nil {
		h.StoreError(w, err, "Job not found")
		return
	}
	h.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetDashboardStats returns job and catalog counts
func (h *Handler) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetJobStats(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}
	h.JSON(w, http.StatusOK, stats)
}
