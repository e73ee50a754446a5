package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shelfwatch/shelfwatch/internal/model"
)

// CreateScanJob queues a product metric refresh. With no channel_sku_ids
// the job covers every channel SKU in the marketplace. Each item snapshots
// the SKU's current ASIN at creation time.
func (h *Handler) CreateScanJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          *string  `json:"name"`
		Marketplace   string   `json:"marketplace"`
		ChannelSkuIDs []string `json:"channel_sku_ids"`
	}
	if err := h.DecodeJSON(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Marketplace == "" {
		req.Marketplace = "com"
	}

	var skus []*model.ChannelSku
	var err error
	if len(req.ChannelSkuIDs) > 0 {
		skus, err = h.store.ListChannelSkusByIDs(r.Context(), dedupe(req.ChannelSkuIDs))
	} else {
		skus, err = h.store.ListChannelSkus(r.Context(), req.Marketplace)
	}
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to resolve channel SKUs")
		return
	}
	if len(skus) == 0 {
		h.Error(w, http.StatusBadRequest, "No channel SKUs to scan")
		return
	}

	items := make([]*model.ScanItem, 0, len(skus))
	for _, cs := range skus {
		items = append(items, &model.ScanItem{
			ChannelSkuID: cs.ID,
			ASIN:         cs.CurrentASIN,
		})
	}

	job := &model.ScanJob{Name: req.Name, Marketplace: req.Marketplace}
	if err := h.store.CreateScanJob(r.Context(), job, items); err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to create job")
		return
	}
	h.JSON(w, http.StatusCreated, job)
}

// ListScanJobs lists scan jobs, newest first
func (h *Handler) ListScanJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.store.ListScanJobs(r.Context(),
		model.JobStatus(r.URL.Query().Get("status")),
		queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	h.JSON(w, http.StatusOK, jobs)
}

// GetScanJob returns a scan job with its items
func (h *Handler) GetScanJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.store.GetScanJob(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		h.StoreError(w, err, "Job not found")
		return
	}
	h.JSON(w, http.StatusOK, job)
}

// GetScanJobSummary returns aggregated metrics across a scan job's items
func (h *Handler) GetScanJobSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.store.GetScanJobSummary(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		h.StoreError(w, err, "Job not found")
		return
	}
	h.JSON(w, http.StatusOK, summary)
}

// CancelScanJob cancels a queued or running scan job
func (h *Handler) CancelScanJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if err := h.store.CancelScanJob(r.Context(), jobID); err != nil {
		h.StoreError(w, err, "Job not found")
		return
	}
	job, err := h.store.GetScanJob(r.Context(), jobID)
	if err != nil {
		h.StoreError(w, err, "Job not found")
		return
	}
	h.JSON(w, http.StatusOK, job)
}

// RetryScanJob requeues a finished scan job's failed items
func (h *Handler) RetryScanJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if err := h.store.RetryScanJob(r.Context(), jobID); err != nil {
		h.StoreError(w, err, "Job not found")
		return
	}
	job, err := h.store.GetScanJob(r.Context(), jobID)
	if err != nil {
		h.StoreError(w, err, "Job not found")
		return
	}
	h.JSON(w, http.StatusOK, job)
}

// DeleteScanJob deletes a finished scan job
func (h *Handler) DeleteScanJob(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteScanJob(r.Context(), chi.URLParam(r, "jobId")); err != nil {
		h.StoreError(w, err, "Job not found")
		return
	}
	h.JSON(w, http.StatusOK, map[string]bool{"success": true})
}
