package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shelfwatch/shelfwatch/internal/model"
)

// ListCompetitors returns competitors, optionally filtered by marketplace
// and active flag
func (h *Handler) ListCompetitors(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	competitors, err := h.store.ListCompetitors(r.Context(), r.URL.Query().Get("marketplace"), activeOnly)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to list competitors")
		return
	}
	h.JSON(w, http.StatusOK, competitors)
}

// CreateCompetitor registers a competitor ASIN for tracking
func (h *Handler) CreateCompetitor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SkuID       *string `json:"sku_id"`
		ASIN        string  `json:"asin"`
		Marketplace string  `json:"marketplace"`
		PackSize    int     `json:"pack_size"`
		DisplayName *string `json:"display_name"`
		Schedule    string  `json:"schedule"`
		Notes       *string `json:"notes"`
	}
	if err := h.DecodeJSON(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ASIN == "" {
		h.Error(w, http.StatusBadRequest, "asin is required")
		return
	}
	if req.Marketplace == "" {
		req.Marketplace = "com"
	}
	if req.PackSize < 1 {
		req.PackSize = 1
	}
	if req.Schedule == "" {
		req.Schedule = string(model.ScheduleNone)
	}
	if !model.Schedule(req.Schedule).Valid() {
		h.Error(w, http.StatusBadRequest, "Invalid schedule")
		return
	}

	comp := &model.Competitor{
		SkuID:       req.SkuID,
		ASIN:        req.ASIN,
		Marketplace: req.Marketplace,
		PackSize:    req.PackSize,
		DisplayName: req.DisplayName,
		Schedule:    req.Schedule,
		IsActive:    true,
		Notes:       req.Notes,
	}
	applySchedule(comp, model.Schedule(req.Schedule))

	if err := h.store.CreateCompetitor(r.Context(), comp); err != nil {
		h.Error(w, http.StatusConflict, "Competitor already tracked for this marketplace")
		return
	}
	h.JSON(w, http.StatusCreated, comp)
}

// GetCompetitor returns a competitor with its latest data
func (h *Handler) GetCompetitor(w http.ResponseWriter, r *http.Request) {
	comp, err := h.store.GetCompetitor(r.Context(), chi.URLParam(r, "competitorId"))
	if err != nil {
		h.StoreError(w, err, "Competitor not found")
		return
	}
	h.JSON(w, http.StatusOK, comp)
}

// UpdateCompetitor updates a competitor's identity, schedule and flags.
// Cached metric fields are owned by the worker and cannot be set here.
func (h *Handler) UpdateCompetitor(w http.ResponseWriter, r *http.Request) {
	comp, err := h.store.GetCompetitor(r.Context(), chi.URLParam(r, "competitorId"))
	if err != nil {
		h.StoreError(w, err, "Competitor not found")
		return
	}

	var req struct {
		SkuID       *string `json:"sku_id"`
		PackSize    *int    `json:"pack_size"`
		DisplayName *string `json:"display_name"`
		Schedule    *string `json:"schedule"`
		IsActive    *bool   `json:"is_active"`
		Notes       *string `json:"notes"`
	}
	if err := h.DecodeJSON(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.SkuID != nil {
		comp.SkuID = req.SkuID
	}
	if req.PackSize != nil && *req.PackSize >= 1 {
		comp.PackSize = *req.PackSize
	}
	if req.DisplayName != nil {
		comp.DisplayName = req.DisplayName
	}
	if req.IsActive != nil {
		comp.IsActive = *req.IsActive
	}
	if req.Notes != nil {
		comp.Notes = req.Notes
	}
	if req.Schedule != nil && *req.Schedule != comp.Schedule {
		schedule := model.Schedule(*req.Schedule)
		if !schedule.Valid() {
			h.Error(w, http.StatusBadRequest, "Invalid schedule")
			return
		}
		comp.Schedule = *req.Schedule
		applySchedule(comp, schedule)
	}

	if err := h.store.UpdateCompetitor(r.Context(), comp); err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to update competitor")
		return
	}
	h.JSON(w, http.StatusOK, comp)
}

// DeleteCompetitor removes a competitor and its cached data and history
func (h *Handler) DeleteCompetitor(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteCompetitor(r.Context(), chi.URLParam(r, "competitorId")); err != nil {
		h.StoreError(w, err, "Competitor not found")
		return
	}
	h.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetCompetitorPriceHistory returns price history snapshots, optionally
// limited to the last N days via ?days=
func (h *Handler) GetCompetitorPriceHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "competitorId")
	if _, err := h.store.GetCompetitor(r.Context(), id); err != nil {
		h.StoreError(w, err, "Competitor not found")
		return
	}

	var since *time.Time
	if days := queryInt(r, "days", 0); days > 0 {
		t := time.Now().AddDate(0, 0, -days)
		since = &t
	}

	history, err := h.store.ListCompetitorPriceHistory(r.Context(), id, since)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to list price history")
		return
	}
	h.JSON(w, http.StatusOK, history)
}

// applySchedule stamps next_scrape_at when a schedule is set. A fresh
// schedule waits one full interval before its first scrape; clearing it
// clears the timestamp.
func applySchedule(comp *model.Competitor, schedule model.Schedule) {
	if schedule == model.ScheduleNone {
		comp.NextScrapeAt = nil
		return
	}
	next := time.Now().Add(schedule.Interval())
	comp.NextScrapeAt = &next
}
