package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shelfwatch/shelfwatch/internal/model"
)

// ListChannelSkus returns channel SKUs, optionally filtered by marketplace
func (h *Handler) ListChannelSkus(w http.ResponseWriter, r *http.Request) {
	skus, err := h.store.ListChannelSkus(r.Context(), r.URL.Query().Get("marketplace"))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to list channel SKUs")
		return
	}
	h.JSON(w, http.StatusOK, skus)
}

// CreateChannelSku creates a channel SKU
func (h *Handler) CreateChannelSku(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SkuID          *string `json:"sku_id"`
		ChannelSkuCode string  `json:"channel_sku_code"`
		Marketplace    string  `json:"marketplace"`
		CurrentASIN    string  `json:"current_asin"`
		PackSize       int     `json:"pack_size"`
	}
	if err := h.DecodeJSON(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ChannelSkuCode == "" || req.CurrentASIN == "" {
		h.Error(w, http.StatusBadRequest, "channel_sku_code and current_asin are required")
		return
	}
	if req.Marketplace == "" {
		req.Marketplace = "com"
	}
	if req.PackSize < 1 {
		req.PackSize = 1
	}

	cs := &model.ChannelSku{
		SkuID:          req.SkuID,
		ChannelSkuCode: req.ChannelSkuCode,
		Marketplace:    req.Marketplace,
		CurrentASIN:    req.CurrentASIN,
		PackSize:       req.PackSize,
	}
	if err := h.store.CreateChannelSku(r.Context(), cs); err != nil {
		h.Error(w, http.StatusConflict, "Channel SKU already exists for this marketplace")
		return
	}

	// The initial ASIN starts the history trail.
	history := &model.ChannelSkuAsinHistory{ChannelSkuID: cs.ID, ASIN: cs.CurrentASIN}
	if err := h.store.CreateChannelSkuAsinHistory(r.Context(), history); err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to record ASIN history")
		return
	}

	h.JSON(w, http.StatusCreated, cs)
}

// GetChannelSku returns a single channel SKU
func (h *Handler) GetChannelSku(w http.ResponseWriter, r *http.Request) {
	cs, err := h.store.GetChannelSku(r.Context(), chi.URLParam(r, "channelSkuId"))
	if err != nil {
		h.StoreError(w, err, "Channel SKU not found")
		return
	}
	h.JSON(w, http.StatusOK, cs)
}

// UpdateChannelSku updates a channel SKU. Changing the ASIN through the API
// appends to the ASIN history just like a scan-detected change.
func (h *Handler) UpdateChannelSku(w http.ResponseWriter, r *http.Request) {
	cs, err := h.store.GetChannelSku(r.Context(), chi.URLParam(r, "channelSkuId"))
	if err != nil {
		h.StoreError(w, err, "Channel SKU not found")
		return
	}

	var req struct {
		SkuID       *string `json:"sku_id"`
		CurrentASIN *string `json:"current_asin"`
		PackSize    *int    `json:"pack_size"`
	}
	if err := h.DecodeJSON(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.SkuID != nil {
		cs.SkuID = req.SkuID
	}
	if req.PackSize != nil && *req.PackSize >= 1 {
		cs.PackSize = *req.PackSize
	}
	if req.CurrentASIN != nil && *req.CurrentASIN != "" && *req.CurrentASIN != cs.CurrentASIN {
		cs.CurrentASIN = *req.CurrentASIN
		history := &model.ChannelSkuAsinHistory{ChannelSkuID: cs.ID, ASIN: cs.CurrentASIN}
		if err := h.store.CreateChannelSkuAsinHistory(r.Context(), history); err != nil {
			h.Error(w, http.StatusInternalServerError, "Failed to record ASIN history")
			return
		}
	}

	if err := h.store.UpdateChannelSku(r.Context(), cs); err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to update channel SKU")
		return
	}
	h.JSON(w, http.StatusOK, cs)
}

// DeleteChannelSku deletes a channel SKU
func (h *Handler) DeleteChannelSku(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteChannelSku(r.Context(), chi.URLParam(r, "channelSkuId")); err != nil {
		h.StoreError(w, err, "Channel SKU not found")
		return
	}
	h.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetChannelSkuAsinHistory returns the ASIN change trail for a channel SKU
func (h *Handler) GetChannelSkuAsinHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "channelSkuId")
	if _, err := h.store.GetChannelSku(r.Context(), id); err != nil {
		h.StoreError(w, err, "Channel SKU not found")
		return
	}
	history, err := h.store.ListChannelSkuAsinHistory(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to list ASIN history")
		return
	}
	h.JSON(w, http.StatusOK, history)
}
