package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shelfwatch/shelfwatch/internal/model"
)

// ListSkus returns all parent SKUs
func (h *Handler) ListSkus(w http.ResponseWriter, r *http.Request) {
	skus, err := h.store.ListSkus(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to list SKUs")
		return
	}
	h.JSON(w, http.StatusOK, skus)
}

// CreateSku creates a parent SKU
func (h *Handler) CreateSku(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SkuCode     string  `json:"sku_code"`
		Description *string `json:"description"`
	}
	if err := h.DecodeJSON(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SkuCode == "" {
		h.Error(w, http.StatusBadRequest, "sku_code is required")
		return
	}

	sku := &model.Sku{SkuCode: req.SkuCode, Description: req.Description}
	if err := h.store.CreateSku(r.Context(), sku); err != nil {
		h.Error(w, http.StatusConflict, "SKU code already exists")
		return
	}
	h.JSON(w, http.StatusCreated, sku)
}

// GetSku returns a single SKU
func (h *Handler) GetSku(w http.ResponseWriter, r *http.Request) {
	sku, err := h.store.GetSku(r.Context(), chi.URLParam(r, "skuId"))
	if err != nil {
		h.StoreError(w, err, "SKU not found")
		return
	}
	h.JSON(w, http.StatusOK, sku)
}

// UpdateSku updates a SKU's mutable fields
func (h *Handler) UpdateSku(w http.ResponseWriter, r *http.Request) {
	sku, err := h.store.GetSku(r.Context(), chi.URLParam(r, "skuId"))
	if err != nil {
		h.StoreError(w, err, "SKU not found")
		return
	}

	var req struct {
		SkuCode     *string `json:"sku_code"`
		Description *string `json:"description"`
	}
	if err := h.DecodeJSON(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SkuCode != nil {
		if *req.SkuCode == "" {
			h.Error(w, http.StatusBadRequest, "sku_code cannot be empty")
			return
		}
		sku.SkuCode = *req.SkuCode
	}
	if req.Description != nil {
		sku.Description = req.Description
	}

	if err := h.store.UpdateSku(r.Context(), sku); err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to update SKU")
		return
	}
	h.JSON(w, http.StatusOK, sku)
}

// DeleteSku deletes a SKU
func (h *Handler) DeleteSku(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteSku(r.Context(), chi.URLParam(r, "skuId")); err != nil {
		h.StoreError(w, err, "SKU not found")
		return
	}
	h.JSON(w, http.StatusOK, map[string]bool{"success": true})
}
