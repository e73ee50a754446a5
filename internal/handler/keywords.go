package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shelfwatch/shelfwatch/internal/model"
)

// ListKeywords returns tracked keywords, optionally filtered by marketplace
func (h *Handler) ListKeywords(w http.ResponseWriter, r *http.Request) {
	keywords, err := h.store.ListKeywords(r.Context(), r.URL.Query().Get("marketplace"))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to list keywords")
		return
	}
	h.JSON(w, http.StatusOK, keywords)
}

// CreateKeyword creates a tracked keyword
func (h *Handler) CreateKeyword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SkuID       *string `json:"sku_id"`
		Keyword     string  `json:"keyword"`
		Marketplace string  `json:"marketplace"`
		Notes       *string `json:"notes"`
	}
	if err := h.DecodeJSON(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Keyword == "" {
		h.Error(w, http.StatusBadRequest, "keyword is required")
		return
	}
	if req.Marketplace == "" {
		req.Marketplace = "com"
	}

	k := &model.Keyword{
		SkuID:       req.SkuID,
		Keyword:     req.Keyword,
		Marketplace: req.Marketplace,
		Notes:       req.Notes,
	}
	if err := h.store.CreateKeyword(r.Context(), k); err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to create keyword")
		return
	}
	h.JSON(w, http.StatusCreated, k)
}

// GetKeyword returns a keyword with its linked channel SKUs and competitors
func (h *Handler) GetKeyword(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "keywordId")
	k, err := h.store.GetKeyword(r.Context(), id)
	if err != nil {
		h.StoreError(w, err, "Keyword not found")
		return
	}

	channelLinks, err := h.store.ListKeywordChannelSkus(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to list keyword links")
		return
	}
	competitorLinks, err := h.store.ListKeywordCompetitors(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to list keyword links")
		return
	}

	h.JSON(w, http.StatusOK, map[string]any{
		"keyword":      k,
		"channel_skus": channelLinks,
		"competitors":  competitorLinks,
	})
}

// UpdateKeyword updates a keyword
func (h *Handler) UpdateKeyword(w http.ResponseWriter, r *http.Request) {
	k, err := h.store.GetKeyword(r.Context(), chi.URLParam(r, "keywordId"))
	if err != nil {
		h.StoreError(w, err, "Keyword not found")
		return
	}

	var req struct {
		SkuID   *string `json:"sku_id"`
		Keyword *string `json:"keyword"`
		Notes   *string `json:"notes"`
	}
	if err := h.DecodeJSON(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SkuID != nil {
		k.SkuID = req.SkuID
	}
	if req.Keyword != nil && *req.Keyword != "" {
		k.Keyword = *req.Keyword
	}
	if req.Notes != nil {
		k.Notes = req.Notes
	}

	if err := h.store.UpdateKeyword(r.Context(), k); err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to update keyword")
		return
	}
	h.JSON(w, http.StatusOK, k)
}

// DeleteKeyword deletes a keyword and its links
func (h *Handler) DeleteKeyword(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteKeyword(r.Context(), chi.URLParam(r, "keywordId")); err != nil {
		h.StoreError(w, err, "Keyword not found")
		return
	}
	h.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// LinkKeywordChannelSku links a keyword to a channel SKU
func (h *Handler) LinkKeywordChannelSku(w http.ResponseWriter, r *http.Request) {
	keywordID := chi.URLParam(r, "keywordId")
	channelSkuID := chi.URLParam(r, "channelSkuId")

	if _, err := h.store.GetKeyword(r.Context(), keywordID); err != nil {
		h.StoreError(w, err, "Keyword not found")
		return
	}
	if _, err := h.store.GetChannelSku(r.Context(), channelSkuID); err != nil {
		h.StoreError(w, err, "Channel SKU not found")
		return
	}
	if err := h.store.LinkKeywordChannelSku(r.Context(), keywordID, channelSkuID); err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to link keyword")
		return
	}
	h.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// UnlinkKeywordChannelSku removes a keyword to channel SKU link
func (h *Handler) UnlinkKeywordChannelSku(w http.ResponseWriter, r *http.Request) {
	if err := h.store.UnlinkKeywordChannelSku(r.Context(), chi.URLParam(r, "keywordId"), chi.URLParam(r, "channelSkuId")); err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to unlink keyword")
		return
	}
	h.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// LinkKeywordCompetitor links a keyword to a competitor
func (h *Handler) LinkKeywordCompetitor(w http.ResponseWriter, r *http.Request) {
	keywordID := chi.URLParam(r, "keywordId")
	competitorID := chi.URLParam(r, "competitorId")

	if _, err := h.store.GetKeyword(r.Context(), keywordID); err != nil {
		h.StoreError(w, err, "Keyword not found")
		return
	}
	if _, err := h.store.GetCompetitor(r.Context(), competitorID); err != nil {
		h.StoreError(w, err, "Competitor not found")
		return
	}
	if err := h.store.LinkKeywordCompetitor(r.Context(), keywordID, competitorID); err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to link keyword")
		return
	}
	h.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// UnlinkKeywordCompetitor removes a keyword to competitor link
func (h *Handler) UnlinkKeywordCompetitor(w http.ResponseWriter, r *http.Request) {
	if err := h.store.UnlinkKeywordCompetitor(r.Context(), chi.URLParam(r, "keywordId"), chi.URLParam(r, "competitorId")); err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to unlink keyword")
		return
	}
	h.JSON(w, http.StatusOK, map[string]bool{"success": true})
}
