package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/model"
	"github.com/shelfwatch/shelfwatch/internal/store"
)

func setupTestHandler(t *testing.T) (*Handler, *store.Store) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	s := store.New(db)
	return New(s, &config.Config{}), s
}

func testRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.GetDashboardStats)

		r.Route("/skus", func(r chi.Router) {
			r.Get("/", h.ListSkus)
			r.Post("/", h.CreateSku)
			r.Get("/{skuId}", h.GetSku)
			r.Put("/{skuId}", h.UpdateSku)
			r.Delete("/{skuId}", h.DeleteSku)
		})

		r.Route("/channel-skus", func(r chi.Router) {
			r.Get("/", h.ListChannelSkus)
			r.Post("/", h.CreateChannelSku)
			r.Get("/{channelSkuId}", h.GetChannelSku)
			r.Put("/{channelSkuId}", h.UpdateChannelSku)
			r.Delete("/{channelSkuId}", h.DeleteChannelSku)
			r.Get("/{channelSkuId}/asin-history", h.GetChannelSkuAsinHistory)
		})

		r.Route("/competitors", func(r chi.Router) {
			r.Get("/", h.ListCompetitors)
			r.Post("/", h.CreateCompetitor)
			r.Get("/{competitorId}", h.GetCompetitor)
			r.Put("/{competitorId}", h.UpdateCompetitor)
			r.Delete("/{competitorId}", h.DeleteCompetitor)
		})

		r.Route("/review-jobs", func(r chi.Router) {
			r.Get("/", h.ListReviewJobs)
			r.Post("/", h.CreateReviewJob)
			r.Get("/{jobId}", h.GetReviewJob)
			r.Delete("/{jobId}", h.DeleteReviewJob)
			r.Post("/{jobId}/cancel", h.CancelReviewJob)
			r.Post("/{jobId}/retry", h.RetryReviewJob)
		})

		r.Route("/scan-jobs", func(r chi.Router) {
			r.Get("/", h.ListScanJobs)
			r.Post("/", h.CreateScanJob)
			r.Get("/{jobId}", h.GetScanJob)
			r.Get("/{jobId}/summary", h.GetScanJobSummary)
		})
	})
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestSkuCRUD(t *testing.T) {
	h, _ := setupTestHandler(t)
	router := testRouter(h)

	rec := doRequest(t, router, http.MethodPost, "/api/skus", map[string]any{
		"sku_code": "WIDGET-01", "description": "Blue widget",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var sku model.Sku
	decodeBody(t, rec, &sku)
	assert.NotEmpty(t, sku.ID)
	assert.Equal(t, "WIDGET-01", sku.SkuCode)

	// Duplicate code conflicts.
	rec = doRequest(t, router, http.MethodPost, "/api/skus", map[string]any{"sku_code": "WIDGET-01"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/skus/"+sku.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPut, "/api/skus/"+sku.ID, map[string]any{"sku_code": "WIDGET-02"})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &sku)
	assert.Equal(t, "WIDGET-02", sku.SkuCode)

	rec = doRequest(t, router, http.MethodDelete, "/api/skus/"+sku.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/skus/"+sku.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSkuValidation(t *testing.T) {
	h, _ := setupTestHandler(t)
	router := testRouter(h)

	rec := doRequest(t, router, http.MethodPost, "/api/skus", map[string]any{"description": "no code"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChannelSkuAsinChangeViaAPI(t *testing.T) {
	h, _ := setupTestHandler(t)
	router := testRouter(h)

	rec := doRequest(t, router, http.MethodPost, "/api/channel-skus", map[string]any{
		"channel_sku_code": "CSK-1",
		"marketplace":      "de",
		"current_asin":     "B0AAAAAAA1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var cs model.ChannelSku
	decodeBody(t, rec, &cs)
	assert.Equal(t, "de", cs.Marketplace)

	rec = doRequest(t, router, http.MethodPut, "/api/channel-skus/"+cs.ID, map[string]any{
		"current_asin": "B0BBBBBBB2",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &cs)
	assert.Equal(t, "B0BBBBBBB2", cs.CurrentASIN)

	rec = doRequest(t, router, http.MethodGet, "/api/channel-skus/"+cs.ID+"/asin-history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []model.ChannelSkuAsinHistory
	decodeBody(t, rec, &history)
	// One row from creation, one from the ASIN change.
	assert.Len(t, history, 2)
}

func TestCreateCompetitorSchedule(t *testing.T) {
	h, _ := setupTestHandler(t)
	router := testRouter(h)

	rec := doRequest(t, router, http.MethodPost, "/api/competitors", map[string]any{
		"asin": "B0AAAAAAA1", "schedule": "daily",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var comp model.Competitor
	decodeBody(t, rec, &comp)
	assert.Equal(t, "com", comp.Marketplace)
	assert.True(t, comp.IsActive)
	// The first scheduled scrape waits one full interval.
	require.NotNil(t, comp.NextScrapeAt)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *comp.NextScrapeAt, time.Minute)

	rec = doRequest(t, router, http.MethodPost, "/api/competitors", map[string]any{
		"asin": "B0AAAAAAA2", "schedule": "hourly",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Same ASIN and marketplace conflicts.
	rec = doRequest(t, router, http.MethodPost, "/api/competitors", map[string]any{
		"asin": "B0AAAAAAA1", "schedule": "none",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateReviewJob(t *testing.T) {
	h, _ := setupTestHandler(t)
	router := testRouter(h)

	rec := doRequest(t, router, http.MethodPost, "/api/review-jobs", map[string]any{
		"asins":        []string{"B0AAAAAAA1", "B0AAAAAAA2", "B0AAAAAAA1"},
		"star_filters": []string{"one_star", "five_star"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var job model.ReviewJob
	decodeBody(t, rec, &job)
	assert.Equal(t, model.JobStatusQueued, job.Status)
	assert.Equal(t, "com", job.Marketplace)
	assert.Equal(t, 100, job.MaxReviews)
	// Duplicate ASINs collapse to one item.
	assert.Equal(t, 2, job.TotalAsins)

	rec = doRequest(t, router, http.MethodGet, "/api/review-jobs/"+job.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &job)
	assert.Len(t, job.Asins, 2)
}

func TestCreateReviewJobValidation(t *testing.T) {
	h, _ := setupTestHandler(t)
	router := testRouter(h)

	rec := doRequest(t, router, http.MethodPost, "/api/review-jobs", map[string]any{
		"asins": []string{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/review-jobs", map[string]any{
		"asins":        []string{"B0AAAAAAA1"},
		"star_filters": []string{"six_star"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelAndRetryReviewJob(t *testing.T) {
	h, s := setupTestHandler(t)
	router := testRouter(h)
	ctx := context.Background()

	job := &model.ReviewJob{Marketplace: "com", MaxReviews: 100}
	require.NoError(t, s.CreateReviewJob(ctx, job, []string{"B0AAAAAAA1"}))

	// Retrying a queued job is rejected.
	rec := doRequest(t, router, http.MethodPost, "/api/review-jobs/"+job.ID+"/retry", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/review-jobs/"+job.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cancelled model.ReviewJob
	decodeBody(t, rec, &cancelled)
	assert.Equal(t, model.JobStatusCancelled, cancelled.Status)

	// Cancelling again conflicts.
	rec = doRequest(t, router, http.MethodPost, "/api/review-jobs/"+job.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// All items were failed by the cancel, so a retry re-queues them.
	rec = doRequest(t, router, http.MethodPost, "/api/review-jobs/"+job.ID+"/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var retried model.ReviewJob
	decodeBody(t, rec, &retried)
	assert.Equal(t, model.JobStatusQueued, retried.Status)
}

func TestDeleteRunningJobRejected(t *testing.T) {
	h, s := setupTestHandler(t)
	router := testRouter(h)
	ctx := context.Background()

	job := &model.ReviewJob{Marketplace: "com", MaxReviews: 100}
	require.NoError(t, s.CreateReviewJob(ctx, job, []string{"B0AAAAAAA1"}))
	require.NoError(t, s.MarkReviewJobRunning(ctx, job.ID))

	rec := doRequest(t, router, http.MethodDelete, "/api/review-jobs/"+job.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateScanJobAllChannelSkus(t *testing.T) {
	h, s := setupTestHandler(t)
	router := testRouter(h)
	ctx := context.Background()

	require.NoError(t, s.CreateChannelSku(ctx, &model.ChannelSku{ChannelSkuCode: "CSK-1", Marketplace: "com", CurrentASIN: "B0AAAAAAA1"}))
	require.NoError(t, s.CreateChannelSku(ctx, &model.ChannelSku{ChannelSkuCode: "CSK-2", Marketplace: "com", CurrentASIN: "B0AAAAAAA2"}))
	require.NoError(t, s.CreateChannelSku(ctx, &model.ChannelSku{ChannelSkuCode: "CSK-3", Marketplace: "de", CurrentASIN: "B0AAAAAAA3"}))

	// Omitting channel_sku_ids scans the whole marketplace.
	rec := doRequest(t, router, http.MethodPost, "/api/scan-jobs", map[string]any{"marketplace": "com"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var job model.ScanJob
	decodeBody(t, rec, &job)
	assert.Equal(t, 2, job.TotalItems)

	rec = doRequest(t, router, http.MethodPost, "/api/scan-jobs", map[string]any{"marketplace": "fr"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanJobSummary(t *testing.T) {
	h, s := setupTestHandler(t)
	router := testRouter(h)
	ctx := context.Background()

	require.NoError(t, s.CreateChannelSku(ctx, &model.ChannelSku{ChannelSkuCode: "CSK-1", Marketplace: "com", CurrentASIN: "B0AAAAAAA1"}))
	require.NoError(t, s.CreateChannelSku(ctx, &model.ChannelSku{ChannelSkuCode: "CSK-2", Marketplace: "com", CurrentASIN: "B0AAAAAAA2"}))
	require.NoError(t, s.CreateChannelSku(ctx, &model.ChannelSku{ChannelSkuCode: "CSK-3", Marketplace: "com", CurrentASIN: "B0AAAAAAA3"}))

	rec := doRequest(t, router, http.MethodPost, "/api/scan-jobs", map[string]any{"marketplace": "com"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var job model.ScanJob
	decodeBody(t, rec, &job)

	items, err := s.PendingScanItems(ctx, job.ID, 0)
	require.NoError(t, err)
	require.Len(t, items, 3)

	rating1, rating2 := 4.0, 5.0
	count1, count2 := 100, 200
	changed := "B0CCCCCCC9"

	items[0].Status = model.ItemStatusCompleted
	items[0].Rating = &rating1
	items[0].ReviewCount = &count1
	items[0].ScrapedASIN = &items[0].ASIN
	require.NoError(t, s.UpdateScanItem(ctx, items[0]))

	items[1].Status = model.ItemStatusCompleted
	items[1].Rating = &rating2
	items[1].ReviewCount = &count2
	items[1].ScrapedASIN = &changed
	require.NoError(t, s.UpdateScanItem(ctx, items[1]))

	items[2].Status = model.ItemStatusFailed
	require.NoError(t, s.UpdateScanItem(ctx, items[2]))

	rec = doRequest(t, router, http.MethodGet, "/api/scan-jobs/"+job.ID+"/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary store.ScanJobSummary
	decodeBody(t, rec, &summary)

	assert.Equal(t, 3, summary.TotalItems)
	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Pending)
	require.NotNil(t, summary.AverageRating)
	assert.InDelta(t, 4.5, *summary.AverageRating, 0.001)
	assert.Equal(t, 300, summary.TotalReviews)
	assert.Equal(t, 1, summary.AsinChanges)

	rec = doRequest(t, router, http.MethodGet, "/api/scan-jobs/nope/summary", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListReviewJobsFilter(t *testing.T) {
	h, s := setupTestHandler(t)
	router := testRouter(h)
	ctx := context.Background()

	j1 := &model.ReviewJob{Marketplace: "com", MaxReviews: 100}
	require.NoError(t, s.CreateReviewJob(ctx, j1, []string{"B0AAAAAAA1"}))
	j2 := &model.ReviewJob{Marketplace: "com", MaxReviews: 100}
	require.NoError(t, s.CreateReviewJob(ctx, j2, []string{"B0AAAAAAA2"}))
	require.NoError(t, s.CancelReviewJob(ctx, j2.ID))

	rec := doRequest(t, router, http.MethodGet, "/api/review-jobs?status=queued", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []model.ReviewJob
	decodeBody(t, rec, &jobs)
	require.Len(t, jobs, 1)
	assert.Equal(t, j1.ID, jobs[0].ID)
}

func TestDashboardStats(t *testing.T) {
	h, s := setupTestHandler(t)
	router := testRouter(h)
	ctx := context.Background()

	job := &model.ReviewJob{Marketplace: "com", MaxReviews: 100}
	require.NoError(t, s.CreateReviewJob(ctx, job, []string{"B0AAAAAAA1"}))

	rec := doRequest(t, router, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats store.JobStats
	decodeBody(t, rec, &stats)
	assert.EqualValues(t, 1, stats.ReviewJobs["queued"])
}
