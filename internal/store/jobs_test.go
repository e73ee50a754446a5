package store

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shelfwatch/shelfwatch/internal/model"
)

// setupTestStore creates an in-memory SQLite database for testing
func setupTestStore(t *testing.T) *Store {
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

	return New(db)
}

func createReviewJob(t *testing.T, s *Store, createdAt time.Time, asins ...string) *model.ReviewJob {
	t.Helper()
	job := &model.ReviewJob{Marketplace: "com", MaxReviews: 100, CreatedAt: createdAt}
	require.NoError(t, s.CreateReviewJob(context.Background(), job, asins))
	return job
}

func TestCreateReviewJob(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	job := createReviewJob(t, s, time.Now(), "B0AAAAAAA1", "B0AAAAAAA2")
	assert.Equal(t, model.JobStatusQueued, job.Status)
	assert.Equal(t, 2, job.TotalAsins)

	loaded, err := s.GetReviewJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Asins, 2)
	for _, a := range loaded.Asins {
		assert.Equal(t, model.ItemStatusPending, a.Status)
	}
}

func TestNextQueuedReviewJobFIFO(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	older := createReviewJob(t, s, time.Now().Add(-2*time.Hour), "B0AAAAAAA1")
	createReviewJob(t, s, time.Now().Add(-1*time.Hour), "B0AAAAAAA2")

	next, err := s.NextQueuedReviewJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, older.ID, next.ID)

	require.NoError(t, s.MarkReviewJobRunning(ctx, older.ID))

	next, err = s.NextQueuedReviewJob(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, older.ID, next.ID)

	running, err := s.GetReviewJob(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, running.Status)
	assert.NotNil(t, running.StartedAt)
}

func TestNextQueuedReviewJobEmpty(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.NextQueuedReviewJob(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func completeAsin(t *testing.T, s *Store, a *model.JobAsin, status model.ItemStatus) {
	t.Helper()
	a.Status = status
	if status == model.ItemStatusFailed {
		msg := "boom"
		a.ErrorMessage = &msg
	}
	require.NoError(t, s.UpdateJobAsin(context.Background(), a))
}

func TestFinalizeReviewJob(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	job := createReviewJob(t, s, time.Now(), "B0AAAAAAA1", "B0AAAAAAA2", "B0AAAAAAA3")
	require.NoError(t, s.MarkReviewJobRunning(ctx, job.ID))

	asins, err := s.PendingJobAsins(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, asins, 3)

	completeAsin(t, s, asins[0], model.ItemStatusCompleted)
	completeAsin(t, s, asins[1], model.ItemStatusCompleted)
	completeAsin(t, s, asins[2], model.ItemStatusFailed)

	final, err := s.FinalizeReviewJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPartial, final.Status)
	assert.Equal(t, 2, final.CompletedAsins)
	assert.Equal(t, 1, final.FailedAsins)
	assert.NotNil(t, final.CompletedAt)
}

func TestMarkJobAsinRunningClaimsPendingOnly(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	job := createReviewJob(t, s, time.Now(), "B0AAAAAAA1", "B0AAAAAAA2")

	item, err := s.NextPendingJobAsin(ctx, job.ID)
	require.NoError(t, err)

	claimed, err := s.MarkJobAsinRunning(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	// A second claim loses because the item already left pending.
	claimed, err = s.MarkJobAsinRunning(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	// The running item no longer surfaces as next pending.
	next, err := s.NextPendingJobAsin(ctx, job.ID)
	require.NoError(t, err)
	assert.NotEqual(t, item.ID, next.ID)

	completeAsin(t, s, next, model.ItemStatusCompleted)
	completeAsin(t, s, item, model.ItemStatusCompleted)

	_, err = s.NextPendingJobAsin(ctx, job.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinalizeSkipsCancelledJob(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	job := createReviewJob(t, s, time.Now(), "B0AAAAAAA1")
	require.NoError(t, s.MarkReviewJobRunning(ctx, job.ID))
	require.NoError(t, s.CancelReviewJob(ctx, job.ID))

	_, err := s.FinalizeReviewJob(ctx, job.ID)
	require.NoError(t, err)

	loaded, err := s.GetReviewJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, loaded.Status)
}

func TestCancelReviewJob(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	job := createReviewJob(t, s, time.Now(), "B0AAAAAAA1", "B0AAAAAAA2")
	require.NoError(t, s.CancelReviewJob(ctx, job.ID))

	loaded, err := s.GetReviewJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, loaded.Status)
	for _, a := range loaded.Asins {
		assert.Equal(t, model.ItemStatusFailed, a.Status)
		require.NotNil(t, a.ErrorMessage)
		assert.Equal(t, "Job cancelled", *a.ErrorMessage)
	}

	err = s.CancelReviewJob(ctx, job.ID)
	assert.ErrorIs(t, err, ErrJobNotCancelable)
}

func TestRetryReviewJob(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	job := createReviewJob(t, s, time.Now(), "B0AAAAAAA1", "B0AAAAAAA2")
	require.NoError(t, s.MarkReviewJobRunning(ctx, job.ID))

	asins, err := s.PendingJobAsins(ctx, job.ID)
	require.NoError(t, err)
	completeAsin(t, s, asins[0], model.ItemStatusCompleted)
	completeAsin(t, s, asins[1], model.ItemStatusFailed)

	_, err = s.FinalizeReviewJob(ctx, job.ID)
	require.NoError(t, err)

	require.NoError(t, s.RetryReviewJob(ctx, job.ID))

	loaded, err := s.GetReviewJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, loaded.Status)
	assert.Equal(t, 0, loaded.FailedAsins)
	assert.Equal(t, 1, loaded.CompletedAsins)
	assert.Nil(t, loaded.CompletedAt)

	pending, err := s.PendingJobAsins(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Nil(t, pending[0].ErrorMessage)
}

func TestRetryReviewJobGuards(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	running := createReviewJob(t, s, time.Now(), "B0AAAAAAA1")
	require.NoError(t, s.MarkReviewJobRunning(ctx, running.ID))
	assert.ErrorIs(t, s.RetryReviewJob(ctx, running.ID), ErrJobNotTerminal)

	clean := createReviewJob(t, s, time.Now(), "B0AAAAAAA2")
	require.NoError(t, s.MarkReviewJobRunning(ctx, clean.ID))
	asins, err := s.PendingJobAsins(ctx, clean.ID)
	require.NoError(t, err)
	completeAsin(t, s, asins[0], model.ItemStatusCompleted)
	_, err = s.FinalizeReviewJob(ctx, clean.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, s.RetryReviewJob(ctx, clean.ID), ErrNothingToRetry)
}

func TestDeleteReviewJob(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	job := createReviewJob(t, s, time.Now(), "B0AAAAAAA1")
	assert.ErrorIs(t, s.DeleteReviewJob(ctx, job.ID), ErrJobNotTerminal)

	require.NoError(t, s.CancelReviewJob(ctx, job.ID))
	require.NoError(t, s.CreateReviews(ctx, []*model.Review{
		{JobID: job.ID, ASIN: "B0AAAAAAA1", ReviewID: "R1"},
	}))

	require.NoError(t, s.DeleteReviewJob(ctx, job.ID))

	_, err := s.GetReviewJob(ctx, job.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	reviews, err := s.ListReviews(ctx, job.ID, "")
	require.NoError(t, err)
	assert.Empty(t, reviews)
}

func TestFailStuckJobs(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	job := createReviewJob(t, s, time.Now(), "B0AAAAAAA1", "B0AAAAAAA2")
	require.NoError(t, s.MarkReviewJobRunning(ctx, job.ID))

	// Backdate started_at past the threshold.
	old := time.Now().Add(-45 * time.Minute)
	require.NoError(t, s.DB().Model(&model.ReviewJob{}).
		Where("id = ?", job.ID).Update("started_at", old).Error)

	recovered, err := s.FailStuckJobs(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	loaded, err := s.GetReviewJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, loaded.Status)
	require.NotNil(t, loaded.ErrorMessage)
	assert.Equal(t, "Job timed out", *loaded.ErrorMessage)
	for _, a := range loaded.Asins {
		assert.Equal(t, model.ItemStatusFailed, a.Status)
	}

	// Second sweep finds nothing.
	recovered, err = s.FailStuckJobs(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)
}

func TestFailStuckJobsLeavesFreshJobs(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	job := createReviewJob(t, s, time.Now(), "B0AAAAAAA1")
	require.NoError(t, s.MarkReviewJobRunning(ctx, job.ID))

	recovered, err := s.FailStuckJobs(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)

	loaded, err := s.GetReviewJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, loaded.Status)
}

func TestSyncReviewJobCounters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	job := createReviewJob(t, s, time.Now(), "B0AAAAAAA1", "B0AAAAAAA2")
	require.NoError(t, s.MarkReviewJobRunning(ctx, job.ID))

	asins, err := s.PendingJobAsins(ctx, job.ID)
	require.NoError(t, err)
	completeAsin(t, s, asins[0], model.ItemStatusCompleted)

	require.NoError(t, s.SyncRunningReviewJobCounters(ctx))

	loaded, err := s.GetReviewJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.CompletedAsins)
	assert.Equal(t, 0, loaded.FailedAsins)
}

func TestScanJobLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	cs := &model.ChannelSku{ChannelSkuCode: "SKU-1", Marketplace: "com", CurrentASIN: "B0AAAAAAA1"}
	require.NoError(t, s.CreateChannelSku(ctx, cs))

	job := &model.ScanJob{Marketplace: "com"}
	items := []*model.ScanItem{{ChannelSkuID: cs.ID, ASIN: cs.CurrentASIN}}
	require.NoError(t, s.CreateScanJob(ctx, job, items))
	assert.Equal(t, 1, job.TotalItems)

	next, err := s.NextQueuedScanJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, next.ID)

	require.NoError(t, s.MarkScanJobRunning(ctx, job.ID))

	pending, err := s.PendingScanItems(ctx, job.ID, 50)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	pending[0].Status = model.ItemStatusCompleted
	require.NoError(t, s.UpdateScanItem(ctx, pending[0]))

	final, err := s.FinalizeScanJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, final.Status)
	assert.Equal(t, 1, final.CompletedItems)
}

func TestCompetitorJobLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	comp := &model.Competitor{ASIN: "B0AAAAAAA1", Marketplace: "com", Schedule: string(model.ScheduleNone), IsActive: true}
	require.NoError(t, s.CreateCompetitor(ctx, comp))

	job := &model.CompetitorJob{Marketplace: "com", JobType: model.CompetitorJobManual}
	items := []*model.CompetitorItem{{CompetitorID: comp.ID, ASIN: comp.ASIN}}
	require.NoError(t, s.CreateCompetitorJob(ctx, job, items))

	require.NoError(t, s.MarkCompetitorJobRunning(ctx, job.ID))

	pending, err := s.PendingCompetitorItems(ctx, job.ID, 50)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	msg := "boom"
	pending[0].Status = model.ItemStatusFailed
	pending[0].ErrorMessage = &msg
	require.NoError(t, s.UpdateCompetitorItem(ctx, pending[0]))

	final, err := s.FinalizeCompetitorJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, final.Status)
	assert.Equal(t, 1, final.FailedItems)
}

func TestHasOpenCompetitorItem(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	comp := &model.Competitor{ASIN: "B0AAAAAAA1", Marketplace: "com", Schedule: string(model.ScheduleDaily), IsActive: true}
	require.NoError(t, s.CreateCompetitor(ctx, comp))

	open, err := s.HasOpenCompetitorItem(ctx, comp.ID)
	require.NoError(t, err)
	assert.False(t, open)

	job := &model.CompetitorJob{Marketplace: "com", JobType: model.CompetitorJobScheduled}
	require.NoError(t, s.CreateCompetitorJob(ctx, job, []*model.CompetitorItem{{CompetitorID: comp.ID, ASIN: comp.ASIN}}))

	open, err = s.HasOpenCompetitorItem(ctx, comp.ID)
	require.NoError(t, err)
	assert.True(t, open)

	require.NoError(t, s.CancelCompetitorJob(ctx, job.ID))

	open, err = s.HasOpenCompetitorItem(ctx, comp.ID)
	require.NoError(t, err)
	assert.False(t, open)
}

func TestDueCompetitors(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	due := &model.Competitor{ASIN: "B0AAAAAAA1", Marketplace: "com", Schedule: string(model.ScheduleDaily), IsActive: true, NextScrapeAt: &past}
	notYet := &model.Competitor{ASIN: "B0AAAAAAA2", Marketplace: "com", Schedule: string(model.ScheduleDaily), IsActive: true, NextScrapeAt: &future}
	inactive := &model.Competitor{ASIN: "B0AAAAAAA3", Marketplace: "com", Schedule: string(model.ScheduleDaily), IsActive: false, NextScrapeAt: &past}
	unscheduled := &model.Competitor{ASIN: "B0AAAAAAA4", Marketplace: "com", Schedule: string(model.ScheduleNone), IsActive: true}
	for _, c := range []*model.Competitor{due, notYet, inactive, unscheduled} {
		require.NoError(t, s.CreateCompetitor(ctx, c))
	}

	found, err := s.DueCompetitors(ctx, now)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, due.ID, found[0].ID)
}

func TestUpsertCompetitorData(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	comp := &model.Competitor{ASIN: "B0AAAAAAA1", Marketplace: "com", Schedule: string(model.ScheduleNone), IsActive: true}
	require.NoError(t, s.CreateCompetitor(ctx, comp))

	price1 := 9.99
	require.NoError(t, s.UpsertCompetitorData(ctx, &model.CompetitorData{
		CompetitorID: comp.ID, Price: &price1, ScrapedAt: time.Now(),
	}))

	price2 := 12.49
	require.NoError(t, s.UpsertCompetitorData(ctx, &model.CompetitorData{
		CompetitorID: comp.ID, Price: &price2, ScrapedAt: time.Now(),
	}))

	loaded, err := s.GetCompetitor(ctx, comp.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.Data)
	require.NotNil(t, loaded.Data.Price)
	assert.Equal(t, 12.49, *loaded.Data.Price)

	var count int64
	require.NoError(t, s.DB().Model(&model.CompetitorData{}).Where("competitor_id = ?", comp.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGetJobStats(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	createReviewJob(t, s, time.Now(), "B0AAAAAAA1")
	job := createReviewJob(t, s, time.Now(), "B0AAAAAAA2")
	require.NoError(t, s.CancelReviewJob(ctx, job.ID))

	stats, err := s.GetJobStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ReviewJobs["queued"])
	assert.Equal(t, int64(1), stats.ReviewJobs["cancelled"])
}
