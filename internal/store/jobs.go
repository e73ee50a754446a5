package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/shelfwatch/shelfwatch/internal/model"
)

// ErrJobNotTerminal is returned when an operation requires the job to be
// finished (delete) or to have failures to retry.
var (
	ErrJobNotTerminal   = errors.New("job is still queued or running")
	ErrNothingToRetry   = errors.New("job has no failed items to retry")
	ErrJobNotCancelable = errors.New("job is already finished")
)

const timedOutMessage = "Job timed out"
const cancelledMessage = "Job cancelled"

// openItemStatuses are the non-terminal item states a job failure sweeps up.
var openItemStatuses = []model.ItemStatus{model.ItemStatusPending, model.ItemStatusRunning}

// --- Review jobs ---

// CreateReviewJob inserts a job and one JobAsin row per ASIN atomically.
func (s *Store) CreateReviewJob(ctx context.Context, job *model.ReviewJob, asins []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job.Status = model.JobStatusQueued
		job.TotalAsins = len(asins)
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		for _, asin := range asins {
			row := &model.JobAsin{JobID: job.ID, ASIN: asin, Status: model.ItemStatusPending}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetReviewJob(ctx context.Context, id string) (*model.ReviewJob, error) {
	var job model.ReviewJob
	if err := s.db.WithContext(ctx).Preload("Asins").First(&job, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

func (s *Store) ListReviewJobs(ctx context.Context, status model.JobStatus, limit, offset int) ([]*model.ReviewJob, error) {
	var jobs []*model.ReviewJob
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	err := q.Find(&jobs).Error
	return jobs, err
}

// NextQueuedReviewJob returns the oldest queued review job, or ErrNotFound.
func (s *Store) NextQueuedReviewJob(ctx context.Context) (*model.ReviewJob, error) {
	var job model.ReviewJob
	err := s.db.WithContext(ctx).
		Where("status = ?", model.JobStatusQueued).
		Order("created_at").
		First(&job).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

// MarkReviewJobRunning transitions a queued job to running and stamps
// started_at.
func (s *Store) MarkReviewJobRunning(ctx context.Context, jobID string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&model.ReviewJob{}).
		Where("id = ? AND status = ?", jobID, model.JobStatusQueued).
		Updates(map[string]interface{}{"status": model.JobStatusRunning, "started_at": now}).Error
}

func (s *Store) PendingJobAsins(ctx context.Context, jobID string) ([]*model.JobAsin, error) {
	var asins []*model.JobAsin
	err := s.db.WithContext(ctx).
		Where("job_id = ? AND status = ?", jobID, model.ItemStatusPending).
		Order("id").
		Find(&asins).Error
	return asins, err
}

// NextPendingJobAsin returns the job's oldest pending ASIN, or ErrNotFound
// when none remain. The worker re-queries per item so a cancel issued
// mid-run takes effect before the next pick-up.
func (s *Store) NextPendingJobAsin(ctx context.Context, jobID string) (*model.JobAsin, error) {
	var item model.JobAsin
	err := s.db.WithContext(ctx).
		Where("job_id = ? AND status = ?", jobID, model.ItemStatusPending).
		Order("id").
		First(&item).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

func (s *Store) UpdateJobAsin(ctx context.Context, a *model.JobAsin) error {
	return s.db.WithContext(ctx).Save(a).Error
}

// MarkJobAsinRunning transitions one pending ASIN to running before its
// scrape. Reports false when the item is no longer pending, which means a
// cancel or another writer got to it first.
func (s *Store) MarkJobAsinRunning(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.JobAsin{}).
		Where("id = ? AND status = ?", id, model.ItemStatusPending).
		Update("status", model.ItemStatusRunning)
	return res.RowsAffected > 0, res.Error
}

// SyncReviewJobCounters recounts completed/failed item totals and the
// review sum from the job_asins table so the cached counters never drift
// from the item rows.
func (s *Store) SyncReviewJobCounters(ctx context.Context, jobID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		completed, failed, err := countItems(tx, &model.JobAsin{}, jobID)
		if err != nil {
			return err
		}
		reviews, err := sumReviewCounts(tx, jobID)
		if err != nil {
			return err
		}
		return tx.Model(&model.ReviewJob{}).Where("id = ?", jobID).
			Updates(map[string]interface{}{
				"completed_asins": completed,
				"failed_asins":    failed,
				"total_reviews":   reviews,
			}).Error
	})
}

// SyncRunningReviewJobCounters resyncs counters for every running review job.
func (s *Store) SyncRunningReviewJobCounters(ctx context.Context) error {
	var ids []string
	err := s.db.WithContext(ctx).Model(&model.ReviewJob{}).
		Where("status = ?", model.JobStatusRunning).
		Pluck("id", &ids).Error
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.SyncReviewJobCounters(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// FinalizeReviewJob recounts item totals and derives the terminal status.
// A job that is no longer running (cancelled mid-flight) is left untouched.
func (s *Store) FinalizeReviewJob(ctx context.Context, jobID string) (*model.ReviewJob, error) {
	var job model.ReviewJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			return notFound(err)
		}
		if job.Status != model.JobStatusRunning {
			return nil
		}
		completed, failed, err := countItems(tx, &model.JobAsin{}, jobID)
		if err != nil {
			return err
		}
		reviews, err := sumReviewCounts(tx, jobID)
		if err != nil {
			return err
		}
		now := time.Now()
		job.CompletedAsins = completed
		job.FailedAsins = failed
		job.TotalReviews = reviews
		job.Status = model.FinalJobStatus(completed, failed)
		if job.Status == model.JobStatusFailed {
			msg := "All ASINs failed to process"
			job.ErrorMessage = &msg
		}
		job.CompletedAt = &now
		return tx.Save(&job).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// RetryReviewJob resets every failed ASIN back to pending and requeues the
// job. Returns ErrNothingToRetry when no items failed.
func (s *Store) RetryReviewJob(ctx context.Context, jobID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job model.ReviewJob
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			return notFound(err)
		}
		if !job.Status.Terminal() {
			return ErrJobNotTerminal
		}
		if job.FailedAsins == 0 {
			return ErrNothingToRetry
		}
		err := tx.Model(&model.JobAsin{}).
			Where("job_id = ? AND status = ?", jobID, model.ItemStatusFailed).
			Updates(map[string]interface{}{"status": model.ItemStatusPending, "error_message": nil}).Error
		if err != nil {
			return err
		}
		return tx.Model(&model.ReviewJob{}).Where("id = ?", jobID).
			Updates(map[string]interface{}{
				"status":        model.JobStatusQueued,
				"failed_asins":  0,
				"error_message": nil,
				"completed_at":  nil,
			}).Error
	})
}

// CancelReviewJob cancels a queued or running job and fails its pending
// items so the worker does not pick them up.
func (s *Store) CancelReviewJob(ctx context.Context, jobID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job model.ReviewJob
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			return notFound(err)
		}
		if job.Status.Terminal() {
			return ErrJobNotCancelable
		}
		err := tx.Model(&model.JobAsin{}).
			Where("job_id = ? AND status = ?", jobID, model.ItemStatusPending).
			Updates(map[string]interface{}{"status": model.ItemStatusFailed, "error_message": cancelledMessage}).Error
		if err != nil {
			return err
		}
		completed, failed, err := countItems(tx, &model.JobAsin{}, jobID)
		if err != nil {
			return err
		}
		now := time.Now()
		return tx.Model(&model.ReviewJob{}).Where("id = ?", jobID).
			Updates(map[string]interface{}{
				"status":          model.JobStatusCancelled,
				"completed_asins": completed,
				"failed_asins":    failed,
				"completed_at":    now,
			}).Error
	})
}

// DeleteReviewJob removes a terminal job with its items and reviews.
func (s *Store) DeleteReviewJob(ctx context.Context, jobID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job model.ReviewJob
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			return notFound(err)
		}
		if !job.Status.Terminal() {
			return ErrJobNotTerminal
		}
		if err := tx.Delete(&model.Review{}, "job_id = ?", jobID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&model.JobAsin{}, "job_id = ?", jobID).Error; err != nil {
			return err
		}
		return tx.Delete(&model.ReviewJob{}, "id = ?", jobID).Error
	})
}

// --- Scan jobs ---

func (s *Store) CreateScanJob(ctx context.Context, job *model.ScanJob, items []*model.ScanItem) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job.Status = model.JobStatusQueued
		job.TotalItems = len(items)
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		for _, item := range items {
			item.JobID = job.ID
			item.Status = model.ItemStatusPending
			if err := tx.Create(item).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetScanJob(ctx context.Context, id string) (*model.ScanJob, error) {
	var job model.ScanJob
	if err := s.db.WithContext(ctx).Preload("Items").First(&job, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

func (s *Store) ListScanJobs(ctx context.Context, status model.JobStatus, limit, offset int) ([]*model.ScanJob, error) {
	var jobs []*model.ScanJob
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	err := q.Find(&jobs).Error
	return jobs, err
}

func (s *Store) NextQueuedScanJob(ctx context.Context) (*model.ScanJob, error) {
	var job model.ScanJob
	err := s.db.WithContext(ctx).
		Where("status = ?", model.JobStatusQueued).
		Order("created_at").
		First(&job).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

func (s *Store) MarkScanJobRunning(ctx context.Context, jobID string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&model.ScanJob{}).
		Where("id = ? AND status = ?", jobID, model.JobStatusQueued).
		Updates(map[string]interface{}{"status": model.JobStatusRunning, "started_at": now}).Error
}

func (s *Store) PendingScanItems(ctx context.Context, jobID string, limit int) ([]*model.ScanItem, error) {
	var items []*model.ScanItem
	q := s.db.WithContext(ctx).
		Where("job_id = ? AND status = ?", jobID, model.ItemStatusPending).
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&items).Error
	return items, err
}

func (s *Store) UpdateScanItem(ctx context.Context, item *model.ScanItem) error {
	return s.db.WithContext(ctx).Save(item).Error
}

// MarkScanItemsRunning transitions a batch of items to running before the
// provider call that covers them.
func (s *Store) MarkScanItemsRunning(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&model.ScanItem{}).
		Where("id IN ?", ids).Update("status", model.ItemStatusRunning).Error
}

func (s *Store) FinalizeScanJob(ctx context.Context, jobID string) (*model.ScanJob, error) {
	var job model.ScanJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			return notFound(err)
		}
		if job.Status != model.JobStatusRunning {
			return nil
		}
		completed, failed, err := countItems(tx, &model.ScanItem{}, jobID)
		if err != nil {
			return err
		}
		now := time.Now()
		job.CompletedItems = completed
		job.FailedItems = failed
		job.Status = model.FinalJobStatus(completed, failed)
		if job.Status == model.JobStatusFailed {
			msg := "All items failed to process"
			job.ErrorMessage = &msg
		}
		job.CompletedAt = &now
		return tx.Save(&job).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *Store) SyncScanJobCounters(ctx context.Context, jobID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		completed, failed, err := countItems(tx, &model.ScanItem{}, jobID)
		if err != nil {
			return err
		}
		return tx.Model(&model.ScanJob{}).Where("id = ?", jobID).
			Updates(map[string]interface{}{"completed_items": completed, "failed_items": failed}).Error
	})
}

// ScanJobSummary aggregates a scan job's item outcomes. AverageRating is
// nil until at least one item carries a scraped rating. AsinChanges counts
// items whose product page resolved to a different ASIN than requested.
type ScanJobSummary struct {
	TotalItems    int      `json:"total_items"`
	Completed     int      `json:"completed"`
	Failed        int      `json:"failed"`
	Pending       int      `json:"pending"`
	Running       int      `json:"running"`
	AverageRating *float64 `json:"average_rating"`
	TotalReviews  int      `json:"total_reviews"`
	AsinChanges   int      `json:"asin_changes"`
}

func (s *Store) GetScanJobSummary(ctx context.Context, jobID string) (*ScanJobSummary, error) {
	db := s.db.WithContext(ctx)
	if err := db.First(&model.ScanJob{}, "id = ?", jobID).Error; err != nil {
		return nil, notFound(err)
	}

	summary := &ScanJobSummary{}

	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := db.Model(&model.ScanItem{}).
		Where("job_id = ?", jobID).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		summary.TotalItems += int(r.Count)
		switch model.ItemStatus(r.Status) {
		case model.ItemStatusCompleted:
			summary.Completed = int(r.Count)
		case model.ItemStatusFailed:
			summary.Failed = int(r.Count)
		case model.ItemStatusPending:
			summary.Pending = int(r.Count)
		case model.ItemStatusRunning:
			summary.Running = int(r.Count)
		}
	}

	err = db.Model(&model.ScanItem{}).
		Where("job_id = ? AND rating IS NOT NULL", jobID).
		Select("AVG(rating)").
		Scan(&summary.AverageRating).Error
	if err != nil {
		return nil, err
	}

	var reviews int64
	err = db.Model(&model.ScanItem{}).
		Where("job_id = ?", jobID).
		Select("COALESCE(SUM(review_count), 0)").
		Scan(&reviews).Error
	if err != nil {
		return nil, err
	}
	summary.TotalReviews = int(reviews)

	var changes int64
	err = db.Model(&model.ScanItem{}).
		Where("job_id = ? AND scraped_asin IS NOT NULL AND scraped_asin <> asin", jobID).
		Count(&changes).Error
	if err != nil {
		return nil, err
	}
	summary.AsinChanges = int(changes)

	return summary, nil
}

func (s *Store) RetryScanJob(ctx context.Context, jobID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job model.ScanJob
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			return notFound(err)
		}
		if !job.Status.Terminal() {
			return ErrJobNotTerminal
		}
		if job.FailedItems == 0 {
			return ErrNothingToRetry
		}
		err := tx.Model(&model.ScanItem{}).
			Where("job_id = ? AND status = ?", jobID, model.ItemStatusFailed).
			Updates(map[string]interface{}{"status": model.ItemStatusPending, "error_message": nil}).Error
		if err != nil {
			return err
		}
		return tx.Model(&model.ScanJob{}).Where("id = ?", jobID).
			Updates(map[string]interface{}{
				"status":        model.JobStatusQueued,
				"failed_items":  0,
				"error_message": nil,
				"completed_at":  nil,
			}).Error
	})
}

func (s *Store) CancelScanJob(ctx context.Context, jobID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job model.ScanJob
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			return notFound(err)
		}
		if job.Status.Terminal() {
			return ErrJobNotCancelable
		}
		err := tx.Model(&model.ScanItem{}).
			Where("job_id = ? AND status = ?", jobID, model.ItemStatusPending).
			Updates(map[string]interface{}{"status": model.ItemStatusFailed, "error_message": cancelledMessage}).Error
		if err != nil {
			return err
		}
		completed, failed, err := countItems(tx, &model.ScanItem{}, jobID)
		if err != nil {
			return err
		}
		now := time.Now()
		return tx.Model(&model.ScanJob{}).Where("id = ?", jobID).
			Updates(map[string]interface{}{
				"status":          model.JobStatusCancelled,
				"completed_items": completed,
				"failed_items":    failed,
				"completed_at":    now,
			}).Error
	})
}

func (s *Store) DeleteScanJob(ctx context.Context, jobID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job model.ScanJob
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			return notFound(err)
		}
		if !job.Status.Terminal() {
			return ErrJobNotTerminal
		}
		if err := tx.Delete(&model.ScanItem{}, "job_id = ?", jobID).Error; err != nil {
			return err
		}
		return tx.Delete(&model.ScanJob{}, "id = ?", jobID).Error
	})
}

// --- Competitor jobs ---

func (s *Store) CreateCompetitorJob(ctx context.Context, job *model.CompetitorJob, items []*model.CompetitorItem) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job.Status = model.JobStatusQueued
		job.TotalItems = len(items)
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		for _, item := range items {
			item.JobID = job.ID
			item.Status = model.ItemStatusPending
			if err := tx.Create(item).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetCompetitorJob(ctx context.Context, id string) (*model.CompetitorJob, error) {
	var job model.CompetitorJob
	if err := s.db.WithContext(ctx).Preload("Items").First(&job, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

func (s *Store) ListCompetitorJobs(ctx context.Context, status model.JobStatus, limit, offset int) ([]*model.CompetitorJob, error) {
	var jobs []*model.CompetitorJob
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	err := q.Find(&jobs).Error
	return jobs, err
}

func (s *Store) NextQueuedCompetitorJob(ctx context.Context) (*model.CompetitorJob, error) {
	var job model.CompetitorJob
	err := s.db.WithContext(ctx).
		Where("status = ?", model.JobStatusQueued).
		Order("created_at").
		First(&job).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

func (s *Store) MarkCompetitorJobRunning(ctx context.Context, jobID string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&model.CompetitorJob{}).
		Where("id = ? AND status = ?", jobID, model.JobStatusQueued).
		Updates(map[string]interface{}{"status": model.JobStatusRunning, "started_at": now}).Error
}

func (s *Store) PendingCompetitorItems(ctx context.Context, jobID string, limit int) ([]*model.CompetitorItem, error) {
	var items []*model.CompetitorItem
	q := s.db.WithContext(ctx).
		Where("job_id = ? AND status = ?", jobID, model.ItemStatusPending).
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&items).Error
	return items, err
}

func (s *Store) UpdateCompetitorItem(ctx context.Context, item *model.CompetitorItem) error {
	return s.db.WithContext(ctx).Save(item).Error
}

// MarkCompetitorItemsRunning transitions a batch of items to running before
// the provider call that covers them.
func (s *Store) MarkCompetitorItemsRunning(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&model.CompetitorItem{}).
		Where("id IN ?", ids).Update("status", model.ItemStatusRunning).Error
}

func (s *Store) FinalizeCompetitorJob(ctx context.Context, jobID string) (*model.CompetitorJob, error) {
	var job model.CompetitorJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			return notFound(err)
		}
		if job.Status != model.JobStatusRunning {
			return nil
		}
		completed, failed, err := countItems(tx, &model.CompetitorItem{}, jobID)
		if err != nil {
			return err
		}
		now := time.Now()
		job.CompletedItems = completed
		job.FailedItems = failed
		job.Status = model.FinalJobStatus(completed, failed)
		if job.Status == model.JobStatusFailed {
			msg := "All items failed to process"
			job.ErrorMessage = &msg
		}
		job.CompletedAt = &now
		return tx.Save(&job).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *Store) SyncCompetitorJobCounters(ctx context.Context, jobID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		completed, failed, err := countItems(tx, &model.CompetitorItem{}, jobID)
		if err != nil {
			return err
		}
		return tx.Model(&model.CompetitorJob{}).Where("id = ?", jobID).
			Updates(map[string]interface{}{"completed_items": completed, "failed_items": failed}).Error
	})
}

func (s *Store) RetryCompetitorJob(ctx context.Context, jobID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job model.CompetitorJob
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			return notFound(err)
		}
		if !job.Status.Terminal() {
			return ErrJobNotTerminal
		}
		if job.FailedItems == 0 {
			return ErrNothingToRetry
		}
		err := tx.Model(&model.CompetitorItem{}).
			Where("job_id = ? AND status = ?", jobID, model.ItemStatusFailed).
			Updates(map[string]interface{}{"status": model.ItemStatusPending, "error_message": nil}).Error
		if err != nil {
			return err
		}
		return tx.Model(&model.CompetitorJob{}).Where("id = ?", jobID).
			Updates(map[string]interface{}{
				"status":        model.JobStatusQueued,
				"failed_items":  0,
				"error_message": nil,
				"completed_at":  nil,
			}).Error
	})
}

func (s *Store) CancelCompetitorJob(ctx context.Context, jobID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job model.CompetitorJob
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			return notFound(err)
		}
		if job.Status.Terminal() {
			return ErrJobNotCancelable
		}
		err := tx.Model(&model.CompetitorItem{}).
			Where("job_id = ? AND status = ?", jobID, model.ItemStatusPending).
			Updates(map[string]interface{}{"status": model.ItemStatusFailed, "error_message": cancelledMessage}).Error
		if err != nil {
			return err
		}
		completed, failed, err := countItems(tx, &model.CompetitorItem{}, jobID)
		if err != nil {
			return err
		}
		now := time.Now()
		return tx.Model(&model.CompetitorJob{}).Where("id = ?", jobID).
			Updates(map[string]interface{}{
				"status":          model.JobStatusCancelled,
				"completed_items": completed,
				"failed_items":    failed,
				"completed_at":    now,
			}).Error
	})
}

func (s *Store) DeleteCompetitorJob(ctx context.Context, jobID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job model.CompetitorJob
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			return notFound(err)
		}
		if !job.Status.Terminal() {
			return ErrJobNotTerminal
		}
		if err := tx.Delete(&model.CompetitorItem{}, "job_id = ?", jobID).Error; err != nil {
			return err
		}
		return tx.Delete(&model.CompetitorJob{}, "id = ?", jobID).Error
	})
}

// HasOpenCompetitorItem reports whether the competitor already has a pending
// item in a queued or running competitor job. The scheduler uses this to
// avoid enqueueing a due competitor twice while it waits its turn.
func (s *Store) HasOpenCompetitorItem(ctx context.Context, competitorID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.CompetitorItem{}).
		Joins("JOIN competitor_jobs ON competitor_jobs.id = competitor_items.job_id").
		Where("competitor_items.competitor_id = ? AND competitor_items.status IN ?", competitorID,
			[]model.ItemStatus{model.ItemStatusPending, model.ItemStatusRunning}).
		Where("competitor_jobs.status IN ?", []model.JobStatus{model.JobStatusQueued, model.JobStatusRunning}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// --- Job failure and stuck job recovery ---

// FailReviewJob marks a review job failed, failing any ASINs not yet in a
// terminal state with the given message.
func (s *Store) FailReviewJob(ctx context.Context, jobID, message string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.JobAsin{}).
			Where("job_id = ? AND status IN ?", jobID, openItemStatuses).
			Updates(map[string]interface{}{"status": model.ItemStatusFailed, "error_message": message}).Error; err != nil {
			return err
		}
		completed, failed, err := countItems(tx, &model.JobAsin{}, jobID)
		if err != nil {
			return err
		}
		now := time.Now()
		return tx.Model(&model.ReviewJob{}).Where("id = ?", jobID).
			Updates(map[string]interface{}{
				"status":          model.JobStatusFailed,
				"completed_asins": completed,
				"failed_asins":    failed,
				"error_message":   message,
				"completed_at":    now,
			}).Error
	})
}

// FailScanJob marks a scan job failed, failing its pending items.
func (s *Store) FailScanJob(ctx context.Context, jobID, message string) error {
	return s.failItemJob(ctx, &model.ScanJob{}, &model.ScanItem{}, jobID, message)
}

// FailCompetitorJob marks a competitor job failed, failing its pending items.
func (s *Store) FailCompetitorJob(ctx context.Context, jobID, message string) error {
	return s.failItemJob(ctx, &model.CompetitorJob{}, &model.CompetitorItem{}, jobID, message)
}

// FailStuckJobs fails running jobs across all three families whose
// started_at is older than the threshold, marking their pending items
// failed. Returns the number of jobs recovered.
func (s *Store) FailStuckJobs(ctx context.Context, threshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-threshold)
	recovered := 0

	var reviewIDs []string
	if err := s.db.WithContext(ctx).Model(&model.ReviewJob{}).
		Where("status = ? AND started_at < ?", model.JobStatusRunning, cutoff).
		Pluck("id", &reviewIDs).Error; err != nil {
		return 0, err
	}
	for _, id := range reviewIDs {
		if err := s.FailReviewJob(ctx, id, timedOutMessage); err != nil {
			return recovered, err
		}
		recovered++
	}

	var scanIDs []string
	if err := s.db.WithContext(ctx).Model(&model.ScanJob{}).
		Where("status = ? AND started_at < ?", model.JobStatusRunning, cutoff).
		Pluck("id", &scanIDs).Error; err != nil {
		return recovered, err
	}
	for _, id := range scanIDs {
		if err := s.FailScanJob(ctx, id, timedOutMessage); err != nil {
			return recovered, err
		}
		recovered++
	}

	var compIDs []string
	if err := s.db.WithContext(ctx).Model(&model.CompetitorJob{}).
		Where("status = ? AND started_at < ?", model.JobStatusRunning, cutoff).
		Pluck("id", &compIDs).Error; err != nil {
		return recovered, err
	}
	for _, id := range compIDs {
		if err := s.FailCompetitorJob(ctx, id, timedOutMessage); err != nil {
			return recovered, err
		}
		recovered++
	}

	return recovered, nil
}

func (s *Store) failItemJob(ctx context.Context, jobModel, itemModel interface{}, jobID, message string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(itemModel).
			Where("job_id = ? AND status IN ?", jobID, openItemStatuses).
			Updates(map[string]interface{}{"status": model.ItemStatusFailed, "error_message": message}).Error; err != nil {
			return err
		}
		completed, failed, err := countItems(tx, itemModel, jobID)
		if err != nil {
			return err
		}
		now := time.Now()
		return tx.Model(jobModel).Where("id = ?", jobID).
			Updates(map[string]interface{}{
				"status":          model.JobStatusFailed,
				"completed_items": completed,
				"failed_items":    failed,
				"error_message":   message,
				"completed_at":    now,
			}).Error
	})
}

// sumReviewCounts totals the saved review counts across a job's ASINs.
func sumReviewCounts(tx *gorm.DB, jobID string) (int, error) {
	var total int64
	err := tx.Model(&model.JobAsin{}).
		Where("job_id = ?", jobID).
		Select("COALESCE(SUM(review_count), 0)").
		Scan(&total).Error
	return int(total), err
}

// countItems tallies completed and failed rows for a job's item table.
func countItems(tx *gorm.DB, itemModel interface{}, jobID string) (completed, failed int, err error) {
	var c, f int64
	if err = tx.Model(itemModel).
		Where("job_id = ? AND status = ?", jobID, model.ItemStatusCompleted).
		Count(&c).Error; err != nil {
		return 0, 0, err
	}
	if err = tx.Model(itemModel).
		Where("job_id = ? AND status = ?", jobID, model.ItemStatusFailed).
		Count(&f).Error; err != nil {
		return 0, 0, err
	}
	return int(c), int(f), nil
}

// --- Dashboard ---

// JobStats summarizes job counts per family for the dashboard endpoint.
type JobStats struct {
	ReviewJobs     map[string]int64 `json:"review_jobs"`
	ScanJobs       map[string]int64 `json:"scan_jobs"`
	CompetitorJobs map[string]int64 `json:"competitor_jobs"`
	TotalReviews   int64            `json:"total_reviews"`
	Competitors    int64            `json:"competitors"`
	ChannelSkus    int64            `json:"channel_skus"`
}

func (s *Store) GetJobStats(ctx context.Context) (*JobStats, error) {
	stats := &JobStats{
		ReviewJobs:     map[string]int64{},
		ScanJobs:       map[string]int64{},
		CompetitorJobs: map[string]int64{},
	}

	type row struct {
		Status string
		Count  int64
	}
	for _, q := range []struct {
		m    interface{}
		dest map[string]int64
	}{
		{&model.ReviewJob{}, stats.ReviewJobs},
		{&model.ScanJob{}, stats.ScanJobs},
		{&model.CompetitorJob{}, stats.CompetitorJobs},
	} {
		var rows []row
		err := s.db.WithContext(ctx).Model(q.m).
			Select("status, count(*) as count").
			Group("status").
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("count jobs: %w", err)
		}
		for _, r := range rows {
			q.dest[r.Status] = r.Count
		}
	}

	if err := s.db.WithContext(ctx).Model(&model.Review{}).Count(&stats.TotalReviews).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&model.Competitor{}).Count(&stats.Competitors).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&model.ChannelSku{}).Count(&stats.ChannelSkus).Error; err != nil {
		return nil, err
	}
	return stats, nil
}
