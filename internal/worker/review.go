package worker

import (
	"context"
	"errors"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/apify"
	"github.com/shelfwatch/shelfwatch/internal/model"
	"github.com/shelfwatch/shelfwatch/internal/store"
)

// processReviewJob scrapes reviews for every pending ASIN in the job, one
// ASIN at a time, syncing the job's counters after each. Items are
// re-queried and claimed per iteration so a cancel issued mid-run stops
// the loop at the next pick-up instead of resurrecting cancelled items.
func (w *Worker) processReviewJob(ctx context.Context, jobID string) error {
	job, err := w.store.GetReviewJob(ctx, jobID)
	if err != nil {
		return err
	}
	variants := job.StarFilterList()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		item, err := w.store.NextPendingJobAsin(ctx, jobID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		claimed, err := w.store.MarkJobAsinRunning(ctx, item.ID)
		if err != nil {
			return err
		}
		if !claimed {
			// The item left pending between the query and the claim.
			continue
		}
		item.Status = model.ItemStatusRunning

		w.processJobAsin(ctx, job, item, variants)
		if err := w.store.SyncReviewJobCounters(ctx, jobID); err != nil {
			return err
		}
	}
}

// processJobAsin runs one scrape per star filter variant, merges the
// results by review id, and marks the item completed. Provider errors on
// individual variants are tolerated, even on all of them; only an
// unexpected error fails the item.
func (w *Worker) processJobAsin(ctx context.Context, job *model.ReviewJob, item *model.JobAsin, variants []string) {
	logger := w.logger.With("job_id", job.ID, "asin", item.ASIN)

	var collected []apify.ReviewRecord

	for i, variant := range variants {
		if i > 0 {
			// Space out variant requests for the same ASIN.
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.ApifyVariantDelay):
			}
		}

		req := apify.ReviewRequest{
			ASIN:         item.ASIN,
			Marketplace:  job.Marketplace,
			StarFilter:   variant,
			MaxReviews:   job.MaxReviews,
			SortBy:       job.SortBy,
			ReviewerType: job.ReviewerType,
		}
		if job.KeywordFilter != nil {
			req.KeywordFilter = *job.KeywordFilter
		}
		records, err := w.provider.ScrapeReviews(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// A provider failure on one variant is tolerated; the merge
			// set just misses that variant's reviews. Anything else is
			// unexpected and fails the item.
			var apifyErr *apify.Error
			if errors.As(err, &apifyErr) {
				logger.Warn("variant scrape failed", "variant", variant, "error", err)
				continue
			}
			now := time.Now()
			msg := err.Error()
			item.Status = model.ItemStatusFailed
			item.ErrorMessage = &msg
			item.ScrapedAt = &now
			if updateErr := w.store.UpdateJobAsin(ctx, item); updateErr != nil {
				logger.Error("failed to record item failure", "error", updateErr)
			}
			return
		}
		collected = append(collected, records...)
	}

	now := time.Now()

	saved, title, err := w.results.SaveReviews(ctx, job, item.ASIN, collected)
	if err != nil {
		msg := err.Error()
		item.Status = model.ItemStatusFailed
		item.ErrorMessage = &msg
		item.ScrapedAt = &now
		if updateErr := w.store.UpdateJobAsin(ctx, item); updateErr != nil {
			logger.Error("failed to record item failure", "error", updateErr)
		}
		return
	}

	item.Status = model.ItemStatusCompleted
	item.ReviewCount = saved
	item.ProductTitle = title
	item.ErrorMessage = nil
	item.ScrapedAt = &now
	if err := w.store.UpdateJobAsin(ctx, item); err != nil {
		logger.Error("failed to record item completion", "error", err)
		return
	}

	if err := w.results.RecordAsinScrape(ctx, item.ASIN, job.ID, title, saved); err != nil {
		logger.Error("failed to record asin history", "error", err)
	}

	logger.Info("scraped reviews", "count", saved, "variants", len(variants))
}
