package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/apify"
	"github.com/shelfwatch/shelfwatch/internal/model"
	"github.com/shelfwatch/shelfwatch/internal/store"
)

// processCompetitorJob scrapes product details for the job's competitors in
// batches, mirroring the scan job flow but writing competitor data and
// price history instead of channel SKU metrics.
func (w *Worker) processCompetitorJob(ctx context.Context, jobID string) error {
	job, err := w.store.GetCompetitorJob(ctx, jobID)
	if err != nil {
		return err
	}

	first := true
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		items, err := w.store.PendingCompetitorItems(ctx, jobID, w.cfg.ScrapeBatchSize)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		if !first {
			// Space out successive batch runs.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.ApifyBatchDelay):
			}
		}
		first = false

		asins := make([]string, 0, len(items))
		ids := make([]string, 0, len(items))
		for _, item := range items {
			asins = append(asins, item.ASIN)
			ids = append(ids, item.ID)
		}
		if err := w.store.MarkCompetitorItemsRunning(ctx, ids); err != nil {
			return err
		}
		for _, item := range items {
			item.Status = model.ItemStatusRunning
		}

		records, err := w.provider.ScrapeProducts(ctx, apify.ProductRequest{
			ASINs:       asins,
			Marketplace: job.Marketplace,
		})
		now := time.Now()

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("competitor batch failed", "job_id", jobID, "size", len(items), "error", err)
			msg := err.Error()
			for _, item := range items {
				item.Status = model.ItemStatusFailed
				item.ErrorMessage = &msg
				item.ScrapedAt = &now
				if updateErr := w.store.UpdateCompetitorItem(ctx, item); updateErr != nil {
					return updateErr
				}
			}
		} else {
			byASIN := indexRecords(records)
			for _, item := range items {
				w.applyCompetitorRecord(ctx, jobID, item, byASIN[item.ASIN], now)
			}
		}

		if err := w.store.SyncCompetitorJobCounters(ctx, jobID); err != nil {
			return err
		}
	}
}

func (w *Worker) applyCompetitorRecord(ctx context.Context, jobID string, item *model.CompetitorItem, rec *apify.ProductRecord, now time.Time) {
	logger := w.logger.With("job_id", jobID, "asin", item.ASIN)

	fail := func(msg string) {
		item.Status = model.ItemStatusFailed
		item.ErrorMessage = &msg
		item.ScrapedAt = &now
		if err := w.store.UpdateCompetitorItem(ctx, item); err != nil {
			logger.Error("failed to record item failure", "error", err)
		}
	}

	if rec == nil {
		fail("No data returned for this ASIN")
		return
	}
	// A non-success page that still carried a title is usable data.
	if !rec.OK() && rec.ProductTitle == "" {
		if rec.StatusMessage != "" {
			fail(rec.StatusMessage)
			return
		}
		fail(fmt.Sprintf("Product page returned status %d", rec.StatusCode))
		return
	}

	comp, err := w.store.GetCompetitor(ctx, item.CompetitorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail("Competitor no longer exists")
			return
		}
		fail(err.Error())
		return
	}

	if err := w.results.ApplyCompetitorResult(ctx, comp, rec); err != nil {
		fail(err.Error())
		return
	}

	item.Status = model.ItemStatusCompleted
	item.ErrorMessage = nil
	item.ScrapedAt = &now
	if err := w.store.UpdateCompetitorItem(ctx, item); err != nil {
		logger.Error("failed to record item completion", "error", err)
	}
}
