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

// processScanJob refreshes product metrics for the job's channel SKUs in
// batches. One actor run covers a whole batch; when the run itself fails,
// every item in the batch fails with the same message.
func (w *Worker) processScanJob(ctx context.Context, jobID string) error {
	job, err := w.store.GetScanJob(ctx, jobID)
	if err != nil {
		return err
	}

	first := true
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		items, err := w.store.PendingScanItems(ctx, jobID, w.cfg.ScrapeBatchSize)
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
		if err := w.store.MarkScanItemsRunning(ctx, ids); err != nil {
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
			w.logger.Warn("scan batch failed", "job_id", jobID, "size", len(items), "error", err)
			msg := err.Error()
			for _, item := range items {
				item.Status = model.ItemStatusFailed
				item.ErrorMessage = &msg
				item.ScrapedAt = &now
				if updateErr := w.store.UpdateScanItem(ctx, item); updateErr != nil {
					return updateErr
				}
			}
		} else {
			byASIN := indexRecords(records)
			for _, item := range items {
				w.applyScanRecord(ctx, jobID, item, byASIN[item.ASIN], now)
			}
		}

		if err := w.store.SyncScanJobCounters(ctx, jobID); err != nil {
			return err
		}
	}
}

func (w *Worker) applyScanRecord(ctx context.Context, jobID string, item *model.ScanItem, rec *apify.ProductRecord, now time.Time) {
	logger := w.logger.With("job_id", jobID, "asin", item.ASIN)

	fail := func(msg string) {
		item.Status = model.ItemStatusFailed
		item.ErrorMessage = &msg
		item.ScrapedAt = &now
		if err := w.store.UpdateScanItem(ctx, item); err != nil {
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

	cs, err := w.store.GetChannelSku(ctx, item.ChannelSkuID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail("Channel SKU no longer exists")
			return
		}
		fail(err.Error())
		return
	}

	if err := w.results.ApplyScanResult(ctx, jobID, cs, rec); err != nil {
		fail(err.Error())
		return
	}

	item.Status = model.ItemStatusCompleted
	item.Rating = rec.Rating()
	count := rec.CountReview
	item.ReviewCount = &count
	if rec.ProductTitle != "" {
		t := rec.ProductTitle
		item.ProductTitle = &t
	}
	if resolved := apify.ASINFromURL(rec.URL); resolved != "" {
		item.ScrapedASIN = &resolved
	} else if rec.ASIN != "" {
		a := rec.ASIN
		item.ScrapedASIN = &a
	}
	item.ErrorMessage = nil
	item.ScrapedAt = &now
	if err := w.store.UpdateScanItem(ctx, item); err != nil {
		logger.Error("failed to record item completion", "error", err)
	}
}

// indexRecords keys product records by their resolved ASIN. A record whose
// page redirected still matches its requested item through the URL ASIN
// when the payload omits the field.
func indexRecords(records []apify.ProductRecord) map[string]*apify.ProductRecord {
	byASIN := make(map[string]*apify.ProductRecord, len(records))
	for i := range records {
		rec := &records[i]
		if asin := rec.ASIN; asin != "" {
			byASIN[asin] = rec
		}
		if asin := apify.ASINFromURL(rec.URL); asin != "" {
			if _, ok := byASIN[asin]; !ok {
				byASIN[asin] = rec
			}
		}
	}
	return byASIN
}
