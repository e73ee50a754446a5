// Package service applies scrape results to the tracked catalog: review
// persistence, channel SKU metric caches and competitor data snapshots.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/apify"
	"github.com/shelfwatch/shelfwatch/internal/model"
	"github.com/shelfwatch/shelfwatch/internal/store"
)

// Results persists what the scraper actors return.
type Results struct {
	store  *store.Store
	logger *slog.Logger
}

func NewResults(st *store.Store, logger *slog.Logger) *Results {
	return &Results{store: st, logger: logger.With("component", "results")}
}

// SaveReviews stores scraped reviews for one job ASIN, deduplicating by the
// Amazon review ID across star filter variants. Returns the number of rows
// written and the product title seen in the results, if any.
func (r *Results) SaveReviews(ctx context.Context, job *model.ReviewJob, asin string, records []apify.ReviewRecord) (int, *string, error) {
	seen := make(map[string]bool, len(records))
	var title *string
	rows := make([]*model.Review, 0, len(records))

	for i := range records {
		rec := &records[i]
		if title == nil && rec.ProductTitle != "" {
			t := rec.ProductTitle
			title = &t
		}
		if rec.ReviewID != "" {
			if seen[rec.ReviewID] {
				continue
			}
			seen[rec.ReviewID] = true
		}
		helpful := rec.NumberOfHelpful
		rows = append(rows, &model.Review{
			JobID:             job.ID,
			ASIN:              asin,
			ReviewID:          rec.ReviewID,
			Title:             optional(rec.Title),
			Text:              optional(rec.Text),
			Rating:            rec.Rating(),
			ReviewerName:      optional(rec.UserName),
			Date:              optional(rec.Date),
			VerifiedPurchase:  rec.Verified,
			HelpfulVotes:      &helpful,
			VariantAttributes: optional(rec.Variation),
			RawData:           rec.Raw,
		})
	}

	if err := r.store.CreateReviews(ctx, rows); err != nil {
		return 0, nil, err
	}
	return len(rows), title, nil
}

// RecordAsinScrape appends an AsinHistory row after a review scrape.
func (r *Results) RecordAsinScrape(ctx context.Context, asin, jobID string, title *string, reviewCount int) error {
	return r.store.CreateAsinHistory(ctx, &model.AsinHistory{
		ASIN:         asin,
		JobID:        &jobID,
		ProductTitle: title,
		ReviewCount:  reviewCount,
	})
}

// ApplyScanResult writes a product scrape into the channel SKU's cached
// metrics. When the product page resolved to a different ASIN, the current
// ASIN is updated and the change is recorded in the history.
func (r *Results) ApplyScanResult(ctx context.Context, jobID string, cs *model.ChannelSku, rec *apify.ProductRecord) error {
	now := time.Now()
	cs.LatestRating = rec.Rating()
	count := rec.CountReview
	cs.LatestReviewCount = &count
	if rec.ProductTitle != "" {
		t := rec.ProductTitle
		cs.ProductTitle = &t
	}
	cs.LastScrapedAt = &now

	// The actor echoes the requested ASIN back; a redirect shows up in the
	// final page URL instead.
	if resolved := apify.ASINFromURL(rec.URL); resolved != "" && resolved != cs.CurrentASIN {
		r.logger.Info("channel SKU ASIN changed",
			"channel_sku", cs.ChannelSkuCode, "old", cs.CurrentASIN, "new", resolved)
		cs.CurrentASIN = resolved
		history := &model.ChannelSkuAsinHistory{
			ChannelSkuID:   cs.ID,
			ASIN:           resolved,
			ChangedByJobID: &jobID,
		}
		if err := r.store.CreateChannelSkuAsinHistory(ctx, history); err != nil {
			return err
		}
	}

	return r.store.UpdateChannelSku(ctx, cs)
}

// ApplyCompetitorResult replaces the competitor's cached data, appends a
// price history snapshot, and advances the schedule. The schedule advance
// happens only here, on item success, so a failed scrape stays due.
func (r *Results) ApplyCompetitorResult(ctx context.Context, comp *model.Competitor, rec *apify.ProductRecord) error {
	now := time.Now()
	rating := rec.Rating()
	count := rec.CountReview
	unitPrice := rec.UnitPrice()

	data := &model.CompetitorData{
		CompetitorID:  comp.ID,
		Title:         optional(rec.ProductTitle),
		Brand:         optional(rec.Manufacturer),
		Price:         rec.Price,
		RetailPrice:   rec.RetailPrice,
		ShippingPrice: rec.ShippingPrice,
		Currency:      optional(rec.Currency),
		UnitPrice:     unitPrice,
		Rating:        rating,
		ReviewCount:   &count,
		Availability:  optional(rec.Availability),
		SoldBy:        optional(rec.SoldBy),
		FulfilledBy:   optional(rec.FulfilledBy),
		IsPrime:       rec.Prime,
		MainImageURL:  optional(rec.MainImageURL()),
		RawData:       rec.Raw,
		ScrapedAt:     now,
	}
	if err := r.store.UpsertCompetitorData(ctx, data); err != nil {
		return err
	}

	history := &model.CompetitorPriceHistory{
		CompetitorID:  comp.ID,
		Price:         rec.Price,
		UnitPrice:     unitPrice,
		ShippingPrice: rec.ShippingPrice,
		Availability:  optional(rec.Availability),
		Rating:        rating,
		ReviewCount:   &count,
		ScrapedAt:     now,
	}
	if err := r.store.CreateCompetitorPriceHistory(ctx, history); err != nil {
		return err
	}

	if schedule := model.Schedule(comp.Schedule); schedule != model.ScheduleNone {
		if interval := schedule.Interval(); interval > 0 {
			next := now.Add(interval)
			comp.NextScrapeAt = &next
			if err := r.store.UpdateCompetitor(ctx, comp); err != nil {
				return err
			}
		}
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
