package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/model"
)

// enqueueDueCompetitors creates scheduled competitor jobs for active
// competitors whose next_scrape_at has passed, one job per marketplace.
// A competitor already waiting in an open job is skipped; its schedule
// only advances when an item for it completes, so it stays due until the
// scrape actually succeeds.
func (w *Worker) enqueueDueCompetitors(ctx context.Context) error {
	due, err := w.store.DueCompetitors(ctx, time.Now())
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	byMarketplace := make(map[string][]*model.Competitor)
	for _, comp := range due {
		open, err := w.store.HasOpenCompetitorItem(ctx, comp.ID)
		if err != nil {
			return err
		}
		if open {
			continue
		}
		byMarketplace[comp.Marketplace] = append(byMarketplace[comp.Marketplace], comp)
	}

	for marketplace, comps := range byMarketplace {
		name := fmt.Sprintf("Scheduled scrape (amazon.%s)", marketplace)
		job := &model.CompetitorJob{
			Name:        &name,
			Marketplace: marketplace,
			JobType:     model.CompetitorJobScheduled,
		}
		items := make([]*model.CompetitorItem, 0, len(comps))
		for _, comp := range comps {
			items = append(items, &model.CompetitorItem{
				CompetitorID: comp.ID,
				ASIN:         comp.ASIN,
			})
		}
		if err := w.store.CreateCompetitorJob(ctx, job, items); err != nil {
			return err
		}
		w.logger.Info("enqueued scheduled competitor job",
			"job_id", job.ID, "marketplace", marketplace, "competitors", len(items))
	}
	return nil
}
