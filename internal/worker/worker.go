// Package worker runs the background scrape loop. A single goroutine ticks
// on an interval; each tick resyncs counters for running jobs, recovers
// jobs stuck past the timeout threshold, then picks up the oldest queued
// job and processes it to completion. An idle tick instead materializes
// scheduled competitor scrapes as new queued jobs. Jobs never run
// concurrently: the database queue is the only coordination point, so API
// handlers just insert queued rows.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/apify"
	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/model"
	"github.com/shelfwatch/shelfwatch/internal/service"
	"github.com/shelfwatch/shelfwatch/internal/store"
)

// Worker owns the scrape loop.
type Worker struct {
	store    *store.Store
	results  *service.Results
	provider apify.Provider
	cfg      *config.Config
	logger   *slog.Logger

	mu           sync.Mutex
	running      bool
	stopChan     chan struct{}
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

func New(st *store.Store, results *service.Results, provider apify.Provider, cfg *config.Config, logger *slog.Logger) *Worker {
	return &Worker{
		store:    st,
		results:  results,
		provider: provider,
		cfg:      cfg,
		logger:   logger.With("component", "worker"),
		stopChan: make(chan struct{}),
	}
}

// Start begins the tick loop. Called on application startup.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop(ctx)

	w.logger.Info("worker started", "interval", w.cfg.WorkerInterval)
}

// Shutdown stops the loop and waits for an in-flight tick to finish, up to
// the deadline on ctx.
func (w *Worker) Shutdown(ctx context.Context) error {
	var err error
	w.shutdownOnce.Do(func() {
		w.logger.Info("shutting down worker")
		close(w.stopChan)

		done := make(chan struct{})
		go func() {
			w.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			w.logger.Info("worker shutdown complete")
		case <-ctx.Done():
			err = fmt.Errorf("shutdown timeout exceeded")
			w.logger.Error("worker shutdown timeout")
		}
	})
	return err
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.WorkerInterval)
	defer ticker.Stop()

	// First tick runs immediately so queued work is not left waiting a
	// full interval after startup.
	w.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker loop stopped: context cancelled")
			return
		case <-w.stopChan:
			w.logger.Info("worker loop stopped: shutdown signal")
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// jobFamily parameterizes the shared job control flow. Each family plugs in
// its own queue lookup and processing; everything else (claim, finalize,
// failure handling) is identical across the three.
type jobFamily struct {
	name        string
	next        func(context.Context) (string, error)
	markRunning func(context.Context, string) error
	process     func(context.Context, string) error
	finalize    func(context.Context, string) (model.JobStatus, error)
	fail        func(context.Context, string, string) error
}

func (w *Worker) families() []jobFamily {
	return []jobFamily{
		{
			name: "review",
			next: func(ctx context.Context) (string, error) {
				job, err := w.store.NextQueuedReviewJob(ctx)
				if err != nil {
					return "", err
				}
				return job.ID, nil
			},
			markRunning: w.store.MarkReviewJobRunning,
			process:     w.processReviewJob,
			finalize: func(ctx context.Context, id string) (model.JobStatus, error) {
				job, err := w.store.FinalizeReviewJob(ctx, id)
				if err != nil {
					return "", err
				}
				return job.Status, nil
			},
			fail: w.store.FailReviewJob,
		},
		{
			name: "scan",
			next: func(ctx context.Context) (string, error) {
				job, err := w.store.NextQueuedScanJob(ctx)
				if err != nil {
					return "", err
				}
				return job.ID, nil
			},
			markRunning: w.store.MarkScanJobRunning,
			process:     w.processScanJob,
			finalize: func(ctx context.Context, id string) (model.JobStatus, error) {
				job, err := w.store.FinalizeScanJob(ctx, id)
				if err != nil {
					return "", err
				}
				return job.Status, nil
			},
			fail: w.store.FailScanJob,
		},
		{
			name: "competitor",
			next: func(ctx context.Context) (string, error) {
				job, err := w.store.NextQueuedCompetitorJob(ctx)
				if err != nil {
					return "", err
				}
				return job.ID, nil
			},
			markRunning: w.store.MarkCompetitorJobRunning,
			process:     w.processCompetitorJob,
			finalize: func(ctx context.Context, id string) (model.JobStatus, error) {
				job, err := w.store.FinalizeCompetitorJob(ctx, id)
				if err != nil {
					return "", err
				}
				return job.Status, nil
			},
			fail: w.store.FailCompetitorJob,
		},
	}
}

// Tick performs one pass of the loop. Exported so tests can drive the
// worker without the ticker.
func (w *Worker) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("tick panicked", "panic", r)
		}
	}()

	if err := w.store.SyncRunningReviewJobCounters(ctx); err != nil {
		w.logger.Error("failed to sync running job counters", "error", err)
	}

	if recovered, err := w.store.FailStuckJobs(ctx, w.cfg.StuckJobThreshold); err != nil {
		w.logger.Error("failed to recover stuck jobs", "error", err)
	} else if recovered > 0 {
		w.logger.Warn("recovered stuck jobs", "count", recovered)
	}

	for _, f := range w.families() {
		jobID, err := f.next(ctx)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			w.logger.Error("failed to query job queue", "family", f.name, "error", err)
			return
		}
		w.runJob(ctx, f, jobID)
		return
	}

	// Idle tick: materialize scheduled competitor scrapes so the next tick
	// has work.
	if err := w.enqueueDueCompetitors(ctx); err != nil {
		w.logger.Error("failed to enqueue scheduled competitor scrapes", "error", err)
	}
}

// runJob drives one job through claim, process and finalize. One job per
// tick keeps load on the scraper predictable.
func (w *Worker) runJob(ctx context.Context, f jobFamily, jobID string) {
	logger := w.logger.With("family", f.name, "job_id", jobID)

	if err := f.markRunning(ctx, jobID); err != nil {
		logger.Error("failed to claim job", "error", err)
		return
	}
	logger.Info("processing job")

	if err := f.process(ctx, jobID); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Shutdown mid-job: leave it running, the stuck sweep picks it
			// up after the timeout threshold on the next start.
			logger.Warn("job interrupted by shutdown")
			return
		}
		logger.Error("job processing failed", "error", err)
		if failErr := f.fail(ctx, jobID, err.Error()); failErr != nil {
			logger.Error("failed to mark job failed", "error", failErr)
		}
		return
	}

	status, err := f.finalize(ctx, jobID)
	if err != nil {
		logger.Error("failed to finalize job", "error", err)
		return
	}
	logger.Info("job finished", "status", status)
}
