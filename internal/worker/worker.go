// Package worker drains the scrape queue on a fixed tick.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/vendor-menu-cache/internal/menu"
	"github.com/JakeFAU/vendor-menu-cache/internal/metrics"
	"github.com/JakeFAU/vendor-menu-cache/internal/scraper"
)

// DefaultPollInterval is the tick period when none is configured.
const DefaultPollInterval = 5 * time.Second

// Job outcome labels.
const (
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
	statusSkipped   = "skipped"
)

// Config controls Worker behavior.
type Config struct {
	PollInterval time.Duration
	// JobTimeout bounds one scrape job. Zero means no bound.
	JobTimeout time.Duration
}

// Worker takes at most one job per tick and runs it to completion before the
// next tick. Failed jobs are logged and dropped.
type Worker struct {
	queue   menu.Queue
	scraper menu.Scraper
	store   menu.Store
	clock   menu.Clock
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Worker.
func New(
	queue menu.Queue,
	scr menu.Scraper,
	store menu.Store,
	clock menu.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:   queue,
		scraper: scr,
		store:   store,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run blocks, ticking until the context finishes. A job in progress when the
// context ends is allowed to complete.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick dequeues and processes at most one job. It reports whether a job ran.
func (w *Worker) Tick(ctx context.Context) bool {
	job, ok := w.queue.TryDequeue()
	if !ok {
		return false
	}
	defer w.queue.Done(job)
	jobCtx := context.WithoutCancel(ctx)
	if w.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, w.cfg.JobTimeout)
		defer cancel()
	}
	w.processJob(jobCtx, job)
	return true
}

func (w *Worker) processJob(ctx context.Context, job menu.ScrapeJob) {
	logger := w.logger.With(
		zap.String("job_id", job.ID),
		zap.Int64("vendor_id", job.VendorID),
		zap.String("url", job.MenuURL),
	)
	if !job.EnqueuedAt.IsZero() && w.clock != nil {
		logger.Debug("dequeued job", zap.Duration("waited", w.clock.Now().Sub(job.EnqueuedAt)))
	}

	if _, err := w.store.GetVendor(ctx, job.VendorID); err != nil {
		if errors.Is(err, menu.ErrNotFound) {
			logger.Info("vendor deleted before scrape; dropping job")
			metrics.ObserveJob(statusSkipped)
			return
		}
		logger.Error("load vendor failed", zap.Error(err))
		metrics.ObserveJob(statusFailed)
		return
	}

	records, err := w.scraper.ScrapeMeals(ctx, job.VendorID, job.MenuURL)
	if err != nil {
		logger.Error("scrape job failed",
			zap.String("kind", string(scraper.KindOf(err))),
			zap.Error(err),
		)
		metrics.ObserveJob(statusFailed)
		return
	}

	meals := menu.MealsFromRecords(job.VendorID, records)
	inserted, err := w.store.InsertMealsIfEmpty(ctx, job.VendorID, meals)
	if errors.Is(err, menu.ErrMealsCached) {
		logger.Info("meals cached while scraping; dropping job result", zap.Int("records", len(records)))
		metrics.ObserveJob(statusSkipped)
		return
	}
	if errors.Is(err, menu.ErrNotFound) {
		logger.Info("vendor deleted during scrape; dropping job")
		metrics.ObserveJob(statusSkipped)
		return
	}
	if err != nil {
		logger.Error("store meals failed", zap.Error(err))
		metrics.ObserveJob(statusFailed)
		return
	}
	logger.Info("scrape job finished",
		zap.Int("records", len(records)),
		zap.Int("inserted", inserted),
		zap.Int("ignored", len(meals)-inserted),
	)
	metrics.ObserveJob(statusSucceeded)
}
