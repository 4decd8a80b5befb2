// Package server provides the core application server and dependency wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/vendor-menu-cache/internal/api"
	"github.com/JakeFAU/vendor-menu-cache/internal/clock/system"
	"github.com/JakeFAU/vendor-menu-cache/internal/config"
	"github.com/JakeFAU/vendor-menu-cache/internal/coordinator"
	"github.com/JakeFAU/vendor-menu-cache/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/vendor-menu-cache/internal/fetcher/colly"
	"github.com/JakeFAU/vendor-menu-cache/internal/id/uuid"
	"github.com/JakeFAU/vendor-menu-cache/internal/logging"
	"github.com/JakeFAU/vendor-menu-cache/internal/menu"
	"github.com/JakeFAU/vendor-menu-cache/internal/metrics"
	queueMemory "github.com/JakeFAU/vendor-menu-cache/internal/queue/memory"
	"github.com/JakeFAU/vendor-menu-cache/internal/scraper"
	"github.com/JakeFAU/vendor-menu-cache/internal/storage"
	"github.com/JakeFAU/vendor-menu-cache/internal/storage/postgres"
	"github.com/JakeFAU/vendor-menu-cache/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg         *config.Config
	logger      *zap.Logger
	store       menu.Store
	queue       *queueMemory.Queue
	dispatch    *dispatcher.Dispatcher
	coordinator *coordinator.Coordinator
	apiServer   *api.Server
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return build(ctx, cfg, logger)
}

func build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("database_backend", cfg.Database.Backend),
	)

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	store, err := storage.Open(ctx, storage.Config{
		Backend: cfg.Database.Backend,
		Postgres: postgres.Config{
			DSN:             cfg.Database.DSN,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			Migrate:         cfg.Database.Migrate,
		},
		SQLitePath: cfg.Database.SQLitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}
	app.store = store

	clock := system.New()
	gateway := scraper.New(scraper.Config{
		Command:        cfg.Scraper.Command,
		MealScript:     cfg.Scraper.MealScript,
		VendorScript:   cfg.Scraper.VendorScript,
		WorkDir:        cfg.Scraper.WorkDir,
		MaxOutputBytes: cfg.Scraper.MaxOutputBytes,
	}, nil, logging.Component(logger, "scraper"))
	logger.Info("scraper gateway configured",
		zap.String("command", cfg.Scraper.Command),
		zap.String("meal_script", cfg.Scraper.MealScript),
		zap.String("vendor_script", cfg.Scraper.VendorScript),
	)

	prober := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Probe.UserAgent,
		Timeout:   cfg.ProbeTimeout(),
	})

	app.queue = queueMemory.NewQueue(cfg.Queue.Depth, cfg.Queue.DedupePending)
	w := worker.New(app.queue, gateway, store, clock,
		worker.Config{PollInterval: cfg.PollInterval(), JobTimeout: cfg.JobTimeout()},
		logging.Component(logger, "worker"),
	)
	app.dispatch = dispatcher.New(app.queue, w, uuid.New(), clock)
	logger.Info("scrape queue configured",
		zap.Int("depth", cfg.Queue.Depth),
		zap.Bool("dedupe_pending", cfg.Queue.DedupePending),
		zap.Duration("poll_interval", cfg.PollInterval()),
	)

	app.coordinator = coordinator.New(store, gateway, prober, app.dispatch, clock, coordinator.Config{
		SyncTimeout:     cfg.SyncScrapeTimeout(),
		ProbeTimeout:    cfg.ProbeTimeout(),
		MetadataEnabled: cfg.Metadata.Enabled,
		MetadataTimeout: cfg.MetadataTimeout(),
	}, logging.Component(logger, "coordinator"))

	app.apiServer = api.NewServer(app.coordinator, *cfg, logging.Component(logger, "api"))
	return app, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	<-workerDone

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close stops the queue, waits for background metadata scrapes, and
// releases the store.
func (a *App) Close(ctx context.Context) error {
	if a.dispatch != nil {
		a.dispatch.Close()
	}
	if a.coordinator != nil {
		waited := make(chan struct{})
		go func() {
			a.coordinator.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-ctx.Done():
			a.logger.Warn("background scrapes still running at shutdown")
		}
	}
	var err error
	if a.store != nil {
		if err = a.store.Close(); err != nil {
			a.logger.Warn("store close failed", zap.Error(err))
			err = fmt.Errorf("close store: %w", err)
		}
	}
	if syncErr := a.logger.Sync(); syncErr != nil {
		a.logger.Debug("logger sync failed", zap.Error(syncErr))
	}
	a.logger.Info("shutdown complete")
	return err
}
