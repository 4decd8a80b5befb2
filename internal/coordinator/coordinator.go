// Package coordinator decides when cached meals are served and when a scrape
// is queued or run inline.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/vendor-menu-cache/internal/menu"
	"github.com/JakeFAU/vendor-menu-cache/internal/metrics"
	"github.com/JakeFAU/vendor-menu-cache/internal/scraper"
)

// Defaults applied by New for zero durations.
const (
	DefaultSyncTimeout     = 60 * time.Second
	DefaultProbeTimeout    = 10 * time.Second
	DefaultMetadataTimeout = 60 * time.Second
)

// Cache entry points, used as metric labels.
const (
	entryMeals = "meals"
	entryMenu  = "menu"
)

// Config controls timeouts and the post-registration metadata scrape.
type Config struct {
	SyncTimeout     time.Duration
	ProbeTimeout    time.Duration
	MetadataEnabled bool
	MetadataTimeout time.Duration
}

// MealsResult is the outcome of an asynchronous meal lookup. Pending means a
// scrape is queued or running and Meals is empty.
type MealsResult struct {
	Meals   []menu.Meal
	Pending bool
}

// Coordinator implements the vendor and meal operations behind the HTTP API.
type Coordinator struct {
	store    menu.Store
	scraper  menu.Scraper
	prober   menu.Prober
	enqueuer menu.Enqueuer
	clock    menu.Clock
	cfg      Config
	logger   *zap.Logger

	background sync.WaitGroup
	menuFills  singleflight.Group
}

// New constructs a Coordinator.
func New(
	store menu.Store,
	scr menu.Scraper,
	prober menu.Prober,
	enqueuer menu.Enqueuer,
	clock menu.Clock,
	cfg Config,
	logger *zap.Logger,
) *Coordinator {
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = DefaultSyncTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.MetadataTimeout <= 0 {
		cfg.MetadataTimeout = DefaultMetadataTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:    store,
		scraper:  scr,
		prober:   prober,
		enqueuer: enqueuer,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// GetMeals serves cached meals, or queues a scrape and reports Pending
// without waiting for it. A vendor that already has a job queued or running
// is reported as pending without a second enqueue.
func (c *Coordinator) GetMeals(ctx context.Context, vendorID int64) (MealsResult, error) {
	v, meals, err := c.cached(ctx, vendorID, entryMeals)
	if err != nil {
		return MealsResult{}, err
	}
	if len(meals) > 0 {
		return MealsResult{Meals: meals}, nil
	}

	job := menu.ScrapeJob{VendorID: v.ID, MenuURL: v.MenuURL}
	if err := c.enqueuer.Enqueue(ctx, job); err != nil {
		if errors.Is(err, menu.ErrAlreadyQueued) {
			c.logger.Debug("scrape already pending", zap.Int64("vendor_id", v.ID))
			return MealsResult{Pending: true}, nil
		}
		return MealsResult{}, fmt.Errorf("enqueue scrape for vendor %d: %w", v.ID, err)
	}
	c.logger.Info("queued scrape", zap.Int64("vendor_id", v.ID), zap.String("url", v.MenuURL))
	return MealsResult{Pending: true}, nil
}

// GetMenu serves cached meals, or scrapes inline on a miss and returns what
// was stored. The scrape is bounded by the sync timeout. Concurrent misses for
// one vendor share a single scrape.
func (c *Coordinator) GetMenu(ctx context.Context, vendorID int64) ([]menu.Meal, error) {
	v, meals, err := c.cached(ctx, vendorID, entryMenu)
	if err != nil {
		return nil, err
	}
	if len(meals) > 0 {
		return meals, nil
	}

	res, err, shared := c.menuFills.Do(strconv.FormatInt(v.ID, 10), func() (any, error) {
		return c.fillMenu(ctx, v)
	})
	if err != nil {
		return nil, err
	}
	meals, _ = res.([]menu.Meal)
	if shared {
		meals = slices.Clone(meals)
	}
	return meals, nil
}

// fillMenu scrapes v and stores the result unless another writer filled the
// cache first, in which case the stored meals win.
func (c *Coordinator) fillMenu(ctx context.Context, v menu.Vendor) ([]menu.Meal, error) {
	scraped, err := c.scrapeSync(ctx, v)
	if err != nil {
		return nil, err
	}
	inserted, err := c.store.InsertMealsIfEmpty(ctx, v.ID, scraped)
	switch {
	case errors.Is(err, menu.ErrMealsCached):
		c.logger.Info("meals cached during scrape; keeping stored set", zap.Int64("vendor_id", v.ID))
	case err != nil:
		return nil, fmt.Errorf("store meals for vendor %d: %w", v.ID, err)
	default:
		c.logger.Info("stored scraped meals",
			zap.Int64("vendor_id", v.ID),
			zap.Int("inserted", inserted),
			zap.Int("ignored", len(scraped)-inserted),
		)
	}
	return c.listVendorMeals(ctx, v.ID)
}

// ForceRescrape scrapes the vendor now and, only if that succeeds, replaces
// its meals in one transaction. A failed scrape leaves stored meals untouched.
func (c *Coordinator) ForceRescrape(ctx context.Context, vendorID int64) ([]menu.Meal, error) {
	v, err := c.GetVendor(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	scraped, err := c.scrapeSync(ctx, v)
	if err != nil {
		return nil, err
	}
	inserted, err := c.store.ReplaceMeals(ctx, v.ID, scraped)
	if err != nil {
		return nil, fmt.Errorf("replace meals for vendor %d: %w", v.ID, err)
	}
	c.logger.Info("replaced meals", zap.Int64("vendor_id", v.ID), zap.Int("meals", inserted))
	return c.listVendorMeals(ctx, v.ID)
}

// RegisterVendor validates the input, probes the menu URL, and stores the
// vendor. An unreachable URL is recorded with the 404 sentinel rather than
// rejected. When metadata is enabled a background scrape fills in the profile.
func (c *Coordinator) RegisterVendor(ctx context.Context, in menu.VendorInput) (menu.Vendor, error) {
	in = in.Normalized()
	if err := in.Validate(); err != nil {
		return menu.Vendor{}, err
	}

	status := c.probe(ctx, in.MenuURL)
	if in.Website != "" && c.probe(ctx, in.Website) != menu.StatusReachable {
		c.logger.Warn("vendor website unreachable", zap.String("url", in.Website))
	}

	v, err := c.store.CreateVendor(ctx, in.Vendor(status, c.now()))
	if err != nil {
		return menu.Vendor{}, fmt.Errorf("create vendor: %w", err)
	}
	c.logger.Info("registered vendor",
		zap.Int64("vendor_id", v.ID),
		zap.String("url", v.MenuURL),
		zap.Int("status_code", v.StatusCode),
	)

	if c.cfg.MetadataEnabled {
		c.refreshInBackground(ctx, v.ID)
	}
	return v, nil
}

// RefreshMetadata scrapes the vendor profile and stores the present fields.
func (c *Coordinator) RefreshMetadata(ctx context.Context, vendorID int64) (menu.Vendor, error) {
	v, err := c.GetVendor(ctx, vendorID)
	if err != nil {
		return menu.Vendor{}, err
	}
	sctx, cancel := context.WithTimeout(ctx, c.cfg.MetadataTimeout)
	defer cancel()

	meta, err := c.scraper.ScrapeVendor(sctx, v.MetadataSource())
	if err != nil {
		return menu.Vendor{}, scrapeError(sctx, v.ID, err)
	}
	next := meta.ApplyTo(v)
	next.LastUpdated = c.now()
	updated, err := c.store.UpdateVendorMetadata(ctx, next)
	if err != nil {
		return menu.Vendor{}, fmt.Errorf("update vendor %d metadata: %w", v.ID, err)
	}
	return updated, nil
}

// Wait blocks until background metadata scrapes have finished.
func (c *Coordinator) Wait() {
	c.background.Wait()
}

// VendorStatus returns the vendor's reachability summary.
func (c *Coordinator) VendorStatus(ctx context.Context, vendorID int64) (menu.VendorStatus, error) {
	v, err := c.GetVendor(ctx, vendorID)
	if err != nil {
		return menu.VendorStatus{}, err
	}
	return v.Status(), nil
}

// ListVendors returns every vendor.
func (c *Coordinator) ListVendors(ctx context.Context) ([]menu.Vendor, error) {
	vendors, err := c.store.ListVendors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	return vendors, nil
}

// GetVendor returns one vendor or an error wrapping menu.ErrNotFound.
func (c *Coordinator) GetVendor(ctx context.Context, vendorID int64) (menu.Vendor, error) {
	v, err := c.store.GetVendor(ctx, vendorID)
	if err != nil {
		return menu.Vendor{}, fmt.Errorf("get vendor: %w", err)
	}
	return v, nil
}

// DeleteVendor removes the vendor and its meals.
func (c *Coordinator) DeleteVendor(ctx context.Context, vendorID int64) error {
	if err := c.store.DeleteVendor(ctx, vendorID); err != nil {
		return fmt.Errorf("delete vendor: %w", err)
	}
	c.logger.Info("deleted vendor", zap.Int64("vendor_id", vendorID))
	return nil
}

// ListMeals returns every stored meal across vendors.
func (c *Coordinator) ListMeals(ctx context.Context) ([]menu.Meal, error) {
	meals, err := c.store.ListMeals(ctx)
	if err != nil {
		return nil, fmt.Errorf("list meals: %w", err)
	}
	return meals, nil
}

// DeleteMeal removes one meal.
func (c *Coordinator) DeleteMeal(ctx context.Context, mealID int64) error {
	if err := c.store.DeleteMeal(ctx, mealID); err != nil {
		return fmt.Errorf("delete meal: %w", err)
	}
	return nil
}

// Ping reports whether the store is reachable.
func (c *Coordinator) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("store ping: %w", err)
	}
	return nil
}

func (c *Coordinator) cached(ctx context.Context, vendorID int64, entry string) (menu.Vendor, []menu.Meal, error) {
	v, err := c.GetVendor(ctx, vendorID)
	if err != nil {
		return menu.Vendor{}, nil, err
	}
	meals, err := c.listVendorMeals(ctx, v.ID)
	if err != nil {
		return menu.Vendor{}, nil, err
	}
	metrics.ObserveCacheLookup(entry, len(meals) > 0)
	return v, meals, nil
}

func (c *Coordinator) listVendorMeals(ctx context.Context, vendorID int64) ([]menu.Meal, error) {
	meals, err := c.store.ListMealsByVendor(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("list meals for vendor %d: %w", vendorID, err)
	}
	return meals, nil
}

func (c *Coordinator) scrapeSync(ctx context.Context, v menu.Vendor) ([]menu.Meal, error) {
	sctx, cancel := context.WithTimeout(ctx, c.cfg.SyncTimeout)
	defer cancel()

	records, err := c.scraper.ScrapeMeals(sctx, v.ID, v.MenuURL)
	if err != nil {
		return nil, scrapeError(sctx, v.ID, err)
	}
	meals := menu.MealsFromRecords(v.ID, records)
	if len(meals) == 0 {
		err := &scraper.Error{Kind: scraper.KindEmpty, URL: v.MenuURL, Err: errors.New("no meals with a name")}
		return nil, fmt.Errorf("scrape vendor %d: %w", v.ID, err)
	}
	return meals, nil
}

// scrapeError tags err with ErrTimeout when the scrape ran out of time and
// guarantees it matches ErrScrapeFailed otherwise.
func scrapeError(sctx context.Context, vendorID int64, err error) error {
	if errors.Is(sctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: scrape vendor %d: %w", menu.ErrTimeout, vendorID, err)
	}
	if errors.Is(err, menu.ErrScrapeFailed) {
		return fmt.Errorf("scrape vendor %d: %w", vendorID, err)
	}
	return fmt.Errorf("%w: vendor %d: %w", menu.ErrScrapeFailed, vendorID, err)
}

func (c *Coordinator) probe(ctx context.Context, url string) int {
	if c.prober == nil {
		return menu.StatusUnreachable
	}
	pctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()
	code, err := c.prober.Probe(pctx, url)
	if err != nil {
		c.logger.Info("url not reachable", zap.String("url", url), zap.Error(err))
		return menu.StatusUnreachable
	}
	if code != menu.StatusReachable {
		c.logger.Info("url returned non-200", zap.String("url", url), zap.Int("status_code", code))
		return menu.StatusUnreachable
	}
	return menu.StatusReachable
}

func (c *Coordinator) refreshInBackground(ctx context.Context, vendorID int64) {
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.MetadataTimeout)
		defer cancel()
		if _, err := c.RefreshMetadata(bctx, vendorID); err != nil {
			c.logger.Warn("vendor metadata scrape failed",
				zap.Int64("vendor_id", vendorID),
				zap.String("kind", string(scraper.KindOf(err))),
				zap.Error(err),
			)
			return
		}
		c.logger.Info("vendor metadata updated", zap.Int64("vendor_id", vendorID))
	}()
}

func (c *Coordinator) now() time.Time {
	if c.clock == nil {
		return time.Now().UTC()
	}
	return c.clock.Now()
}
