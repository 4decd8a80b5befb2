package menu

import (
	"context"
	"time"
)

// Store persists vendors and meals.
type Store interface {
	ListVendors(ctx context.Context) ([]Vendor, error)
	GetVendor(ctx context.Context, id int64) (Vendor, error)
	CreateVendor(ctx context.Context, vendor Vendor) (Vendor, error)
	UpdateVendorMetadata(ctx context.Context, vendor Vendor) (Vendor, error)
	DeleteVendor(ctx context.Context, id int64) error

	ListMeals(ctx context.Context) ([]Meal, error)
	ListMealsByVendor(ctx context.Context, vendorID int64) ([]Meal, error)
	// InsertMeals adds meals, silently skipping any whose (vendor, name) already
	// exists. It returns the number of rows actually inserted.
	InsertMeals(ctx context.Context, vendorID int64, meals []Meal) (int, error)
	// InsertMealsIfEmpty is InsertMeals guarded by an emptiness check made in
	// the same transaction. It returns ErrMealsCached when the vendor already
	// has meals, so a cache-miss scrape never merges into a replaced set.
	InsertMealsIfEmpty(ctx context.Context, vendorID int64, meals []Meal) (int, error)
	// ReplaceMeals atomically swaps the vendor's meal set for meals.
	ReplaceMeals(ctx context.Context, vendorID int64, meals []Meal) (int, error)
	DeleteMeal(ctx context.Context, id int64) error

	Ping(ctx context.Context) error
	Close() error
}

// Scraper turns URLs into structured records via an external process.
type Scraper interface {
	ScrapeMeals(ctx context.Context, vendorID int64, url string) ([]MealRecord, error)
	ScrapeVendor(ctx context.Context, url string) (VendorMetadata, error)
}

// Prober checks whether a URL is reachable and returns its HTTP status code.
type Prober interface {
	Probe(ctx context.Context, url string) (int, error)
}

// Enqueuer accepts scrape jobs for background processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, job ScrapeJob) error
}

// Queue provides FIFO semantics for scrape jobs.
type Queue interface {
	Enqueuer
	// TryDequeue pops the oldest job without blocking.
	TryDequeue() (ScrapeJob, bool)
	// Done marks a dequeued job as finished.
	Done(job ScrapeJob)
	Len() int
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
