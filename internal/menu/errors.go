package menu

import "errors"

// Error taxonomy surfaced by the store, scraper, and coordinator.
var (
	// ErrNotFound reports an absent vendor or meal.
	ErrNotFound = errors.New("not found")
	// ErrValidation reports missing or malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict reports a vendor name that is already registered.
	ErrConflict = errors.New("already exists")
	// ErrScrapeFailed reports an invocation, parse, or empty-result failure from the scraper.
	ErrScrapeFailed = errors.New("scrape failed")
	// ErrTimeout reports a synchronous operation that exceeded its deadline.
	ErrTimeout = errors.New("request timed out")
	// ErrQueueFull reports that the scrape queue is at capacity.
	ErrQueueFull = errors.New("queue full")
	// ErrQueueClosed reports an enqueue after shutdown.
	ErrQueueClosed = errors.New("queue closed")
	// ErrAlreadyQueued reports that a job for the vendor is already queued or running.
	ErrAlreadyQueued = errors.New("job already queued for vendor")
	// ErrMealsCached reports a conditional ingest for a vendor that already has meals.
	ErrMealsCached = errors.New("meals already cached for vendor")
)
