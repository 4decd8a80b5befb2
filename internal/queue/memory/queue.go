// Package memory provides the in-process scrape job queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/vendor-menu-cache/internal/menu"
	"github.com/JakeFAU/vendor-menu-cache/internal/metrics"
)

// Queue is a bounded FIFO of scrape jobs. With dedupe enabled it refuses a
// second job for a vendor until the first is marked Done.
type Queue struct {
	ch      chan menu.ScrapeJob
	dedupe  bool
	mu      sync.Mutex
	pending map[int64]struct{}
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int, dedupe bool) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:      make(chan menu.ScrapeJob, capacity),
		dedupe:  dedupe,
		pending: make(map[int64]struct{}),
	}
}

var _ menu.Queue = (*Queue)(nil)

// Enqueue appends a job without blocking. It returns menu.ErrQueueFull at
// capacity and menu.ErrAlreadyQueued when dedupe is on and the vendor already
// has a queued or running job.
func (q *Queue) Enqueue(ctx context.Context, job menu.ScrapeJob) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return menu.ErrQueueClosed
	}
	if q.dedupe {
		if _, ok := q.pending[job.VendorID]; ok {
			return fmt.Errorf("vendor %d: %w", job.VendorID, menu.ErrAlreadyQueued)
		}
	}
	select {
	case q.ch <- job:
	default:
		return fmt.Errorf("vendor %d: %w", job.VendorID, menu.ErrQueueFull)
	}
	if q.dedupe {
		q.pending[job.VendorID] = struct{}{}
	}
	metrics.SetQueueDepth(len(q.ch))
	return nil
}

// TryDequeue pops the oldest job, reporting false when the queue is empty or closed.
func (q *Queue) TryDequeue() (menu.ScrapeJob, bool) {
	select {
	case job, ok := <-q.ch:
		if ok {
			metrics.SetQueueDepth(len(q.ch))
		}
		return job, ok
	default:
		return menu.ScrapeJob{}, false
	}
}

// Done releases the vendor's dedupe slot once its job has finished.
func (q *Queue) Done(job menu.ScrapeJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, job.VendorID)
}

// Len reports the number of queued jobs.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Pending reports whether the vendor has a queued or running job.
func (q *Queue) Pending(vendorID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[vendorID]
	return ok
}

// Close stops accepting jobs. Jobs already queued can still be dequeued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
