// Package dispatcher owns the scrape queue and the worker that drains it.
package dispatcher

import (
	"context"
	"fmt"

	"github.com/JakeFAU/vendor-menu-cache/internal/menu"
)

// Runner is the queue drain loop.
type Runner interface {
	Run(ctx context.Context)
}

type closer interface {
	Close()
}

// Dispatcher stamps jobs with an ID and enqueue time and hands them to the
// queue; Run drives the single drain loop.
type Dispatcher struct {
	queue  menu.Queue
	worker Runner
	ids    menu.IDGenerator
	clock  menu.Clock
}

var _ menu.Enqueuer = (*Dispatcher)(nil)

// New creates a Dispatcher.
func New(queue menu.Queue, worker Runner, ids menu.IDGenerator, clock menu.Clock) *Dispatcher {
	return &Dispatcher{
		queue:  queue,
		worker: worker,
		ids:    ids,
		clock:  clock,
	}
}

// Run starts the worker and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	if d.worker == nil {
		<-ctx.Done()
		return
	}
	d.worker.Run(ctx)
}

// Enqueue fills in the job ID and timestamp when absent and proxies to the queue.
func (d *Dispatcher) Enqueue(ctx context.Context, job menu.ScrapeJob) error {
	if job.ID == "" && d.ids != nil {
		id, err := d.ids.NewID()
		if err != nil {
			return fmt.Errorf("generate job id: %w", err)
		}
		job.ID = id
	}
	if job.EnqueuedAt.IsZero() && d.clock != nil {
		job.EnqueuedAt = d.clock.Now()
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Len reports the number of queued jobs.
func (d *Dispatcher) Len() int {
	return d.queue.Len()
}

// Close stops the queue from accepting new jobs.
func (d *Dispatcher) Close() {
	if c, ok := d.queue.(closer); ok {
		c.Close()
	}
}
