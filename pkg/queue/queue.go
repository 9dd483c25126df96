// Package queue provides a bounded-concurrency operation queue.
//
// Callers submit a batch of tasks and wait for all of them to complete.
// A fixed worker budget bounds load against the database; submission
// order is not preserved between concurrently running tasks, so callers
// must not depend on relative ordering within a batch, only on "all
// complete before Do returns".
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the worker budget used when none is configured.
const DefaultWorkers = 2

// Task is one unit of work submitted to the queue.
type Task func(ctx context.Context) error

// Queue runs batches of tasks with a fixed worker budget and an optional
// per-task timeout. A failing or timed-out task fails only itself; the
// rest of the batch still runs to completion and all failures are
// aggregated into the returned error.
type Queue struct {
	workers int
	timeout time.Duration
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the fixed worker budget.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		q.workers = n
	}
}

// WithTaskTimeout sets a per-task timeout. Zero means no timeout.
func WithTaskTimeout(d time.Duration) Option {
	return func(q *Queue) {
		q.timeout = d
	}
}

// New constructs and configures a new Queue.
func New(opts ...Option) *Queue {
	q := &Queue{workers: DefaultWorkers}
	for _, opt := range opts {
		opt(q)
	}
	if q.workers < 1 {
		q.workers = 1
	}
	return q
}

// Do runs all tasks and blocks until every one of them has completed.
func (q *Queue) Do(ctx context.Context, tasks ...Task) error {
	var (
		g      errgroup.Group
		mu     sync.Mutex
		result *multierror.Error
	)
	g.SetLimit(q.workers)

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			tctx := ctx
			if q.timeout > 0 {
				var cancel context.CancelFunc
				tctx, cancel = context.WithTimeout(ctx, q.timeout)
				defer cancel()
			}

			if err := task(tctx); err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
			return nil
		})
	}

	// tasks record their own failures, Wait only synchronizes
	_ = g.Wait()

	return result.ErrorOrNil()
}
