// Package scheduler runs many per-document jobs under a fixed worker cap.
// Failures never abort sibling units; RunAll returns only after every unit
// has reached a terminal outcome.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pool is a bounded work scheduler. Each worker is a sequential loop: pull
// next unit, process fully, pull next. Input consumption is FIFO, so a pool
// with one worker visits units in submission order.
type Pool struct {
	workers int
	delay   time.Duration // optional pause between items per worker
	logger  *slog.Logger
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithItemDelay paces each worker between items. A tunable, not a
// correctness requirement.
func WithItemDelay(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.delay = d
		}
	}
}

func NewPool(logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{workers: 4, logger: logger}
	for _, o := range opts {
		o(p)
	}
	return p
}

// RunAll processes count units through fn with at most p.workers in flight.
// The returned slice holds each unit's terminal outcome by index: nil on
// success, the unit's error otherwise. Cancellation is honored between units
// only; units never started are recorded with ctx.Err().
func (p *Pool) RunAll(ctx context.Context, count int, fn func(ctx context.Context, i int) error) []error {
	results := make([]error, count)
	if count == 0 {
		return results
	}

	feed := make(chan int, count)
	for i := 0; i < count; i++ {
		feed <- i
	}
	close(feed)

	workers := p.workers
	if workers > count {
		workers = count
	}

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		workerID := w + 1
		g.Go(func() error {
			for i := range feed {
				select {
				case <-ctx.Done():
					results[i] = ctx.Err()
					continue
				default:
				}

				if err := fn(ctx, i); err != nil {
					results[i] = err
					p.logger.Warn("unit failed", "worker_id", workerID, "unit", i, "error", err)
				}

				if p.delay > 0 {
					select {
					case <-ctx.Done():
					case <-time.After(p.delay):
					}
				}
			}
			return nil
		})
	}
	_ = g.Wait() // workers record outcomes instead of returning errors
	return results
}
