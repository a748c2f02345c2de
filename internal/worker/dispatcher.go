package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/docconv/internal/domain"
	"github.com/cuongbtq/docconv/internal/queue"
	"github.com/cuongbtq/docconv/internal/store"
)

// Dispatcher polls the store for waiting jobs, claims them and hands them
// to the workers through the bounded queue.
type Dispatcher struct {
	store    JobStore
	queue    *queue.Queue
	interval time.Duration
	logger   *slog.Logger
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(store JobStore, q *queue.Queue, interval time.Duration, logger *slog.Logger) *Dispatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Dispatcher{
		store:    store,
		queue:    q,
		interval: interval,
		logger:   logger.With(slog.String("component", "dispatcher")),
	}
}

// Run ticks until ctx is canceled, starting with an immediate tick
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("Dispatcher started", slog.Duration("poll_interval", d.interval))

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.Tick(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("Dispatcher tick failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			d.logger.Info("Dispatcher stopped - context canceled")
			return
		case <-ticker.C:
		}
	}
}

// Tick claims every waiting job in insertion order and enqueues it. Put
// blocks while the queue is full. It returns the number of jobs enqueued.
func (d *Dispatcher) Tick(ctx context.Context) (int, error) {
	jobs, err := d.store.Read(ctx, store.Filter{Status: domain.StatusWaiting})
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, job := range jobs {
		claimed, err := d.store.ClaimJob(ctx, job.ID)
		if err != nil {
			if errors.Is(err, domain.ErrStatusConflict) || errors.Is(err, domain.ErrJobNotFound) {
				d.logger.Debug("Job no longer waiting, skipping", slog.String("job_id", job.ID))
				continue
			}
			return enqueued, err
		}

		if err := d.queue.Put(ctx, *claimed); err != nil {
			// the claimed job stays in processing until recovery reverts it
			return enqueued, err
		}
		enqueued++

		d.logger.Debug("Job dispatched to worker pool", slog.String("job_id", job.ID))
	}

	d.logger.Info("Dispatcher tick complete",
		slog.Int("waiting", len(jobs)),
		slog.Int("enqueued", enqueued),
		slog.Int("queue_size", d.queue.Len()),
	)

	return enqueued, nil
}
