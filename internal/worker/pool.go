package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/cuongbtq/docconv/internal/domain"
	"github.com/cuongbtq/docconv/internal/store"
)

// spawnWorkerPool spawns N consumer goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	loopCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-w.stopChan:
		case <-loopCtx.Done():
		}
		cancel()
	}()

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(loopCtx, i)
	}

	w.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop takes jobs off the queue one at a time until ctx is canceled
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		job, err := w.queue.Get(ctx)
		if err != nil {
			w.logger.Info("Worker goroutine stopping",
				slog.String("worker_name", workerName),
				slog.String("reason", err.Error()),
			)
			return
		}

		w.logger.Info("Worker received job",
			slog.String("worker_name", workerName),
			slog.String("job_id", job.ID),
			slog.Int("queue_size", w.queue.Len()),
		)

		// a dequeued job is finished even if shutdown starts meanwhile
		w.handleJob(context.WithoutCancel(ctx), job)
	}
}

// handleJob is the single failure boundary for one job
func (w *Worker) handleJob(ctx context.Context, job domain.Job) {
	defer w.queue.TaskDone()

	// last status this worker wrote for the job
	state := domain.StatusProcessing
	if err := w.runJob(ctx, job, &state); err != nil {
		w.failJob(ctx, job.ID, state, err)
		return
	}

	w.logger.Info("Job completed successfully",
		slog.String("job_id", job.ID),
	)
}

// runJob converts a panic inside processJob into a JobError
func (w *Worker) runJob(ctx context.Context, job domain.Job, state *domain.Status) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.JobError{
				Kind:  domain.KindPanic,
				JobID: job.ID,
				Err:   fmt.Errorf("panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	return w.processJob(ctx, job, state)
}

// failJob logs the failure and marks the job as error, provided it still
// holds the status this worker last wrote. Failed jobs are terminal; there
// is no automatic retry.
func (w *Worker) failJob(ctx context.Context, jobID string, expect domain.Status, err error) {
	jobErr := domain.NewJobError(jobID, "", err)

	attrs := []any{
		slog.String("job_id", jobID),
		slog.String("kind", string(jobErr.Kind)),
		slog.Any("error", jobErr.Err),
	}
	if len(jobErr.Stack) > 0 {
		attrs = append(attrs, slog.String("stack", string(jobErr.Stack)))
	}
	w.logger.Error("Job processing failed", attrs...)

	// the job was taken from this worker, e.g. reverted to waiting by recovery
	if errors.Is(err, domain.ErrStatusConflict) {
		w.logger.Warn("Job status changed while in flight, leaving it as is",
			slog.String("job_id", jobID),
			slog.String("expected_status", string(expect)),
		)
		return
	}

	status := domain.StatusError
	updateErr := w.store.Update(ctx, jobID, store.Update{Status: &status, ExpectStatus: &expect})
	if updateErr != nil {
		if errors.Is(updateErr, domain.ErrJobNotFound) {
			w.logger.Warn("Failed job no longer exists", slog.String("job_id", jobID))
			return
		}
		if errors.Is(updateErr, domain.ErrStatusConflict) {
			w.logger.Warn("Job status changed while in flight, leaving it as is",
				slog.String("job_id", jobID),
				slog.String("expected_status", string(expect)),
			)
			return
		}
		w.logger.Error("Failed to update job status to error",
			slog.String("job_id", jobID),
			slog.Any("error", updateErr),
		)
		return
	}

	w.publish(ctx, jobID, domain.StatusError, jobErr)
}
