package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/docconv/internal/domain"
)

// publish emits a status event. Publishing failures never fail the job.
func (w *Worker) publish(ctx context.Context, jobID string, status domain.Status, jobErr *domain.JobError) {
	if w.publisher == nil {
		return
	}

	event := domain.JobEvent{
		EventID:    uuid.New().String(),
		JobID:      jobID,
		Status:     status,
		WorkerID:   w.workerID,
		OccurredAt: time.Now().UTC(),
	}
	if jobErr != nil {
		event.ErrorKind = string(jobErr.Kind)
		event.Error = jobErr.Err.Error()
	}

	body, err := json.Marshal(event)
	if err != nil {
		w.logger.Error("Failed to encode job event",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		return
	}

	if err := w.publisher.Publish(ctx, body, "application/json"); err != nil {
		w.logger.Warn("Failed to publish job event",
			slog.String("job_id", jobID),
			slog.String("status", string(status)),
			slog.Any("error", err),
		)
	}
}
