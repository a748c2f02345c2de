package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/docconv/internal/domain"
)

// Recover returns every job left in processing to waiting. It runs before
// the dispatcher starts and again after the workers stop.
func Recover(ctx context.Context, store JobStore, logger *slog.Logger) (int64, error) {
	n, err := store.ResetStatus(ctx, domain.StatusProcessing, domain.StatusWaiting)
	if err != nil {
		return 0, fmt.Errorf("failed to recover interrupted jobs: %w", err)
	}

	logger.Info("Recovered interrupted jobs",
		slog.Int64("count", n),
	)

	return n, nil
}
