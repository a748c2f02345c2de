package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/cuongbtq/docconv/internal/domain"
	"github.com/cuongbtq/docconv/internal/service"
)

// JobService is the submission and status surface used by the handlers
type JobService interface {
	SubmitUpload(ctx context.Context, filename, userName string, r io.Reader) (*domain.Job, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
	Status(ctx context.Context, id string, waitForCorrection bool) (*service.StatusResult, error)
	List(ctx context.Context, status domain.Status) ([]domain.Job, error)
}

// HealthChecker reports whether a backing dependency is usable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
	Stats() string
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Service  JobService
	DBHealth HealthChecker
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger  *slog.Logger
	service JobService
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:  deps.Logger,
		service: deps.Service,
	}
}
