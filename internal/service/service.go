// Package service is the submission and status surface of the job queue.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuongbtq/docconv/internal/domain"
	"github.com/cuongbtq/docconv/internal/store"
)

var (
	// ErrInvalidFilename is returned for upload names that are not a plain file name
	ErrInvalidFilename = errors.New("invalid filename")

	// ErrDocumentUnavailable is returned when a ready job has no readable document
	ErrDocumentUnavailable = errors.New("document not found after processing")
)

// JobStore is the subset of the task store used for submission and lookup
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	Read(ctx context.Context, filter store.Filter) ([]domain.Job, error)
}

// Config holds upload storage settings
type Config struct {
	DataDir        string
	ReadRetries    int
	ReadRetryDelay time.Duration
}

// StatusResult is the answer to a status query
type StatusResult struct {
	Job      *domain.Job
	Filename string

	// Ready is set when Document holds the refined document
	Ready    bool
	Document []byte
}

// JobService accepts documents and reports on their conversion
type JobService struct {
	store  JobStore
	config Config
	logger *slog.Logger
}

// NewJobService creates a new JobService instance
func NewJobService(store JobStore, config Config, logger *slog.Logger) *JobService {
	if config.ReadRetries <= 0 {
		config.ReadRetries = 1
	}
	return &JobService{
		store:  store,
		config: config,
		logger: logger,
	}
}

// Submit registers a waiting job for a document already on disk
func (s *JobService) Submit(ctx context.Context, id, inputPath string) (*domain.Job, error) {
	job := &domain.Job{
		ID:        id,
		InputPath: inputPath,
		Status:    domain.StatusWaiting,
	}

	if err := s.store.Create(ctx, job); err != nil {
		if errors.Is(err, domain.ErrDuplicateID) {
			s.logger.Info("Job already exists", slog.String("job_id", id))
		}
		return nil, err
	}

	return job, nil
}

// SubmitUpload stores an uploaded document under <data_dir>/<id>/<filename>
// and submits it. The id is derived from filename and userName, so the same
// user uploading the same name twice gets ErrDuplicateID. The file is written
// in full before it takes the final name, and an existing file is never
// replaced.
func (s *JobService) SubmitUpload(ctx context.Context, filename, userName string, r io.Reader) (*domain.Job, error) {
	name := filepath.Base(filename)
	if name != filename || name == "." || name == ".." || strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}

	id := domain.JobID(filename, userName)
	log := s.logger.With(slog.String("job_id", id))

	if _, err := s.store.Get(ctx, id); err == nil {
		log.Info("Job already exists", slog.String("filename", filename))
		return nil, domain.ErrDuplicateID
	} else if !errors.Is(err, domain.ErrJobNotFound) {
		return nil, err
	}

	dir := filepath.Join(s.config.DataDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	tmpPath, err := saveTemp(dir, r)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmpPath)

	// the final name is taken by whichever upload gets there first
	inputPath := filepath.Join(dir, name)
	placeholder, err := os.OpenFile(inputPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		log.Info("Job already exists", slog.String("filename", filename))
		return nil, domain.ErrDuplicateID
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", inputPath, err)
	}
	placeholder.Close()

	if err := os.Rename(tmpPath, inputPath); err != nil {
		os.Remove(inputPath)
		return nil, fmt.Errorf("failed to move upload into place: %w", err)
	}
	log.Info("File saved", slog.String("path", inputPath))

	job, err := s.Submit(ctx, id, inputPath)
	if err != nil {
		os.Remove(inputPath)
		return nil, err
	}
	return job, nil
}

// saveTemp writes r to a hidden temporary file in dir
func saveTemp(dir string, r io.Reader) (string, error) {
	f, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	return f.Name(), nil
}

// Status reports a job's state. The refined document is returned once the
// job is finished, or already once it is converted when waitForCorrection
// is false.
func (s *JobService) Status(ctx context.Context, id string, waitForCorrection bool) (*StatusResult, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &StatusResult{
		Job:      job,
		Filename: filepath.Base(job.InputPath),
	}

	ready := job.Status == domain.StatusFinished ||
		(job.Status == domain.StatusConverted && !waitForCorrection)
	if !ready {
		return result, nil
	}

	if job.OutputPath == nil {
		return nil, ErrDocumentUnavailable
	}

	doc, err := s.readDocument(ctx, *job.OutputPath)
	if err != nil {
		return nil, err
	}

	result.Ready = true
	result.Document = doc
	return result, nil
}

// Get returns the task record for id
func (s *JobService) Get(ctx context.Context, id string) (*domain.Job, error) {
	return s.store.Get(ctx, id)
}

// List returns jobs in insertion order, optionally restricted to one status
func (s *JobService) List(ctx context.Context, status domain.Status) ([]domain.Job, error) {
	return s.store.Read(ctx, store.Filter{Status: status})
}

// readDocument retries while the worker may still be replacing the file
func (s *JobService) readDocument(ctx context.Context, path string) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		data, err := os.ReadFile(path)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read document: %w", err)
		}
		if attempt >= s.config.ReadRetries {
			s.logger.Error("Document not found",
				slog.String("path", path),
				slog.Int("attempts", attempt),
			)
			return nil, ErrDocumentUnavailable
		}

		s.logger.Info("Document not found, retrying",
			slog.String("path", path),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", s.config.ReadRetries),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.config.ReadRetryDelay):
		}
	}
}
