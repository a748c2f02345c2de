package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateID is returned when a job with the same id already exists
	ErrDuplicateID = errors.New("job id already exists")

	// ErrJobNotFound is returned when a job cannot be found in the store
	ErrJobNotFound = errors.New("job not found")

	// ErrStatusConflict is returned when a guarded update finds the job in another status
	ErrStatusConflict = errors.New("job status changed concurrently")

	// ErrExtractionFailed is returned when the extraction tool fails or its artifacts are unusable
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrCorrectionFailed is returned when the language model output cannot be used
	ErrCorrectionFailed = errors.New("correction failed")

	// ErrStoreUnavailable is returned when the task store cannot be reached
	ErrStoreUnavailable = errors.New("task store unavailable")
)

// ErrorKind classifies a job failure
type ErrorKind string

const (
	KindExtraction ErrorKind = "extraction"
	KindCorrection ErrorKind = "correction"
	KindStore      ErrorKind = "store"
	KindIO         ErrorKind = "io"
	KindPanic      ErrorKind = "panic"
)

// JobError is the single failure result of processing one job
type JobError struct {
	Kind  ErrorKind
	JobID string
	Err   error
	Stack []byte // set for panics only
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s: %s: %v", e.JobID, e.Kind, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// NewJobError wraps err with a kind, inferring it from the sentinel chain
// when kind is empty.
func NewJobError(jobID string, kind ErrorKind, err error) *JobError {
	var je *JobError
	if errors.As(err, &je) {
		return je
	}
	if kind == "" {
		kind = KindOf(err)
	}
	return &JobError{Kind: kind, JobID: jobID, Err: err}
}

// KindOf maps an error to its taxonomy kind
func KindOf(err error) ErrorKind {
	var je *JobError
	switch {
	case errors.As(err, &je):
		return je.Kind
	case errors.Is(err, ErrExtractionFailed):
		return KindExtraction
	case errors.Is(err, ErrCorrectionFailed):
		return KindCorrection
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrJobNotFound), errors.Is(err, ErrStatusConflict):
		return KindStore
	default:
		return KindIO
	}
}
