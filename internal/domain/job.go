package domain

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// Job represents one document conversion tracked by the task store
type Job struct {
	ID                  string
	InputPath           string
	OutputPath          *string
	ContentArtifactPath *string
	Status              Status
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// JobID derives the deterministic job id for an uploaded file
func JobID(filename, userName string) string {
	sum := md5.Sum([]byte(filename + userName))
	return hex.EncodeToString(sum[:])
}

// ContentBlock is one entry of the extraction tool's content list
type ContentBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	TextLevel *int   `json:"text_level,omitempty"`
	PageIdx   int    `json:"page_idx"`
}

// JobEvent is published on every status transition made by the worker
type JobEvent struct {
	EventID    string    `json:"event_id"`
	JobID      string    `json:"job_id"`
	Status     Status    `json:"status"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	WorkerID   string    `json:"worker_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
