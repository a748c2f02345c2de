package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/docconv/internal/domain"
	"github.com/cuongbtq/docconv/shared/database"
)

const (
	maxBusyRetries = 5
	busyBackoff    = 50 * time.Millisecond
)

const jobColumns = `job_id, input_file_path, md_file_path, content_list_json_path, status, created_at, updated_at`

// Filter selects jobs by exact match on the set fields
type Filter struct {
	ID        string
	Status    domain.Status
	InputPath string
}

// Update lists the fields to change. Nil fields are left untouched.
type Update struct {
	Status              *domain.Status
	OutputPath          *string
	ContentArtifactPath *string

	// ExpectStatus turns the update into a compare-and-set on the current status
	ExpectStatus *domain.Status
}

// row mirrors the file_task table
type row struct {
	JobID               string         `db:"job_id"`
	InputPath           string         `db:"input_file_path"`
	OutputPath          sql.NullString `db:"md_file_path"`
	ContentArtifactPath sql.NullString `db:"content_list_json_path"`
	Status              string         `db:"status"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

func (r *row) toJob() domain.Job {
	job := domain.Job{
		ID:        r.JobID,
		InputPath: r.InputPath,
		Status:    domain.Status(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.OutputPath.Valid {
		v := r.OutputPath.String
		job.OutputPath = &v
	}
	if r.ContentArtifactPath.Valid {
		v := r.ContentArtifactPath.String
		job.ContentArtifactPath = &v
	}
	return job
}

// Store persists conversion jobs. Every method is a single statement.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a new Store instance
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a new job. ErrDuplicateID is returned when the id exists.
func (s *Store) Create(ctx context.Context, job *domain.Job) error {
	query := s.db.Rebind(`
		INSERT INTO file_task (job_id, input_file_path, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (job_id) DO NOTHING
	`)

	if job.Status == "" {
		job.Status = domain.StatusWaiting
	}
	now := s.now()

	var affected int64
	err := s.withBusyRetry(ctx, "create", func() error {
		res, err := s.db.ExecContext(ctx, query, job.ID, job.InputPath, string(job.Status), now, now)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create job: %w: %w", domain.ErrStoreUnavailable, err)
	}

	if affected == 0 {
		return domain.ErrDuplicateID
	}

	job.CreatedAt = now
	job.UpdatedAt = now

	s.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("input_path", job.InputPath),
	)

	return nil
}

// Read returns the jobs matching filter in insertion order
func (s *Store) Read(ctx context.Context, filter Filter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM file_task WHERE 1=1`
	args := []interface{}{}

	if filter.ID != "" {
		query += " AND job_id = ?"
		args = append(args, filter.ID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.InputPath != "" {
		query += " AND input_file_path = ?"
		args = append(args, filter.InputPath)
	}
	query += " ORDER BY seq ASC"

	var rows []row
	err := s.withBusyRetry(ctx, "read", func() error {
		rows = rows[:0]
		return s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs: %w: %w", domain.ErrStoreUnavailable, err)
	}

	jobs := make([]domain.Job, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, rows[i].toJob())
	}
	return jobs, nil
}

// Get retrieves a job by its id
func (s *Store) Get(ctx context.Context, id string) (*domain.Job, error) {
	jobs, err := s.Read(ctx, Filter{ID: id})
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, domain.ErrJobNotFound
	}
	return &jobs[0], nil
}

// Update writes the set fields and refreshes updated_at
func (s *Store) Update(ctx context.Context, id string, upd Update) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{s.now()}

	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.OutputPath != nil {
		sets = append(sets, "md_file_path = ?")
		args = append(args, *upd.OutputPath)
	}
	if upd.ContentArtifactPath != nil {
		sets = append(sets, "content_list_json_path = ?")
		args = append(args, *upd.ContentArtifactPath)
	}

	query := "UPDATE file_task SET " + strings.Join(sets, ", ") + " WHERE job_id = ?"
	args = append(args, id)
	if upd.ExpectStatus != nil {
		query += " AND status = ?"
		args = append(args, string(*upd.ExpectStatus))
	}

	var affected int64
	err := s.withBusyRetry(ctx, "update", func() error {
		res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update job: %w: %w", domain.ErrStoreUnavailable, err)
	}

	if affected == 0 {
		return s.missOrConflict(ctx, id, upd.ExpectStatus != nil)
	}

	attrs := []any{slog.String("job_id", id)}
	if upd.Status != nil {
		attrs = append(attrs, slog.String("status", string(*upd.Status)))
	}
	s.logger.Info("Job updated", attrs...)

	return nil
}

// ClaimJob moves a waiting job to processing. A job that is no longer
// waiting yields ErrStatusConflict.
func (s *Store) ClaimJob(ctx context.Context, id string) (*domain.Job, error) {
	query := s.db.Rebind(`
		UPDATE file_task
		SET status = ?,
		    updated_at = ?
		WHERE job_id = ?
		  AND status = ?
		RETURNING ` + jobColumns)

	var r row
	err := s.withBusyRetry(ctx, "claim", func() error {
		return s.db.QueryRowxContext(ctx, query,
			string(domain.StatusProcessing), s.now(), id, string(domain.StatusWaiting),
		).StructScan(&r)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - already claimed or not found",
				slog.String("job_id", id),
			)
			return nil, s.missOrConflict(ctx, id, true)
		}
		return nil, fmt.Errorf("failed to claim job: %w: %w", domain.ErrStoreUnavailable, err)
	}

	job := r.toJob()
	s.logger.Info("Job claimed successfully", slog.String("job_id", id))

	return &job, nil
}

// ResetStatus moves every job in status from to status to and returns the count
func (s *Store) ResetStatus(ctx context.Context, from, to domain.Status) (int64, error) {
	query := s.db.Rebind(`UPDATE file_task SET status = ?, updated_at = ? WHERE status = ?`)

	var affected int64
	err := s.withBusyRetry(ctx, "reset", func() error {
		res, err := s.db.ExecContext(ctx, query, string(to), s.now(), string(from))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reset job status: %w: %w", domain.ErrStoreUnavailable, err)
	}

	return affected, nil
}

func (s *Store) missOrConflict(ctx context.Context, id string, guarded bool) error {
	if !guarded {
		return domain.ErrJobNotFound
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return domain.ErrStatusConflict
}

// withBusyRetry retries fn while SQLite reports a lock held by another writer
func (s *Store) withBusyRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxBusyRetries; attempt++ {
		err = fn()
		if err == nil || !database.IsBusy(err) {
			return err
		}

		s.logger.Warn("Task store busy, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * busyBackoff):
		}
	}
	return err
}
