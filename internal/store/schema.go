package store

import (
	"context"
	"fmt"

	"github.com/cuongbtq/docconv/shared/database"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS file_task (
		seq                    INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id                 TEXT NOT NULL UNIQUE,
		input_file_path        TEXT NOT NULL,
		md_file_path           TEXT,
		content_list_json_path TEXT,
		status                 TEXT NOT NULL,
		created_at             TIMESTAMP NOT NULL,
		updated_at             TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_file_task_status ON file_task (status, seq)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS file_task (
		seq                    BIGSERIAL PRIMARY KEY,
		job_id                 TEXT NOT NULL UNIQUE,
		input_file_path        TEXT NOT NULL,
		md_file_path           TEXT,
		content_list_json_path TEXT,
		status                 TEXT NOT NULL,
		created_at             TIMESTAMP NOT NULL,
		updated_at             TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_file_task_status ON file_task (status, seq)`,
}

// Migrate creates the file_task table for the connected dialect
func (s *Store) Migrate(ctx context.Context) error {
	statements := sqliteSchema
	if s.db.DriverName() == database.DriverPostgres {
		statements = postgresSchema
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	s.logger.Debug("Task store schema ready")
	return nil
}
