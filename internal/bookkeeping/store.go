// Package bookkeeping records file versions and usage credits in SQLite.
//
// File versions are kept as SCD2 rows: the active row for a (tenant, name)
// pair carries the END_OF_TIME sentinel in valid_to; recording a new version
// closes the old row and inserts a fresh one under the same stable file id.
// All writes are best-effort from the pipeline's point of view.
package bookkeeping

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// endOfTime marks the active SCD2 row.
var endOfTime = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// FileVersion describes one published document version.
type FileVersion struct {
	ExternalFileID string
	UserID         string
	TenantID       string
	CustomerID     string
	ProjectID      string
	Filename       string
	SourceLocator  string
	OutputLocator  string
	Version        int
}

// Usage describes one billable unit of work.
type Usage struct {
	UserID     string
	TenantID   string
	CustomerID string
	ProjectID  string
	TaskType   string
	InputSize  int64
	OutputSize int64
	TokensUsed int64
	ModelUsed  string
}

// Store persists bookkeeping records.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS file_versions (
	file_id          TEXT NOT NULL,
	external_file_id TEXT NOT NULL,
	user_id          TEXT NOT NULL,
	tenant_id        TEXT NOT NULL,
	customer_id      TEXT,
	project_id       TEXT,
	filename         TEXT NOT NULL,
	source_locator   TEXT NOT NULL,
	output_locator   TEXT,
	version          INTEGER NOT NULL,
	valid_from       TIMESTAMP NOT NULL,
	valid_to         TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_file_versions_active
	ON file_versions (tenant_id, filename, valid_to);

CREATE TABLE IF NOT EXISTS usage_credits (
	task_id     TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	tenant_id   TEXT NOT NULL,
	customer_id TEXT,
	project_id  TEXT,
	task_type   TEXT NOT NULL,
	task_time   TIMESTAMP NOT NULL,
	input_size  INTEGER,
	output_size INTEGER,
	tokens_used INTEGER,
	model_used  TEXT
);
`

// Open opens (and migrates) the bookkeeping database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bookkeeping db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate bookkeeping db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordFileVersion closes any active row for (tenant, filename) and inserts
// a new active row. Returns the stable file id, which is inherited from the
// closed row when one exists.
func (s *Store) RecordFileVersion(ctx context.Context, fv FileVersion) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var fileID string
	err = tx.QueryRowContext(ctx,
		`SELECT file_id FROM file_versions
		 WHERE tenant_id = ? AND filename = ? AND valid_to = ?`,
		fv.TenantID, fv.Filename, endOfTime,
	).Scan(&fileID)
	switch {
	case err == sql.ErrNoRows:
		fileID = uuid.NewString()
	case err != nil:
		return "", err
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE file_versions SET valid_to = ?
			 WHERE tenant_id = ? AND filename = ? AND valid_to = ?`,
			now, fv.TenantID, fv.Filename, endOfTime,
		); err != nil {
			return "", err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO file_versions
		 (file_id, external_file_id, user_id, tenant_id, customer_id, project_id,
		  filename, source_locator, output_locator, version, valid_from, valid_to)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fileID, fv.ExternalFileID, fv.UserID, fv.TenantID, fv.CustomerID, fv.ProjectID,
		fv.Filename, fv.SourceLocator, fv.OutputLocator, fv.Version, now, endOfTime,
	); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return fileID, nil
}

// ActiveVersion returns the active version number for (tenant, filename),
// or 0 when none exists.
func (s *Store) ActiveVersion(ctx context.Context, tenantID, filename string) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx,
		`SELECT version FROM file_versions
		 WHERE tenant_id = ? AND filename = ? AND valid_to = ?`,
		tenantID, filename, endOfTime,
	).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return v, err
}

// RecordUsage inserts a usage-credit row and returns its task id.
func (s *Store) RecordUsage(ctx context.Context, u Usage) (string, error) {
	taskID := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_credits
		 (task_id, user_id, tenant_id, customer_id, project_id, task_type,
		  task_time, input_size, output_size, tokens_used, model_used)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		taskID, u.UserID, u.TenantID, u.CustomerID, u.ProjectID, u.TaskType,
		time.Now().UTC(), u.InputSize, u.OutputSize, u.TokensUsed, u.ModelUsed,
	)
	if err != nil {
		return "", err
	}
	return taskID, nil
}
