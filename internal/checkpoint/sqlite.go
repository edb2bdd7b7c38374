package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration

	"github.com/rfontaine/sundog/internal/job"
)

// defaultBusyTimeout is the SQLite busy_timeout in milliseconds.
const defaultBusyTimeout = 5000

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS checkpoints (
		job_id     TEXT PRIMARY KEY,
		status     TEXT NOT NULL,
		mode       TEXT NOT NULL,
		snapshot   TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`,

	`CREATE INDEX IF NOT EXISTS idx_checkpoints_status ON checkpoints(status, updated_at)`,
}

// migrate creates or updates the database schema to the latest version.
func migrate(db *sql.DB) error {
	ctx := context.TODO()

	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: apply schema: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}

	return nil
}

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) a SQLite-backed store at the given path.
//
// The database uses WAL mode, a 5 s busy timeout, and a single connection
// (SQLite serialises writes). The schema is migrated automatically.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	ctx := context.TODO()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save implements Store. Superseded snapshots for the same job are
// overwritten, not appended, so per-turn saves cannot grow unbounded.
func (s *SQLiteStore) Save(ctx context.Context, cp Checkpoint) error {
	if cp.Job.ID == "" {
		return fmt.Errorf("sqlite: save: empty job id")
	}
	cp.SavedAt = time.Now().UTC()

	snapshot, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("sqlite: marshal checkpoint: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prevStatus string
	err = tx.QueryRowContext(ctx, "SELECT status FROM checkpoints WHERE job_id = ?", cp.Job.ID).Scan(&prevStatus)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First save for this job.
	case err != nil:
		return fmt.Errorf("sqlite: read previous status: %w", err)
	default:
		if job.Status(prevStatus).Terminal() && job.Status(prevStatus) != cp.Job.Status {
			return fmt.Errorf("sqlite: save %s: %w", cp.Job.ID, ErrTerminal)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints (job_id, status, mode, snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			status = excluded.status,
			mode = excluded.mode,
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at`,
		cp.Job.ID, string(cp.Job.Status), string(cp.Job.Mode),
		string(snapshot),
		cp.Job.CreatedAt.UTC().Format(time.RFC3339Nano),
		cp.SavedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit save: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, jobID string) (Checkpoint, error) {
	var snapshot string
	err := s.db.QueryRowContext(ctx,
		"SELECT snapshot FROM checkpoints WHERE job_id = ?", jobID,
	).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, fmt.Errorf("sqlite: load %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("sqlite: load %s: %w", jobID, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal([]byte(snapshot), &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("sqlite: unmarshal %s: %w", jobID, err)
	}
	return cp, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, jobID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE job_id = ?", jobID); err != nil {
		return fmt.Errorf("sqlite: delete %s: %w", jobID, err)
	}
	return nil
}

// SweepExpired implements Store. Only terminal rows are eligible.
func (s *SQLiteStore) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM checkpoints
		WHERE updated_at < ?
		  AND status IN (?, ?, ?, ?)`,
		cutoff.UTC().Format(time.RFC3339Nano),
		string(job.StatusCompleted), string(job.StatusFailed),
		string(job.StatusExhausted), string(job.StatusCancelled),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweep expired: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return int(n), nil
}
