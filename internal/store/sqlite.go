package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/tripplanner/pkg/jobid"
	"github.com/kiranshivaraju/tripplanner/pkg/models"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS generation_jobs (
    job_id      TEXT PRIMARY KEY,
    storage_key INTEGER NOT NULL,
    status      TEXT NOT NULL,
    prompt      TEXT,
    result      TEXT,
    error       TEXT,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_generation_jobs_storage_key ON generation_jobs (storage_key);
CREATE INDEX IF NOT EXISTS idx_generation_jobs_created_at ON generation_jobs (created_at DESC);
`

// SQLiteStore implements Store on a local SQLite file for single-node deployments.
// Timestamps are stored as unix nanoseconds.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *models.Job) error {
	result, err := encodeResult(job.Result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO generation_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, jobid.StorageKey(job.ID), string(job.Status), job.Prompt, nullableText(result), job.Error,
		job.CreatedAt.UnixNano(), job.UpdatedAt.UnixNano())
	if err != nil {
		if isSQLiteConstraint(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs WHERE storage_key = ? AND job_id = ?`,
		jobid.StorageKey(id), id)
	j, err := scanSQLiteJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus, opts ...JobUpdateOption) error {
	params := collectParams(opts)
	key := jobid.StorageKey(id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs WHERE storage_key = ? AND job_id = ?`, key, id)
	current, err := scanSQLiteJob(row)
	now := s.now()

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if !status.Valid() {
			return fmt.Errorf("%w: -> %s", ErrInvalidTransition, status)
		}
		current = &models.Job{ID: id, StorageKey: key, CreatedAt: now}
		applyUpdate(current, status, params, now)
		result, err := encodeResult(current.Result)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO generation_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, key, string(current.Status), current.Prompt, nullableText(result), current.Error,
			current.CreatedAt.UnixNano(), current.UpdatedAt.UnixNano()); err != nil {
			return fmt.Errorf("upsert job: %w", err)
		}
	case err != nil:
		return fmt.Errorf("get job status: %w", err)
	default:
		if !models.CanTransition(current.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
		}
		applyUpdate(current, status, params, now)
		result, err := encodeResult(current.Result)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE generation_jobs SET status = ?, prompt = ?, result = ?, error = ?, updated_at = ?
			 WHERE storage_key = ? AND job_id = ?`,
			string(current.Status), current.Prompt, nullableText(result), current.Error,
			current.UpdatedAt.UnixNano(), key, id); err != nil {
			return fmt.Errorf("update job status: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListRecentJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs ORDER BY created_at DESC, job_id DESC LIMIT ?`,
		clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM generation_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[models.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

func scanSQLiteJob(row interface{ Scan(dest ...any) error }) (*models.Job, error) {
	var (
		j                models.Job
		status           string
		prompt, result   sql.NullString
		errMsg           sql.NullString
		created, updated int64
	)
	if err := row.Scan(&j.ID, &j.StorageKey, &status, &prompt, &result, &errMsg, &created, &updated); err != nil {
		return nil, err
	}
	j.Status = models.JobStatus(status)
	if prompt.Valid {
		j.Prompt = &prompt.String
	}
	if errMsg.Valid {
		j.Error = &errMsg.String
	}
	if result.Valid {
		r, err := decodeResult([]byte(result.String))
		if err != nil {
			return nil, err
		}
		j.Result = r
	}
	j.CreatedAt = time.Unix(0, created).UTC()
	j.UpdatedAt = time.Unix(0, updated).UTC()
	return &j, nil
}

func nullableText(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func isSQLiteConstraint(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ Store = (*SQLiteStore)(nil)
