package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/tripplanner/pkg/jobid"
	"github.com/kiranshivaraju/tripplanner/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
// Rows are addressed by (storage_key, job_id): the numeric key is the
// indexed lookup column and the handle disambiguates key collisions.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const jobColumns = `job_id, storage_key, status, prompt, result, error, created_at, updated_at`

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	result, err := encodeResult(job.Result)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO generation_jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, jobid.StorageKey(job.ID), job.Status, job.Prompt, result, job.Error,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs WHERE storage_key = $1 AND job_id = $2`,
		jobid.StorageKey(id), id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus, opts ...JobUpdateOption) error {
	params := collectParams(opts)
	key := jobid.StorageKey(id)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+jobColumns+` FROM generation_jobs
			 WHERE storage_key = $1 AND job_id = $2 FOR UPDATE`, key, id)
		current, err := scanJob(row)

		now := time.Now().UTC()
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			if !status.Valid() {
				return fmt.Errorf("%w: -> %s", ErrInvalidTransition, status)
			}
			current = &models.Job{ID: id, StorageKey: key, CreatedAt: now}
			applyUpdate(current, status, params, now)
			result, err := encodeResult(current.Result)
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO generation_jobs (`+jobColumns+`)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				current.ID, key, current.Status, current.Prompt, result, current.Error,
				current.CreatedAt, current.UpdatedAt)
			if err != nil {
				return fmt.Errorf("upsert job: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("get job status: %w", err)
		}

		if !models.CanTransition(current.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
		}
		applyUpdate(current, status, params, now)

		result, err := encodeResult(current.Result)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE generation_jobs
			 SET status = $3, prompt = $4, result = $5, error = $6, updated_at = $7
			 WHERE storage_key = $1 AND job_id = $2`,
			key, id, current.Status, current.Prompt, result, current.Error, current.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update job status: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) ListRecentJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs
		 ORDER BY created_at DESC, job_id DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM generation_jobs GROUP BY status`)
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

// scanJob reads one row in jobColumns order. Works for pgx rows and sql rows.
func scanJob(row interface{ Scan(dest ...any) error }) (*models.Job, error) {
	var (
		j      models.Job
		status string
		result []byte
	)
	if err := row.Scan(&j.ID, &j.StorageKey, &status, &j.Prompt, &result, &j.Error,
		&j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Status = models.JobStatus(status)
	r, err := decodeResult(result)
	if err != nil {
		return nil, err
	}
	j.Result = r
	return &j, nil
}

func encodeResult(r *models.Result) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return b, nil
}

func decodeResult(b []byte) (*models.Result, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var r models.Result
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &r, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
