package store

import (
	"context"
	"errors"
	"time"

	"github.com/kiranshivaraju/tripplanner/pkg/models"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrDuplicateKey      = errors.New("duplicate key violation")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Store is the job persistence interface. All job reads and writes go through here.
type Store interface {
	Ping(ctx context.Context) error

	// CreateJob inserts a new job. Returns ErrDuplicateKey if the ID exists.
	CreateJob(ctx context.Context, job *models.Job) error
	// GetJob returns ErrNotFound if the ID is unknown.
	GetJob(ctx context.Context, id string) (*models.Job, error)
	// UpdateJobStatus upserts status and payload fields and bumps updated_at.
	// Returns ErrInvalidTransition when leaving a terminal status.
	UpdateJobStatus(ctx context.Context, id string, status models.JobStatus, opts ...JobUpdateOption) error

	ListRecentJobs(ctx context.Context, limit int) ([]*models.Job, error)
	CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type jobUpdateParams struct {
	Prompt       *string
	Result       *models.Result
	ErrorMessage *string
}

type JobUpdateOption func(*jobUpdateParams)

func WithPrompt(prompt string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Prompt = &prompt
	}
}

func WithResult(r *models.Result) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Result = r
	}
}

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func collectParams(opts []JobUpdateOption) *jobUpdateParams {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}
	return params
}

// applyUpdate mutates job to reflect a status write. Result and error never
// coexist: completing clears the error, failing clears the result.
func applyUpdate(job *models.Job, status models.JobStatus, p *jobUpdateParams, now time.Time) {
	job.Status = status
	job.UpdatedAt = now
	if p.Prompt != nil {
		prompt := *p.Prompt
		job.Prompt = &prompt
	}
	switch status {
	case models.JobStatusCompleted:
		if p.Result != nil {
			job.Result = p.Result
		}
		job.Error = nil
	case models.JobStatusFailed:
		msg := "generation failed"
		if p.ErrorMessage != nil {
			msg = *p.ErrorMessage
		}
		job.Error = &msg
		job.Result = nil
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// newer picks the more advanced of two records for the same job.
func newer(a, b *models.Job) *models.Job {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a.Status.Rank() != b.Status.Rank():
		if a.Status.Rank() > b.Status.Rank() {
			return a
		}
		return b
	case b.UpdatedAt.After(a.UpdatedAt):
		return b
	}
	return a
}

func cloneJob(j *models.Job) *models.Job {
	c := *j
	if j.Prompt != nil {
		p := *j.Prompt
		c.Prompt = &p
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	return &c
}
