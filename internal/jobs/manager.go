// Package jobs runs the itinerary generation job lifecycle: submission,
// background generation, and terminal status writes.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/tripplanner/internal/ai"
	"github.com/kiranshivaraju/tripplanner/internal/cache"
	"github.com/kiranshivaraju/tripplanner/internal/itinerary"
	"github.com/kiranshivaraju/tripplanner/internal/metrics"
	"github.com/kiranshivaraju/tripplanner/internal/store"
	"github.com/kiranshivaraju/tripplanner/pkg/jobid"
	"github.com/kiranshivaraju/tripplanner/pkg/models"
)

var (
	// ErrCreateFailed means no job record could be created and verified.
	ErrCreateFailed = errors.New("could not create generation job")
	// ErrBusy means the job was created but no worker slot was available.
	ErrBusy = errors.New("generation capacity exhausted")
)

const (
	defaultCreateAttempts = 3
	defaultCreateBackoff  = 200 * time.Millisecond
	statusCacheTTL        = 30 * time.Minute
	// writeTimeout bounds terminal status writes, which run detached from
	// the worker's context.
	writeTimeout = 30 * time.Second
)

// Config tunes a Manager.
type Config struct {
	// NormalizeOnServer stores normalized itineraries; false stores raw model
	// output for the client to normalize.
	NormalizeOnServer bool
	CreateAttempts    int
	CreateBackoff     time.Duration
}

// SubmitOptions carries request context that affects generation.
type SubmitOptions struct {
	Kind   jobid.Kind
	Mobile bool
}

// Manager owns the job lifecycle. Status is communicated only through the store.
type Manager struct {
	store   store.Store
	cache   cache.Cache
	invoker *ai.Invoker
	queue   *Queue
	metrics *metrics.Recorder
	cfg     Config
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewManager wires a Manager. ca and rec may be nil.
func NewManager(st store.Store, ca cache.Cache, inv *ai.Invoker, q *Queue, rec *metrics.Recorder, cfg Config) *Manager {
	if ca == nil {
		ca = cache.NopCache{}
	}
	if cfg.CreateAttempts < 1 {
		cfg.CreateAttempts = defaultCreateAttempts
	}
	if cfg.CreateBackoff <= 0 {
		cfg.CreateBackoff = defaultCreateBackoff
	}
	return &Manager{
		store:   st,
		cache:   ca,
		invoker: inv,
		queue:   q,
		metrics: rec,
		cfg:     cfg,
		sleep:   sleepCtx,
	}
}

// Submit validates req, creates the job, marks it processing and hands
// generation to the worker queue. It returns as soon as the job is queued.
func (m *Manager) Submit(ctx context.Context, req models.TripRequest, opts SubmitOptions) (string, error) {
	if err := itinerary.Validate(req); err != nil {
		return "", err
	}
	if opts.Kind == "" {
		opts.Kind = jobid.KindJob
	}
	system, user := itinerary.BuildPrompt(req)

	id := jobid.New(opts.Kind)
	if err := m.createAndVerify(ctx, id); err != nil {
		return "", err
	}

	if err := m.store.UpdateJobStatus(ctx, id, models.JobStatusProcessing, store.WithPrompt(user)); err != nil {
		return "", fmt.Errorf("marking job processing: %w", err)
	}
	m.cacheStatus(ctx, id, models.JobStatusProcessing)

	genReq := ai.GenerateRequest{JobID: id, SystemPrompt: system, UserPrompt: user, Mobile: opts.Mobile}
	err := m.queue.Enqueue(Task{
		JobID: id,
		Run:   func(ctx context.Context) { m.generate(ctx, genReq) },
		Fail: func(ctx context.Context, err error) {
			m.fail(ctx, id, ai.AsGenerationError(err).Message, string(ai.FailureUnknown))
		},
	})
	if err != nil {
		m.fail(ctx, id, "The itinerary service is busy. Please try again in a moment.", "busy")
		return "", fmt.Errorf("%w: %v", ErrBusy, err)
	}

	m.metrics.JobSubmitted(string(opts.Kind))
	slog.Info("generation job submitted", "job_id", id, "status", models.JobStatusProcessing,
		"destination", req.Destination, "mobile", opts.Mobile)
	return id, nil
}

// createAndVerify creates the job and reads it back, retrying the pair so a
// job is never handed out before it is visible to status lookups.
func (m *Manager) createAndVerify(ctx context.Context, id string) error {
	var lastErr error
	for attempt := 0; attempt < m.cfg.CreateAttempts; attempt++ {
		if attempt > 0 {
			if err := m.sleep(ctx, m.cfg.CreateBackoff*time.Duration(1<<(attempt-1))); err != nil {
				return fmt.Errorf("%w: %v", ErrCreateFailed, err)
			}
		}

		now := time.Now().UTC()
		err := m.store.CreateJob(ctx, &models.Job{
			ID:        id,
			Status:    models.JobStatusQueued,
			CreatedAt: now,
			UpdatedAt: now,
		})
		// A duplicate means an earlier attempt landed; verify it.
		if err != nil && !errors.Is(err, store.ErrDuplicateKey) {
			lastErr = err
			slog.Warn("create job failed", "job_id", id, "attempt", attempt+1, "error", err)
			continue
		}

		if _, err := m.store.GetJob(ctx, id); err != nil {
			lastErr = err
			slog.Warn("created job not yet visible", "job_id", id, "attempt", attempt+1, "error", err)
			continue
		}
		m.cacheStatus(ctx, id, models.JobStatusQueued)
		return nil
	}
	return fmt.Errorf("%w: %v", ErrCreateFailed, lastErr)
}

// generate runs on a worker. Every path ends in a terminal status write.
func (m *Manager) generate(ctx context.Context, req ai.GenerateRequest) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in generation", "error", r, "job_id", req.JobID)
			m.fail(ctx, req.JobID, fmt.Sprintf("Failed to generate itinerary: %v", r), string(ai.FailureUnknown))
		}
	}()

	start := time.Now()
	raw, err := m.invoker.Generate(ctx, req)
	provider := m.invoker.Provider().Name()
	if err != nil {
		genErr := ai.AsGenerationError(err)
		m.metrics.ObserveGeneration(provider, "failed", time.Since(start))
		m.fail(ctx, req.JobID, genErr.Message, string(genErr.Kind))
		return
	}
	m.metrics.ObserveGeneration(provider, "completed", time.Since(start))

	_ = m.Complete(ctx, req.JobID, raw)
}

// Complete records successful model output. With server-side normalization
// the text is parsed first and unparseable output fails the job instead.
func (m *Manager) Complete(ctx context.Context, id, raw string) error {
	result := models.RawResult(raw)
	if m.cfg.NormalizeOnServer {
		doc, err := itinerary.ParseAndNormalize(raw)
		if err != nil {
			slog.Warn("generated itinerary unparseable", "job_id", id, "error", err)
			return m.fail(ctx, id, fmt.Sprintf("The generated itinerary could not be read: %v", err), "parse")
		}
		result = models.NormalizedResult(doc)
	}

	wctx, cancel := detached(ctx)
	defer cancel()
	if err := m.store.UpdateJobStatus(wctx, id, models.JobStatusCompleted, store.WithResult(result)); err != nil {
		slog.Error("failed to mark job completed", "job_id", id, "error", err)
		return err
	}
	m.cacheStatus(wctx, id, models.JobStatusCompleted)
	m.metrics.JobCompleted()
	slog.Info("generation job completed", "job_id", id, "status", models.JobStatusCompleted,
		"processed", result.Processed())
	return nil
}

// Fail marks the job failed with a user-facing message.
func (m *Manager) Fail(ctx context.Context, id, message string) error {
	return m.fail(ctx, id, message, string(ai.FailureUnknown))
}

func (m *Manager) fail(ctx context.Context, id, message, kind string) error {
	if message == "" {
		message = "generation failed"
	}
	wctx, cancel := detached(ctx)
	defer cancel()
	if err := m.store.UpdateJobStatus(wctx, id, models.JobStatusFailed, store.WithErrorMessage(message)); err != nil {
		slog.Error("failed to mark job failed", "job_id", id, "error", err)
		return err
	}
	m.cacheStatus(wctx, id, models.JobStatusFailed)
	m.metrics.JobFailed(kind)
	slog.Info("generation job failed", "job_id", id, "status", models.JobStatusFailed,
		"failure_kind", kind, "message", message)
	return nil
}

// GetStatus returns the client view of a job. Unknown ids yield status
// not_found rather than an error. While the store has no record, a non-terminal
// status from the cache is reported instead.
func (m *Manager) GetStatus(ctx context.Context, id string) (models.StatusView, error) {
	job, err := m.store.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		if st, ok, cerr := m.cache.GetJobStatus(ctx, id); cerr == nil && ok && st.Valid() && !st.Terminal() {
			return models.StatusView{JobID: id, Status: st}, nil
		}
		return models.StatusView{JobID: id, Status: models.JobStatusNotFound}, nil
	}
	if err != nil {
		return models.StatusView{}, fmt.Errorf("getting job status: %w", err)
	}
	return job.View(), nil
}

func (m *Manager) cacheStatus(ctx context.Context, id string, status models.JobStatus) {
	if err := m.cache.SetJobStatus(ctx, id, status, statusCacheTTL); err != nil {
		slog.Debug("status cache write failed", "job_id", id, "error", err)
	}
}

// detached keeps terminal writes alive when the worker context is cancelled
// during shutdown.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
