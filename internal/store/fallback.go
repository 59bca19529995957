package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/tripplanner/pkg/models"
)

// FallbackConfig controls retry and recovery behavior of a FallbackStore.
type FallbackConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	// HealthCheckInterval is how often Run probes a tripped durable backend.
	// Zero keeps the store on memory for the rest of the process.
	HealthCheckInterval time.Duration
}

// DefaultFallbackConfig makes 3 attempts, 200ms then 400ms apart.
var DefaultFallbackConfig = FallbackConfig{
	MaxRetries:          3,
	BaseDelay:           200 * time.Millisecond,
	HealthCheckInterval: 30 * time.Second,
}

type FallbackOption func(*FallbackStore)

// WithStateHook registers fn to be called whenever the store switches between
// durable and fallback mode.
func WithStateHook(fn func(degraded bool)) FallbackOption {
	return func(s *FallbackStore) {
		s.onStateChange = fn
	}
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) FallbackOption {
	return func(s *FallbackStore) {
		s.sleep = fn
	}
}

func WithLogger(l *slog.Logger) FallbackOption {
	return func(s *FallbackStore) {
		s.logger = l
	}
}

// FallbackStore wraps a durable Store with retries and an in-memory fallback.
// A network-class error trips the breaker: every operation then goes to memory
// until a health check sees the durable backend again. Reads always merge both
// sides so jobs written during an outage stay visible after recovery.
type FallbackStore struct {
	durable Store
	memory  *MemoryStore
	cfg     FallbackConfig

	logger        *slog.Logger
	sleep         func(ctx context.Context, d time.Duration) error
	onStateChange func(degraded bool)

	mu       sync.RWMutex
	degraded bool
}

// NewFallbackStore builds a FallbackStore. A nil durable store means no backend
// is configured and the store runs on memory permanently.
func NewFallbackStore(durable Store, cfg FallbackConfig, opts ...FallbackOption) *FallbackStore {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	s := &FallbackStore{
		durable:  durable,
		memory:   NewMemoryStore(),
		cfg:      cfg,
		logger:   slog.Default(),
		sleep:    sleepCtx,
		degraded: durable == nil,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Degraded reports whether operations are currently served from memory.
func (s *FallbackStore) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

func (s *FallbackStore) setDegraded(v bool, reason error) {
	s.mu.Lock()
	changed := s.degraded != v
	s.degraded = v
	s.mu.Unlock()
	if !changed {
		return
	}
	if v {
		s.logger.Warn("durable job store disabled, using in-memory fallback", "error", reason)
	} else {
		s.logger.Info("durable job store re-enabled")
	}
	if s.onStateChange != nil {
		s.onStateChange(v)
	}
}

// Run probes the durable backend while the breaker is tripped and re-enables it
// once a ping succeeds. Blocks until ctx is done.
func (s *FallbackStore) Run(ctx context.Context) {
	if s.durable == nil || s.cfg.HealthCheckInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probe(ctx)
		}
	}
}

func (s *FallbackStore) probe(ctx context.Context) {
	if !s.Degraded() {
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.durable.Ping(pingCtx); err != nil {
		s.logger.Debug("durable job store still unavailable", "error", err)
		return
	}
	s.setDegraded(false, nil)
}

func (s *FallbackStore) Ping(ctx context.Context) error {
	if s.Degraded() {
		return nil
	}
	return s.durable.Ping(ctx)
}

// errFallback tells callers the durable path was abandoned and memory should serve.
var errFallback = errors.New("durable store unavailable")

// withDurable runs fn against the durable store with retries. It returns
// errFallback when the breaker is (or becomes) open, the last error when retries
// run out, and lifecycle errors immediately.
func (s *FallbackStore) withDurable(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if s.Degraded() {
		return errFallback
	}

	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := s.cfg.BaseDelay * time.Duration(1<<(attempt-1))
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
		}

		err := fn(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrDuplicateKey), errors.Is(err, ErrInvalidTransition):
			return err
		case IsNetworkError(err) && ctx.Err() == nil:
			s.setDegraded(true, err)
			return errFallback
		}
		lastErr = err
		s.logger.Warn("durable job store operation failed",
			"op", op, "attempt", attempt+1, "max_attempts", s.cfg.MaxRetries, "error", err)
	}
	return fmt.Errorf("%s: retries exhausted: %w", op, lastErr)
}

func (s *FallbackStore) CreateJob(ctx context.Context, job *models.Job) error {
	err := s.withDurable(ctx, "create job", func(ctx context.Context) error {
		return s.durable.CreateJob(ctx, job)
	})
	if errors.Is(err, errFallback) {
		return s.memory.CreateJob(ctx, job)
	}
	return err
}

func (s *FallbackStore) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus, opts ...JobUpdateOption) error {
	err := s.withDurable(ctx, "update job status", func(ctx context.Context) error {
		return s.durable.UpdateJobStatus(ctx, id, status, opts...)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, context.Canceled):
		return err
	case !errors.Is(err, errFallback):
		// Keep the status write rather than losing it after retries run out.
		s.logger.Warn("writing job status to in-memory fallback", "job_id", id, "status", status, "error", err)
	}
	return s.memory.UpdateJobStatus(ctx, id, status, opts...)
}

func (s *FallbackStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var durableJob *models.Job
	err := s.withDurable(ctx, "get job", func(ctx context.Context) error {
		j, err := s.durable.GetJob(ctx, id)
		durableJob = j
		return err
	})
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, errFallback) {
		s.logger.Warn("reading job from in-memory fallback", "job_id", id, "error", err)
	}

	memJob, memErr := s.memory.GetJob(ctx, id)
	if memErr != nil && !errors.Is(memErr, ErrNotFound) {
		return nil, memErr
	}

	j := newer(durableJob, memJob)
	if j == nil {
		return nil, ErrNotFound
	}
	return j, nil
}

func (s *FallbackStore) ListRecentJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	var durableJobs []*models.Job
	err := s.withDurable(ctx, "list recent jobs", func(ctx context.Context) error {
		jobs, err := s.durable.ListRecentJobs(ctx, limit)
		durableJobs = jobs
		return err
	})
	if err != nil && !errors.Is(err, errFallback) {
		s.logger.Warn("listing jobs from in-memory fallback only", "error", err)
	}

	memJobs, err := s.memory.ListRecentJobs(ctx, limit)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Job, len(durableJobs)+len(memJobs))
	for _, j := range durableJobs {
		byID[j.ID] = j
	}
	for _, j := range memJobs {
		byID[j.ID] = newer(byID[j.ID], j)
	}
	merged := make([]*models.Job, 0, len(byID))
	for _, j := range byID {
		merged = append(merged, j)
	}
	sortRecent(merged)
	if n := clampLimit(limit); len(merged) > n {
		merged = merged[:n]
	}
	return merged, nil
}

// CountJobsByStatus sums durable and fallback counts. A job written to both
// sides during an outage is counted twice; the numbers are diagnostic only.
func (s *FallbackStore) CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	counts := make(map[models.JobStatus]int)
	err := s.withDurable(ctx, "count jobs by status", func(ctx context.Context) error {
		c, err := s.durable.CountJobsByStatus(ctx)
		if err != nil {
			return err
		}
		for k, v := range c {
			counts[k] = v
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFallback) {
		s.logger.Warn("counting jobs from in-memory fallback only", "error", err)
	}

	memCounts, err := s.memory.CountJobsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	for k, v := range memCounts {
		counts[k] += v
	}
	return counts, nil
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

var _ Store = (*FallbackStore)(nil)
