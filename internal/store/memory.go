package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kiranshivaraju/tripplanner/pkg/jobid"
	"github.com/kiranshivaraju/tripplanner/pkg/models"
)

// MemoryStore keeps jobs in process memory. It serves as the STORE_BACKEND=memory
// backend and as the fallback behind FallbackStore. Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
	now  func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*models.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return ErrDuplicateKey
	}
	c := cloneJob(job)
	c.StorageKey = jobid.StorageKey(job.ID)
	s.jobs[job.ID] = c
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(j), nil
}

func (s *MemoryStore) UpdateJobStatus(_ context.Context, id string, status models.JobStatus, opts ...JobUpdateOption) error {
	params := collectParams(opts)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		if !status.Valid() {
			return fmt.Errorf("%w: -> %s", ErrInvalidTransition, status)
		}
		j = &models.Job{ID: id, StorageKey: jobid.StorageKey(id), CreatedAt: now}
		applyUpdate(j, status, params, now)
		s.jobs[id] = j
		return nil
	}
	if !models.CanTransition(j.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, status)
	}
	applyUpdate(j, status, params, now)
	return nil
}

func (s *MemoryStore) ListRecentJobs(_ context.Context, limit int) ([]*models.Job, error) {
	s.mu.RLock()
	jobs := make([]*models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, cloneJob(j))
	}
	s.mu.RUnlock()

	sortRecent(jobs)
	if n := clampLimit(limit); len(jobs) > n {
		jobs = jobs[:n]
	}
	return jobs, nil
}

func (s *MemoryStore) CountJobsByStatus(_ context.Context) (map[models.JobStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.JobStatus]int)
	for _, j := range s.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

func sortRecent(jobs []*models.Job) {
	sort.SliceStable(jobs, func(a, b int) bool {
		if jobs[a].CreatedAt.Equal(jobs[b].CreatedAt) {
			return jobs[a].ID > jobs[b].ID
		}
		return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
	})
}

var _ Store = (*MemoryStore)(nil)
