package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/tripplanner/internal/ai"
	"github.com/kiranshivaraju/tripplanner/internal/ai/mock"
	"github.com/kiranshivaraju/tripplanner/internal/itinerary"
	"github.com/kiranshivaraju/tripplanner/internal/store"
	"github.com/kiranshivaraju/tripplanner/pkg/jobid"
	"github.com/kiranshivaraju/tripplanner/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

// lagStore hides newly created jobs from the first hideReads lookups and
// fails the first createErrs creates.
type lagStore struct {
	*store.MemoryStore
	mu         sync.Mutex
	hideReads  int
	createErrs int
	creates    int
}

func (s *lagStore) CreateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	s.creates++
	if s.createErrs > 0 {
		s.createErrs--
		s.mu.Unlock()
		return errors.New("connection pool exhausted")
	}
	s.mu.Unlock()
	return s.MemoryStore.CreateJob(ctx, job)
}

func (s *lagStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	if s.hideReads > 0 {
		s.hideReads--
		s.mu.Unlock()
		return nil, store.ErrNotFound
	}
	s.mu.Unlock()
	return s.MemoryStore.GetJob(ctx, id)
}

type mockCache struct {
	mu       sync.Mutex
	statuses map[string]models.JobStatus
}

func newMockCache() *mockCache {
	return &mockCache{statuses: make(map[string]models.JobStatus)}
}

func (c *mockCache) Ping(_ context.Context) error { return nil }
func (c *mockCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 0, nil
}

func (c *mockCache) SetJobStatus(_ context.Context, jobID string, status models.JobStatus, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[jobID] = status
	return nil
}

func (c *mockCache) GetJobStatus(_ context.Context, jobID string) (models.JobStatus, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.statuses[jobID]
	return s, ok, nil
}

// --- helpers ---

func parisRequest() models.TripRequest {
	return models.TripRequest{
		Destination: "Paris",
		StartDate:   "2026-06-01",
		EndDate:     "2026-06-03",
		Purpose:     "leisure",
		Budget:      "moderate",
		Travelers:   2,
		Preferences: []string{"museums", "food"},
	}
}

type harness struct {
	mgr    *Manager
	store  store.Store
	cache  *mockCache
	queue  *Queue
	sleeps []time.Duration
}

func newHarness(t *testing.T, st store.Store, provider models.AIProvider, policy ai.TimeoutPolicy, normalize bool) *harness {
	t.Helper()
	q := NewQueue(2, 8, nil)
	q.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Shutdown(ctx)
	})

	h := &harness{store: st, cache: newMockCache(), queue: q}
	inv := ai.NewInvoker(provider, policy, false, 0.7, 4000)
	h.mgr = NewManager(st, h.cache, inv, q, nil, Config{NormalizeOnServer: normalize})
	h.mgr.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	return h
}

func (h *harness) waitForStatus(t *testing.T, id string, want models.JobStatus) *models.Job {
	t.Helper()
	var job *models.Job
	require.Eventually(t, func() bool {
		j, err := h.store.GetJob(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.Status == want
	}, 3*time.Second, 5*time.Millisecond)
	return job
}

// --- Submit ---

func TestSubmit_ReturnsImmediatelyAndCompletes(t *testing.T) {
	release := make(chan struct{})
	provider := &mock.MockProvider{
		Name_: "mock",
		CompleteFunc: func(ctx context.Context, _ models.CompletionRequest) (string, error) {
			<-release
			return `{"destination":"Paris","days":[]}`, nil
		},
	}
	h := newHarness(t, store.NewMemoryStore(), provider, ai.DefaultTimeoutPolicy, true)

	id, err := h.mgr.Submit(context.Background(), parisRequest(), SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, jobid.KindJob, jobid.KindOf(id))

	// Still generating: the submit call did not wait.
	view, err := h.mgr.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, view.Status)

	stored, err := h.store.GetJob(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, stored.Prompt)
	assert.Contains(t, *stored.Prompt, "trip to Paris")

	close(release)
	job := h.waitForStatus(t, id, models.JobStatusCompleted)
	assert.True(t, job.Result.Processed())
	assert.Equal(t, "Your personalized itinerary for Paris", job.Result.Itinerary["summary"])
	assert.Eventually(t, func() bool {
		st, ok, _ := h.cache.GetJobStatus(context.Background(), id)
		return ok && st == models.JobStatusCompleted
	}, time.Second, 5*time.Millisecond)
}

func TestSubmit_ParisMalformedOutputIsRepaired(t *testing.T) {
	raw := "// comment\n{destination:'Paris', days:[{activities:[{title:'Tour',cost:'20',coordinates:{lat:'48.8566',lng:'2.3522'}}]}],}"
	h := newHarness(t, store.NewMemoryStore(), mock.NewStaticProvider(raw), ai.DefaultTimeoutPolicy, true)

	id, err := h.mgr.Submit(context.Background(), parisRequest(), SubmitOptions{})
	require.NoError(t, err)

	job := h.waitForStatus(t, id, models.JobStatusCompleted)
	require.NotNil(t, job.Result)
	days := job.Result.Itinerary["days"].([]any)
	activity := days[0].(map[string]any)["activities"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(20), activity["cost"])
	coords := activity["coordinates"].(map[string]any)
	assert.Equal(t, 48.8566, coords["lat"])
	assert.Equal(t, 2.3522, coords["lng"])
	assert.Nil(t, job.Error)
}

func TestSubmit_TimeoutMessageMatchesDeviceAndComplexity(t *testing.T) {
	tests := []struct {
		name    string
		mobile  bool
		complex bool
	}{
		{"mobile complex", true, true},
		{"mobile", true, false},
		{"complex", false, true},
		{"desktop", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := ai.TimeoutPolicy{Base: 20 * time.Millisecond, Increment: 5 * time.Millisecond, ComplexChars: 1 << 20}
			if tt.complex {
				policy.ComplexChars = 50
			}
			h := newHarness(t, store.NewMemoryStore(), mock.NewTimeoutProvider(), policy, true)

			id, err := h.mgr.Submit(context.Background(), parisRequest(), SubmitOptions{Mobile: tt.mobile})
			require.NoError(t, err)

			job := h.waitForStatus(t, id, models.JobStatusFailed)
			require.NotNil(t, job.Error)
			want := policy.Plan(ai.RequestContext{Mobile: tt.mobile, Complex: tt.complex}).TimeoutMessage
			assert.Equal(t, want, *job.Error)
			assert.Nil(t, job.Result)
		})
	}
}

func TestSubmit_UpstreamFailureCapturesStatus(t *testing.T) {
	provider := mock.NewFailingProvider(&models.UpstreamError{Provider: "openai", StatusCode: 500, Body: "internal error"})
	h := newHarness(t, store.NewMemoryStore(), provider, ai.DefaultTimeoutPolicy, true)

	id, err := h.mgr.Submit(context.Background(), parisRequest(), SubmitOptions{})
	require.NoError(t, err)

	job := h.waitForStatus(t, id, models.JobStatusFailed)
	assert.Contains(t, *job.Error, "500")
	assert.Contains(t, *job.Error, "internal error")
}

func TestSubmit_UnparseableOutputFails(t *testing.T) {
	h := newHarness(t, store.NewMemoryStore(), mock.NewStaticProvider("Sorry, I cannot help with that."), ai.DefaultTimeoutPolicy, true)

	id, err := h.mgr.Submit(context.Background(), parisRequest(), SubmitOptions{})
	require.NoError(t, err)

	job := h.waitForStatus(t, id, models.JobStatusFailed)
	assert.Contains(t, *job.Error, "could not be read")
}

func TestSubmit_RawResultWhenServerNormalizationDisabled(t *testing.T) {
	raw := "{destination:'Rome', days:[],}"
	h := newHarness(t, store.NewMemoryStore(), mock.NewStaticProvider(raw), ai.DefaultTimeoutPolicy, false)

	id, err := h.mgr.Submit(context.Background(), parisRequest(), SubmitOptions{})
	require.NoError(t, err)

	job := h.waitForStatus(t, id, models.JobStatusCompleted)
	assert.Equal(t, models.ResultKindRaw, job.Result.Kind)
	assert.Equal(t, raw, job.Result.Raw)

	view, err := h.mgr.GetStatus(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, view.Processed)
	assert.False(t, *view.Processed)
}

func TestSubmit_PanicInProviderMarksFailed(t *testing.T) {
	provider := &mock.MockProvider{
		Name_: "mock",
		CompleteFunc: func(context.Context, models.CompletionRequest) (string, error) {
			panic("simulated panic")
		},
	}
	h := newHarness(t, store.NewMemoryStore(), provider, ai.DefaultTimeoutPolicy, true)

	id, err := h.mgr.Submit(context.Background(), parisRequest(), SubmitOptions{})
	require.NoError(t, err)

	job := h.waitForStatus(t, id, models.JobStatusFailed)
	assert.Contains(t, *job.Error, "simulated panic")
}

func TestSubmit_DebugKind(t *testing.T) {
	h := newHarness(t, store.NewMemoryStore(), mock.NewMockProvider(), ai.DefaultTimeoutPolicy, true)

	id, err := h.mgr.Submit(context.Background(), parisRequest(), SubmitOptions{Kind: jobid.KindDebug})
	require.NoError(t, err)
	assert.Equal(t, jobid.KindDebug, jobid.KindOf(id))
	h.waitForStatus(t, id, models.JobStatusCompleted)
}

func TestSubmit_InvalidRequest(t *testing.T) {
	st := store.NewMemoryStore()
	h := newHarness(t, st, mock.NewMockProvider(), ai.DefaultTimeoutPolicy, true)

	req := parisRequest()
	req.Destination = ""
	_, err := h.mgr.Submit(context.Background(), req, SubmitOptions{})
	assert.ErrorIs(t, err, itinerary.ErrInvalidRequest)

	jobs, err := st.ListRecentJobs(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSubmit_RetriesUntilJobIsVisible(t *testing.T) {
	st := &lagStore{MemoryStore: store.NewMemoryStore(), hideReads: 2}
	h := newHarness(t, st, mock.NewMockProvider(), ai.DefaultTimeoutPolicy, true)

	id, err := h.mgr.Submit(context.Background(), parisRequest(), SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}, h.sleeps)
	assert.Equal(t, 3, st.creates, "later attempts see the duplicate and verify it")
	h.waitForStatus(t, id, models.JobStatusCompleted)
}

func TestSubmit_RetriesFailedCreate(t *testing.T) {
	st := &lagStore{MemoryStore: store.NewMemoryStore(), createErrs: 1}
	h := newHarness(t, st, mock.NewMockProvider(), ai.DefaultTimeoutPolicy, true)

	id, err := h.mgr.Submit(context.Background(), parisRequest(), SubmitOptions{})
	require.NoError(t, err)
	assert.Len(t, h.sleeps, 1)
	h.waitForStatus(t, id, models.JobStatusCompleted)
}

func TestSubmit_CreateFailureAfterRetriesIsHardError(t *testing.T) {
	st := &lagStore{MemoryStore: store.NewMemoryStore(), createErrs: 10}
	h := newHarness(t, st, mock.NewMockProvider(), ai.DefaultTimeoutPolicy, true)

	id, err := h.mgr.Submit(context.Background(), parisRequest(), SubmitOptions{})
	assert.ErrorIs(t, err, ErrCreateFailed)
	assert.Empty(t, id)
	assert.Equal(t, 3, st.creates)
}

func TestSubmit_QueueFullFailsJob(t *testing.T) {
	st := store.NewMemoryStore()
	q := NewQueue(1, 1, nil) // never started
	require.NoError(t, q.Enqueue(Task{JobID: "filler", Run: func(context.Context) {}}))
	inv := ai.NewInvoker(mock.NewMockProvider(), ai.DefaultTimeoutPolicy, false, 0.7, 4000)
	mgr := NewManager(st, nil, inv, q, nil, Config{NormalizeOnServer: true})

	_, err := mgr.Submit(context.Background(), parisRequest(), SubmitOptions{})
	assert.ErrorIs(t, err, ErrBusy)

	counts, err := st.CountJobsByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.JobStatusFailed])
}

// --- Complete / Fail / GetStatus ---

func TestTerminalStatusIsFinal(t *testing.T) {
	h := newHarness(t, store.NewMemoryStore(), mock.NewMockProvider(), ai.DefaultTimeoutPolicy, true)
	ctx := context.Background()

	id, err := h.mgr.Submit(ctx, parisRequest(), SubmitOptions{})
	require.NoError(t, err)
	h.waitForStatus(t, id, models.JobStatusCompleted)

	err = h.mgr.Fail(ctx, id, "late failure")
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	view, err := h.mgr.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, view.Status)
	assert.Empty(t, view.Error)
}

func TestFail_DefaultMessage(t *testing.T) {
	st := store.NewMemoryStore()
	h := newHarness(t, st, mock.NewMockProvider(), ai.DefaultTimeoutPolicy, true)
	ctx := context.Background()
	require.NoError(t, st.UpdateJobStatus(ctx, "job_1_manual", models.JobStatusProcessing))

	require.NoError(t, h.mgr.Fail(ctx, "job_1_manual", ""))

	view, err := h.mgr.GetStatus(ctx, "job_1_manual")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, view.Status)
	assert.Equal(t, "generation failed", view.Error)
}

func TestGetStatus_NotFound(t *testing.T) {
	h := newHarness(t, store.NewMemoryStore(), mock.NewMockProvider(), ai.DefaultTimeoutPolicy, true)

	view, err := h.mgr.GetStatus(context.Background(), "job_1_nope")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusNotFound, view.Status)
	assert.Equal(t, "job_1_nope", view.JobID)
}

func TestGetStatus_FallsBackToCachedStatus(t *testing.T) {
	h := newHarness(t, store.NewMemoryStore(), mock.NewMockProvider(), ai.DefaultTimeoutPolicy, true)
	ctx := context.Background()

	h.cache.statuses["job_1_cached"] = models.JobStatusProcessing
	view, err := h.mgr.GetStatus(ctx, "job_1_cached")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, view.Status)

	// A cached terminal status without a record cannot carry its result.
	h.cache.statuses["job_2_cached"] = models.JobStatusCompleted
	view, err = h.mgr.GetStatus(ctx, "job_2_cached")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusNotFound, view.Status)
}
