package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/tripplanner/internal/ai"
	"github.com/kiranshivaraju/tripplanner/internal/ai/mock"
	"github.com/kiranshivaraju/tripplanner/internal/api"
	"github.com/kiranshivaraju/tripplanner/internal/api/handler"
	mw "github.com/kiranshivaraju/tripplanner/internal/api/middleware"
	"github.com/kiranshivaraju/tripplanner/internal/cache"
	"github.com/kiranshivaraju/tripplanner/internal/jobs"
	"github.com/kiranshivaraju/tripplanner/internal/store"
	"github.com/kiranshivaraju/tripplanner/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// ─── test fixtures ───────────────────────────────────────────────────────────

const testAdminKey = "tpk_admin_contract_key_1234567890"

func testAdminHash() string {
	h, _ := bcrypt.GenerateFromPassword([]byte(testAdminKey), bcrypt.MinCost)
	return string(h)
}

var tripBody = map[string]any{
	"destination": "Paris",
	"startDate":   "2026-06-01",
	"endDate":     "2026-06-03",
	"purpose":     "leisure",
	"preferences": []string{"museums"},
}

// ─── mock cache ──────────────────────────────────────────────────────────────

type mockCache struct {
	mu       sync.Mutex
	counters map[string]int64
}

func newMockCache() *mockCache {
	return &mockCache{counters: make(map[string]int64)}
}

func (c *mockCache) Ping(_ context.Context) error { return nil }
func (c *mockCache) SetJobStatus(_ context.Context, _ string, _ models.JobStatus, _ time.Duration) error {
	return nil
}
func (c *mockCache) GetJobStatus(_ context.Context, _ string) (models.JobStatus, bool, error) {
	return "", false, nil
}
func (c *mockCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

var _ cache.Cache = (*mockCache)(nil)

// ─── test harness ────────────────────────────────────────────────────────────

type testServer struct {
	server *httptest.Server
	store  *store.MemoryStore
}

func newTestServer(t *testing.T, provider models.AIProvider) *testServer {
	t.Helper()

	st := store.NewMemoryStore()
	mc := newMockCache()
	q := jobs.NewQueue(2, 16, nil)
	q.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Shutdown(ctx)
	})

	inv := ai.NewInvoker(provider, ai.DefaultTimeoutPolicy, false, 0.7, 4000)
	mgr := jobs.NewManager(st, mc, inv, q, nil, jobs.Config{NormalizeOnServer: true})

	deps := api.Dependencies{
		Admin:     mw.NewAdminAuth(testAdminHash()),
		RateLimit: mw.NewRateLimit(mc, 5), // low limit for rate-limit tests

		HealthHandler: handler.NewHealthHandler(st, mc),
		SubmitHandler: handler.NewSubmitHandler(mgr),
		StatusHandler: handler.NewStatusHandler(mgr),
		ListJobs:      handler.NewListJobsHandler(st),
		JobStats:      handler.NewJobStatsHandler(st),
	}

	srv := httptest.NewServer(api.NewRouter(deps))
	t.Cleanup(srv.Close)
	return &testServer{server: srv, store: st}
}

func (ts *testServer) request(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, ts.server.URL+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (ts *testServer) adminRequest(path string) *http.Request {
	req := ts.request(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+testAdminKey)
	return req
}

func parseBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func (ts *testServer) submit(t *testing.T) string {
	t.Helper()
	resp, err := http.DefaultClient.Do(ts.request(http.MethodPost, "/api/v1/itineraries", tripBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, "processing", data["status"])
	return data["jobId"].(string)
}

func (ts *testServer) pollUntilTerminal(t *testing.T, id string) map[string]any {
	t.Helper()
	var data map[string]any
	require.Eventually(t, func() bool {
		resp, err := http.DefaultClient.Do(ts.request(http.MethodGet, "/api/v1/itineraries/jobs/"+id, nil))
		if err != nil || resp.StatusCode != http.StatusOK {
			if resp != nil {
				resp.Body.Close()
			}
			return false
		}
		data = parseBody(t, resp)["data"].(map[string]any)
		s := data["status"]
		return s == "completed" || s == "failed"
	}, 5*time.Second, 10*time.Millisecond)
	return data
}

// ─── contract tests ──────────────────────────────────────────────────────────

func TestContract_SubmitThenPollCompleted(t *testing.T) {
	ts := newTestServer(t, mock.NewMockProvider())

	id := ts.submit(t)
	assert.True(t, strings.HasPrefix(id, "job_"))

	data := ts.pollUntilTerminal(t, id)
	assert.Equal(t, "completed", data["status"])
	assert.Equal(t, true, data["processed"])

	result := data["result"].(map[string]any)
	itinerary := result["itinerary"].(map[string]any)
	assert.Equal(t, "Paris", itinerary["destination"])
	assert.Equal(t, "Trip to Paris", itinerary["title"])
}

func TestContract_SubmitThenPollFailed(t *testing.T) {
	ts := newTestServer(t, mock.NewFailingProvider(&models.UpstreamError{
		Provider: "mock", StatusCode: 502, Body: "bad gateway",
	}))

	id := ts.submit(t)
	data := ts.pollUntilTerminal(t, id)
	assert.Equal(t, "failed", data["status"])
	assert.Contains(t, data["error"], "502")
	assert.Nil(t, data["result"])
}

func TestContract_DebugJobPrefix(t *testing.T) {
	ts := newTestServer(t, mock.NewMockProvider())

	req := ts.request(http.MethodPost, "/api/v1/itineraries", tripBody)
	req.Header.Set(handler.DebugJobHeader, "true")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	id := parseBody(t, resp)["data"].(map[string]any)["jobId"].(string)
	assert.True(t, strings.HasPrefix(id, "debug_"), id)
}

func TestContract_UnknownJobIsNotFound(t *testing.T) {
	ts := newTestServer(t, mock.NewMockProvider())

	resp, err := http.DefaultClient.Do(ts.request(http.MethodGet, "/api/v1/itineraries/jobs/job_1_unknown", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	errObj := parseBody(t, resp)["error"].(map[string]any)
	assert.Equal(t, "JOB_NOT_FOUND", errObj["code"])
	assert.Equal(t, "not_found", errObj["details"].(map[string]any)["status"])
}

func TestContract_InvalidSubmission(t *testing.T) {
	ts := newTestServer(t, mock.NewMockProvider())

	body := map[string]any{"destination": "Paris", "startDate": "June 1st", "endDate": "2026-06-03"}
	resp, err := http.DefaultClient.Do(ts.request(http.MethodPost, "/api/v1/itineraries", body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	errObj := parseBody(t, resp)["error"].(map[string]any)
	assert.Equal(t, "INVALID_REQUEST", errObj["code"])
	assert.Contains(t, errObj["message"], "startDate")
}

func TestContract_SubmissionRateLimited(t *testing.T) {
	ts := newTestServer(t, mock.NewMockProvider())

	var last *http.Response
	for i := 0; i < 6; i++ {
		resp, err := http.DefaultClient.Do(ts.request(http.MethodPost, "/api/v1/itineraries", tripBody))
		require.NoError(t, err)
		if last != nil {
			last.Body.Close()
		}
		last = resp
	}
	assert.Equal(t, http.StatusTooManyRequests, last.StatusCode)
	assert.Equal(t, "60", last.Header.Get("Retry-After"))
	last.Body.Close()

	// Status polling is never rate limited.
	resp, err := http.DefaultClient.Do(ts.request(http.MethodGet, "/api/v1/itineraries/jobs/job_1_x", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestContract_AdminRoutes(t *testing.T) {
	ts := newTestServer(t, mock.NewMockProvider())
	id := ts.submit(t)
	ts.pollUntilTerminal(t, id)

	resp, err := http.DefaultClient.Do(ts.request(http.MethodGet, "/api/v1/admin/jobs", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.DefaultClient.Do(ts.adminRequest("/api/v1/admin/jobs?limit=5"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := parseBody(t, resp)["data"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].(map[string]any)["jobId"])

	resp, err = http.DefaultClient.Do(ts.adminRequest("/api/v1/admin/jobs/stats"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, float64(1), stats["counts"].(map[string]any)["completed"])
}

func TestContract_Health(t *testing.T) {
	ts := newTestServer(t, mock.NewMockProvider())

	resp, err := http.DefaultClient.Do(ts.request(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
}
