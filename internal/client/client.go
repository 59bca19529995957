// Package client talks to the trip planner HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiranshivaraju/tripplanner/pkg/models"
)

// Sentinel errors for API client failures.
var (
	ErrUnreachable = errors.New("trip planner unreachable")
	ErrTimeout     = errors.New("trip planner request timeout")
	ErrAPI         = errors.New("trip planner api error")
)

// APIError is a non-2xx answer carrying the server's error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%v: status %d", ErrAPI, e.StatusCode)
	}
	return fmt.Sprintf("%v: status %d %s: %s", ErrAPI, e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Is(target error) bool { return target == ErrAPI }

// Client is the interface for the itinerary job endpoints.
type Client interface {
	Submit(ctx context.Context, req models.TripRequest) (*SubmitResponse, error)
	Status(ctx context.Context, jobID string) (models.StatusView, error)
	Health(ctx context.Context) error
}

// SubmitResponse is the 202 body of a submission.
type SubmitResponse struct {
	JobID  string           `json:"jobId"`
	Status models.JobStatus `json:"status"`
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithUserAgent sets the User-Agent sent with every request. The server uses
// it to detect mobile clients.
func WithUserAgent(ua string) Option {
	return func(c *HTTPClient) { c.userAgent = ua }
}

// WithDebugJobs asks the server for debug_ job ids.
func WithDebugJobs() Option {
	return func(c *HTTPClient) { c.debug = true }
}

// HTTPClient implements Client over the JSON API.
type HTTPClient struct {
	baseURL   string
	userAgent string
	debug     bool
	client    *http.Client
}

// NewHTTPClient creates a new API client.
func NewHTTPClient(baseURL string, timeout time.Duration, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: "tripctl",
		client:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) Submit(ctx context.Context, req models.TripRequest) (*SubmitResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/itineraries", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.debug {
		httpReq.Header.Set("X-Debug-Job", "true")
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, decodeAPIError(resp)
	}

	var env struct {
		Data SubmitResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding submit response: %w", err)
	}
	return &env.Data, nil
}

// Status fetches the job's status. A 404 JOB_NOT_FOUND is not an error: it
// comes back as a view with status not_found so pollers can tolerate it.
func (c *HTTPClient) Status(ctx context.Context, jobID string) (models.StatusView, error) {
	u := fmt.Sprintf("%s/api/v1/itineraries/jobs/%s", c.baseURL, url.PathEscape(jobID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.StatusView{}, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return models.StatusView{}, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		apiErr := decodeAPIError(resp)
		if apiErr.Code == "JOB_NOT_FOUND" {
			return models.StatusView{JobID: jobID, Status: models.JobStatusNotFound}, nil
		}
		return models.StatusView{}, apiErr
	}
	if resp.StatusCode != http.StatusOK {
		return models.StatusView{}, decodeAPIError(resp)
	}

	var env struct {
		Data models.StatusView `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return models.StatusView{}, fmt.Errorf("decoding status response: %w", err)
	}
	return env.Data, nil
}

// Health checks that the server answers at all. Any HTTP answer, including a
// degraded 503, proves connectivity; only transport failures are errors.
func (c *HTTPClient) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/health", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	resp.Body.Close()
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	return apiErr
}

// classifyError maps transport-level errors to sentinel errors. Cancellation
// by the caller is returned unchanged.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
