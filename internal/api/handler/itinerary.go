package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/tripplanner/internal/ai"
	"github.com/kiranshivaraju/tripplanner/internal/api/response"
	"github.com/kiranshivaraju/tripplanner/internal/itinerary"
	"github.com/kiranshivaraju/tripplanner/internal/jobs"
	"github.com/kiranshivaraju/tripplanner/pkg/jobid"
	"github.com/kiranshivaraju/tripplanner/pkg/models"
)

// DebugJobHeader requests a debug_ job id when set to "true".
const DebugJobHeader = "X-Debug-Job"

// maxRequestBody bounds the submission payload.
const maxRequestBody = 64 << 10

// JobService defines the lifecycle operations the handlers depend on.
type JobService interface {
	Submit(ctx context.Context, req models.TripRequest, opts jobs.SubmitOptions) (string, error)
	GetStatus(ctx context.Context, id string) (models.StatusView, error)
}

type submitResponse struct {
	JobID  string           `json:"jobId"`
	Status models.JobStatus `json:"status"`
}

// NewSubmitHandler returns an http.HandlerFunc for POST /api/v1/itineraries.
// It answers 202 as soon as the job is queued.
func NewSubmitHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.TripRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err := dec.Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		opts := jobs.SubmitOptions{
			Kind:   jobid.KindJob,
			Mobile: ai.IsMobileUserAgent(r.UserAgent()),
		}
		if strings.EqualFold(r.Header.Get(DebugJobHeader), "true") {
			opts.Kind = jobid.KindDebug
		}

		id, err := svc.Submit(r.Context(), req, opts)
		if err != nil {
			switch {
			case errors.Is(err, itinerary.ErrInvalidRequest):
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			case errors.Is(err, jobs.ErrBusy):
				response.RetryLater(w, http.StatusServiceUnavailable, 30*time.Second, "SERVICE_BUSY",
					"The itinerary service is busy. Please try again in a moment.")
			case errors.Is(err, jobs.ErrCreateFailed):
				response.Error(w, http.StatusInternalServerError, "JOB_CREATE_FAILED",
					"Could not start itinerary generation", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Accepted(w, submitResponse{JobID: id, Status: models.JobStatusProcessing})
	}
}

// NewStatusHandler returns an http.HandlerFunc for
// GET /api/v1/itineraries/jobs/{jobID}.
func NewStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "jobID"))
		if id == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID is required", nil)
			return
		}

		view, err := svc.GetStatus(r.Context(), id)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to retrieve job status", nil)
			return
		}

		if view.Status == models.JobStatusNotFound {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found",
				map[string]string{"jobId": id, "status": string(models.JobStatusNotFound)})
			return
		}

		response.JSON(w, view)
	}
}
