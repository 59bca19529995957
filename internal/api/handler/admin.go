package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/kiranshivaraju/tripplanner/internal/api/response"
	"github.com/kiranshivaraju/tripplanner/pkg/models"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// JobLister is the read-only slice of the job store used by diagnostics.
type JobLister interface {
	ListRecentJobs(ctx context.Context, limit int) ([]*models.Job, error)
	CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/admin/jobs.
func NewListJobsHandler(st JobLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultListLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"limit must be a positive integer", nil)
				return
			}
			limit = n
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}

		list, err := st.ListRecentJobs(r.Context(), limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list jobs", nil)
			return
		}
		if list == nil {
			list = []*models.Job{}
		}

		response.Collection(w, list, response.ListMeta{Limit: limit, Total: len(list)})
	}
}

type statsResponse struct {
	Counts map[models.JobStatus]int `json:"counts"`
	Total  int                      `json:"total"`
}

// NewJobStatsHandler returns an http.HandlerFunc for GET /api/v1/admin/jobs/stats.
func NewJobStatsHandler(st JobLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := st.CountJobsByStatus(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to count jobs", nil)
			return
		}

		resp := statsResponse{Counts: make(map[models.JobStatus]int, 4)}
		for _, s := range []models.JobStatus{
			models.JobStatusQueued, models.JobStatusProcessing,
			models.JobStatusCompleted, models.JobStatusFailed,
		} {
			resp.Counts[s] = counts[s]
			resp.Total += counts[s]
		}
		response.JSON(w, resp)
	}
}
