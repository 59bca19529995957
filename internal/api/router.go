package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/tripplanner/internal/api/middleware"
	"github.com/kiranshivaraju/tripplanner/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Admin     *mw.AdminAuth
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler
	SubmitHandler  http.HandlerFunc
	StatusHandler  http.HandlerFunc
	ListJobs       http.HandlerFunc
	JobStats       http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.ClientID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}
		r.Post("/api/v1/itineraries", orNotImplemented(deps.SubmitHandler))
	})
	r.Get("/api/v1/itineraries/jobs/{jobID}", orNotImplemented(deps.StatusHandler))

	// Admin routes
	r.Group(func(r chi.Router) {
		admin := deps.Admin
		if admin == nil {
			admin = mw.NewAdminAuth("")
		}
		r.Use(admin.Authenticate)

		r.Get("/api/v1/admin/jobs", orNotImplemented(deps.ListJobs))
		r.Get("/api/v1/admin/jobs/stats", orNotImplemented(deps.JobStats))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
