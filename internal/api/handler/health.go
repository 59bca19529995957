package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/tripplanner/internal/api/response"
)

// Pinger is anything the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type degradable interface {
	Degraded() bool
}

// NewHealthHandler reports job store and cache state. The store is "durable",
// "fallback" while the in-memory store is serving, or "down". A nil cache is
// reported as "disabled".
func NewHealthHandler(st Pinger, c Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"store": "durable",
			"cache": "ok",
		}

		if d, ok := st.(degradable); ok && d.Degraded() {
			checks["store"] = "fallback"
		} else if err := st.Ping(r.Context()); err != nil {
			checks["store"] = "down"
		}

		if c == nil {
			checks["cache"] = "disabled"
		} else if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		if checks["store"] == "down" || checks["cache"] == "degraded" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
