package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bull/civic-assistant/internal/index"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Index     string `json:"index"`
	Entries   int    `json:"entries,omitempty"`
	BuiltAt   string `json:"built_at,omitempty"`
	Timestamp string `json:"timestamp"`
}

// StatusReporter describes the index being served.
type StatusReporter interface {
	Status(ctx context.Context) (index.Manifest, error)
}

// NewHealthHandler creates an HTTP handler for the /health endpoint.
// A missing index is a cold start, not a fault: the server still answers
// chat requests with a setup message, so it reports 200 "degraded".
// Any other failure (for example an unreachable Qdrant) is a 503.
func NewHealthHandler(status StatusReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		m, err := status.Status(ctx)
		response := HealthResponse{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		switch {
		case err == nil:
			response.Status = "healthy"
			response.Index = "ready"
			response.Entries = m.Entries
			if !m.BuiltAt.IsZero() {
				response.BuiltAt = m.BuiltAt.Format(time.RFC3339)
			}
			writeJSON(w, http.StatusOK, response)
		case errors.Is(err, index.ErrIndexNotFound):
			response.Status = "degraded"
			response.Index = "not_initialized"
			writeJSON(w, http.StatusOK, response)
		default:
			response.Status = "unhealthy"
			response.Index = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, response)
		}
	}
}
