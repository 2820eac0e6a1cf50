package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports the state of the sandbox backend and the database.
type HealthHandler struct {
	checks  map[string]Pinger
	timeout time.Duration
	logger  *slog.Logger
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Checks    map[string]bool `json:"checks"`
}

// NewHealthHandler creates a HealthHandler. A nil pinger is reported as down,
// which is how a server started without Docker shows up.
func NewHealthHandler(docker, database Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		checks: map[string]Pinger{
			"docker":   docker,
			"database": database,
		},
		timeout: 3 * time.Second,
		logger:  logger,
	}
}

// HandleHealth answers 200 when every check passes and 503 otherwise.
//
// HTTP: GET /api/health
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]bool, len(h.checks)),
	}
	status := http.StatusOK

	for name, p := range h.checks {
		ok := p != nil
		if ok {
			if err := p.Ping(ctx); err != nil {
				h.logger.Warn("health check failed",
					slog.String("check", name),
					slog.String("error", err.Error()),
				)
				ok = false
			}
		}
		resp.Checks[name] = ok
		if !ok {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}
