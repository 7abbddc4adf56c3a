package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/omharigupta/datasynth/internal/store"
)

// HealthChecker is implemented by dependencies that can report reachability.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo    store.Repository
	oracle  HealthChecker
	timeout time.Duration
}

// NewHealthHandler creates a new health handler. oracle may be nil.
func NewHealthHandler(repo store.Repository, oracle HealthChecker) *HealthHandler {
	return &HealthHandler{repo: repo, oracle: oracle, timeout: 5 * time.Second}
}

// Health returns the health status of the API and its dependencies. The
// oracle is advisory: when it is down the service is degraded but still
// answers 200 because the workflow falls back to local summaries.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := "healthy"
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		checks["database"] = "unreachable"
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.oracle != nil {
		if err := h.oracle.Health(ctx); err != nil {
			slog.Warn("Analysis oracle health check failed", "error", err)
			checks["analysis"] = "unreachable"
			status = "degraded"
		} else {
			checks["analysis"] = "ok"
		}
	}

	JSON(w, statusCode, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}
