package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger is implemented by dependencies the readiness probe checks.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// HealthResponse is the liveness probe body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}

// ReadyResponse is the readiness probe body.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Ready handles GET /ready. Returns 503 when the store is unreachable,
// since the pipeline fails closed without it.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := "ready"
	code := http.StatusOK

	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			checks["database"] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	writeJSON(w, code, ReadyResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}
