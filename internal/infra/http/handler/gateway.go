package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/shieldgate/gateway/internal/gateway"
	"github.com/shieldgate/gateway/pkg/apierror"
	"github.com/shieldgate/gateway/pkg/domain/audit"
	"github.com/shieldgate/gateway/pkg/domain/shared"
	"github.com/shieldgate/gateway/pkg/logger"
	"github.com/shieldgate/gateway/pkg/validator"
)

// Widget is a record served by the service-a stub.
type Widget struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// ServiceHandler stands in for the upstream services the gateway fronts.
// Service A is a small mutable dataset, which exercises cache invalidation
// on writes. Service B reports traffic figures derived from the audit log.
type ServiceHandler struct {
	events    audit.Repository
	cache     *gateway.ResponseCache
	validator *validator.Validator
	logger    *logger.Logger

	mu      sync.Mutex
	widgets []Widget
}

// NewServiceHandler creates a ServiceHandler with a seeded dataset.
func NewServiceHandler(events audit.Repository, cache *gateway.ResponseCache, log *logger.Logger) *ServiceHandler {
	return &ServiceHandler{
		events:    events,
		cache:     cache,
		validator: validator.New(),
		logger:    log.With("handler", "service"),
		widgets: []Widget{
			{ID: shared.NewID(), Name: "alpha", CreatedAt: time.Now()},
			{ID: shared.NewID(), Name: "beta", CreatedAt: time.Now()},
		},
	}
}

// ListWidgets handles GET /api/service-a/data.
func (h *ServiceHandler) ListWidgets(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	out := make([]Widget, len(h.widgets))
	copy(out, h.widgets)
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"service": "service-a",
		"data":    out,
	})
}

// CreateWidgetRequest is the request body for widget creation.
type CreateWidgetRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// CreateWidget handles POST /api/service-a/data. A successful write
// invalidates every cached response under the service-a data path.
func (h *ServiceHandler) CreateWidget(w http.ResponseWriter, r *http.Request) {
	var req CreateWidgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		apierror.ValidationFailed("Validation failed", err).WriteJSON(w)
		return
	}

	widget := Widget{ID: shared.NewID(), Name: req.Name, CreatedAt: time.Now()}

	h.mu.Lock()
	h.widgets = append(h.widgets, widget)
	h.mu.Unlock()

	invalidated := h.cache.Invalidate("/service-a/data")
	h.logger.Debug("cache invalidated after write", "entries", invalidated)

	writeJSON(w, http.StatusCreated, widget)
}

// ServiceMetrics handles GET /api/service-b/metrics.
func (h *ServiceHandler) ServiceMetrics(w http.ResponseWriter, r *http.Request) {
	totals, err := h.events.Stats(r.Context())
	if err != nil {
		h.logger.Error("stats query failed", "error", err)
		apierror.Internal("Metrics unavailable").WriteJSON(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service":   "service-b",
		"totals":    totals,
		"timestamp": time.Now().UTC(),
	})
}

// Ping handles GET /api/public/ping.
func (h *ServiceHandler) Ping(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "pong",
		"timestamp": time.Now().UTC(),
	})
}
