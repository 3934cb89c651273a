package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shieldgate/gateway/internal/gateway"
	"github.com/shieldgate/gateway/pkg/apierror"
	"github.com/shieldgate/gateway/pkg/crypto"
	"github.com/shieldgate/gateway/pkg/domain/apikey"
	"github.com/shieldgate/gateway/pkg/domain/audit"
	"github.com/shieldgate/gateway/pkg/domain/reputation"
	"github.com/shieldgate/gateway/pkg/domain/shared"
	"github.com/shieldgate/gateway/pkg/geo"
	"github.com/shieldgate/gateway/pkg/logger"
	"github.com/shieldgate/gateway/pkg/validator"
)

// AdminHandler serves the administrative surface: analytics over the audit
// log, reputation management and API key lifecycle.
type AdminHandler struct {
	events    audit.Repository
	blocked   reputation.Repository
	keys      apikey.Repository
	filter    *gateway.IPFilter
	validator *validator.Validator
	logger    *logger.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	events audit.Repository,
	blocked reputation.Repository,
	keys apikey.Repository,
	filter *gateway.IPFilter,
	log *logger.Logger,
) *AdminHandler {
	return &AdminHandler{
		events:    events,
		blocked:   blocked,
		keys:      keys,
		filter:    filter,
		validator: validator.New(),
		logger:    log.With("handler", "admin"),
	}
}

// AnalyticsResponse is the body of GET /admin/analytics.
type AnalyticsResponse struct {
	Totals     audit.Totals      `json:"totals"`
	TopPaths   []audit.PathCount `json:"topPaths"`
	ErrorRates []audit.PathCount `json:"errorRates"`
	BlockedIPs int               `json:"blockedIps"`
}

// Analytics handles GET /admin/analytics.
func (h *AdminHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	totals, err := h.events.Stats(r.Context())
	if err != nil {
		h.internal(w, "analytics stats", err)
		return
	}
	topPaths, err := h.events.TopPaths(r.Context(), 10)
	if err != nil {
		h.internal(w, "analytics top paths", err)
		return
	}
	errorRates, err := h.events.ErrorRates(r.Context(), 10)
	if err != nil {
		h.internal(w, "analytics error rates", err)
		return
	}
	blockedCount, err := h.blocked.CountByMode(r.Context(), reputation.ModeBlock)
	if err != nil {
		h.internal(w, "analytics blocked count", err)
		return
	}

	writeJSON(w, http.StatusOK, AnalyticsResponse{
		Totals:     totals,
		TopPaths:   topPaths,
		ErrorRates: errorRates,
		BlockedIPs: blockedCount,
	})
}

// LogEntry is the serialized form of an audit event.
type LogEntry struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Message    string         `json:"message"`
	IP         string         `json:"ip,omitempty"`
	APIKeyID   string         `json:"apiKeyId,omitempty"`
	UserID     string         `json:"userId,omitempty"`
	Method     string         `json:"method,omitempty"`
	Path       string         `json:"path,omitempty"`
	StatusCode int            `json:"statusCode,omitempty"`
	RiskLevel  string         `json:"riskLevel"`
	RiskScore  int            `json:"riskScore"`
	Country    string         `json:"country,omitempty"`
	City       string         `json:"city,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Logs handles GET /admin/logs. Accepts optional type and limit query
// parameters.
func (h *AdminHandler) Logs(w http.ResponseWriter, r *http.Request) {
	f := audit.Filter{
		Type:  audit.Type(r.URL.Query().Get("type")),
		Limit: parseQueryInt(r.URL.Query().Get("limit"), 100),
	}

	events, err := h.events.List(r.Context(), f)
	if err != nil {
		h.internal(w, "list logs", err)
		return
	}

	entries := make([]LogEntry, 0, len(events))
	for _, e := range events {
		entries = append(entries, LogEntry{
			ID:         e.ID,
			Type:       string(e.Type),
			Message:    e.Message,
			IP:         e.IP,
			APIKeyID:   e.APIKeyID,
			UserID:     e.UserID,
			Method:     e.Method,
			Path:       e.Path,
			StatusCode: e.StatusCode,
			RiskLevel:  e.RiskLevel,
			RiskScore:  e.RiskScore,
			Country:    e.Geo.Country,
			City:       e.Geo.City,
			Details:    e.Details,
			CreatedAt:  e.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(entries),
		"logs":  entries,
	})
}

// BlockedIPEntry is the serialized form of a reputation record.
type BlockedIPEntry struct {
	IP           string     `json:"ip"`
	Mode         string     `json:"mode"`
	Blocked      bool       `json:"blocked"`
	BlockedUntil *time.Time `json:"blockedUntil,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	Country      string     `json:"country,omitempty"`
	City         string     `json:"city,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// BlockedIPs handles GET /admin/blocked-ips.
func (h *AdminHandler) BlockedIPs(w http.ResponseWriter, r *http.Request) {
	records, err := h.blocked.ListBlocked(r.Context())
	if err != nil {
		h.internal(w, "list blocked ips", err)
		return
	}

	entries := make([]BlockedIPEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, BlockedIPEntry{
			IP:           rec.IP,
			Mode:         string(rec.Mode),
			Blocked:      rec.Blocked,
			BlockedUntil: rec.BlockedUntil,
			Reason:       rec.Reason,
			Country:      rec.Geo.Country,
			City:         rec.Geo.City,
			CreatedAt:    rec.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":      len(entries),
		"blockedIps": entries,
	})
}

// BlockIPRequest is the request body for blocking an address.
type BlockIPRequest struct {
	IP     string `json:"ip" validate:"required,ip"`
	Reason string `json:"reason" validate:"max=255"`
}

// BlockIP handles POST /admin/blocked-ips.
func (h *AdminHandler) BlockIP(w http.ResponseWriter, r *http.Request) {
	var req BlockIPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		apierror.ValidationFailed("Validation failed", err).WriteJSON(w)
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "manual-block"
	}

	ip := geo.NormalizeIP(req.IP)
	err := h.blocked.Upsert(r.Context(), reputation.Upsert{
		IP:      ip,
		Blocked: true,
		Mode:    reputation.ModeBlock,
		Reason:  reason,
		Geo:     geo.Lookup(ip),
	})
	if err != nil {
		h.internal(w, "block ip", err)
		return
	}
	h.filter.Forget(ip)

	h.logger.Info("ip blocked by admin", "ip", ip, "reason", reason)
	writeJSON(w, http.StatusOK, map[string]any{"ip": ip, "blocked": true})
}

// UnblockIP handles DELETE /admin/blocked-ips/{ip}.
func (h *AdminHandler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	ip := geo.NormalizeIP(chi.URLParam(r, "ip"))
	if ip == "" {
		apierror.BadRequest("IP address is required").WriteJSON(w)
		return
	}

	if err := h.blocked.Delete(r.Context(), ip); err != nil {
		if shared.IsNotFound(err) {
			apierror.NotFound("IP not found").WriteJSON(w)
			return
		}
		h.internal(w, "unblock ip", err)
		return
	}
	h.filter.Forget(ip)

	h.logger.Info("ip unblocked by admin", "ip", ip)
	writeJSON(w, http.StatusOK, map[string]any{"ip": ip, "blocked": false})
}

// APIKeyEntry is the serialized form of an API key. The hash never leaves
// the store.
type APIKeyEntry struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	RateLimit int       `json:"rateLimitPerMinute"`
	CreatedAt time.Time `json:"createdAt"`
}

// APIKeys handles GET /admin/api-keys.
func (h *AdminHandler) APIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.List(r.Context())
	if err != nil {
		h.internal(w, "list api keys", err)
		return
	}

	entries := make([]APIKeyEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, APIKeyEntry{
			ID:        k.ID,
			Label:     k.Label,
			UserID:    k.UserID,
			Role:      k.Role,
			Status:    string(k.Status),
			RateLimit: k.RateLimit,
			CreatedAt: k.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(entries),
		"keys":  entries,
	})
}

// CreateAPIKeyRequest is the request body for key creation.
type CreateAPIKeyRequest struct {
	Label     string `json:"label" validate:"required,max=100"`
	UserID    string `json:"userId" validate:"required,uuid"`
	Role      string `json:"role" validate:"required,key_role"`
	RateLimit int    `json:"rateLimitPerMinute" validate:"min=0,max=100000"`
}

// CreateAPIKeyResponse carries the plaintext key. It is shown exactly once.
type CreateAPIKeyResponse struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Label  string `json:"label"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

// CreateAPIKey handles POST /admin/api-keys.
func (h *AdminHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req CreateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		apierror.ValidationFailed("Validation failed", err).WriteJSON(w)
		return
	}

	plaintext, err := crypto.GenerateAPIKey()
	if err != nil {
		h.internal(w, "generate key", err)
		return
	}
	hash, err := crypto.HashSecret(plaintext)
	if err != nil {
		h.internal(w, "hash key", err)
		return
	}

	key := apikey.New(shared.NewID(), req.Label, hash, req.UserID, req.Role, req.RateLimit)
	if err := h.keys.Create(r.Context(), key); err != nil {
		h.internal(w, "create key", err)
		return
	}

	h.logger.Info("api key created", "id", key.ID, "label", key.Label, "role", key.Role)
	writeJSON(w, http.StatusCreated, CreateAPIKeyResponse{
		ID:     key.ID,
		Key:    plaintext,
		Label:  key.Label,
		Role:   key.Role,
		Status: string(key.Status),
	})
}

// RevokeAPIKey handles DELETE /admin/api-keys/{id}.
func (h *AdminHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !shared.ValidID(id) {
		apierror.BadRequest("Invalid key ID").WriteJSON(w)
		return
	}

	if err := h.keys.UpdateStatus(r.Context(), id, apikey.StatusRevoked); err != nil {
		if shared.IsNotFound(err) {
			apierror.NotFound("API key not found").WriteJSON(w)
			return
		}
		h.internal(w, "revoke key", err)
		return
	}

	h.logger.Info("api key revoked", "id", id)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": string(apikey.StatusRevoked)})
}

// Traffic handles GET /admin/traffic. Reports per-minute request counts
// for the trailing hour.
func (h *AdminHandler) Traffic(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-time.Hour)
	counts, err := h.events.TrafficSince(r.Context(), since)
	if err != nil {
		h.internal(w, "traffic query", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"since":   since.UTC(),
		"minutes": counts,
	})
}

func (h *AdminHandler) internal(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", "error", err)
	apierror.Internal("Request failed").WriteJSON(w)
}
