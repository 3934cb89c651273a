package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/shieldgate/gateway/internal/config"
	"github.com/shieldgate/gateway/internal/gateway"
	"github.com/shieldgate/gateway/pkg/apierror"
	"github.com/shieldgate/gateway/pkg/crypto"
	"github.com/shieldgate/gateway/pkg/domain/audit"
	"github.com/shieldgate/gateway/pkg/domain/shared"
	"github.com/shieldgate/gateway/pkg/domain/user"
	"github.com/shieldgate/gateway/pkg/jwt"
	"github.com/shieldgate/gateway/pkg/logger"
	"github.com/shieldgate/gateway/pkg/validator"
)

// AuthHandler issues bearer tokens for users with valid credentials.
type AuthHandler struct {
	users     user.Repository
	tokens    *jwt.Manager
	sink      *gateway.Sink
	validator *validator.Validator
	logger    *logger.Logger

	// Login attempts are throttled per source IP independently of the
	// pipeline budgets, since /auth/login sits in front of authentication.
	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
	rateCfg   config.AuthConfig
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(users user.Repository, tokens *jwt.Manager, sink *gateway.Sink, cfg config.AuthConfig, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		users:     users,
		tokens:    tokens,
		sink:      sink,
		validator: validator.New(),
		logger:    log.With("handler", "auth"),
		limiters:  make(map[string]*rate.Limiter),
		rateCfg:   cfg,
	}
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// LoginResponse is the response body for login.
type LoginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"tokenType"`
	ExpiresIn int64  `json:"expiresIn"`
	Role      string `json:"role"`
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ip := gateway.ClientIP(r)
	if !h.allow(ip) {
		apierror.TooManyRequests("Too many login attempts").WriteJSON(w)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		apierror.ValidationFailed("Validation failed", err).WriteJSON(w)
		return
	}

	u, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if shared.IsNotFound(err) {
			h.rejectLogin(w, r, ip, req.Email)
			return
		}
		h.logger.Error("login lookup failed", "error", err)
		apierror.Internal("Login failed").WriteJSON(w)
		return
	}

	if !crypto.VerifySecret(req.Password, u.PasswordHash) {
		h.rejectLogin(w, r, ip, req.Email)
		return
	}

	token, err := h.tokens.Generate(u.ID, u.Role)
	if err != nil {
		h.logger.Error("token generation failed", "error", err)
		apierror.Internal("Login failed").WriteJSON(w)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(h.tokens.TTL() / time.Second),
		Role:      u.Role,
	})
}

// rejectLogin answers a failed credential check. The response is identical
// for unknown email and wrong password.
func (h *AuthHandler) rejectLogin(w http.ResponseWriter, r *http.Request, ip, email string) {
	e := audit.NewEvent(audit.TypeAuthFailed, "Login failed")
	e.IP = ip
	e.Method = r.Method
	e.Path = r.URL.Path
	e.StatusCode = http.StatusUnauthorized
	e.UserAgent = r.UserAgent()
	e.RiskLevel = audit.LevelMedium
	e.RiskScore = 50
	e.Details = map[string]any{"email": email}
	h.sink.Emit(r.Context(), e)

	apierror.Unauthorized("Invalid credentials").WriteJSON(w)
}

// allow applies the per-IP login throttle.
func (h *AuthHandler) allow(ip string) bool {
	h.limiterMu.Lock()
	defer h.limiterMu.Unlock()

	lim, ok := h.limiters[ip]
	if !ok {
		perSecond := rate.Limit(float64(h.rateCfg.LoginRatePerMinute) / 60.0)
		lim = rate.NewLimiter(perSecond, h.rateCfg.LoginBurst)
		h.limiters[ip] = lim
	}
	return lim.Allow()
}
