package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shieldgate/gateway/internal/metrics"
	"github.com/shieldgate/gateway/pkg/apierror"
	"github.com/shieldgate/gateway/pkg/crypto"
	"github.com/shieldgate/gateway/pkg/domain/apikey"
	"github.com/shieldgate/gateway/pkg/domain/audit"
	"github.com/shieldgate/gateway/pkg/domain/shared"
	"github.com/shieldgate/gateway/pkg/domain/user"
	"github.com/shieldgate/gateway/pkg/jwt"
	"github.com/shieldgate/gateway/pkg/logger"
)

// Header names the authenticator inspects.
const (
	HeaderAPIKey = "X-API-Key"
)

// Authenticator resolves a presented credential into an identity, role and
// personal rate budget. It is the first gating stage: requests without any
// credential are rejected before the rest of the pipeline runs.
type Authenticator struct {
	keys   apikey.Repository
	users  user.Repository
	tokens *jwt.Manager
	sink   *Sink
	logger *logger.Logger
}

// NewAuthenticator creates the authentication stage.
func NewAuthenticator(keys apikey.Repository, users user.Repository, tokens *jwt.Manager, sink *Sink, log *logger.Logger) *Authenticator {
	return &Authenticator{
		keys:   keys,
		users:  users,
		tokens: tokens,
		sink:   sink,
		logger: log.With("stage", "authenticator"),
	}
}

// Middleware returns the pipeline stage handler.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rc, ok := FromContext(r.Context())
			if !ok {
				rejectionFor(nil).WriteJSON(w)
				return
			}

			err := a.authenticate(r, rc)
			metrics.StageDuration.WithLabelValues(metrics.StageAuth).Observe(time.Since(start).Seconds())
			if err != nil {
				metrics.RecordDecision(metrics.StageAuth, metrics.OutcomeReject)
				a.auditFailure(r, rc, err)
				rejectionFor(err).WriteJSON(w)
				return
			}

			metrics.RecordDecision(metrics.StageAuth, metrics.OutcomePass)
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate fills identity fields on rc or returns a taxonomy error.
func (a *Authenticator) authenticate(r *http.Request, rc *RequestContext) error {
	if key := r.Header.Get(HeaderAPIKey); key != "" {
		return a.authenticateAPIKey(r.Context(), key, rc)
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return a.authenticateBearer(r.Context(), strings.TrimPrefix(auth, "Bearer "), rc)
	}
	return ErrMissingCredential
}

// authenticateAPIKey compares the presented key against the hash of every
// active key. Hashed storage admits no indexable lookup, so this is a
// linear scan with constant-work comparison per candidate; the first hash
// match wins.
func (a *Authenticator) authenticateAPIKey(ctx context.Context, presented string, rc *RequestContext) error {
	candidates, err := a.keys.ListActive(ctx)
	if err != nil {
		a.logger.Error("active key lookup failed", "error", err)
		return errors.Join(ErrStoreUnavailable, shared.NewStoreError("list active keys", err))
	}

	var matched *apikey.APIKey
	for _, k := range candidates {
		if crypto.VerifySecret(presented, k.KeyHash) {
			matched = k
			break
		}
	}
	if matched == nil {
		return ErrInvalidCredential
	}

	rc.APIKeyID = matched.ID
	rc.UserID = matched.UserID
	rc.Role = matched.Role
	rc.RateOverride = matched.RateLimit
	return nil
}

// authenticateBearer verifies the token signature and expiry, then resolves
// the embedded subject to an existing account.
func (a *Authenticator) authenticateBearer(ctx context.Context, token string, rc *RequestContext) error {
	claims, err := a.tokens.Validate(token)
	if err != nil {
		return ErrInvalidCredential
	}

	u, err := a.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if shared.IsNotFound(err) {
			return ErrInvalidCredential
		}
		a.logger.Error("user lookup failed", "error", err, "subject", claims.Subject)
		return errors.Join(ErrStoreUnavailable, shared.NewStoreError("get user", err))
	}

	rc.UserID = u.ID
	rc.Role = u.Role
	return nil
}

// auditFailure emits an auth_failed event before the caller-visible
// rejection. A failed write never changes the outcome.
func (a *Authenticator) auditFailure(r *http.Request, rc *RequestContext, cause error) {
	message := "Authentication failed"
	switch {
	case errors.Is(cause, ErrMissingCredential):
		message = "Missing credentials"
	case errors.Is(cause, ErrInvalidCredential):
		message = "Invalid credentials"
	case errors.Is(cause, ErrStoreUnavailable):
		message = "Credential store unavailable"
	}

	e := audit.NewEvent(audit.TypeAuthFailed, message)
	e.IP = rc.ClientIP
	e.Method = r.Method
	e.Path = r.URL.RequestURI()
	e.UserAgent = r.UserAgent()
	e.Geo = rc.Geo
	a.sink.Emit(r.Context(), e)
}

// RequireRole guards a route group behind one of the given roles. Used
// after authentication; a missing or mismatched role is a 403.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc, ok := FromContext(r.Context())
			if !ok || rc.Role == "" {
				rejectionFor(ErrInvalidCredential).WriteJSON(w)
				return
			}
			for _, role := range roles {
				if rc.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			apierror.Forbidden("Forbidden").WriteJSON(w)
		})
	}
}
