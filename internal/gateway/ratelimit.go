package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/shieldgate/gateway/internal/metrics"
	"github.com/shieldgate/gateway/pkg/domain/apikey"
	"github.com/shieldgate/gateway/pkg/domain/audit"
	"github.com/shieldgate/gateway/pkg/domain/reputation"
	"github.com/shieldgate/gateway/pkg/logger"
)

// RateLimitConfig configures the budget stage.
type RateLimitConfig struct {
	// Window is the rolling window for both budgets.
	Window time.Duration
	// IdentityLimit is the per-identity default when no override applies.
	IdentityLimit int
	// RouteLimit is the shared per-route budget.
	RouteLimit int
	// BlockThreshold multiplies the identity limit; reaching
	// limit*BlockThreshold escalates to a standing ban.
	BlockThreshold int
}

// DefaultRateLimitConfig returns production defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Window:         time.Minute,
		IdentityLimit:  200,
		RouteLimit:     100,
		BlockThreshold: 3,
	}
}

// counter is one rolling-window budget. It exists only in process memory
// and is lost on restart; the ban escalation it can trigger is persisted,
// so a restart only forgets transient pacing.
type counter struct {
	count     int
	limit     int
	resetAt   time.Time
	escalated bool
}

// counterStore is a mutex-guarded window-counter map. The read-modify-write
// for one request happens under a single lock acquisition.
type counterStore struct {
	mu       sync.Mutex
	window   time.Duration
	counters map[string]*counter
}

func newCounterStore(window time.Duration) *counterStore {
	return &counterStore{
		window:   window,
		counters: make(map[string]*counter),
	}
}

// touch resets an elapsed window, then increments and returns the counter
// snapshot for the current request.
func (s *counterStore) touch(key string, limit int, now time.Time) counter {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		c = &counter{resetAt: now.Add(s.window)}
		s.counters[key] = c
	}
	if !c.resetAt.After(now) {
		c.count = 0
		c.resetAt = now.Add(s.window)
		c.escalated = false
	}
	c.count++
	c.limit = limit
	return *c
}

// markEscalated flags a counter so the ban side effect fires once per
// crossing, not on every subsequent request. Returns false when another
// request already claimed the crossing.
func (s *counterStore) markEscalated(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[key]
	if !ok || c.escalated {
		return false
	}
	c.escalated = true
	return true
}

// sweep removes counters whose window elapsed.
func (s *counterStore) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, c := range s.counters {
		if !c.resetAt.After(now) {
			delete(s.counters, key)
			removed++
		}
	}
	return removed
}

// RateLimiter enforces two independent rolling-window budgets, per
// identity and per route, and escalates sustained violation to a ban.
type RateLimiter struct {
	cfg        RateLimitConfig
	identities *counterStore
	routes     *counterStore
	keys       apikey.Repository
	reputation reputation.Repository
	sink       *Sink
	logger     *logger.Logger
}

// NewRateLimiter creates the budget stage.
func NewRateLimiter(keys apikey.Repository, rep reputation.Repository, sink *Sink, cfg RateLimitConfig, log *logger.Logger) *RateLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.IdentityLimit <= 0 {
		cfg.IdentityLimit = 200
	}
	if cfg.RouteLimit <= 0 {
		cfg.RouteLimit = 100
	}
	if cfg.BlockThreshold <= 0 {
		cfg.BlockThreshold = 3
	}
	return &RateLimiter{
		cfg:        cfg,
		identities: newCounterStore(cfg.Window),
		routes:     newCounterStore(cfg.Window),
		keys:       keys,
		reputation: rep,
		sink:       sink,
		logger:     log.With("stage", "rate_limiter"),
	}
}

// Middleware returns the pipeline stage handler.
func (l *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rc, ok := FromContext(r.Context())
			if !ok {
				rejectionFor(nil).WriteJSON(w)
				return
			}

			now := time.Now()

			identityLimit := l.cfg.IdentityLimit
			if rc.RateOverride > 0 {
				identityLimit = rc.RateOverride
			}
			identityKey := rc.Identity()
			identity := l.identities.touch(identityKey, identityLimit, now)

			routeKey := r.Method + ":" + r.URL.Path
			route := l.routes.touch(routeKey, l.cfg.RouteLimit, now)

			overIdentity := identity.count > identity.limit
			overRoute := route.count > route.limit

			metrics.StageDuration.WithLabelValues(metrics.StageRateLimit).Observe(time.Since(start).Seconds())

			if !overIdentity && !overRoute {
				metrics.RecordDecision(metrics.StageRateLimit, metrics.OutcomePass)
				next.ServeHTTP(w, r)
				return
			}

			metrics.RecordDecision(metrics.StageRateLimit, metrics.OutcomeReject)

			cause := ErrRouteRateLimit
			message := "Per route rate limit exceeded"
			if overIdentity {
				cause = ErrIdentityRateLimit
				message = "Per identity rate limit exceeded"
			}
			l.auditLimit(r, rc, message, identity, route)

			// Escalation runs only after the rejection is already decided;
			// it amplifies the consequence, it does not decide it.
			if identity.count >= identity.limit*l.cfg.BlockThreshold {
				if l.identities.markEscalated(identityKey) {
					l.escalate(r.Context(), r, rc)
				}
			}

			rejectionFor(cause).WriteJSON(w)
		})
	}
}

func (l *RateLimiter) auditLimit(r *http.Request, rc *RequestContext, message string, identity, route counter) {
	e := audit.NewEvent(audit.TypeRateLimit, message)
	e.IP = rc.ClientIP
	e.APIKeyID = rc.APIKeyID
	e.UserID = rc.UserID
	e.Method = r.Method
	e.Path = r.URL.RequestURI()
	e.RiskLevel = audit.LevelMedium
	e.RiskScore = 60
	e.Geo = rc.Geo
	e.Details = map[string]any{
		"identityCount": identity.count,
		"identityLimit": identity.limit,
		"routeCount":    route.count,
		"routeLimit":    route.limit,
	}
	l.sink.Emit(r.Context(), e)
}

// escalate performs the irreversible ban side effect: the API-key identity
// (if any) is marked blocked and the source address is written to the
// reputation store as blocked. Reversal requires administrative action.
func (l *RateLimiter) escalate(ctx context.Context, r *http.Request, rc *RequestContext) {
	metrics.BansTotal.Inc()

	if rc.APIKeyID != "" {
		if err := l.keys.UpdateStatus(ctx, rc.APIKeyID, apikey.StatusBlocked); err != nil {
			l.logger.Error("key block failed", "error", err, "api_key_id", rc.APIKeyID)
		}
	}

	up := reputation.Upsert{
		IP:      rc.ClientIP,
		Blocked: true,
		Mode:    reputation.ModeBlock,
		Reason:  "auto-rate-limit",
		Geo:     rc.Geo,
	}
	if err := l.reputation.Upsert(ctx, up); err != nil {
		l.logger.Error("reputation upsert failed", "error", err, "ip", rc.ClientIP)
	}

	e := audit.NewEvent(audit.TypeThreat, "Auto-blocked for abuse")
	e.IP = rc.ClientIP
	e.APIKeyID = rc.APIKeyID
	e.UserID = rc.UserID
	e.Path = r.URL.RequestURI()
	e.RiskLevel = audit.LevelHigh
	e.RiskScore = 90
	e.Geo = rc.Geo
	l.sink.Emit(ctx, e)

	l.logger.Warn("identity auto-blocked",
		"ip", rc.ClientIP,
		"api_key_id", rc.APIKeyID,
	)
}

// Sweep removes elapsed counters from both stores.
func (l *RateLimiter) Sweep() int {
	now := time.Now()
	return l.identities.sweep(now) + l.routes.sweep(now)
}
