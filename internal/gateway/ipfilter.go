package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/shieldgate/gateway/internal/metrics"
	"github.com/shieldgate/gateway/pkg/domain/audit"
	"github.com/shieldgate/gateway/pkg/domain/reputation"
	"github.com/shieldgate/gateway/pkg/domain/shared"
	"github.com/shieldgate/gateway/pkg/logger"
)

// Block reasons written to audit events.
const (
	reasonBlockedEntry   = "blocked-entry"
	reasonNotAllowlisted = "not-allowlisted"
)

// IPFilterConfig configures the reputation filter.
type IPFilterConfig struct {
	// CacheTTL is how long a verdict is cached per address.
	CacheTTL time.Duration
	// AllowCountTTL is how long the allowlist-size probe is cached,
	// bounding store load.
	AllowCountTTL time.Duration
	// TrustedIPs always pass, bypassing all reputation checks.
	TrustedIPs []string
}

// DefaultIPFilterConfig returns production defaults.
func DefaultIPFilterConfig() IPFilterConfig {
	return IPFilterConfig{
		CacheTTL:      time.Minute,
		AllowCountTTL: time.Minute,
		TrustedIPs:    []string{"127.0.0.1", "::1", "localhost"},
	}
}

type verdict struct {
	blocked   bool
	reason    string
	expiresAt time.Time
}

// IPFilter admits or rejects requests purely by source-address reputation,
// independent of authentication outcome. Verdicts are cached with a fixed
// TTL per address; the persistent store is only consulted on a miss.
type IPFilter struct {
	repo    reputation.Repository
	sink    *Sink
	logger  *logger.Logger
	trusted map[string]bool
	ttl     time.Duration

	mu    sync.Mutex
	cache map[string]verdict

	allowMu        sync.Mutex
	allowCount     int
	allowCountTTL  time.Duration
	allowCountedAt time.Time
}

// NewIPFilter creates the reputation stage.
func NewIPFilter(repo reputation.Repository, sink *Sink, cfg IPFilterConfig, log *logger.Logger) *IPFilter {
	trusted := make(map[string]bool, len(cfg.TrustedIPs))
	for _, ip := range cfg.TrustedIPs {
		trusted[ip] = true
	}
	return &IPFilter{
		repo:          repo,
		sink:          sink,
		logger:        log.With("stage", "ip_filter"),
		trusted:       trusted,
		ttl:           cfg.CacheTTL,
		cache:         make(map[string]verdict),
		allowCountTTL: cfg.AllowCountTTL,
	}
}

// Middleware returns the pipeline stage handler.
func (f *IPFilter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rc, ok := FromContext(r.Context())
			if !ok {
				rejectionFor(nil).WriteJSON(w)
				return
			}

			v, err := f.check(r.Context(), rc.ClientIP)
			metrics.StageDuration.WithLabelValues(metrics.StageIPFilter).Observe(time.Since(start).Seconds())
			if err != nil {
				// Fail closed: unreachable reputation store rejects.
				metrics.RecordDecision(metrics.StageIPFilter, metrics.OutcomeReject)
				f.logger.Error("reputation lookup failed", "error", err, "ip", rc.ClientIP)
				rejectionFor(ErrStoreUnavailable).WriteJSON(w)
				return
			}
			if v.blocked {
				metrics.RecordDecision(metrics.StageIPFilter, metrics.OutcomeReject)
				f.auditBlock(r, rc, v.reason)
				rejectionFor(ErrReputationBlocked).WriteJSON(w)
				return
			}

			metrics.RecordDecision(metrics.StageIPFilter, metrics.OutcomePass)
			next.ServeHTTP(w, r)
		})
	}
}

// check resolves the verdict for an address, consulting the cache first.
func (f *IPFilter) check(ctx context.Context, ip string) (verdict, error) {
	if f.trusted[ip] {
		return verdict{}, nil
	}

	now := time.Now()

	f.mu.Lock()
	if v, ok := f.cache[ip]; ok && v.expiresAt.After(now) {
		f.mu.Unlock()
		return v, nil
	}
	f.mu.Unlock()

	v, err := f.resolve(ctx, ip, now)
	if err != nil {
		return verdict{}, err
	}

	// Cache the verdict with a fixed TTL regardless of outcome.
	v.expiresAt = now.Add(f.ttl)
	f.mu.Lock()
	f.cache[ip] = v
	f.mu.Unlock()
	return v, nil
}

// resolve computes a fresh verdict from the store. The address is blocked
// if its own record actively blocks it, or if any allow-mode record exists
// anywhere and this address is not itself allow-mode: the presence of an
// allowlist flips the default policy to deny-by-default. The inversion is
// a documented quirk of the reference behavior, preserved exactly.
func (f *IPFilter) resolve(ctx context.Context, ip string, now time.Time) (verdict, error) {
	record, err := f.repo.FindByAddress(ctx, ip)
	if err != nil && !shared.IsNotFound(err) {
		return verdict{}, shared.NewStoreError("find reputation record", err)
	}

	if record != nil && record.BlockActive(now) {
		return verdict{blocked: true, reason: reasonBlockedEntry}, nil
	}

	allowCount, err := f.activeAllowCount(ctx, now)
	if err != nil {
		return verdict{}, err
	}
	if allowCount > 0 && (record == nil || record.Mode != reputation.ModeAllow) {
		return verdict{blocked: true, reason: reasonNotAllowlisted}, nil
	}

	return verdict{}, nil
}

// activeAllowCount returns the process-wide count of allow-mode records,
// cached with its own TTL.
func (f *IPFilter) activeAllowCount(ctx context.Context, now time.Time) (int, error) {
	f.allowMu.Lock()
	defer f.allowMu.Unlock()

	if !f.allowCountedAt.IsZero() && now.Sub(f.allowCountedAt) < f.allowCountTTL {
		return f.allowCount, nil
	}

	count, err := f.repo.CountByMode(ctx, reputation.ModeAllow)
	if err != nil {
		return 0, shared.NewStoreError("count allow records", err)
	}
	f.allowCount = count
	f.allowCountedAt = now
	return count, nil
}

// auditBlock writes the rejection event, tagged with the triggering
// reason. The geo bucket travels with the event even though the request
// is being dropped.
func (f *IPFilter) auditBlock(r *http.Request, rc *RequestContext, reason string) {
	e := audit.NewEvent(audit.TypeAuthFailed, "Blocked IP")
	e.IP = rc.ClientIP
	e.Method = r.Method
	e.Path = r.URL.RequestURI()
	e.Geo = rc.Geo
	e.Details = map[string]any{"reason": reason}
	f.sink.Emit(r.Context(), e)
}

// Forget drops the cached verdict for one address and resets the
// allowlist-size probe. Called after administrative block or unblock so
// the change applies before the cache TTL elapses.
func (f *IPFilter) Forget(ip string) {
	f.mu.Lock()
	delete(f.cache, ip)
	f.mu.Unlock()

	f.allowMu.Lock()
	f.allowCountedAt = time.Time{}
	f.allowMu.Unlock()
}

// SweepCache drops expired verdicts. Called by the background sweeper.
func (f *IPFilter) SweepCache() int {
	now := time.Now()
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := 0
	for ip, v := range f.cache {
		if !v.expiresAt.After(now) {
			delete(f.cache, ip)
			removed++
		}
	}
	return removed
}
