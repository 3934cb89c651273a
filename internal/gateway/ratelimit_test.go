package gateway

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldgate/gateway/pkg/domain/apikey"
	"github.com/shieldgate/gateway/pkg/domain/audit"
)

func tightRateLimit() RateLimitConfig {
	return RateLimitConfig{
		Window:         time.Minute,
		IdentityLimit:  3,
		RouteLimit:     100,
		BlockThreshold: 2,
	}
}

func TestRateLimiter_IdentityBudget(t *testing.T) {
	env := newTestEnv(t, withRateLimit(tightRateLimit()))

	for i := 0; i < 3; i++ {
		rec := env.serve(env.authedRequest(http.MethodGet, "/api/service-a/data", "198.51.100.7"))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := env.serve(env.authedRequest(http.MethodGet, "/api/service-a/data", "198.51.100.7"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")

	events := env.audits.byType(audit.TypeRateLimit)
	require.Len(t, events, 1)
	assert.Equal(t, "Per identity rate limit exceeded", events[0].Message)
	assert.Equal(t, audit.LevelMedium, events[0].RiskLevel)
}

func TestRateLimiter_RouteBudgetSharedAcrossIdentities(t *testing.T) {
	env := newTestEnv(t, withRateLimit(RateLimitConfig{
		Window:         time.Minute,
		IdentityLimit:  100,
		RouteLimit:     2,
		BlockThreshold: 10,
	}))

	// Two different anonymous identities share the route budget. Requests
	// without credentials stop at the authenticator, so exercise the
	// limiter directly.
	handler := env.pipeline.RateLimiter.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(ip string) int {
		req := env.authedRequest(http.MethodGet, "/api/service-a/data", ip)
		req = req.WithContext(NewContext(req.Context(), &RequestContext{ClientIP: ip}))
		rec := serveHandler(handler, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, serve("198.51.100.7"))
	assert.Equal(t, http.StatusOK, serve("203.0.113.9"))
	assert.Equal(t, http.StatusTooManyRequests, serve("198.51.100.44"))
}

func TestRateLimiter_WindowReset(t *testing.T) {
	store := newCounterStore(50 * time.Millisecond)
	now := time.Now()

	for i := 1; i <= 3; i++ {
		c := store.touch("id", 3, now)
		assert.Equal(t, i, c.count)
	}
	c := store.touch("id", 3, now)
	assert.Equal(t, 4, c.count)

	// A fresh window starts counting from one and clears escalation.
	require.True(t, store.markEscalated("id"))
	later := now.Add(60 * time.Millisecond)
	c = store.touch("id", 3, later)
	assert.Equal(t, 1, c.count)
	assert.False(t, c.escalated)
	assert.True(t, store.markEscalated("id"))
}

func TestRateLimiter_EscalationFiresOncePerCrossing(t *testing.T) {
	env := newTestEnv(t, withRateLimit(tightRateLimit()))

	// limit 3, threshold 2: the ban fires when the counter reaches 6.
	var lastCode int
	for i := 0; i < 6; i++ {
		rec := env.serve(env.authedRequest(http.MethodGet, "/api/service-a/data", "198.51.100.7"))
		lastCode = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, lastCode)

	require.Len(t, env.keys.blocked, 1)
	assert.Equal(t, env.apiKeyID, env.keys.blocked[0])

	banEvents := env.audits.byType(audit.TypeThreat)
	require.Len(t, banEvents, 1)
	assert.Equal(t, "Auto-blocked for abuse", banEvents[0].Message)
	assert.Equal(t, 90, banEvents[0].RiskScore)

	record, err := env.reputations.FindByAddress(context.Background(), "198.51.100.7")
	require.NoError(t, err)
	assert.True(t, record.Blocked)
	assert.Equal(t, "auto-rate-limit", record.Reason)

	// The ban compounds: the blocked key no longer authenticates at all.
	rec := env.serve(env.authedRequest(http.MethodGet, "/api/service-a/data", "198.51.100.7"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimiter_OverrideReplacesDefault(t *testing.T) {
	env := newTestEnv(t, withRateLimit(RateLimitConfig{
		Window:         time.Minute,
		IdentityLimit:  100,
		RouteLimit:     100,
		BlockThreshold: 10,
	}))

	// Reseed the key with a personal budget of 1 request per window.
	k, err := env.keys.GetByID(context.Background(), env.apiKeyID)
	require.NoError(t, err)
	k.RateLimit = 1

	rec := env.serve(env.authedRequest(http.MethodGet, "/api/service-a/data", "198.51.100.7"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.serve(env.authedRequest(http.MethodGet, "/api/service-a/data", "198.51.100.7"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimiter_BlockedKeyCannotAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.keys.UpdateStatus(context.Background(), env.apiKeyID, apikey.StatusBlocked))

	rec := env.serve(env.authedRequest(http.MethodGet, "/api/service-a/data", "198.51.100.7"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCounterStore_Sweep(t *testing.T) {
	store := newCounterStore(time.Nanosecond)
	now := time.Now().Add(-time.Second)
	store.touch("a", 1, now)
	store.touch("b", 1, now)

	assert.Equal(t, 2, store.sweep(time.Now()))
	assert.Equal(t, 0, store.sweep(time.Now()))
}
