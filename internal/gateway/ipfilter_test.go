package gateway

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldgate/gateway/pkg/domain/reputation"
)

func TestIPFilter_BlockedEntryRejected(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.reputations.Upsert(context.Background(), reputation.Upsert{
		IP: "198.51.100.7", Blocked: true, Mode: reputation.ModeBlock, Reason: "test",
	}))

	rec := env.serve(env.authedRequest(http.MethodGet, "/api/service-a/data", "198.51.100.7"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "IP blocked")
}

func TestIPFilter_TrustedIPAlwaysPasses(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.reputations.Upsert(context.Background(), reputation.Upsert{
		IP: "127.0.0.1", Blocked: true, Mode: reputation.ModeBlock, Reason: "test",
	}))

	rec := env.serve(env.authedRequest(http.MethodGet, "/api/service-a/data", "127.0.0.1"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIPFilter_ExpiredBlockPasses(t *testing.T) {
	env := newTestEnv(t)

	past := time.Now().Add(-time.Minute)
	env.reputations.records["198.51.100.7"] = &reputation.Record{
		IP:           "198.51.100.7",
		Mode:         reputation.ModeBlock,
		Blocked:      true,
		BlockedUntil: &past,
	}

	rec := env.serve(env.authedRequest(http.MethodGet, "/api/service-a/data", "198.51.100.7"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIPFilter_AllowlistInversion(t *testing.T) {
	// One allow-mode record anywhere flips the default policy: every
	// address without its own allow entry is denied.
	env := newTestEnv(t)
	require.NoError(t, env.reputations.Upsert(context.Background(), reputation.Upsert{
		IP: "203.0.113.9", Mode: reputation.ModeAllow,
	}))

	rec := env.serve(env.authedRequest(http.MethodGet, "/api/service-a/data", "198.51.100.7"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The allowlisted address itself passes.
	rec = env.serve(env.authedRequest(http.MethodGet, "/api/service-a/data", "203.0.113.9"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIPFilter_DefaultRestoredWhenAllowlistEmpties(t *testing.T) {
	env := newTestEnv(t, withIPFilter(IPFilterConfig{
		// Zero TTLs disable both caches so the store is consulted fresh.
		CacheTTL:      time.Nanosecond,
		AllowCountTTL: time.Nanosecond,
		TrustedIPs:    []string{"127.0.0.1"},
	}))
	require.NoError(t, env.reputations.Upsert(context.Background(), reputation.Upsert{
		IP: "203.0.113.9", Mode: reputation.ModeAllow,
	}))

	rec := env.serve(env.authedRequest(http.MethodGet, "/api/service-a/data", "198.51.100.7"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Removing the last allow entry restores allow-by-default.
	require.NoError(t, env.reputations.Delete(context.Background(), "203.0.113.9"))
	time.Sleep(time.Millisecond)

	rec = env.serve(env.authedRequest(http.MethodGet, "/api/service-a/data", "198.51.100.7"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIPFilter_VerdictCached(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(env.authedRequest(http.MethodGet, "/api/service-a/data", "198.51.100.7"))
	require.Equal(t, http.StatusOK, rec.Code)

	// A ban landing after the verdict was cached is invisible until the
	// TTL elapses or the entry is forgotten.
	require.NoError(t, env.reputations.Upsert(context.Background(), reputation.Upsert{
		IP: "198.51.100.7", Blocked: true, Mode: reputation.ModeBlock, Reason: "test",
	}))

	rec = env.serve(env.authedRequest(http.MethodGet, "/api/service-a/data", "198.51.100.7"))
	assert.Equal(t, http.StatusOK, rec.Code)

	env.pipeline.IPFilter.Forget("198.51.100.7")

	rec = env.serve(env.authedRequest(http.MethodGet, "/api/service-a/data", "198.51.100.7"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIPFilter_StoreFailureFailsClosed(t *testing.T) {
	env := newTestEnv(t)
	env.reputations.findErr = errStoreDown

	rec := env.serve(env.authedRequest(http.MethodGet, "/api/service-a/data", "198.51.100.7"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Request rejected")
}
