package gateway

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRiskScorer_Score(t *testing.T) {
	s := NewRiskScorer(nil)

	tests := []struct {
		name      string
		method    string
		path      string
		wantScore int
		wantLevel RiskLevel
	}{
		{name: "admin read", method: http.MethodGet, path: "/admin/analytics", wantScore: 90, wantLevel: RiskHigh},
		{name: "admin write capped at 100", method: http.MethodPost, path: "/admin/blocked-ips", wantScore: 100, wantLevel: RiskHigh},
		{name: "login", method: http.MethodGet, path: "/auth/login", wantScore: 70, wantLevel: RiskHigh},
		{name: "login post", method: http.MethodPost, path: "/auth/login", wantScore: 80, wantLevel: RiskHigh},
		{name: "service-b", method: http.MethodGet, path: "/api/service-b/metrics", wantScore: 60, wantLevel: RiskMedium},
		{name: "service-a read", method: http.MethodGet, path: "/api/service-a/data", wantScore: 40, wantLevel: RiskMedium},
		{name: "service-a write", method: http.MethodPost, path: "/api/service-a/data", wantScore: 50, wantLevel: RiskMedium},
		{name: "unknown path", method: http.MethodGet, path: "/api/public/ping", wantScore: 10, wantLevel: RiskLow},
		{name: "unknown path write", method: http.MethodDelete, path: "/api/public/ping", wantScore: 20, wantLevel: RiskLow},
		{name: "case insensitive", method: http.MethodGet, path: "/ADMIN/logs", wantScore: 90, wantLevel: RiskHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			risk := s.Score(tt.method, tt.path)
			assert.Equal(t, tt.wantScore, risk.Score)
			assert.Equal(t, tt.wantLevel, risk.Level)
		})
	}
}

func TestRiskScorer_Deterministic(t *testing.T) {
	s := NewRiskScorer(nil)
	first := s.Score(http.MethodPost, "/api/service-a/data")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, s.Score(http.MethodPost, "/api/service-a/data"))
	}
}

func TestRiskScorer_FirstMatchWins(t *testing.T) {
	s := NewRiskScorer(nil)

	// /admin is listed before /api/service-a; a path matching both takes
	// the earlier rule.
	risk := s.Score(http.MethodGet, "/api/service-a/admin")
	assert.Equal(t, 90, risk.Score)
	assert.Equal(t, RiskHigh, risk.Level)
}

func TestRiskScorer_AnnotatesContext(t *testing.T) {
	env := newTestEnv(t)

	var got Risk
	req := env.authedRequest(http.MethodGet, "/api/service-b/metrics", "198.51.100.7")
	rec := env.serveWith(req, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rc, ok := FromContext(r.Context()); ok {
			got = rc.Risk
		}
		w.WriteHeader(http.StatusOK)
	}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Risk{Score: 60, Level: RiskMedium}, got)
}
