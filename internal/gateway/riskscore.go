package gateway

import (
	"net/http"
	"time"

	"github.com/shieldgate/gateway/internal/metrics"
)

// RiskScorer assigns a coarse severity to each request from method and
// path heuristics. It is pure annotation: deterministic, side-effect-free,
// and it never terminates the pipeline.
type RiskScorer struct {
	rules []RiskRule
}

// NewRiskScorer creates the scoring stage. nil rules means the
// compiled-in table.
func NewRiskScorer(rules []RiskRule) *RiskScorer {
	if rules == nil {
		rules = DefaultRiskRules()
	}
	return &RiskScorer{rules: rules}
}

// Score classifies a (method, path) pair.
func (s *RiskScorer) Score(method, path string) Risk {
	risk := Risk{Score: 10, Level: RiskLow}

	// First matching rule wins; the table orders specific or
	// higher-priority patterns before general ones.
	for _, rule := range s.rules {
		if rule.Pattern.MatchString(path) {
			risk.Score = rule.Score
			risk.Level = rule.Level
			break
		}
	}

	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		risk.Score += 10
		if risk.Score > 100 {
			risk.Score = 100
		}
		// A mutation can escalate the band past what the path alone set.
		switch {
		case risk.Score >= 80:
			risk.Level = RiskHigh
		case risk.Score >= 50:
			risk.Level = RiskMedium
		}
	}

	return risk
}

// Middleware returns the pipeline stage handler.
func (s *RiskScorer) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			if rc, ok := FromContext(r.Context()); ok {
				rc.Risk = s.Score(r.Method, r.URL.Path)
			}
			metrics.StageDuration.WithLabelValues(metrics.StageRisk).Observe(time.Since(start).Seconds())
			metrics.RecordDecision(metrics.StageRisk, metrics.OutcomePass)
			next.ServeHTTP(w, r)
		})
	}
}
