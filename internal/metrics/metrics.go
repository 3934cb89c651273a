// Package metrics exposes Prometheus metrics for the gating pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics.
var (
	// StageDecisionsTotal counts allow/deny decisions per stage.
	StageDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_stage_decisions_total",
			Help: "Pipeline stage decisions by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	// StageDuration tracks per-stage latency. The whole pipeline carries a
	// sub-millisecond budget, so buckets are tight.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_stage_duration_seconds",
			Help:    "Pipeline stage execution time in seconds",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"stage"},
	)

	// CacheEventsTotal counts response-cache hits, misses and evictions.
	CacheEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_response_cache_events_total",
			Help: "Response cache events by type",
		},
		[]string{"event"},
	)

	// BansTotal counts automatic ban escalations.
	BansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_auto_bans_total",
			Help: "Automatic ban escalations triggered by sustained abuse",
		},
	)

	// AuditWriteFailuresTotal counts audit events that could not be
	// persisted and were recovered locally.
	AuditWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_audit_write_failures_total",
			Help: "Audit sink writes that failed and were swallowed",
		},
	)
)

// Stage label values.
const (
	StageAuth      = "authenticator"
	StageIPFilter  = "ip_filter"
	StageThreat    = "threat_detector"
	StageRisk      = "risk_scorer"
	StageRateLimit = "rate_limiter"
	StageRespCache = "response_cache"
)

// Outcome label values.
const (
	OutcomePass   = "pass"
	OutcomeReject = "reject"
)

// RecordDecision records a stage decision.
func RecordDecision(stage, outcome string) {
	StageDecisionsTotal.WithLabelValues(stage, outcome).Inc()
}
