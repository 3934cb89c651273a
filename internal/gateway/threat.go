package gateway

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shieldgate/gateway/internal/metrics"
	"github.com/shieldgate/gateway/pkg/domain/audit"
	"github.com/shieldgate/gateway/pkg/domain/reputation"
	"github.com/shieldgate/gateway/pkg/logger"
)

// ThreatConfig configures the detection stage.
type ThreatConfig struct {
	// Rules is the ordered pattern table; nil means DefaultThreatRules.
	Rules []ThreatRule
	// BurstWindow and BurstThreshold drive the per-IP frequency heuristic.
	BurstWindow    time.Duration
	BurstThreshold int
	// MaxScanBytes bounds how much request body is buffered for scanning.
	MaxScanBytes int64
}

// DefaultThreatConfig returns production defaults.
func DefaultThreatConfig() ThreatConfig {
	return ThreatConfig{
		Rules:          DefaultThreatRules(),
		BurstWindow:    10 * time.Second,
		BurstThreshold: 50,
		MaxScanBytes:   1 << 20,
	}
}

type burstCounter struct {
	count       int
	windowStart time.Time
}

// ThreatDetector inspects request target and payload for known-malicious
// signatures and abnormal call frequency. A pattern match is a standing
// offense: the source IP is banned in the reputation store. A burst is a
// softer outcome: rejected with 429 but never banned.
type ThreatDetector struct {
	cfg    ThreatConfig
	repo   reputation.Repository
	sink   *Sink
	logger *logger.Logger

	mu     sync.Mutex
	bursts map[string]*burstCounter
}

// NewThreatDetector creates the detection stage.
func NewThreatDetector(repo reputation.Repository, sink *Sink, cfg ThreatConfig, log *logger.Logger) *ThreatDetector {
	if cfg.Rules == nil {
		cfg.Rules = DefaultThreatRules()
	}
	if cfg.BurstWindow <= 0 {
		cfg.BurstWindow = 10 * time.Second
	}
	if cfg.BurstThreshold <= 0 {
		cfg.BurstThreshold = 50
	}
	if cfg.MaxScanBytes <= 0 {
		cfg.MaxScanBytes = 1 << 20
	}
	return &ThreatDetector{
		cfg:    cfg,
		repo:   repo,
		sink:   sink,
		logger: log.With("stage", "threat_detector"),
		bursts: make(map[string]*burstCounter),
	}
}

// Middleware returns the pipeline stage handler.
func (d *ThreatDetector) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rc, ok := FromContext(r.Context())
			if !ok {
				rejectionFor(nil).WriteJSON(w)
				return
			}

			target := d.scanBuffer(r)

			for _, rule := range d.cfg.Rules {
				if rule.Pattern.MatchString(target) {
					metrics.StageDuration.WithLabelValues(metrics.StageThreat).Observe(time.Since(start).Seconds())
					metrics.RecordDecision(metrics.StageThreat, metrics.OutcomeReject)
					d.flag(r, rc, rule.Name, map[string]any{"rule": rule.Name})
					rejectionFor(ErrMaliciousPattern).WriteJSON(w)
					return
				}
			}

			if count := d.trackBurst(rc.ClientIP, time.Now()); count > d.cfg.BurstThreshold {
				metrics.StageDuration.WithLabelValues(metrics.StageThreat).Observe(time.Since(start).Seconds())
				metrics.RecordDecision(metrics.StageThreat, metrics.OutcomeReject)
				d.auditThreat(r, rc, "abnormal_frequency", map[string]any{"count": count})
				rejectionFor(ErrBurstExceeded).WriteJSON(w)
				return
			}

			metrics.StageDuration.WithLabelValues(metrics.StageThreat).Observe(time.Since(start).Seconds())
			metrics.RecordDecision(metrics.StageThreat, metrics.OutcomePass)
			next.ServeHTTP(w, r)
		})
	}
}

// scanBuffer concatenates the request target, body and decoded query into
// one buffer. The body is restored so downstream handlers can re-read it.
func (d *ThreatDetector) scanBuffer(r *http.Request) string {
	var sb strings.Builder
	sb.WriteString(r.URL.RequestURI())

	if r.Body != nil && r.Body != http.NoBody {
		body, err := io.ReadAll(io.LimitReader(r.Body, d.cfg.MaxScanBytes))
		_ = r.Body.Close()
		if err == nil {
			r.Body = io.NopCloser(bytes.NewReader(body))
			sb.WriteByte(' ')
			sb.Write(body)
		} else {
			r.Body = io.NopCloser(bytes.NewReader(nil))
		}
	}

	// Encoded query values are scanned decoded so %3Cscript%3E and
	// friends do not slip past the patterns.
	if raw := r.URL.RawQuery; raw != "" {
		if decoded, err := url.QueryUnescape(raw); err == nil {
			sb.WriteByte(' ')
			sb.WriteString(decoded)
		}
	}

	return sb.String()
}

// trackBurst bumps the per-IP fixed-window counter and returns the new
// count. The read-modify-write happens under one lock acquisition.
func (d *ThreatDetector) trackBurst(ip string, now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.bursts[ip]
	if !ok {
		c = &burstCounter{windowStart: now}
		d.bursts[ip] = c
	}
	if now.Sub(c.windowStart) > d.cfg.BurstWindow {
		c.count = 0
		c.windowStart = now
	}
	c.count++
	return c.count
}

// flag bans the source address for a pattern match and writes the
// high-severity event. Store failure here does not change the rejection;
// the request is already condemned.
func (d *ThreatDetector) flag(r *http.Request, rc *RequestContext, rule string, details map[string]any) {
	up := reputation.Upsert{
		IP:      rc.ClientIP,
		Blocked: true,
		Mode:    reputation.ModeBlock,
		Reason:  rule,
		Geo:     rc.Geo,
	}
	if err := d.repo.Upsert(r.Context(), up); err != nil {
		d.logger.Error("reputation upsert failed", "error", err, "ip", rc.ClientIP, "rule", rule)
	}
	d.auditThreat(r, rc, rule, details)
}

func (d *ThreatDetector) auditThreat(r *http.Request, rc *RequestContext, reason string, details map[string]any) {
	e := audit.NewEvent(audit.TypeThreat, "Threat detected: "+reason)
	e.IP = rc.ClientIP
	e.APIKeyID = rc.APIKeyID
	e.Method = r.Method
	e.Path = r.URL.RequestURI()
	e.RiskLevel = audit.LevelHigh
	e.RiskScore = 95
	e.Geo = rc.Geo
	e.Details = details
	d.sink.Emit(r.Context(), e)
}

// SweepBursts drops counters whose window has elapsed.
func (d *ThreatDetector) SweepBursts() int {
	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for ip, c := range d.bursts {
		if now.Sub(c.windowStart) > d.cfg.BurstWindow {
			delete(d.bursts, ip)
			removed++
		}
	}
	return removed
}
