package gateway

import (
	"net/http"
)

// Pipeline assembles the gating stages in their fixed order:
//
//	Contextualize -> Authenticator -> IPFilter -> ThreatDetector ->
//	RiskScorer -> RateLimiter -> ResponseCache -> downstream handler
//
// Any stage may terminate early with a decision; the rest pass control
// forward and enrich the RequestContext.
type Pipeline struct {
	Authenticator *Authenticator
	IPFilter      *IPFilter
	Threat        *ThreatDetector
	Risk          *RiskScorer
	RateLimiter   *RateLimiter
	Cache         *ResponseCache
}

// Middlewares returns the ordered middleware chain, ready for router.Use.
func (p *Pipeline) Middlewares() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		Contextualize(),
		p.Authenticator.Middleware(),
		p.IPFilter.Middleware(),
		p.Threat.Middleware(),
		p.Risk.Middleware(),
		p.RateLimiter.Middleware(),
		p.Cache.Middleware(),
	}
}

// Handler wraps next with the full chain. Useful for tests and for
// mounting the pipeline around a single downstream handler.
func (p *Pipeline) Handler(next http.Handler) http.Handler {
	mws := p.Middlewares()
	h := next
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Sweep evicts expired state from every in-memory store. Called
// periodically by the background sweeper to keep memory bounded; all
// stores also evict lazily on access, so sweeping is hygiene, not
// correctness.
func (p *Pipeline) Sweep() int {
	total := 0
	total += p.IPFilter.SweepCache()
	total += p.Threat.SweepBursts()
	total += p.RateLimiter.Sweep()
	total += p.Cache.Sweep()
	return total
}
