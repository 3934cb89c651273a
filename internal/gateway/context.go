// Package gateway implements the request-gating pipeline: a fixed sequence
// of decision stages that authenticate the caller, reject disreputable
// sources, detect malicious payloads, score risk, enforce request budgets
// and memoize read responses. Every stage is an explicitly-owned service
// object wired in by the caller; none of them reach for global state.
package gateway

import (
	"context"
	"net/http"

	"github.com/shieldgate/gateway/pkg/geo"
)

// RiskLevel is the coarse severity band assigned by the risk scorer.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Risk is the score/level pair attached to request context.
type Risk struct {
	Score int
	Level RiskLevel
}

// RequestContext is the per-request accumulator passed through every stage.
// It is created once at pipeline entry and mutated additively: stages add
// fields, never remove ones written earlier.
type RequestContext struct {
	// Identity, resolved by the authenticator. At most one of APIKeyID
	// and a bare UserID identifies the caller; both empty means the
	// request is anonymous and identified by ClientIP.
	APIKeyID string
	UserID   string
	Role     string

	// RateOverride is the per-identity budget attached to the matched API
	// key, in requests per minute. Zero means the global default applies.
	RateOverride int

	// ClientIP is the normalized source address.
	ClientIP string

	// Geo is the coarse location bucket derived from ClientIP.
	Geo geo.Location

	// Risk is filled in by the risk scorer.
	Risk Risk

	// CacheKey is filled in by the response cache stage.
	CacheKey string
}

// Identity returns the key the rate limiter and response cache scope by:
// API key first, then user, then the anonymous source address.
func (rc *RequestContext) Identity() string {
	switch {
	case rc.APIKeyID != "":
		return rc.APIKeyID
	case rc.UserID != "":
		return rc.UserID
	default:
		return "anon:" + rc.ClientIP
	}
}

// Authenticated reports whether a credential resolved to an identity.
func (rc *RequestContext) Authenticated() bool {
	return rc.APIKeyID != "" || rc.UserID != ""
}

type contextKey struct{}

// NewContext attaches a RequestContext to ctx.
func NewContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext extracts the RequestContext. The second return is false when
// the request never entered the pipeline.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(contextKey{}).(*RequestContext)
	return rc, ok
}

// ClientIP normalizes the request's source address: the first hop of
// X-Forwarded-For when present, otherwise the connection's remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return geo.NormalizeIP(fwd)
	}
	host := r.RemoteAddr
	// RemoteAddr is host:port; NormalizeIP handles bare hosts too.
	if i := lastColon(host); i >= 0 && !isIPv6Bare(host) {
		host = host[:i]
	}
	return geo.NormalizeIP(trimBrackets(host))
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

// isIPv6Bare reports whether s is an unbracketed IPv6 address with no port,
// e.g. "::1". Bracketed forms like "[::1]:8080" are handled by lastColon.
func isIPv6Bare(s string) bool {
	if len(s) == 0 || s[0] == '[' {
		return false
	}
	colons := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			colons++
		}
	}
	return colons > 1
}

func trimBrackets(s string) string {
	if len(s) >= 2 && s[0] == '[' && s[len(s)-1] == ']' {
		return s[1 : len(s)-1]
	}
	return s
}

// Contextualize is the pipeline entry middleware: it creates the
// RequestContext, normalizes the source address and derives the geo bucket
// so later stages (and audit events, even on rejection) can use both.
func Contextualize() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			rc := &RequestContext{
				ClientIP: ip,
				Geo:      geo.Lookup(ip),
				Risk:     Risk{Score: 10, Level: RiskLow},
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), rc)))
		})
	}
}
