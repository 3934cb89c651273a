package middleware

import (
	"net/http"
	"time"

	"github.com/shieldgate/gateway/internal/gateway"
	"github.com/shieldgate/gateway/pkg/domain/audit"
)

// RequestAudit writes one "request" event per completed request, carrying
// the final status code, duration and whatever identity and risk the
// pipeline attached. Health and metrics endpoints are skipped.
func RequestAudit(sink *gateway.Sink) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipLogPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			e := audit.NewEvent(audit.TypeRequest, "Request processed")
			e.Method = r.Method
			e.Path = r.URL.RequestURI()
			e.StatusCode = wrapped.statusCode
			e.UserAgent = r.UserAgent()
			e.Details = map[string]any{"durationMs": time.Since(start).Milliseconds()}

			if rc, ok := gateway.FromContext(r.Context()); ok {
				e.IP = rc.ClientIP
				e.APIKeyID = rc.APIKeyID
				e.UserID = rc.UserID
				e.Geo = rc.Geo
				e.RiskLevel = string(rc.Risk.Level)
				e.RiskScore = rc.Risk.Score
			}

			sink.Emit(r.Context(), e)
		})
	}
}
