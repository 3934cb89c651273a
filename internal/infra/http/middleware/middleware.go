// Package middleware provides the ambient HTTP middleware around the
// gating pipeline: request IDs, logging, recovery, CORS and request
// hygiene. The security pipeline itself lives in internal/gateway.
package middleware

import (
	"context"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shieldgate/gateway/internal/config"
	"github.com/shieldgate/gateway/pkg/logger"
)

// RequestIDKey is the context key for request IDs.
const RequestIDKey = logger.ContextKeyRequestID

// RequestID adds a unique request ID to each request.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestID extracts the request ID from context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// skipLogPaths are high-frequency endpoints excluded from request logging.
var skipLogPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// Logger logs HTTP requests with a level derived from the response status.
func Logger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipLogPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration", time.Since(start),
				"request_id", GetRequestID(r.Context()),
				"remote_addr", r.RemoteAddr,
			}

			switch {
			case wrapped.statusCode >= 500:
				log.Error("http request", attrs...)
			case wrapped.statusCode >= 400:
				log.Warn("http request", attrs...)
			default:
				log.Info("http request", attrs...)
			}
		})
	}
}

// Recovery recovers from panics and returns a 500 error. Stack traces are
// logged only outside production.
func Recovery(log *logger.Logger, isProduction bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if isProduction {
						log.Error("panic recovered",
							"error", err,
							"request_id", GetRequestID(r.Context()),
						)
					} else {
						log.Error("panic recovered",
							"error", err,
							"stack", string(debug.Stack()),
							"request_id", GetRequestID(r.Context()),
						)
					}
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// CORS adds CORS headers based on configuration.
func CORS(cfg *config.CORSConfig) func(http.Handler) http.Handler {
	allowedOrigins := make(map[string]bool)
	allowAllOrigins := false
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			allowAllOrigins = true
		}
		allowedOrigins[origin] = true
	}

	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if allowAllOrigins {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin != "" && allowedOrigins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
			w.Header().Set("Access-Control-Max-Age", maxAge)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireHTTPS rejects forwarded plain-HTTP requests when the deployment
// demands TLS. It trusts X-Forwarded-Proto because the gateway runs
// behind a TLS-terminating proxy in that mode.
func RequireHTTPS() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			proto := r.Header.Get("X-Forwarded-Proto")
			if proto != "" && proto != "https" {
				http.Error(w, "HTTPS required", http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
