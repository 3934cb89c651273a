package middleware

import (
	"net/http"
	"strings"

	"github.com/shieldgate/gateway/pkg/apierror"
)

// forbiddenHeaders are request headers that are never legitimate here.
// X-Forwarded-For is NOT on this list: the source-address normalization
// depends on it when the gateway runs behind a proxy.
var forbiddenHeaders = []string{
	"X-HTTP-Method-Override",
}

// ValidateRequest enforces request hygiene before anything else runs:
// write methods must carry a JSON content type, and method-override
// headers are rejected outright.
func ValidateRequest() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
				contentType := r.Header.Get("Content-Type")
				if !strings.Contains(contentType, "application/json") {
					apierror.BadRequest("Content-Type must be application/json").WriteJSON(w)
					return
				}
			}

			for _, header := range forbiddenHeaders {
				if r.Header.Get(header) != "" {
					apierror.BadRequest("Header " + header + " is not allowed").WriteJSON(w)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
