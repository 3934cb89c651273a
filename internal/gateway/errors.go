package gateway

import (
	"errors"
	"net/http"

	"github.com/shieldgate/gateway/pkg/apierror"
)

// Pipeline rejection taxonomy. Every member except ErrStoreUnavailable is
// an expected, terminal, user-facing outcome with a fixed status; none are
// retried. Collaborator failures during security-critical reads fail
// closed: the request is rejected, never admitted on uncertainty.
var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrReputationBlocked = errors.New("reputation blocked")
	ErrMaliciousPattern  = errors.New("malicious pattern detected")
	ErrBurstExceeded     = errors.New("burst threshold exceeded")
	ErrIdentityRateLimit = errors.New("identity rate limit exceeded")
	ErrRouteRateLimit    = errors.New("route rate limit exceeded")
	ErrStoreUnavailable  = errors.New("store unavailable")
)

// rejectionFor maps a taxonomy member to its caller-visible response.
func rejectionFor(err error) *apierror.Error {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return apierror.Unauthorized("Missing authentication")
	case errors.Is(err, ErrInvalidCredential):
		return apierror.Unauthorized("Invalid credentials")
	case errors.Is(err, ErrReputationBlocked):
		return apierror.Forbidden("IP blocked")
	case errors.Is(err, ErrMaliciousPattern):
		return apierror.Forbidden("Malicious pattern detected")
	case errors.Is(err, ErrBurstExceeded):
		return apierror.TooManyRequests("Too many requests detected")
	case errors.Is(err, ErrIdentityRateLimit), errors.Is(err, ErrRouteRateLimit):
		return apierror.TooManyRequests("Rate limit exceeded")
	case errors.Is(err, ErrStoreUnavailable):
		// Fail closed: an unreachable store is a rejection, not a 500.
		return apierror.Forbidden("Request rejected")
	default:
		return apierror.New(http.StatusInternalServerError, apierror.CodeInternalError, "Internal error")
	}
}
