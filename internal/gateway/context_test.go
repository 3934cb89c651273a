package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{name: "remote addr with port", remoteAddr: "203.0.113.9:51234", want: "203.0.113.9"},
		{name: "forwarded single hop", remoteAddr: "10.0.0.1:80", forwarded: "198.51.100.7", want: "198.51.100.7"},
		{name: "forwarded chain keeps first hop", remoteAddr: "10.0.0.1:80", forwarded: "198.51.100.7, 10.0.0.2, 10.0.0.3", want: "198.51.100.7"},
		{name: "ipv4 mapped prefix stripped", remoteAddr: "10.0.0.1:80", forwarded: "::ffff:198.51.100.7", want: "198.51.100.7"},
		{name: "bare ipv6 loopback", remoteAddr: "::1", want: "::1"},
		{name: "bracketed ipv6 with port", remoteAddr: "[::1]:8080", want: "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestRequestContext_Identity(t *testing.T) {
	tests := []struct {
		name string
		rc   RequestContext
		want string
	}{
		{name: "api key wins", rc: RequestContext{APIKeyID: "key-1", UserID: "user-1", ClientIP: "1.2.3.4"}, want: "key-1"},
		{name: "user without key", rc: RequestContext{UserID: "user-1", ClientIP: "1.2.3.4"}, want: "user-1"},
		{name: "anonymous falls back to ip", rc: RequestContext{ClientIP: "1.2.3.4"}, want: "anon:1.2.3.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rc.Identity())
		})
	}
}

func TestContextualize(t *testing.T) {
	var got *RequestContext
	handler := Contextualize()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/service-a/data", nil)
	req.RemoteAddr = "8.8.8.8:443"
	serveHandler(handler, req)

	assert.NotNil(t, got)
	assert.Equal(t, "8.8.8.8", got.ClientIP)
	assert.Equal(t, Risk{Score: 10, Level: RiskLow}, got.Risk)
	assert.NotEmpty(t, got.Geo.Country)
	assert.False(t, got.Authenticated())
}
