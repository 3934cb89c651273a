// Package handler contains the HTTP handlers behind the gating pipeline:
// authentication, the proxied service stubs, the admin surface and health.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// writeJSON serializes a response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// parseQueryInt parses an integer query parameter, falling back on absence
// or garbage.
func parseQueryInt(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return n
}
