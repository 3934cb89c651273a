// Package audit defines the security event log the pipeline writes to.
// The pipeline only ever appends; reads serve the admin surface.
package audit

import (
	"context"
	"time"

	"github.com/shieldgate/gateway/pkg/geo"
)

// Type classifies an event.
type Type string

const (
	TypeRequest    Type = "request"
	TypeAuthFailed Type = "auth_failed"
	TypeRateLimit  Type = "rate_limit"
	TypeThreat     Type = "threat"
	TypeSystem     Type = "system"
)

// Risk levels attached to events.
const (
	LevelLow    = "LOW"
	LevelMedium = "MEDIUM"
	LevelHigh   = "HIGH"
)

// Event is one security-relevant occurrence.
type Event struct {
	ID         string
	Type       Type
	Message    string
	IP         string
	APIKeyID   string
	UserID     string
	Method     string
	Path       string
	StatusCode int
	UserAgent  string
	RiskLevel  string
	RiskScore  int
	Geo        geo.Location
	Details    map[string]any
	CreatedAt  time.Time
}

// NewEvent creates an event with defaults applied.
func NewEvent(t Type, message string) *Event {
	return &Event{
		Type:      t,
		Message:   message,
		RiskLevel: LevelLow,
		RiskScore: 10,
		CreatedAt: time.Now(),
	}
}

// Filter narrows event listing.
type Filter struct {
	Type  Type
	Limit int
}

// Totals aggregates event counts for the analytics endpoint.
type Totals struct {
	Requests   int `json:"requests"`
	Threats    int `json:"threats"`
	AuthFails  int `json:"authFails"`
	RateLimits int `json:"rateLimits"`
}

// PathCount is a path with its hit or error count.
type PathCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// MinuteCount is a per-minute request count for traffic charts.
type MinuteCount struct {
	Minute int `json:"minute"`
	Count  int `json:"count"`
}

// Repository is the audit-sink contract. Append is fire-and-forget from
// the pipeline's perspective: callers must tolerate failure without
// changing the request outcome.
type Repository interface {
	Append(ctx context.Context, e *Event) error
	List(ctx context.Context, f Filter) ([]*Event, error)
	Stats(ctx context.Context) (Totals, error)
	TopPaths(ctx context.Context, limit int) ([]PathCount, error)
	ErrorRates(ctx context.Context, limit int) ([]PathCount, error)
	TrafficSince(ctx context.Context, since time.Time) ([]MinuteCount, error)
	CountByType(ctx context.Context, t Type) (int, error)
}
