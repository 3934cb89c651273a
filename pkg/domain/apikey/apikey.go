// Package apikey defines the API key entity and its repository contract.
package apikey

import (
	"context"
	"errors"
	"time"
)

// Status represents the API key lifecycle state.
type Status string

const (
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
	StatusRevoked Status = "revoked"
)

// IsValid returns true if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusBlocked, StatusRevoked:
		return true
	}
	return false
}

// Role values assignable to a key.
const (
	RoleAdmin  = "admin"
	RoleClient = "client"
)

// ErrKeyNotFound is returned when no key matches.
var ErrKeyNotFound = errors.New("api key not found")

// APIKey is a stored credential for programmatic access. Only the bcrypt
// hash of the key is persisted; matching a presented key means comparing
// against every active hash.
type APIKey struct {
	ID        string
	Label     string
	KeyHash   string
	UserID    string
	Role      string
	Status    Status
	RateLimit int // requests per minute; 0 means use the global default
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates an active API key entity.
func New(id, label, keyHash, userID, role string, rateLimit int) *APIKey {
	now := time.Now()
	return &APIKey{
		ID:        id,
		Label:     label,
		KeyHash:   keyHash,
		UserID:    userID,
		Role:      role,
		Status:    StatusActive,
		RateLimit: rateLimit,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Active reports whether the key may authenticate requests.
func (k *APIKey) Active() bool {
	return k.Status == StatusActive
}

// Repository is the credential-store contract the gateway consumes.
type Repository interface {
	Create(ctx context.Context, key *APIKey) error
	GetByID(ctx context.Context, id string) (*APIKey, error)
	// ListActive returns every key eligible for authentication. The
	// authenticator compares the presented key against each hash because
	// hashed keys admit no indexable lookup.
	ListActive(ctx context.Context) ([]*APIKey, error)
	List(ctx context.Context) ([]*APIKey, error)
	// UpdateStatus transitions a key's lifecycle state. Used by rate-limit
	// escalation (active -> blocked) and administrative revocation.
	UpdateStatus(ctx context.Context, id string, status Status) error
}
