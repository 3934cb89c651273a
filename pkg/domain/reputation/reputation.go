// Package reputation defines persisted allow/block verdicts for source
// addresses and the store contract the IP filter consumes.
package reputation

import (
	"context"
	"time"

	"github.com/shieldgate/gateway/pkg/geo"
)

// Mode determines how a record participates in filtering.
type Mode string

const (
	// ModeBlock marks an address as denied while Blocked is set.
	ModeBlock Mode = "block"
	// ModeAllow marks an address as explicitly admitted. The presence of
	// any allow-mode record anywhere flips the default policy to deny for
	// every address without its own allow entry.
	ModeAllow Mode = "allow"
)

// Record is a persisted reputation verdict for one address.
type Record struct {
	IP           string
	Mode         Mode
	Blocked      bool
	BlockedUntil *time.Time // nil means no expiry
	Reason       string
	Geo          geo.Location
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BlockActive reports whether the record currently denies its address.
func (r *Record) BlockActive(now time.Time) bool {
	if r.Mode != ModeBlock || !r.Blocked {
		return false
	}
	return r.BlockedUntil == nil || r.BlockedUntil.After(now)
}

// Upsert captures the fields written when an address is flagged.
type Upsert struct {
	IP      string
	Blocked bool
	Mode    Mode
	Reason  string
	Geo     geo.Location
}

// Repository is the reputation-store contract.
// Upsert must be insert-or-update-by-address: two concurrent first-seen
// writes for the same IP may race past the filter cache and both reach
// the store, and must not create duplicate records.
type Repository interface {
	FindByAddress(ctx context.Context, ip string) (*Record, error)
	Upsert(ctx context.Context, u Upsert) error
	CountByMode(ctx context.Context, mode Mode) (int, error)
	ListBlocked(ctx context.Context) ([]*Record, error)
	Delete(ctx context.Context, ip string) error
}
