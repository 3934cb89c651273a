package postgres

import (
	"context"
	"fmt"
)

// schema is applied idempotently at startup. The gateway owns these four
// tables outright; there is no shared migration tooling to coordinate with.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'client',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS api_keys (
	id                    UUID PRIMARY KEY,
	label                 TEXT NOT NULL DEFAULT 'default',
	key_hash              TEXT NOT NULL UNIQUE,
	user_id               UUID NOT NULL REFERENCES users(id),
	role                  TEXT NOT NULL DEFAULT 'client',
	status                TEXT NOT NULL DEFAULT 'active',
	rate_limit_per_minute INTEGER NOT NULL DEFAULT 200,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_api_keys_status ON api_keys(status);

CREATE TABLE IF NOT EXISTS blocked_ips (
	ip            TEXT PRIMARY KEY,
	mode          TEXT NOT NULL DEFAULT 'block',
	blocked       BOOLEAN NOT NULL DEFAULT true,
	blocked_until TIMESTAMPTZ,
	reason        TEXT NOT NULL DEFAULT 'manual',
	country       TEXT NOT NULL DEFAULT 'Unknown',
	city          TEXT NOT NULL DEFAULT 'Unknown',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_blocked_ips_mode ON blocked_ips(mode);

CREATE TABLE IF NOT EXISTS audit_events (
	id          UUID PRIMARY KEY,
	type        TEXT NOT NULL DEFAULT 'request',
	message     TEXT NOT NULL DEFAULT '',
	ip          TEXT NOT NULL DEFAULT '',
	api_key_id  TEXT NOT NULL DEFAULT '',
	user_id     TEXT NOT NULL DEFAULT '',
	method      TEXT NOT NULL DEFAULT '',
	path        TEXT NOT NULL DEFAULT '',
	status_code INTEGER NOT NULL DEFAULT 0,
	user_agent  TEXT NOT NULL DEFAULT '',
	risk_level  TEXT NOT NULL DEFAULT 'LOW',
	risk_score  INTEGER NOT NULL DEFAULT 10,
	country     TEXT NOT NULL DEFAULT 'Unknown',
	city        TEXT NOT NULL DEFAULT 'Unknown',
	geo_source  TEXT NOT NULL DEFAULT 'derived',
	details     JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_audit_events_created_at ON audit_events(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(type);
`

// EnsureSchema creates the gateway tables when they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
