package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shieldgate/gateway/pkg/domain/audit"
	"github.com/shieldgate/gateway/pkg/domain/shared"
)

// AuditRepository is the PostgreSQL implementation of audit.Repository.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

var _ audit.Repository = (*AuditRepository)(nil)

// Append persists one event.
func (r *AuditRepository) Append(ctx context.Context, e *audit.Event) error {
	if e.ID == "" {
		e.ID = shared.NewID()
	}
	var details []byte
	if e.Details != nil {
		var err error
		details, err = json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal event details: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (
			id, type, message, ip, api_key_id, user_id, method, path,
			status_code, user_agent, risk_level, risk_score,
			country, city, geo_source, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID,
		string(e.Type),
		e.Message,
		e.IP,
		e.APIKeyID,
		e.UserID,
		e.Method,
		e.Path,
		e.StatusCode,
		e.UserAgent,
		e.RiskLevel,
		e.RiskScore,
		e.Geo.Country,
		e.Geo.City,
		e.Geo.Source,
		nullableJSON(details),
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// List returns recent events, newest first, optionally filtered by type.
func (r *AuditRepository) List(ctx context.Context, f audit.Filter) ([]*audit.Event, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT id, type, message, ip, api_key_id, user_id, method, path,
			status_code, user_agent, risk_level, risk_score,
			country, city, geo_source, details, created_at
		FROM audit_events
	`
	args := []any{}
	if f.Type != "" {
		query += ` WHERE type = $1`
		args = append(args, string(f.Type))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []*audit.Event
	for rows.Next() {
		var e audit.Event
		var eventType string
		var details []byte
		err := rows.Scan(
			&e.ID, &eventType, &e.Message, &e.IP, &e.APIKeyID, &e.UserID,
			&e.Method, &e.Path, &e.StatusCode, &e.UserAgent,
			&e.RiskLevel, &e.RiskScore,
			&e.Geo.Country, &e.Geo.City, &e.Geo.Source,
			&details, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Type = audit.Type(eventType)
		if len(details) > 0 {
			_ = json.Unmarshal(details, &e.Details)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}

// CountByType returns the number of events of one type.
func (r *AuditRepository) CountByType(ctx context.Context, t audit.Type) (int, error) {
	var count int
	query := `SELECT count(*) FROM audit_events WHERE type = $1`
	if err := r.db.QueryRowContext(ctx, query, string(t)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return count, nil
}

// Stats aggregates the totals shown on the analytics endpoint.
func (r *AuditRepository) Stats(ctx context.Context) (audit.Totals, error) {
	var totals audit.Totals
	query := `
		SELECT
			count(*) FILTER (WHERE type = 'request'),
			count(*) FILTER (WHERE type = 'threat'),
			count(*) FILTER (WHERE type = 'auth_failed'),
			count(*) FILTER (WHERE type = 'rate_limit')
		FROM audit_events
	`
	err := r.db.QueryRowContext(ctx, query).Scan(
		&totals.Requests, &totals.Threats, &totals.AuthFails, &totals.RateLimits,
	)
	if err != nil {
		return audit.Totals{}, fmt.Errorf("audit stats: %w", err)
	}
	return totals, nil
}

// TopPaths returns the most-hit request paths.
func (r *AuditRepository) TopPaths(ctx context.Context, limit int) ([]audit.PathCount, error) {
	query := `
		SELECT path, count(*) AS hits
		FROM audit_events
		WHERE type = 'request'
		GROUP BY path
		ORDER BY hits DESC
		LIMIT $1
	`
	return r.pathCounts(ctx, query, limit)
}

// ErrorRates returns the paths with the most error responses.
func (r *AuditRepository) ErrorRates(ctx context.Context, limit int) ([]audit.PathCount, error) {
	query := `
		SELECT path, count(*) AS errors
		FROM audit_events
		WHERE status_code >= 400
		GROUP BY path
		ORDER BY errors DESC
		LIMIT $1
	`
	return r.pathCounts(ctx, query, limit)
}

// TrafficSince returns per-minute request counts since the given time.
func (r *AuditRepository) TrafficSince(ctx context.Context, since time.Time) ([]audit.MinuteCount, error) {
	query := `
		SELECT extract(minute FROM created_at)::int AS minute, count(*)
		FROM audit_events
		WHERE type = 'request' AND created_at >= $1
		GROUP BY minute
		ORDER BY minute
	`
	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("audit traffic: %w", err)
	}
	defer rows.Close()

	var out []audit.MinuteCount
	for rows.Next() {
		var mc audit.MinuteCount
		if err := rows.Scan(&mc.Minute, &mc.Count); err != nil {
			return nil, fmt.Errorf("scan traffic row: %w", err)
		}
		out = append(out, mc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit traffic: %w", err)
	}
	return out, nil
}

func (r *AuditRepository) pathCounts(ctx context.Context, query string, limit int) ([]audit.PathCount, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("audit path counts: %w", err)
	}
	defer rows.Close()

	var out []audit.PathCount
	for rows.Next() {
		var pc audit.PathCount
		if err := rows.Scan(&pc.Path, &pc.Count); err != nil {
			return nil, fmt.Errorf("scan path count: %w", err)
		}
		out = append(out, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit path counts: %w", err)
	}
	return out, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return string(b)
}
