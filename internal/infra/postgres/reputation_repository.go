package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shieldgate/gateway/pkg/domain/reputation"
	"github.com/shieldgate/gateway/pkg/domain/shared"
)

// ReputationRepository is the PostgreSQL implementation of
// reputation.Repository.
type ReputationRepository struct {
	db *DB
}

// NewReputationRepository creates a new ReputationRepository.
func NewReputationRepository(db *DB) *ReputationRepository {
	return &ReputationRepository{db: db}
}

var _ reputation.Repository = (*ReputationRepository)(nil)

const reputationColumns = `ip, mode, blocked, blocked_until, reason, country, city, created_at, updated_at`

// FindByAddress retrieves the record for an address.
func (r *ReputationRepository) FindByAddress(ctx context.Context, ip string) (*reputation.Record, error) {
	query := `SELECT ` + reputationColumns + ` FROM blocked_ips WHERE ip = $1`
	return r.scan(r.db.QueryRowContext(ctx, query, ip))
}

// Upsert inserts or updates the record for an address. ON CONFLICT keys on
// the address, so concurrent first-seen writes for the same IP collapse
// into one row instead of creating duplicates.
func (r *ReputationRepository) Upsert(ctx context.Context, u reputation.Upsert) error {
	mode := u.Mode
	if mode == "" {
		mode = reputation.ModeBlock
	}
	query := `
		INSERT INTO blocked_ips (ip, mode, blocked, reason, country, city)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ip) DO UPDATE SET
			mode = EXCLUDED.mode,
			blocked = EXCLUDED.blocked,
			reason = EXCLUDED.reason,
			country = EXCLUDED.country,
			city = EXCLUDED.city,
			updated_at = now()
	`
	_, err := r.db.ExecContext(ctx, query, u.IP, string(mode), u.Blocked, u.Reason, u.Geo.Country, u.Geo.City)
	if err != nil {
		return fmt.Errorf("upsert reputation record: %w", err)
	}
	return nil
}

// CountByMode returns the number of records in the given mode.
func (r *ReputationRepository) CountByMode(ctx context.Context, mode reputation.Mode) (int, error) {
	var count int
	query := `SELECT count(*) FROM blocked_ips WHERE mode = $1`
	if err := r.db.QueryRowContext(ctx, query, string(mode)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count reputation records: %w", err)
	}
	return count, nil
}

// ListBlocked returns every actively blocked record, newest first.
func (r *ReputationRepository) ListBlocked(ctx context.Context) ([]*reputation.Record, error) {
	query := `SELECT ` + reputationColumns + ` FROM blocked_ips WHERE blocked = true ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list blocked ips: %w", err)
	}
	defer rows.Close()

	var records []*reputation.Record
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list blocked ips: %w", err)
	}
	return records, nil
}

// Delete removes the record for an address. Used by administrative
// unblocking; the pipeline itself never deletes records.
func (r *ReputationRepository) Delete(ctx context.Context, ip string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM blocked_ips WHERE ip = $1`, ip)
	if err != nil {
		return fmt.Errorf("delete reputation record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete reputation record: %w", err)
	}
	if affected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *ReputationRepository) scan(row rowScanner) (*reputation.Record, error) {
	var rec reputation.Record
	var mode string
	var until sql.NullTime
	err := row.Scan(
		&rec.IP,
		&mode,
		&rec.Blocked,
		&until,
		&rec.Reason,
		&rec.Geo.Country,
		&rec.Geo.City,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan reputation record: %w", err)
	}
	rec.Mode = reputation.Mode(mode)
	rec.Geo.Source = "derived"
	if until.Valid {
		t := until.Time
		rec.BlockedUntil = &t
	}
	return &rec, nil
}
