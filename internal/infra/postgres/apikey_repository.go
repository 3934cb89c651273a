package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shieldgate/gateway/pkg/domain/apikey"
	"github.com/shieldgate/gateway/pkg/domain/shared"
)

// APIKeyRepository is the PostgreSQL implementation of apikey.Repository.
type APIKeyRepository struct {
	db *DB
}

// NewAPIKeyRepository creates a new APIKeyRepository.
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

var _ apikey.Repository = (*APIKeyRepository)(nil)

const apiKeyColumns = `id, label, key_hash, user_id, role, status, rate_limit_per_minute, created_at, updated_at`

// Create inserts a new API key.
func (r *APIKeyRepository) Create(ctx context.Context, key *apikey.APIKey) error {
	query := `
		INSERT INTO api_keys (` + apiKeyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		key.ID,
		key.Label,
		key.KeyHash,
		key.UserID,
		key.Role,
		string(key.Status),
		key.RateLimit,
		key.CreatedAt,
		key.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// GetByID retrieves an API key by ID.
func (r *APIKeyRepository) GetByID(ctx context.Context, id string) (*apikey.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`
	return r.scan(r.db.QueryRowContext(ctx, query, id))
}

// ListActive returns every key eligible for authentication.
func (r *APIKeyRepository) ListActive(ctx context.Context) ([]*apikey.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE status = $1 ORDER BY created_at`
	return r.list(ctx, query, string(apikey.StatusActive))
}

// List returns every key regardless of status.
func (r *APIKeyRepository) List(ctx context.Context) ([]*apikey.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys ORDER BY created_at DESC`
	return r.list(ctx, query)
}

// UpdateStatus transitions a key's lifecycle state.
func (r *APIKeyRepository) UpdateStatus(ctx context.Context, id string, status apikey.Status) error {
	query := `UPDATE api_keys SET status = $1, updated_at = now() WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("update api key status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update api key status: %w", err)
	}
	if affected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *APIKeyRepository) list(ctx context.Context, query string, args ...any) ([]*apikey.APIKey, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*apikey.APIKey
	for rows.Next() {
		key, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *APIKeyRepository) scan(row rowScanner) (*apikey.APIKey, error) {
	var key apikey.APIKey
	var status string
	err := row.Scan(
		&key.ID,
		&key.Label,
		&key.KeyHash,
		&key.UserID,
		&key.Role,
		&status,
		&key.RateLimit,
		&key.CreatedAt,
		&key.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan api key: %w", err)
	}
	key.Status = apikey.Status(status)
	return &key, nil
}
