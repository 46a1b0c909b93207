package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/auth"
)

const (
	// touchAPIKeySQL resolves an active key and stamps its last use in the
	// same round trip.
	touchAPIKeySQL = `UPDATE api_keys SET last_used_at = NOW()
		WHERE key_hash = $1 AND active = TRUE
		RETURNING id, key_hash, name, scopes`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (id) DO UPDATE SET key_hash = EXCLUDED.key_hash, name = EXCLUDED.name,
			scopes = EXCLUDED.scopes, active = TRUE`

	revokeAPIKeySQL = `UPDATE api_keys SET active = FALSE WHERE id = $1`
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository stores back-office API keys in PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash resolves an active key by its HMAC-SHA256 hash and records the
// lookup as its last use. Unknown or revoked keys yield auth.ErrUnauthorized.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	rows, err := r.pool.Query(ctx, touchAPIKeySQL, hash)
	if err != nil {
		return nil, fmt.Errorf("resolving api key: %w", err)
	}
	info, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[auth.APIKeyInfo])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUnauthorized
		}
		return nil, fmt.Errorf("resolving api key: %w", err)
	}
	return &info, nil
}

// Upsert stores an active key, reactivating a revoked id.
func (r *APIKeyRepository) Upsert(ctx context.Context, info auth.APIKeyInfo) error {
	if _, err := r.pool.Exec(ctx, upsertAPIKeySQL, info.ID, info.KeyHash, info.Name, info.Scopes); err != nil {
		return fmt.Errorf("upserting api key %q: %w", info.ID, err)
	}
	return nil
}

// Revoke deactivates the key with the given id.
func (r *APIKeyRepository) Revoke(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, revokeAPIKeySQL, id)
	if err != nil {
		return fmt.Errorf("revoking api key %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrUnauthorized
	}
	return nil
}
