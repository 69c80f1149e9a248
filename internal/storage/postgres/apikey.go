package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/cashflow-pos/internal/domain/auth"
)

const (
	findAPIKeySQL = `SELECT id::text, key_hash, name, scopes
		FROM api_keys WHERE key_hash = $1 AND active = TRUE`

	insertAPIKeySQL = `INSERT INTO api_keys (key_hash, name, scopes) VALUES ($1, $2, $3)
		ON CONFLICT (key_hash) DO UPDATE SET name = EXCLUDED.name, scopes = EXCLUDED.scopes, active = TRUE
		RETURNING id::text`
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key storage backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var info auth.APIKeyInfo
	err := r.pool.QueryRow(ctx, findAPIKeySQL, hash).Scan(
		&info.ID, &info.KeyHash, &info.Name, &info.Scopes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrKeyNotFound
		}
		return nil, errors.Wrap(err, "find api key by hash")
	}
	return &info, nil
}

// Save stores an active key, reactivating it when the hash already exists.
func (r *APIKeyRepository) Save(ctx context.Context, info auth.APIKeyInfo) (string, error) {
	scopes := info.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	var id string
	if err := r.pool.QueryRow(ctx, insertAPIKeySQL, info.KeyHash, info.Name, scopes).Scan(&id); err != nil {
		return "", errors.Wrap(err, "save api key")
	}
	return id, nil
}
