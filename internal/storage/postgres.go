package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"llmshield/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS api_keys (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	tier        TEXT NOT NULL,
	hashed_key  TEXT NOT NULL,
	key_prefix  TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ,
	active      BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys (key_prefix);
`

// PostgresStorage implements KeyStorage using PostgreSQL via pgx.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a connection pool and applies the schema.
func NewPostgresStorage(config Config) (*PostgresStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	pool, err := pgxpool.New(context.Background(), config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(context.Background(), postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

func (p *PostgresStorage) Store(ctx context.Context, key *models.APIKey) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, tier, hashed_key, key_prefix, created_at, expires_at, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.Name, string(key.Tier), key.HashedKey, key.KeyPrefix,
		key.CreatedAt, key.ExpiresAt, key.Active)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 is unique_violation.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrKeyExists
		}
		return fmt.Errorf("failed to store key: %w", err)
	}
	return nil
}

func (p *PostgresStorage) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, name, tier, hashed_key, key_prefix, created_at, expires_at, active
		 FROM api_keys WHERE id = $1`, id)
	key, err := scanPgKey(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return key, nil
}

func (p *PostgresStorage) GetByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, name, tier, hashed_key, key_prefix, created_at, expires_at, active
		 FROM api_keys WHERE key_prefix = $1`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query keys by prefix: %w", err)
	}
	defer rows.Close()
	return collectPgKeys(rows)
}

func (p *PostgresStorage) Update(ctx context.Context, key *models.APIKey) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE api_keys
		 SET name = $1, tier = $2, hashed_key = $3, key_prefix = $4, created_at = $5, expires_at = $6, active = $7
		 WHERE id = $8`,
		key.Name, string(key.Tier), key.HashedKey, key.KeyPrefix,
		key.CreatedAt, key.ExpiresAt, key.Active, key.ID)
	if err != nil {
		return fmt.Errorf("failed to update key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (p *PostgresStorage) Delete(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (p *PostgresStorage) List(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, name, tier, hashed_key, key_prefix, created_at, expires_at, active
		 FROM api_keys ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()
	return collectPgKeys(rows)
}

func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}

func scanPgKey(row pgx.Row) (*models.APIKey, error) {
	var key models.APIKey
	var tier string
	if err := row.Scan(&key.ID, &key.Name, &tier, &key.HashedKey, &key.KeyPrefix,
		&key.CreatedAt, &key.ExpiresAt, &key.Active); err != nil {
		return nil, err
	}
	key.Tier = models.RateLimitTier(tier)
	return &key, nil
}

func collectPgKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	keys := []*models.APIKey{}
	for rows.Next() {
		key, err := scanPgKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate keys: %w", err)
	}
	return keys, nil
}
