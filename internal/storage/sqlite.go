package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"llmshield/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS api_keys (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	tier        TEXT NOT NULL,
	hashed_key  TEXT NOT NULL,
	key_prefix  TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	expires_at  TIMESTAMP,
	active      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys(key_prefix);
`

// SQLiteStorage implements KeyStorage on an embedded SQLite database via the
// pure-Go modernc.org/sqlite driver.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens the database and applies the schema.
func NewSQLiteStorage(config Config) (*SQLiteStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes; a single connection avoids SQLITE_BUSY
	// errors under concurrent access.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Store(ctx context.Context, key *models.APIKey) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, name, tier, hashed_key, key_prefix, created_at, expires_at, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		key.ID, key.Name, string(key.Tier), key.HashedKey, key.KeyPrefix,
		key.CreatedAt, nullTime(key.ExpiresAt), key.Active)
	if err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check insert result: %w", err)
	}
	if affected == 0 {
		return ErrKeyExists
	}
	return nil
}

func (s *SQLiteStorage) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, tier, hashed_key, key_prefix, created_at, expires_at, active
		 FROM api_keys WHERE id = ?`, id)
	key, err := scanKey(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return key, nil
}

func (s *SQLiteStorage) GetByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, tier, hashed_key, key_prefix, created_at, expires_at, active
		 FROM api_keys WHERE key_prefix = ?`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query keys by prefix: %w", err)
	}
	defer rows.Close()
	return collectKeys(rows)
}

func (s *SQLiteStorage) Update(ctx context.Context, key *models.APIKey) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys
		 SET name = ?, tier = ?, hashed_key = ?, key_prefix = ?, created_at = ?, expires_at = ?, active = ?
		 WHERE id = ?`,
		key.Name, string(key.Tier), key.HashedKey, key.KeyPrefix,
		key.CreatedAt, nullTime(key.ExpiresAt), key.Active, key.ID)
	if err != nil {
		return fmt.Errorf("failed to update key: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (s *SQLiteStorage) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (s *SQLiteStorage) List(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, tier, hashed_key, key_prefix, created_at, expires_at, active
		 FROM api_keys ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()
	return collectKeys(rows)
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// scanner abstracts sql.Row and sql.Rows for scanKey.
type scanner interface {
	Scan(dest ...any) error
}

func scanKey(row scanner) (*models.APIKey, error) {
	var key models.APIKey
	var tier string
	var expiresAt sql.NullTime
	if err := row.Scan(&key.ID, &key.Name, &tier, &key.HashedKey, &key.KeyPrefix,
		&key.CreatedAt, &expiresAt, &key.Active); err != nil {
		return nil, err
	}
	key.Tier = models.RateLimitTier(tier)
	if expiresAt.Valid {
		t := expiresAt.Time
		key.ExpiresAt = &t
	}
	return &key, nil
}

func collectKeys(rows *sql.Rows) ([]*models.APIKey, error) {
	keys := []*models.APIKey{}
	for rows.Next() {
		key, err := scanKey(rows)
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

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
