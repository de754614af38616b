// Package storage persists API key records. It provides a clean abstraction
// implemented by in-memory, JSON file, SQLite, and PostgreSQL backends, all
// selected through a factory from configuration.
package storage

import (
	"context"

	"llmshield/internal/models"
)

// KeyStorage defines the persistence contract for API keys. Implementations
// must be safe for concurrent use. Raw key material never reaches this layer;
// records carry only the hash and display prefix.
type KeyStorage interface {
	// Store persists a new key record. Returns ErrKeyExists if the ID is
	// already taken.
	Store(ctx context.Context, key *models.APIKey) error

	// GetByID retrieves a key record by its ID. Returns ErrKeyNotFound if
	// no record exists.
	GetByID(ctx context.Context, id string) (*models.APIKey, error)

	// GetByPrefix returns all key records whose display prefix matches.
	// An empty result is not an error.
	GetByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)

	// Update replaces an existing key record. Returns ErrKeyNotFound if no
	// record exists.
	Update(ctx context.Context, key *models.APIKey) error

	// Delete removes a key record. Returns ErrKeyNotFound if no record
	// exists.
	Delete(ctx context.Context, id string) error

	// List returns all key records.
	List(ctx context.Context) ([]*models.APIKey, error)

	// Close releases backend resources.
	Close() error
}

// Config holds configuration for storage backends.
type Config struct {
	// Type specifies the storage backend type (memory, json, sqlite, postgres).
	Type string `json:"type" yaml:"type"`

	// Path is used for file-based storage backends.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// ConnectionString is used for database backends.
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`
}
