package storage

import (
	"fmt"

	"llmshield/internal/models"
)

// Factory provides a centralized way to create storage instances based on
// configuration, allowing backend swapping without code changes.
type Factory struct{}

// NewFactory creates a new storage factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Create instantiates a storage backend from configuration.
// Supported backends:
//   - memory: in-memory storage (testing/development)
//   - json: JSON file storage with atomic writes
//   - sqlite: embedded SQLite database
//   - postgres: PostgreSQL database (production)
func (f *Factory) Create(config models.StorageConfig) (KeyStorage, error) {
	storageConfig := Config{
		Type:             config.Type,
		Path:             config.Path,
		ConnectionString: config.Database.DSN,
	}

	switch config.Type {
	case models.StorageTypeMemory:
		return NewMemoryStorage(storageConfig)
	case models.StorageTypeJSON:
		return NewJSONStorage(storageConfig)
	case models.StorageTypeSQLite:
		return NewSQLiteStorage(storageConfig)
	case models.StorageTypePostgres:
		return NewPostgresStorage(storageConfig)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}

// SupportedBackends returns all supported storage backend types.
func (f *Factory) SupportedBackends() []string {
	return []string{models.StorageTypeMemory, models.StorageTypeJSON, models.StorageTypeSQLite, models.StorageTypePostgres}
}
