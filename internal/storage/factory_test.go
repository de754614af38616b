package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmshield/internal/models"
)

func TestFactoryCreate(t *testing.T) {
	factory := NewFactory()
	dir := t.TempDir()

	tests := []struct {
		name    string
		config  models.StorageConfig
		want    any
		wantErr bool
	}{
		{
			name:   "memory",
			config: models.StorageConfig{Type: models.StorageTypeMemory},
			want:   &MemoryStorage{},
		},
		{
			name:   "json",
			config: models.StorageConfig{Type: models.StorageTypeJSON, Path: filepath.Join(dir, "keys.json")},
			want:   &JSONStorage{},
		},
		{
			name: "sqlite",
			config: models.StorageConfig{
				Type:     models.StorageTypeSQLite,
				Database: models.DatabaseConfig{DSN: filepath.Join(dir, "keys.db")},
			},
			want: &SQLiteStorage{},
		},
		{
			name:    "unsupported",
			config:  models.StorageConfig{Type: "redis"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := factory.Create(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer s.Close()
			assert.IsType(t, tt.want, s)
		})
	}
}

func TestFactorySupportedBackends(t *testing.T) {
	backends := NewFactory().SupportedBackends()
	assert.ElementsMatch(t, []string{"memory", "json", "sqlite", "postgres"}, backends)
}
