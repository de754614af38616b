package storage

import (
	"context"
	"sync"

	"llmshield/internal/models"
)

// MemoryStorage is an in-memory KeyStorage for testing and development.
// Records are copied on the way in and out so callers cannot mutate stored
// state.
type MemoryStorage struct {
	mu   sync.RWMutex
	keys map[string]*models.APIKey
}

// NewMemoryStorage creates an empty in-memory storage instance.
func NewMemoryStorage(_ Config) (*MemoryStorage, error) {
	return &MemoryStorage{
		keys: make(map[string]*models.APIKey),
	}, nil
}

func (m *MemoryStorage) Store(_ context.Context, key *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.keys[key.ID]; exists {
		return ErrKeyExists
	}
	m.keys[key.ID] = copyKey(key)
	return nil
}

func (m *MemoryStorage) GetByID(_ context.Context, id string) (*models.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, exists := m.keys[id]
	if !exists {
		return nil, ErrKeyNotFound
	}
	return copyKey(key), nil
}

func (m *MemoryStorage) GetByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := []*models.APIKey{}
	for _, key := range m.keys {
		if key.KeyPrefix == prefix {
			matches = append(matches, copyKey(key))
		}
	}
	return matches, nil
}

func (m *MemoryStorage) Update(_ context.Context, key *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.keys[key.ID]; !exists {
		return ErrKeyNotFound
	}
	m.keys[key.ID] = copyKey(key)
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.keys[id]; !exists {
		return ErrKeyNotFound
	}
	delete(m.keys, id)
	return nil
}

func (m *MemoryStorage) List(_ context.Context) ([]*models.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]*models.APIKey, 0, len(m.keys))
	for _, key := range m.keys {
		keys = append(keys, copyKey(key))
	}
	return keys, nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

func copyKey(key *models.APIKey) *models.APIKey {
	cp := *key
	if key.ExpiresAt != nil {
		t := *key.ExpiresAt
		cp.ExpiresAt = &t
	}
	return &cp
}
