package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"llmshield/internal/models"
)

// JSONStorage implements KeyStorage using a single JSON file. All records are
// held in memory and every mutation rewrites the file atomically: the new
// contents are written to a temporary file in the same directory and renamed
// over the original, so a crash mid-write never leaves a truncated store.
type JSONStorage struct {
	filePath string

	mu   sync.RWMutex
	data *jsonData
}

// jsonData is the on-disk structure.
type jsonData struct {
	Keys        []*models.APIKey `json:"keys"`
	LastUpdated time.Time        `json:"last_updated"`
}

// NewJSONStorage creates a JSON file backed storage instance, creating the
// file with an empty key set if it does not exist.
func NewJSONStorage(config Config) (*JSONStorage, error) {
	s := &JSONStorage{filePath: config.Path}

	if err := s.ensureFileExists(); err != nil {
		return nil, fmt.Errorf("failed to ensure file exists: %w", err)
	}
	if err := s.loadData(); err != nil {
		return nil, fmt.Errorf("failed to load initial data: %w", err)
	}
	return s, nil
}

func (s *JSONStorage) ensureFileExists() error {
	if _, err := os.Stat(s.filePath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(s.filePath), 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		return s.writeFile(&jsonData{Keys: []*models.APIKey{}, LastUpdated: time.Now()})
	}
	return nil
}

func (s *JSONStorage) loadData() error {
	fileData, err := os.ReadFile(s.filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var data jsonData
	if err := json.Unmarshal(fileData, &data); err != nil {
		return fmt.Errorf("failed to parse file: %w", err)
	}
	if data.Keys == nil {
		data.Keys = []*models.APIKey{}
	}

	s.mu.Lock()
	s.data = &data
	s.mu.Unlock()
	return nil
}

// writeFile persists data atomically via a temp file and rename.
func (s *JSONStorage) writeFile(data *jsonData) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.filePath), ".keys-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpName, s.filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}

// saveLocked persists current state. Callers must hold s.mu for writing.
func (s *JSONStorage) saveLocked() error {
	s.data.LastUpdated = time.Now()
	return s.writeFile(s.data)
}

func (s *JSONStorage) Store(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data.Keys {
		if existing.ID == key.ID {
			return ErrKeyExists
		}
	}
	s.data.Keys = append(s.data.Keys, copyKey(key))
	if err := s.saveLocked(); err != nil {
		s.data.Keys = s.data.Keys[:len(s.data.Keys)-1]
		return err
	}
	return nil
}

func (s *JSONStorage) GetByID(_ context.Context, id string) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, key := range s.data.Keys {
		if key.ID == id {
			return copyKey(key), nil
		}
	}
	return nil, ErrKeyNotFound
}

func (s *JSONStorage) GetByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := []*models.APIKey{}
	for _, key := range s.data.Keys {
		if key.KeyPrefix == prefix {
			matches = append(matches, copyKey(key))
		}
	}
	return matches, nil
}

func (s *JSONStorage) Update(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.data.Keys {
		if existing.ID == key.ID {
			s.data.Keys[i] = copyKey(key)
			if err := s.saveLocked(); err != nil {
				s.data.Keys[i] = existing
				return err
			}
			return nil
		}
	}
	return ErrKeyNotFound
}

func (s *JSONStorage) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.data.Keys {
		if existing.ID == id {
			old := s.data.Keys
			s.data.Keys = append(old[:i:i], old[i+1:]...)
			if err := s.saveLocked(); err != nil {
				s.data.Keys = old
				return err
			}
			return nil
		}
	}
	return ErrKeyNotFound
}

func (s *JSONStorage) List(_ context.Context) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]*models.APIKey, 0, len(s.data.Keys))
	for _, key := range s.data.Keys {
		keys = append(keys, copyKey(key))
	}
	return keys, nil
}

func (s *JSONStorage) Close() error {
	return nil
}
