package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"llmshield/internal/models"
	"llmshield/internal/storage"
)

// DefaultMaxVerifications bounds how many argon2id computations may run at
// once. Hashing is memory-hard, so unbounded concurrent verification would
// let a flood of bogus keys exhaust memory.
const DefaultMaxVerifications = 16

// Service issues and validates API keys against a KeyStorage backend.
type Service struct {
	store     storage.KeyStorage
	verifySem *semaphore.Weighted
	clock     func() time.Time
}

// NewService creates an auth service. maxVerifications caps concurrent hash
// verifications; zero or negative selects DefaultMaxVerifications.
func NewService(store storage.KeyStorage, maxVerifications int64) *Service {
	if maxVerifications <= 0 {
		maxVerifications = DefaultMaxVerifications
	}
	return &Service{
		store:     store,
		verifySem: semaphore.NewWeighted(maxVerifications),
		clock:     time.Now,
	}
}

// CreateKey generates a new API key, stores its hash, and returns the record
// together with the raw key. This is the only place the raw key is ever
// surfaced.
func (s *Service) CreateKey(ctx context.Context, req *models.CreateKeyRequest) (*models.APIKey, *models.Secret, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	tier, err := models.ParseTier(req.Tier)
	if err != nil {
		return nil, nil, err
	}

	raw, err := models.GenerateAPIKey()
	if err != nil {
		return nil, nil, err
	}
	hashed, err := HashKey(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash key: %w", err)
	}

	now := s.clock()
	key := &models.APIKey{
		ID:        models.NewKeyID(),
		Name:      req.Name,
		Tier:      tier,
		HashedKey: hashed,
		KeyPrefix: models.DisplayPrefix(raw),
		CreatedAt: now,
		Active:    true,
	}
	if req.ExpiresIn > 0 {
		expiry := now.Add(req.ExpiresIn)
		key.ExpiresAt = &expiry
	}

	if err := s.store.Store(ctx, key); err != nil {
		return nil, nil, fmt.Errorf("failed to store key: %w", err)
	}

	slog.Info("API key created",
		"event", "security_audit",
		"key_id", key.ID,
		"key_prefix", key.KeyPrefix,
		"tier", key.Tier,
	)
	return key, models.NewSecret(raw), nil
}

// SeedKey stores a caller-supplied raw key, used to bootstrap a fresh
// deployment with a known credential. If a key with the same prefix already
// exists the seed is a no-op.
func (s *Service) SeedKey(ctx context.Context, raw, name string, tier models.RateLimitTier) (*models.APIKey, error) {
	if !models.ValidKeyFormat(raw) {
		return nil, ErrInvalidFormat
	}

	prefix := models.DisplayPrefix(raw)
	existing, err := s.store.GetByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing keys: %w", err)
	}
	for _, candidate := range existing {
		match, err := VerifyKey(raw, candidate.HashedKey)
		if err == nil && match {
			return candidate, nil
		}
	}

	hashed, err := HashKey(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to hash key: %w", err)
	}
	key := &models.APIKey{
		ID:        models.NewKeyID(),
		Name:      name,
		Tier:      tier,
		HashedKey: hashed,
		KeyPrefix: prefix,
		CreatedAt: s.clock(),
		Active:    true,
	}
	if err := s.store.Store(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to store key: %w", err)
	}

	slog.Info("Bootstrap API key seeded",
		"event", "security_audit",
		"key_id", key.ID,
		"key_prefix", key.KeyPrefix,
		"tier", key.Tier,
	)
	return key, nil
}

// ValidateKey checks a raw API key and returns the matching record. Every
// failure mode maps to one of the package sentinel errors; callers must
// present all of them as the same opaque 401.
func (s *Service) ValidateKey(ctx context.Context, raw string) (*models.APIKey, error) {
	if !models.ValidKeyFormat(raw) {
		s.audit("invalid_format", "")
		return nil, ErrInvalidFormat
	}
	prefix := models.DisplayPrefix(raw)

	candidates, err := s.candidatesWithRetry(ctx, prefix)
	if err != nil {
		slog.Error("Key storage unreachable, denying request",
			"event", "security_audit",
			"key_prefix", prefix,
			"error", err,
		)
		return nil, ErrUnavailable
	}

	if err := s.verifySem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire verification slot: %w", err)
	}
	defer s.verifySem.Release(1)

	// Verify every candidate rather than stopping at the first match, so
	// response timing does not reveal candidate ordering.
	var matched *models.APIKey
	for _, candidate := range candidates {
		ok, err := VerifyKey(raw, candidate.HashedKey)
		if err != nil {
			slog.Error("Stored key hash is malformed",
				"event", "security_audit",
				"key_id", candidate.ID,
				"error", err,
			)
			continue
		}
		if ok && matched == nil {
			matched = candidate
		}
	}

	if matched == nil {
		s.audit("not_found", prefix)
		return nil, ErrNotFound
	}

	now := s.clock()
	if matched.IsExpired(now) {
		s.audit("expired", prefix)
		return nil, ErrExpired
	}
	if !matched.Active {
		s.audit("inactive", prefix)
		return nil, ErrInactive
	}
	return matched, nil
}

// RevokeKey marks a key inactive. Revocation is effective on the next
// validation; it does not interrupt requests already in flight.
func (s *Service) RevokeKey(ctx context.Context, id string) error {
	key, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if key.Active {
		key.Active = false
		if err := s.store.Update(ctx, key); err != nil {
			return err
		}
	}

	slog.Info("API key revoked",
		"event", "security_audit",
		"key_id", key.ID,
		"key_prefix", key.KeyPrefix,
	)
	return nil
}

// UpdateKey applies a partial update to a key record.
func (s *Service) UpdateKey(ctx context.Context, id string, req *models.UpdateKeyRequest) (*models.APIKey, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	key, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		key.Name = *req.Name
	}
	if req.Tier != nil {
		tier, err := models.ParseTier(*req.Tier)
		if err != nil {
			return nil, err
		}
		key.Tier = tier
	}
	if req.Active != nil {
		key.Active = *req.Active
	}

	if err := s.store.Update(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

// DeleteKey removes a key record entirely.
func (s *Service) DeleteKey(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("API key deleted", "event", "security_audit", "key_id", id)
	return nil
}

// GetKey retrieves a key record by ID.
func (s *Service) GetKey(ctx context.Context, id string) (*models.APIKey, error) {
	return s.store.GetByID(ctx, id)
}

// ListKeys returns all key records.
func (s *Service) ListKeys(ctx context.Context) ([]*models.APIKey, error) {
	return s.store.List(ctx)
}

// candidatesWithRetry fetches candidate records for a prefix, retrying once
// on a transient storage failure before giving up.
func (s *Service) candidatesWithRetry(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	candidates, err := s.store.GetByPrefix(ctx, prefix)
	if err == nil {
		return candidates, nil
	}
	slog.Warn("Key lookup failed, retrying once", "key_prefix", prefix, "error", err)
	return s.store.GetByPrefix(ctx, prefix)
}

func (s *Service) audit(reason, prefix string) {
	slog.Warn("API key rejected",
		"event", "security_audit",
		"reason", reason,
		"key_prefix", prefix,
	)
}
