package models

import (
	"errors"
	"fmt"
	"time"
)

// MaxPromptLen bounds scan request payloads.
const MaxPromptLen = 1 << 20

// ScanRequest is a prompt submitted for scanning.
type ScanRequest struct {
	Prompt string `json:"prompt"`
}

func (r *ScanRequest) Validate() error {
	if r.Prompt == "" {
		return errors.New("prompt is required")
	}
	if len(r.Prompt) > MaxPromptLen {
		return fmt.Errorf("prompt exceeds maximum length of %d bytes", MaxPromptLen)
	}
	return nil
}

// CreateKeyRequest provisions a new API key.
type CreateKeyRequest struct {
	Name string `json:"name"`
	Tier string `json:"tier"`

	// ExpiresIn, when positive, sets the key expiry relative to creation.
	ExpiresIn time.Duration `json:"expires_in,omitempty"`
}

func (r *CreateKeyRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if len(r.Name) > 128 {
		return errors.New("name exceeds maximum length of 128 characters")
	}
	if _, err := ParseTier(r.Tier); err != nil {
		return err
	}
	if r.ExpiresIn < 0 {
		return errors.New("expires_in cannot be negative")
	}
	return nil
}

// UpdateKeyRequest changes mutable key attributes. Nil fields are untouched.
type UpdateKeyRequest struct {
	Name   *string `json:"name,omitempty"`
	Tier   *string `json:"tier,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

func (r *UpdateKeyRequest) Validate() error {
	if r.Name == nil && r.Tier == nil && r.Active == nil {
		return errors.New("no fields to update")
	}
	if r.Name != nil && *r.Name == "" {
		return errors.New("name cannot be empty")
	}
	if r.Tier != nil {
		if _, err := ParseTier(*r.Tier); err != nil {
			return err
		}
	}
	return nil
}
