// Package models - Rate limit tiers and per-tier limit profiles.
package models

import (
	"fmt"
	"strings"
)

// RateLimitTier is a named limit profile governing all quota and concurrency
// ceilings for a client.
type RateLimitTier string

const (
	TierFree       RateLimitTier = "free"
	TierPro        RateLimitTier = "pro"
	TierEnterprise RateLimitTier = "enterprise"
)

// ParseTier converts a string to a RateLimitTier (case-insensitive).
func ParseTier(s string) (RateLimitTier, error) {
	switch strings.ToLower(s) {
	case "free":
		return TierFree, nil
	case "pro":
		return TierPro, nil
	case "enterprise":
		return TierEnterprise, nil
	default:
		return "", fmt.Errorf("unknown rate limit tier: %q", s)
	}
}

// TierLimits is the static limit profile attached to a tier.
type TierLimits struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int `yaml:"requests_per_hour" json:"requests_per_hour"`
	RequestsPerDay    int `yaml:"requests_per_day" json:"requests_per_day"`
	RequestsPerMonth  int `yaml:"requests_per_month" json:"requests_per_month"`
	MaxConcurrent     int `yaml:"max_concurrent" json:"max_concurrent"`
}

// Validate checks that every ceiling in the profile is positive. A malformed
// limit table is a configuration error and must fail at startup, not per-request.
func (tl TierLimits) Validate() error {
	if tl.RequestsPerMinute <= 0 {
		return fmt.Errorf("requests_per_minute must be greater than 0")
	}
	if tl.RequestsPerHour <= 0 {
		return fmt.Errorf("requests_per_hour must be greater than 0")
	}
	if tl.RequestsPerDay <= 0 {
		return fmt.Errorf("requests_per_day must be greater than 0")
	}
	if tl.RequestsPerMonth <= 0 {
		return fmt.Errorf("requests_per_month must be greater than 0")
	}
	if tl.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be greater than 0")
	}
	return nil
}

// TierTable maps each tier to its limit profile.
type TierTable struct {
	Free       TierLimits `yaml:"free" json:"free"`
	Pro        TierLimits `yaml:"pro" json:"pro"`
	Enterprise TierLimits `yaml:"enterprise" json:"enterprise"`
}

// Limits returns the limit profile for a tier. Unknown tiers fall back to the
// Free profile so an unexpected value can never grant elevated capacity.
func (t TierTable) Limits(tier RateLimitTier) TierLimits {
	switch tier {
	case TierPro:
		return t.Pro
	case TierEnterprise:
		return t.Enterprise
	default:
		return t.Free
	}
}

// Validate validates every tier profile in the table.
func (t TierTable) Validate() error {
	if err := t.Free.Validate(); err != nil {
		return fmt.Errorf("free tier: %w", err)
	}
	if err := t.Pro.Validate(); err != nil {
		return fmt.Errorf("pro tier: %w", err)
	}
	if err := t.Enterprise.Validate(); err != nil {
		return fmt.Errorf("enterprise tier: %w", err)
	}
	return nil
}

// DefaultTierTable returns the built-in tier profiles.
func DefaultTierTable() TierTable {
	return TierTable{
		Free: TierLimits{
			RequestsPerMinute: 100,
			RequestsPerHour:   1000,
			RequestsPerDay:    10000,
			RequestsPerMonth:  300000,
			MaxConcurrent:     10,
		},
		Pro: TierLimits{
			RequestsPerMinute: 1000,
			RequestsPerHour:   10000,
			RequestsPerDay:    100000,
			RequestsPerMonth:  3000000,
			MaxConcurrent:     50,
		},
		Enterprise: TierLimits{
			RequestsPerMinute: 10000,
			RequestsPerHour:   100000,
			RequestsPerDay:    1000000,
			RequestsPerMonth:  30000000,
			MaxConcurrent:     200,
		},
	}
}
