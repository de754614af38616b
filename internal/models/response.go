package models

import "time"

// Error codes returned in the body of non-2xx responses.
const (
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
)

// ErrorResponse is the uniform error body for all failed requests.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`

	// RetryAfter is set on rate limit responses, in whole seconds.
	RetryAfter int `json:"retry_after,omitempty"`
}

func NewErrorResponse(code, message string) *ErrorResponse {
	return &ErrorResponse{Error: message, Code: code}
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Storage   string    `json:"storage"`
}

// ScanResponse is the result of scanning a prompt.
type ScanResponse struct {
	Valid    bool          `json:"valid"`
	Findings []ScanFinding `json:"findings,omitempty"`
	Duration float64       `json:"duration_ms"`
}

// ScanFinding describes a single scanner hit.
type ScanFinding struct {
	Scanner string `json:"scanner"`
	Detail  string `json:"detail"`
}

// CreateKeyResponse is returned once at key creation time. The Key field
// carries the raw key and is never reproducible afterwards.
type CreateKeyResponse struct {
	Key       string     `json:"key"`
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Tier      string     `json:"tier"`
	KeyPrefix string     `json:"key_prefix"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// KeyResponse is the public view of a stored key. The hash is never exposed.
type KeyResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Tier      string     `json:"tier"`
	KeyPrefix string     `json:"key_prefix"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Active    bool       `json:"active"`
}

// NewKeyResponse converts a stored key into its public representation.
func NewKeyResponse(k *APIKey) *KeyResponse {
	return &KeyResponse{
		ID:        k.ID,
		Name:      k.Name,
		Tier:      string(k.Tier),
		KeyPrefix: k.KeyPrefix,
		CreatedAt: k.CreatedAt,
		ExpiresAt: k.ExpiresAt,
		Active:    k.Active,
	}
}

// ListKeysResponse wraps a key listing.
type ListKeysResponse struct {
	Keys  []*KeyResponse `json:"keys"`
	Count int            `json:"count"`
}

// RateLimitStatusResponse reports a client's current admission state.
type RateLimitStatusResponse struct {
	Tier      string         `json:"tier"`
	Remaining map[string]int `json:"remaining"`
	InFlight  int            `json:"in_flight"`
}
