package auth

import "errors"

// Validation failure reasons. Handlers must collapse all of these into one
// opaque 401 so a caller cannot distinguish an unknown key from a revoked or
// expired one; the distinction exists for audit logging only.
var (
	ErrInvalidFormat = errors.New("api key has invalid format")
	ErrNotFound      = errors.New("api key not recognized")
	ErrExpired       = errors.New("api key has expired")
	ErrInactive      = errors.New("api key has been revoked")

	// ErrUnavailable is returned when storage cannot be reached. Validation
	// fails closed: an unreachable key store denies requests rather than
	// letting them through unchecked.
	ErrUnavailable = errors.New("key storage unavailable")
)
