// Package ratelimit enforces per-client request admission across four time
// windows and a concurrency ceiling. The minute window is a token bucket
// backed by golang.org/x/time/rate; the hour, day, and month windows are
// fixed-window counters checked and incremented atomically as a group.
// Concurrency is gated by a weighted semaphore per client.
package ratelimit

import "time"

// Window identifies one of the enforcement windows.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
	WindowMonth  Window = "month"
)

// Duration returns the span of the window. The month window is a rolling
// 30 days, not a calendar month.
func (w Window) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	case WindowMonth:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// quotaWindows are the fixed-window spans tracked by the QuotaTracker, in
// increasing order. The minute window is handled by the token bucket.
var quotaWindows = [3]Window{WindowHour, WindowDay, WindowMonth}

// Decision is the outcome of an admission check, carrying everything needed
// to populate rate limit response headers.
type Decision struct {
	Allowed bool

	// LimitedBy names the window that denied the request. Empty when allowed.
	LimitedBy Window

	// Limit and Remaining describe the most constrained window.
	Limit     int
	Remaining int

	// ResetAt is when the most constrained window replenishes.
	ResetAt time.Time

	// RetryAfter is how long to wait before retrying. Meaningful only when
	// denied.
	RetryAfter time.Duration
}

// WindowState is per-window admission detail for status reporting.
type WindowState struct {
	Window    Window    `json:"window"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}
