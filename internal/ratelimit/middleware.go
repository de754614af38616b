package ratelimit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"llmshield/internal/models"
)

// IdentityFunc resolves the rate limit identity for a request: a stable
// client key and the tier whose limits apply. The auth middleware supplies
// one that reads the validated API key from the request context; anonymous
// deployments fall back to ClientIPIdentity.
type IdentityFunc func(r *http.Request) (clientID string, tier models.RateLimitTier)

// ClientIPIdentity keys anonymous clients by IP at the given tier. Proxy
// headers are consulted before RemoteAddr.
func ClientIPIdentity(tier models.RateLimitTier) IdentityFunc {
	return func(r *http.Request) (string, models.RateLimitTier) {
		return "ip:" + clientIP(r), tier
	}
}

// Middleware returns HTTP middleware enforcing the concurrency ceiling and
// all rate limit windows for each request. Checks run in order: concurrency
// slot first, then the minute bucket and quota windows. The slot is held for
// the full request and released even if the handler panics.
func Middleware(limiter *MultiTierRateLimiter, concurrent *ConcurrentLimiter, table models.TierTable, identity IdentityFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID, tier := identity(r)
			limits := table.Limits(tier)

			permit, ok := concurrent.TryAcquire(clientID, limits.MaxConcurrent)
			if !ok {
				// Concurrency denials must be indistinguishable from window
				// denials on the wire; logs and metrics carry the distinction.
				slog.Warn("Concurrency limit exceeded",
					"client", clientID,
					"tier", tier,
					"max_concurrent", limits.MaxConcurrent,
				)
				recordDenial(r.Context(), "concurrency", tier)
				s := tightestState(limiter.States(clientID, tier))
				setRateLimitHeaders(w, s.Limit, s.Remaining, s.ResetAt)
				writeTooMany(w, 1)
				return
			}
			defer permit.Release()

			decision := limiter.Allow(clientID, tier)
			setRateLimitHeaders(w, decision.Limit, decision.Remaining, decision.ResetAt)

			if !decision.Allowed {
				retryAfterSecs := int(decision.RetryAfter.Seconds()) + 1
				slog.Warn("Rate limit exceeded",
					"client", clientID,
					"tier", tier,
					"window", decision.LimitedBy,
					"retry_after", retryAfterSecs,
				)
				recordDenial(r.Context(), string(decision.LimitedBy), tier)
				writeTooMany(w, retryAfterSecs)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, limit, remaining int, resetAt time.Time) {
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetAt.Unix()))
}

// tightestState picks the window with the least remaining capacity.
func tightestState(states []WindowState) WindowState {
	t := states[0]
	for _, s := range states[1:] {
		if s.Remaining < t.Remaining {
			t = s
		}
	}
	return t
}

func writeTooMany(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	resp := models.NewErrorResponse(models.ErrCodeRateLimited, "Rate limit exceeded")
	resp.RetryAfter = retryAfterSecs
	json.NewEncoder(w).Encode(resp)
}

// clientIP extracts the client IP, checking proxy headers first.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
