package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"llmshield/internal/models"
	"llmshield/internal/ratelimit"
)

type contextKey struct{}

var apiKeyContextKey contextKey

// KeyFromContext returns the validated API key for the request, if any.
func KeyFromContext(ctx context.Context) (*models.APIKey, bool) {
	key, ok := ctx.Value(apiKeyContextKey).(*models.APIKey)
	return key, ok
}

// withKey attaches a validated key to the request context.
func withKey(r *http.Request, key *models.APIKey) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), apiKeyContextKey, key))
}

// RequireAuth returns middleware that rejects requests without a valid API
// key. Every failure produces the same opaque 401; the specific reason is
// only visible in the audit log.
func RequireAuth(service *Service) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				recordAuthFailure(r.Context(), "missing_credentials")
				writeUnauthorized(w)
				return
			}

			key, err := service.ValidateKey(r.Context(), raw)
			if err != nil {
				recordAuthFailure(r.Context(), failureReason(err))
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, withKey(r, key))
		})
	}
}

// OptionalAuth returns middleware that validates a key when one is presented
// but lets unauthenticated requests through. A presented but invalid key is
// still rejected; silently downgrading it to anonymous would mask credential
// problems and give the caller anonymous limits.
func OptionalAuth(service *Service) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := bearerToken(r)
			if !ok {
				recordAuthFailure(r.Context(), "missing_credentials")
				writeUnauthorized(w)
				return
			}
			key, err := service.ValidateKey(r.Context(), raw)
			if err != nil {
				recordAuthFailure(r.Context(), failureReason(err))
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, withKey(r, key))
		})
	}
}

// RateLimitIdentity resolves the rate limit identity from the validated key,
// falling back to client IP at the given tier for anonymous requests.
func RateLimitIdentity(fallback models.RateLimitTier) ratelimit.IdentityFunc {
	byIP := ratelimit.ClientIPIdentity(fallback)
	return func(r *http.Request) (string, models.RateLimitTier) {
		if key, ok := KeyFromContext(r.Context()); ok {
			return "key:" + key.ID, key.Tier
		}
		return byIP(r)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(models.NewErrorResponse(models.ErrCodeUnauthorized, "Invalid or missing API key"))
}
