package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"llmshield/internal/auth"
	"llmshield/internal/models"
	"llmshield/internal/ratelimit"
)

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" && r.URL.Path != "/metrics"
			}),
		))
	}
}

// SetupRoutes configures the HTTP routes for the service. Scan endpoints sit
// behind authentication and rate limiting; key administration requires an
// enterprise tier key when auth is enabled.
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	for _, opt := range opts {
		opt(router)
	}

	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()

	identity := auth.RateLimitIdentity(models.RateLimitTier(config.RateLimit.DefaultTier))

	scanAPI := api.PathPrefix("/scan").Subrouter()
	if config.Security.EnableAuth {
		scanAPI.Use(auth.RequireAuth(handlers.authService))
	} else {
		scanAPI.Use(auth.OptionalAuth(handlers.authService))
	}
	if config.RateLimit.Enabled {
		scanAPI.Use(ratelimit.Middleware(handlers.limiter, handlers.concurrent, config.RateLimit.Tiers, identity))
	}
	scanAPI.HandleFunc("", handlers.ScanPrompt).Methods("POST")

	// Status reporting does not consume quota, but the caller must still be
	// identified, so the same auth policy applies.
	limitsAPI := api.PathPrefix("/limits").Subrouter()
	if config.Security.EnableAuth {
		limitsAPI.Use(auth.RequireAuth(handlers.authService))
	} else {
		limitsAPI.Use(auth.OptionalAuth(handlers.authService))
	}
	limitsAPI.HandleFunc("", handlers.RateLimitStatus).Methods("GET")

	keysAPI := api.PathPrefix("/keys").Subrouter()
	if config.Security.EnableAuth {
		keysAPI.Use(auth.RequireAuth(handlers.authService))
		keysAPI.Use(requireTier(models.TierEnterprise))
	}
	keysAPI.HandleFunc("", handlers.CreateKey).Methods("POST")
	keysAPI.HandleFunc("", handlers.ListKeys).Methods("GET")
	keysAPI.HandleFunc("/{key_id}", handlers.GetKey).Methods("GET")
	keysAPI.HandleFunc("/{key_id}", handlers.UpdateKey).Methods("PATCH")
	keysAPI.HandleFunc("/{key_id}", handlers.DeleteKey).Methods("DELETE")
	keysAPI.HandleFunc("/{key_id}/revoke", handlers.RevokeKey).Methods("POST")

	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(models.NewErrorResponse(models.ErrCodeInvalidRequest, "Method not allowed"))
	})

	return router
}

// requireTier rejects authenticated requests below the given tier. Key
// administration is reserved for enterprise keys.
func requireTier(required models.RateLimitTier) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := auth.KeyFromContext(r.Context())
			if !ok || key.Tier != required {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(models.NewErrorResponse(models.ErrCodeForbidden, "Insufficient privileges for key administration"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware converts panics into 500 responses.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("Panic in HTTP handler",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(models.NewErrorResponse(models.ErrCodeInternal, "Internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
