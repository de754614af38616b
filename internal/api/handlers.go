// Package api wires the HTTP surface: scan submission, admission status, and
// API key administration, behind the auth and rate limit middleware.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"llmshield/internal/auth"
	"llmshield/internal/models"
	"llmshield/internal/ratelimit"
	"llmshield/internal/scan"
	"llmshield/internal/version"
)

// Handlers contains the HTTP handlers for the service.
type Handlers struct {
	scanService *scan.Service
	authService *auth.Service
	limiter     *ratelimit.MultiTierRateLimiter
	concurrent  *ratelimit.ConcurrentLimiter
	config      *models.Config
}

// NewHandlers creates a new handlers instance.
func NewHandlers(scanService *scan.Service, authService *auth.Service, limiter *ratelimit.MultiTierRateLimiter, concurrent *ratelimit.ConcurrentLimiter, config *models.Config) *Handlers {
	return &Handlers{
		scanService: scanService,
		authService: authService,
		limiter:     limiter,
		concurrent:  concurrent,
		config:      config,
	}
}

// HealthCheck handles health check requests.
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, &models.HealthResponse{
		Status:    "healthy",
		Version:   version.Version,
		Timestamp: time.Now().UTC(),
		Storage:   h.config.Storage.Type,
	})
}

// ScanPrompt handles prompt scan requests.
// POST /api/v1/scan
func (h *Handlers) ScanPrompt(w http.ResponseWriter, r *http.Request) {
	var req models.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrCodeValidationFailed, err.Error())
		return
	}

	start := time.Now()
	valid, findings := h.scanService.Scan(req.Prompt)

	h.writeJSONResponse(w, http.StatusOK, &models.ScanResponse{
		Valid:    valid,
		Findings: findings,
		Duration: float64(time.Since(start).Microseconds()) / 1000.0,
	})
}

// RateLimitStatus reports the caller's current admission state without
// consuming any quota.
// GET /api/v1/limits
func (h *Handlers) RateLimitStatus(w http.ResponseWriter, r *http.Request) {
	clientID, tier := auth.RateLimitIdentity(models.RateLimitTier(h.config.RateLimit.DefaultTier))(r)

	states := h.limiter.States(clientID, tier)
	remaining := make(map[string]int, len(states))
	for _, s := range states {
		remaining[string(s.Window)] = s.Remaining
	}

	h.writeJSONResponse(w, http.StatusOK, &models.RateLimitStatusResponse{
		Tier:      string(tier),
		Remaining: remaining,
		InFlight:  h.concurrent.InFlight(clientID),
	})
}

func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; all we can do is log.
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	h.writeJSONResponse(w, statusCode, models.NewErrorResponse(errorCode, message))
}
