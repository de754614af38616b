package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"llmshield/internal/api"
	"llmshield/internal/auth"
	"llmshield/internal/config"
	"llmshield/internal/logger"
	"llmshield/internal/models"
	"llmshield/internal/observability"
	"llmshield/internal/ratelimit"
	"llmshield/internal/scan"
	"llmshield/internal/storage"
	"llmshield/internal/version"
)

var configFile = flag.String("config", "", "Path to configuration file")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	ver := version.GetInfo()
	slog.Info("Starting llmshield",
		"version", ver.Version,
		"commit", ver.GitCommit,
		"instance_id", ver.InstanceID,
	)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	// Initialize key storage
	store, err := storage.NewFactory().Create(cfg.Storage)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Wrap storage with instrumentation if metrics are enabled
	var activeStore storage.KeyStorage = store
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedKeyStorage(store)
		if err != nil {
			slog.Error("Failed to create instrumented storage", "error", err)
			os.Exit(1)
		}
		activeStore = instrumented
	}

	authService := auth.NewService(activeStore, auth.DefaultMaxVerifications)

	if err := seedBootstrapKey(context.Background(), authService, cfg); err != nil {
		slog.Error("Failed to seed bootstrap key", "error", err)
		os.Exit(1)
	}

	// Initialize scan service
	scanService, err := scan.NewService(cfg.Scan)
	if err != nil {
		slog.Error("Failed to initialize scanners", "error", err)
		os.Exit(1)
	}

	// Initialize rate limiting
	limiter := ratelimit.NewMultiTierRateLimiter(cfg.RateLimit.Tiers)
	concurrent := ratelimit.NewConcurrentLimiter()

	stopCleanup := make(chan struct{})
	if cfg.RateLimit.Enabled && cfg.RateLimit.CleanupInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.RateLimit.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					evicted := limiter.Cleanup(cfg.RateLimit.IdleEviction)
					evicted += concurrent.Cleanup(cfg.RateLimit.IdleEviction)
					if evicted > 0 {
						slog.Debug("Evicted idle rate limit state", "clients", evicted)
					}
				case <-stopCleanup:
					return
				}
			}
		}()
	}
	defer close(stopCleanup)

	// Initialize HTTP handlers
	handlers := api.NewHandlers(scanService, authService, limiter, concurrent, cfg)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server", "addr", server.Addr)

		var err error
		if cfg.Server.TLSEnabled {
			if cfg.Server.TLSCertFile == "" || cfg.Server.TLSKeyFile == "" {
				slog.Error("TLS is enabled but cert file or key file is not specified")
				os.Exit(1)
			}
			slog.Info("Starting HTTPS server with TLS")
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP server")
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	// Create a deadline to wait for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown metrics server
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	// Attempt graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
}

// seedBootstrapKey inserts the configured bootstrap key into storage if it
// does not already exist. It is a no-op when BootstrapKey is empty.
func seedBootstrapKey(ctx context.Context, svc *auth.Service, cfg *models.Config) error {
	raw := cfg.Security.BootstrapKey
	if raw == "" {
		return nil
	}
	tier, err := models.ParseTier(cfg.Security.BootstrapKeyTier)
	if err != nil {
		return fmt.Errorf("seed bootstrap key: %w", err)
	}
	key, err := svc.SeedKey(ctx, raw, "bootstrap", tier)
	if err != nil {
		return fmt.Errorf("seed bootstrap key: %w", err)
	}
	if key != nil {
		slog.Info("Bootstrap API key seeded", "id", key.ID, "key_prefix", key.KeyPrefix)
	}
	return nil
}
