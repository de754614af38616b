package auth

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	failuresOnce sync.Once
	failures     metric.Int64Counter
)

// recordAuthFailure counts a rejected authentication attempt by cause. The
// cause never reaches the HTTP response; it exists for metrics and audit.
func recordAuthFailure(ctx context.Context, reason string) {
	failuresOnce.Do(func() {
		failures, _ = otel.Meter("llmshield/auth").Int64Counter(
			"auth.failures",
			metric.WithDescription("Rejected authentication attempts"),
			metric.WithUnit("{request}"),
		)
	})
	if failures == nil {
		return
	}
	failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// failureReason maps a validation error to its metric label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidFormat):
		return "invalid_format"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrInactive):
		return "inactive"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}
