package ratelimit

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"llmshield/internal/models"
)

var (
	denialsOnce sync.Once
	denials     metric.Int64Counter
)

// recordDenial counts a rejected request, labeled with the tier and what
// tripped: the concurrency ceiling, the minute bucket, or a quota window.
func recordDenial(ctx context.Context, kind string, tier models.RateLimitTier) {
	denialsOnce.Do(func() {
		denials, _ = otel.Meter("llmshield/ratelimit").Int64Counter(
			"ratelimit.denials",
			metric.WithDescription("Requests rejected by rate limiting"),
			metric.WithUnit("{request}"),
		)
	})
	if denials == nil {
		return
	}
	denials.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("tier", string(tier)),
	))
}
