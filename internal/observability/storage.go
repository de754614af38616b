package observability

import (
	"context"
	"time"

	"llmshield/internal/models"
	"llmshield/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedKeyStorage wraps a storage.KeyStorage implementation with
// OpenTelemetry tracing and metrics instrumentation.
type InstrumentedKeyStorage struct {
	inner    storage.KeyStorage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewInstrumentedKeyStorage creates a storage wrapper that records trace spans,
// operation latency histograms, and error counters for every storage method call.
// Span attributes carry only key IDs and display prefixes, never key material.
func NewInstrumentedKeyStorage(inner storage.KeyStorage) (*InstrumentedKeyStorage, error) {
	tracer := otel.Tracer("llmshield/storage")
	meter := otel.Meter("llmshield/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedKeyStorage{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedKeyStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
	return ctx, span
}

func (s *InstrumentedKeyStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedKeyStorage) Store(ctx context.Context, key *models.APIKey) error {
	ctx, span := s.startSpan(ctx, "Store",
		attribute.String("key_id", key.ID),
		attribute.String("key_prefix", key.KeyPrefix),
	)
	start := time.Now()
	err := s.inner.Store(ctx, key)
	s.record(ctx, span, "Store", start, err)
	return err
}

func (s *InstrumentedKeyStorage) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	ctx, span := s.startSpan(ctx, "GetByID", attribute.String("key_id", id))
	start := time.Now()
	result, err := s.inner.GetByID(ctx, id)
	s.record(ctx, span, "GetByID", start, err)
	return result, err
}

func (s *InstrumentedKeyStorage) GetByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	ctx, span := s.startSpan(ctx, "GetByPrefix", attribute.String("key_prefix", prefix))
	start := time.Now()
	result, err := s.inner.GetByPrefix(ctx, prefix)
	s.record(ctx, span, "GetByPrefix", start, err)
	return result, err
}

func (s *InstrumentedKeyStorage) Update(ctx context.Context, key *models.APIKey) error {
	ctx, span := s.startSpan(ctx, "Update",
		attribute.String("key_id", key.ID),
		attribute.String("key_prefix", key.KeyPrefix),
	)
	start := time.Now()
	err := s.inner.Update(ctx, key)
	s.record(ctx, span, "Update", start, err)
	return err
}

func (s *InstrumentedKeyStorage) Delete(ctx context.Context, id string) error {
	ctx, span := s.startSpan(ctx, "Delete", attribute.String("key_id", id))
	start := time.Now()
	err := s.inner.Delete(ctx, id)
	s.record(ctx, span, "Delete", start, err)
	return err
}

func (s *InstrumentedKeyStorage) List(ctx context.Context) ([]*models.APIKey, error) {
	ctx, span := s.startSpan(ctx, "List")
	start := time.Now()
	result, err := s.inner.List(ctx)
	s.record(ctx, span, "List", start, err)
	return result, err
}

func (s *InstrumentedKeyStorage) Close() error {
	return s.inner.Close()
}
