package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/nextstop/nextstop/internal/telemetry"

// ProviderMetrics records upstream request and cache outcomes.
type ProviderMetrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	staleServed     metric.Int64Counter
}

// NewProviderMetrics creates the upstream instruments on the global meter.
func NewProviderMetrics() (*ProviderMetrics, error) {
	meter := otel.Meter(meterName)

	requestDuration, err := meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of upstream requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"provider.request.total",
		metric.WithDescription("Total number of upstream requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	cacheHits, err := meter.Int64Counter(
		"provider.cache.hit",
		metric.WithDescription("Number of fresh cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	cacheMisses, err := meter.Int64Counter(
		"provider.cache.miss",
		metric.WithDescription("Number of cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	staleServed, err := meter.Int64Counter(
		"provider.cache.stale_served",
		metric.WithDescription("Number of stale entries served after an upstream error"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		return nil, err
	}

	return &ProviderMetrics{
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		staleServed:     staleServed,
	}, nil
}

// ObserveRequest records one upstream request.
func (m *ProviderMetrics) ObserveRequest(ctx context.Context, provider string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("provider.name", provider),
		attribute.Bool("error", err != nil),
	}

	// Metrics must outlive a cancelled request.
	ctx = context.WithoutCancel(ctx)
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCacheHit records a fresh cache hit for an operation.
func (m *ProviderMetrics) RecordCacheHit(ctx context.Context, operation string) {
	m.cacheHits.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("provider.operation", operation)))
}

// RecordCacheMiss records a cache miss for an operation.
func (m *ProviderMetrics) RecordCacheMiss(ctx context.Context, operation string) {
	m.cacheMisses.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("provider.operation", operation)))
}

// RecordStaleServed records a stale response served after an upstream error.
func (m *ProviderMetrics) RecordStaleServed(ctx context.Context, operation string) {
	m.staleServed.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("provider.operation", operation)))
}
