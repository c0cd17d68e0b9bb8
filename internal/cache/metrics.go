package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("coyoacan.cache")
	meter  = otel.Meter("coyoacan.cache")
)

var (
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	cacheClears     metric.Int64Counter
	computeDuration metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		cacheHits, err = meter.Int64Counter(
			"query_cache_hits_total",
			metric.WithDescription("Total number of query cache hits"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheMisses, err = meter.Int64Counter(
			"query_cache_misses_total",
			metric.WithDescription("Total number of query cache misses"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheClears, err = meter.Int64Counter(
			"query_cache_clears_total",
			metric.WithDescription("Total number of query cache clears"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		computeDuration, err = meter.Float64Histogram(
			"query_cache_compute_duration_seconds",
			metric.WithDescription("Duration of computations behind a cache miss"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func recordHit(ctx context.Context, op string) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func recordMiss(ctx context.Context, op string) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func recordClear(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheClears.Add(ctx, 1)
}

func recordCompute(ctx context.Context, op string, d time.Duration, err error) {
	if initMetrics() != nil {
		return
	}
	computeDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("op", op),
		attribute.Bool("error", err != nil),
	))
}

// startCacheSpan creates a span for a cache operation.
func startCacheSpan(ctx context.Context, op, key string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Proxy."+op,
		trace.WithAttributes(
			attribute.String("cache.operation", op),
			attribute.String("cache.key", key),
		),
	)
}
