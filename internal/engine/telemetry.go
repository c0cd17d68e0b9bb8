package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("coyoacan.engine")
	meter  = otel.Meter("coyoacan.engine")
)

var (
	loadDuration metric.Float64Histogram
	loadErrors   metric.Int64Counter
	joinRows     metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		loadDuration, err = meter.Float64Histogram(
			"engine_load_duration_seconds",
			metric.WithDescription("Duration of row source loads"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		loadErrors, err = meter.Int64Counter(
			"engine_load_errors_total",
			metric.WithDescription("Total number of failed row source loads"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		joinRows, err = meter.Int64Histogram(
			"engine_join_rows",
			metric.WithDescription("Rows produced by a polygon join"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func recordLoad(ctx context.Context, table string, d time.Duration, err error) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("table", table))
	loadDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		loadErrors.Add(ctx, 1, attrs)
	}
}

func recordJoin(ctx context.Context, s Strategy, rows int) {
	if initMetrics() != nil {
		return
	}
	joinRows.Record(ctx, int64(rows), metric.WithAttributes(attribute.String("strategy", s.String())))
}

func startSpan(ctx context.Context, operation, datasetKey string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Service."+operation,
		trace.WithAttributes(attribute.String("dataset.key", datasetKey)),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
