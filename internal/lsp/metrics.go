package lsp

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
	tracer = otel.Tracer("chartographer/lsp")
	meter  = otel.Meter("chartographer/lsp")
)

var (
	requestLatency metric.Float64Histogram
	requestTotal   metric.Int64Counter
	resultCount    metric.Int64Histogram
	serverSpawns   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error
		if requestLatency, err = meter.Float64Histogram(
			"lsp_request_duration_seconds",
			metric.WithDescription("Duration of language server requests"),
			metric.WithUnit("s"),
		); err != nil {
			metricsErr = err
			return
		}
		if requestTotal, err = meter.Int64Counter(
			"lsp_request_total",
			metric.WithDescription("Language server requests by method and outcome"),
		); err != nil {
			metricsErr = err
			return
		}
		if resultCount, err = meter.Int64Histogram(
			"lsp_result_count",
			metric.WithDescription("Items returned per language server request"),
		); err != nil {
			metricsErr = err
			return
		}
		serverSpawns, metricsErr = meter.Int64Counter(
			"lsp_server_spawns_total",
			metric.WithDescription("Language server process starts"),
		)
	})
	return metricsErr
}

func startRequestSpan(ctx context.Context, method, uri string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "lsp."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("lsp.method", method),
			attribute.String("lsp.uri", uri),
		),
	)
}

func endRequestSpan(span trace.Span, n int, err error) {
	span.SetAttributes(attribute.Int("lsp.result_count", n))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func recordRequest(ctx context.Context, method string, d time.Duration, n int, err error) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.Bool("success", err == nil),
	)
	requestLatency.Record(ctx, d.Seconds(), attrs)
	requestTotal.Add(ctx, 1, attrs)
	if err == nil {
		resultCount.Record(ctx, int64(n), metric.WithAttributes(attribute.String("method", method)))
	}
}

func recordServerSpawn(ctx context.Context, command string, ok bool) {
	if initMetrics() != nil {
		return
	}
	serverSpawns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.Bool("success", ok),
	))
}
