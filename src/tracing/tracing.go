package tracing

import (
	"context"
	"sync"

	"trading-console/src/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "trading-console/stream"

var (
	mu             sync.RWMutex
	tracerProvider *sdktrace.TracerProvider
	enabled        bool
)

// -----------------------------------------------------------------------------

// Init installs a stdout exporter when tracing is enabled in config.
// With tracing disabled StartSpan hands out non-recording spans.
func Init(cfg *models.MConfig) error {
	if !cfg.Tracing.Enabled {
		return nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return err
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.Name),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mu.Lock()
	tracerProvider = tp
	enabled = true
	mu.Unlock()
	return nil
}

// -----------------------------------------------------------------------------

// Shutdown flushes pending spans
func Shutdown(ctx context.Context) error {
	mu.RLock()
	tp := tracerProvider
	mu.RUnlock()
	if tp != nil {
		return tp.Shutdown(ctx)
	}
	return nil
}

// -----------------------------------------------------------------------------

// StartSpan opens a span on the global provider
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	mu.RLock()
	on := enabled
	mu.RUnlock()
	if !on {
		return ctx, trace.SpanFromContext(ctx)
	}
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}
