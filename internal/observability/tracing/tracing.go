// Package tracing bootstraps the OpenTelemetry TracerProvider, grounded on
// the platform's observability/otel/init.go. Unlike that exporter, this
// bootstrap ships no OTLP exporter: caricashd's deployments don't yet carry
// a collector endpoint, so spans are created (and can be asserted on in
// tests via a custom SpanProcessor) but are not shipped anywhere until one
// is wired in.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config captures the resource attributes attached to every span.
type Config struct {
	ServiceName string
	Environment string
}

// Init configures the global TracerProvider and returns a shutdown func to
// call during teardown. Each SpanProcessor the caller passes (e.g. an
// exporter added later) is registered on the provider via
// sdktrace.WithSpanProcessor, so Init itself stays exporter-agnostic.
func Init(ctx context.Context, cfg Config, processors ...sdktrace.SpanProcessor) (trace.TracerProvider, func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		return nil, nil, fmt.Errorf("tracing: service name required")
	}
	attrs := []attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", cfg.Environment))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	for _, p := range processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}
