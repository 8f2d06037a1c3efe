package ledger

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Tracer abstracts span creation so the posting engine does not hard-code a
// dependency on a live OTel SDK wiring; tests and callers that have not
// configured tracing get the no-op implementation below.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span is the subset of oteltrace.Span the engine needs.
type Span interface {
	End()
	RecordError(err error)
}

// OtelTracer wraps the global OTel tracer registered for name (typically
// "caricash/ledger"), recording each Post call as one span.
type OtelTracer struct {
	tracer oteltrace.Tracer
}

// NewOtelTracer builds a Tracer backed by the process's configured
// TracerProvider (see internal/observability/tracing).
func NewOtelTracer(name string) *OtelTracer {
	return &OtelTracer{tracer: otel.Tracer(name)}
}

func (t *OtelTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, otelSpan{span}
}

type otelSpan struct {
	span oteltrace.Span
}

func (s otelSpan) End() { s.span.End() }

func (s otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
	s.span.SetAttributes(attribute.String("error.message", err.Error()))
}

// noopTracer is used when the caller does not wire OTel at all.
type noopTracer struct{}

func (noopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End()              {}
func (noopSpan) RecordError(error) {}
