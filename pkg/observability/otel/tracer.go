package otel

import (
	"context"

	"github.com/JailtonJunior94/actionflow/pkg/observability"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type otelTracer struct {
	tracer oteltrace.Tracer
}

func newOtelTracer(tracer oteltrace.Tracer) *otelTracer {
	return &otelTracer{tracer: tracer}
}

// Start creates a new span and returns a context containing the span.
func (t *otelTracer) Start(ctx context.Context, spanName string, opts ...observability.SpanOption) (context.Context, observability.Span) {
	cfg := observability.NewSpanConfig(opts)

	otelOpts := []oteltrace.SpanStartOption{oteltrace.WithSpanKind(convertSpanKind(cfg.Kind))}
	if attrs := attributesOf(cfg.Attributes); attrs != nil {
		otelOpts = append(otelOpts, oteltrace.WithAttributes(attrs...))
	}

	ctx, span := t.tracer.Start(ctx, spanName, otelOpts...)
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span oteltrace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetAttributes(fields ...observability.Field) {
	if attrs := attributesOf(fields); attrs != nil {
		s.span.SetAttributes(attrs...)
	}
}

func (s *otelSpan) SetStatus(code observability.StatusCode, description string) {
	s.span.SetStatus(convertStatusCode(code), description)
}

func (s *otelSpan) RecordError(err error, fields ...observability.Field) {
	attrs := attributesOf(fields)
	if attrs == nil {
		s.span.RecordError(err)
		return
	}
	s.span.RecordError(err, oteltrace.WithAttributes(attrs...))
}

func (s *otelSpan) AddEvent(name string, fields ...observability.Field) {
	attrs := attributesOf(fields)
	if attrs == nil {
		s.span.AddEvent(name)
		return
	}
	s.span.AddEvent(name, oteltrace.WithAttributes(attrs...))
}

func convertSpanKind(kind observability.SpanKind) oteltrace.SpanKind {
	switch kind {
	case observability.SpanKindServer:
		return oteltrace.SpanKindServer
	case observability.SpanKindClient:
		return oteltrace.SpanKindClient
	case observability.SpanKindProducer:
		return oteltrace.SpanKindProducer
	case observability.SpanKindConsumer:
		return oteltrace.SpanKindConsumer
	default:
		return oteltrace.SpanKindInternal
	}
}

func convertStatusCode(code observability.StatusCode) codes.Code {
	switch code {
	case observability.StatusCodeOK:
		return codes.Ok
	case observability.StatusCodeError:
		return codes.Error
	default:
		return codes.Unset
	}
}
