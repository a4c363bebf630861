package observability

import "context"

// Tracer starts spans around engine operations.
type Tracer interface {
	// Start creates a span and returns a context carrying it. Callers must End
	// the span.
	Start(ctx context.Context, spanName string, opts ...SpanOption) (context.Context, Span)
}

// Span represents an active trace span.
type Span interface {
	End()
	SetAttributes(fields ...Field)
	SetStatus(code StatusCode, description string)
	RecordError(err error, fields ...Field)
	AddEvent(name string, fields ...Field)
}

// StatusCode represents the canonical status code of a span.
type StatusCode int

const (
	StatusCodeUnset StatusCode = iota
	StatusCodeOK
	StatusCodeError
)

// SpanKind represents the role of a span in a trace.
type SpanKind int

const (
	SpanKindInternal SpanKind = iota
	SpanKindServer
	SpanKindClient
	SpanKindProducer
	SpanKindConsumer
)

// SpanOption configures span creation.
type SpanOption func(*SpanConfig)

// SpanConfig is the resolved span configuration handed to providers.
type SpanConfig struct {
	Kind       SpanKind
	Attributes []Field
}

// WithSpanKind sets the span kind.
func WithSpanKind(kind SpanKind) SpanOption {
	return func(c *SpanConfig) {
		c.Kind = kind
	}
}

// WithAttributes sets initial attributes on the span.
func WithAttributes(fields ...Field) SpanOption {
	return func(c *SpanConfig) {
		c.Attributes = append(c.Attributes, fields...)
	}
}

// NewSpanConfig resolves span options.
func NewSpanConfig(opts []SpanOption) SpanConfig {
	cfg := SpanConfig{Kind: SpanKindInternal}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
