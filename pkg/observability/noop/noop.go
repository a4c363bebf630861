// Package noop provides an observability provider that discards everything.
// Registries use it when no provider is configured.
package noop

import (
	"context"

	"github.com/JailtonJunior94/actionflow/pkg/observability"
)

// Provider is a no-op implementation of observability.Observability.
type Provider struct{}

// NewProvider creates a new no-op observability provider.
func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) Tracer() observability.Tracer {
	return tracer{}
}

func (p *Provider) Logger() observability.Logger {
	return logger{}
}

func (p *Provider) Metrics() observability.Metrics {
	return metrics{}
}

type tracer struct{}

func (tracer) Start(ctx context.Context, spanName string, opts ...observability.SpanOption) (context.Context, observability.Span) {
	return ctx, span{}
}

type span struct{}

func (span) End()                                                        {}
func (span) SetAttributes(fields ...observability.Field)                 {}
func (span) SetStatus(code observability.StatusCode, description string) {}
func (span) RecordError(err error, fields ...observability.Field)        {}
func (span) AddEvent(name string, fields ...observability.Field)         {}

type logger struct{}

func (logger) Debug(ctx context.Context, msg string, fields ...observability.Field) {}
func (logger) Info(ctx context.Context, msg string, fields ...observability.Field)  {}
func (logger) Warn(ctx context.Context, msg string, fields ...observability.Field)  {}
func (logger) Error(ctx context.Context, msg string, fields ...observability.Field) {}

func (l logger) With(fields ...observability.Field) observability.Logger {
	return l
}

type metrics struct{}

func (metrics) Counter(name, description, unit string) observability.Counter {
	return instrument{}
}

func (metrics) Histogram(name, description, unit string) observability.Histogram {
	return instrument{}
}

func (metrics) UpDownCounter(name, description, unit string) observability.UpDownCounter {
	return instrument{}
}

// instrument satisfies every metric interface.
type instrument struct{}

func (instrument) Add(ctx context.Context, value int64, fields ...observability.Field)    {}
func (instrument) Increment(ctx context.Context, fields ...observability.Field)           {}
func (instrument) Record(ctx context.Context, value float64, fields ...observability.Field) {}
