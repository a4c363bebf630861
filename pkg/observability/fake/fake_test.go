package fake_test

import (
	"context"
	"errors"
	"testing"

	"github.com/JailtonJunior94/actionflow/pkg/observability"
	"github.com/JailtonJunior94/actionflow/pkg/observability/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeTracer(t *testing.T) {
	provider := fake.NewProvider()
	tracer := provider.Tracer().(*fake.FakeTracer)

	_, span := tracer.Start(context.Background(), "actions.dispatch",
		observability.WithSpanKind(observability.SpanKindInternal),
		observability.WithAttributes(observability.String("action", "checkout")),
	)
	span.SetAttributes(observability.Int("handlers", 2))
	span.AddEvent("handler.failed", observability.String("handler_id", "h1"))
	span.RecordError(errors.New("boom"))
	span.SetStatus(observability.StatusCodeError, "failed")
	span.End()

	spans := tracer.GetSpans()
	require.Len(t, spans, 1)

	captured := spans[0]
	assert.Equal(t, "actions.dispatch", captured.Name)
	assert.True(t, captured.Ended())
	assert.Len(t, captured.Events, 1)
	assert.Equal(t, observability.StatusCodeError, captured.Status)
	assert.EqualError(t, captured.RecordedErr, "boom")

	value, ok := captured.Attribute("action")
	require.True(t, ok)
	assert.Equal(t, "checkout", value)
}

func TestFakeLogger(t *testing.T) {
	logger := fake.NewFakeLogger()
	ctx := context.Background()

	child := logger.With(observability.String("component", "actions"))
	child.Info(ctx, "dispatch completed", observability.String("action", "checkout"))
	logger.Warn(ctx, "handler failed")

	entries := logger.GetEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, observability.LogLevelInfo, entries[0].Level)

	component, ok := entries[0].Field("component")
	require.True(t, ok)
	assert.Equal(t, "actions", component)

	_, ok = entries[1].Field("component")
	assert.False(t, ok)

	assert.Len(t, logger.EntriesWithMessage("handler failed"), 1)
}

func TestFakeMetrics(t *testing.T) {
	metrics := fake.NewFakeMetrics()
	ctx := context.Background()

	metrics.Counter("actions.dispatch.count", "", "1").Increment(ctx)
	metrics.Counter("actions.dispatch.count", "", "1").Add(ctx, 2)
	metrics.Histogram("actions.dispatch.duration", "", "ms").Record(ctx, 12.5)

	counter := metrics.Get("actions.dispatch.count")
	require.NotNil(t, counter)
	assert.Equal(t, float64(3), counter.Sum())
	assert.Len(t, counter.GetValues(), 2)

	assert.Nil(t, metrics.Get("missing"))
}
