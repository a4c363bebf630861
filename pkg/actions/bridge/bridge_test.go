package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JailtonJunior94/actionflow/pkg/actions"
	"github.com/JailtonJunior94/actionflow/pkg/messaging"
	"github.com/JailtonJunior94/actionflow/pkg/observability/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type order struct {
	ID    string `json:"id"`
	Total int    `json:"total"`
}

type fakeConsumer struct {
	mu         sync.Mutex
	fetchErrs  []error
	deliveries chan *messaging.Delivery
}

func newFakeConsumer(buffer int) *fakeConsumer {
	return &fakeConsumer{deliveries: make(chan *messaging.Delivery, buffer)}
}

func (c *fakeConsumer) Fetch(ctx context.Context) (*messaging.Delivery, error) {
	c.mu.Lock()
	if len(c.fetchErrs) > 0 {
		err := c.fetchErrs[0]
		c.fetchErrs = c.fetchErrs[1:]
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-c.deliveries:
		if !ok {
			return nil, messaging.ErrConsumerClosed
		}
		return d, nil
	}
}

func (c *fakeConsumer) Close() error { return nil }

// settlement records how a delivery was settled: "ack", "nack" or "requeue".
type settlement struct {
	mu    sync.Mutex
	state string
}

func (s *settlement) Ack(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = "ack"
	return nil
}

func (s *settlement) Nack(_ context.Context, requeue bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = "nack"
	if requeue {
		s.state = "requeue"
	}
	return nil
}

func (s *settlement) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func delivery(topic, body string, headers map[string]string) (*messaging.Delivery, *settlement) {
	s := &settlement{}
	return &messaging.Delivery{Topic: topic, Body: []byte(body), Headers: headers, Acknowledger: s}, s
}

func newRegistry(t *testing.T, opts ...actions.Option) *actions.Registry[order, int] {
	t.Helper()
	r, err := actions.New[order, int](append([]actions.Option{actions.WithName("orders")}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Dispose() })
	return r
}

func outcomes(provider *fake.Provider) map[string]int {
	counts := make(map[string]int)
	instrument := provider.Metrics().(*fake.FakeMetrics).Get("actions.bridge.messages")
	if instrument == nil {
		return counts
	}
	for _, v := range instrument.GetValues() {
		for _, f := range v.Fields {
			if f.Key == "outcome" {
				counts[f.Value.(string)]++
			}
		}
	}
	return counts
}

func TestRunRoutesDeliveries(t *testing.T) {
	r := newRegistry(t)
	var (
		mu  sync.Mutex
		ids []string
	)
	_, err := r.Register("order.placed", func(_ context.Context, o order, _ *actions.Controller[order, int]) error {
		mu.Lock()
		defer mu.Unlock()
		ids = append(ids, o.ID)
		return nil
	})
	require.NoError(t, err)

	consumer := newFakeConsumer(8)
	byRoute, routed := delivery("orders", `{"id":"a","total":10}`, nil)
	byHeader, headed := delivery("legacy", `{"id":"b","total":5}`, map[string]string{messaging.HeaderAction: "order.placed"})
	noRoute, unrouted := delivery("misc", `{"id":"c"}`, nil)
	garbage, undecoded := delivery("orders", `{not json`, nil)
	for _, d := range []*messaging.Delivery{byRoute, byHeader, noRoute, garbage} {
		consumer.deliveries <- d
	}
	close(consumer.deliveries)

	provider := fake.NewProvider()
	b, err := New[order, int](r, consumer, provider, WithRoute("orders", "order.placed"))
	require.NoError(t, err)
	require.NoError(t, b.Run(context.Background()))

	assert.Equal(t, []string{"a", "b"}, ids)
	assert.Equal(t, "ack", routed.get())
	assert.Equal(t, "ack", headed.get())
	assert.Equal(t, "nack", unrouted.get())
	assert.Equal(t, "nack", undecoded.get())
	assert.Equal(t, map[string]int{
		OutcomeDispatched: 2,
		OutcomeUnroutable: 1,
		OutcomeUndecoded:  1,
	}, outcomes(provider))
}

func TestRunSettlesByDispatchOutcome(t *testing.T) {
	tests := []struct {
		name    string
		handler actions.HandlerFunc[order, int]
		strict  bool
		action  string
		opts    []Option
		want    string
		outcome string
	}{
		{
			name:    "failed dispatch is rejected",
			handler: func(context.Context, order, *actions.Controller[order, int]) error { return errors.New("boom") },
			action:  "order.placed",
			want:    "nack",
			outcome: OutcomeFailed,
		},
		{
			name:    "failed dispatch is requeued",
			handler: func(context.Context, order, *actions.Controller[order, int]) error { return errors.New("boom") },
			action:  "order.placed",
			opts:    []Option{WithRequeue()},
			want:    "requeue",
			outcome: OutcomeFailed,
		},
		{
			name: "aborted dispatch is acknowledged",
			handler: func(_ context.Context, _ order, c *actions.Controller[order, int]) error {
				c.Abort("duplicate order")
				return nil
			},
			action:  "order.placed",
			want:    "ack",
			outcome: OutcomeDispatched,
		},
		{
			name:    "panicking decoder is rejected",
			handler: func(context.Context, order, *actions.Controller[order, int]) error { return nil },
			action:  "order.placed",
			opts: []Option{WithDecoder(func(*messaging.Delivery) (order, error) {
				panic("corrupt frame")
			})},
			want:    "nack",
			outcome: OutcomeFailed,
		},
		{
			name:    "unknown action in strict mode is rejected",
			handler: func(context.Context, order, *actions.Controller[order, int]) error { return nil },
			strict:  true,
			action:  "order.cancelled",
			opts:    []Option{WithRequeue()},
			want:    "requeue",
			outcome: OutcomeRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var regOpts []actions.Option
			if tt.strict {
				regOpts = append(regOpts, actions.WithStrictActions())
			}
			r := newRegistry(t, regOpts...)
			_, err := r.Register("order.placed", tt.handler)
			require.NoError(t, err)

			consumer := newFakeConsumer(1)
			d, s := delivery("orders", `{"id":"a"}`, map[string]string{messaging.HeaderAction: tt.action})
			consumer.deliveries <- d
			close(consumer.deliveries)

			provider := fake.NewProvider()
			b, err := New[order, int](r, consumer, provider, tt.opts...)
			require.NoError(t, err)
			require.NoError(t, b.Run(context.Background()))

			assert.Equal(t, tt.want, s.get())
			assert.Equal(t, map[string]int{tt.outcome: 1}, outcomes(provider))
		})
	}
}

func TestRunWithWorkers(t *testing.T) {
	r := newRegistry(t)
	var (
		running atomic.Int32
		peak    atomic.Int32
	)
	_, err := r.Register("order.placed", func(context.Context, order, *actions.Controller[order, int]) error {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	const total = 16
	consumer := newFakeConsumer(total)
	settlements := make([]*settlement, 0, total)
	for i := range total {
		d, s := delivery("orders", fmt.Sprintf(`{"id":"%d"}`, i), nil)
		consumer.deliveries <- d
		settlements = append(settlements, s)
	}
	close(consumer.deliveries)

	b, err := New[order, int](r, consumer, fake.NewProvider(), WithRoute("orders", "order.placed"), WithWorkers(4))
	require.NoError(t, err)
	require.NoError(t, b.Run(context.Background()))

	for _, s := range settlements {
		assert.Equal(t, "ack", s.get())
	}
	assert.Greater(t, peak.Load(), int32(1))
	assert.LessOrEqual(t, peak.Load(), int32(4))
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newRegistry(t)
	b, err := New[order, int](r, newFakeConsumer(0), fake.NewProvider())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
	}
}

func TestRunCancelsStuckDispatchAfterDrainTimeout(t *testing.T) {
	r := newRegistry(t)
	started := make(chan struct{})
	_, err := r.Register("order.placed", func(ctx context.Context, _ order, _ *actions.Controller[order, int]) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	consumer := newFakeConsumer(1)
	d, s := delivery("orders", `{"id":"a"}`, nil)
	consumer.deliveries <- d

	provider := fake.NewProvider()
	b, err := New[order, int](r, consumer, provider,
		WithRoute("orders", "order.placed"),
		WithDrainTimeout(50*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	<-started
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge hung on a dispatch that ignores shutdown")
	}

	assert.Equal(t, "requeue", s.get())
	assert.Equal(t, 1, outcomes(provider)[OutcomeInterrupted])
}

func TestRunLetsInFlightDispatchFinishWithinDrainTimeout(t *testing.T) {
	r := newRegistry(t)
	started := make(chan struct{})
	release := make(chan struct{})
	_, err := r.Register("order.placed", func(context.Context, order, *actions.Controller[order, int]) error {
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)

	consumer := newFakeConsumer(1)
	d, s := delivery("orders", `{"id":"a"}`, nil)
	consumer.deliveries <- d

	b, err := New[order, int](r, consumer, fake.NewProvider(), WithRoute("orders", "order.placed"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	<-started
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
	}
	assert.Equal(t, "ack", s.get())
}

func TestRunRetriesFetchErrors(t *testing.T) {
	r := newRegistry(t)
	var calls atomic.Int32
	_, err := r.Register("order.placed", func(context.Context, order, *actions.Controller[order, int]) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, err)

	consumer := newFakeConsumer(1)
	consumer.fetchErrs = []error{errors.New("broker unavailable")}
	d, s := delivery("orders", `{"id":"a"}`, nil)
	consumer.deliveries <- d
	close(consumer.deliveries)

	provider := fake.NewProvider()
	b, err := New[order, int](r, consumer, provider, WithRoute("orders", "order.placed"))
	require.NoError(t, err)
	require.NoError(t, b.Run(context.Background()))

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "ack", s.get())
	logger := provider.Logger().(*fake.FakeLogger)
	assert.Len(t, logger.EntriesWithMessage("fetch failed"), 1)
}

func TestNewValidation(t *testing.T) {
	r := newRegistry(t)
	tests := []struct {
		name string
		opts []Option
	}{
		{name: "zero workers", opts: []Option{WithWorkers(0)}},
		{name: "zero drain timeout", opts: []Option{WithDrainTimeout(0)}},
		{name: "empty route action", opts: []Option{WithRoute("orders", "")}},
		{name: "decoder of another payload type", opts: []Option{WithDecoder(func(*messaging.Delivery) (string, error) { return "", nil })}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New[order, int](r, newFakeConsumer(0), fake.NewProvider(), tt.opts...)
			assert.ErrorIs(t, err, actions.ErrInvalidOption)
		})
	}
}

func TestCustomDecoder(t *testing.T) {
	r := newRegistry(t)
	got := make(chan order, 1)
	_, err := r.Register("order.placed", func(_ context.Context, o order, _ *actions.Controller[order, int]) error {
		got <- o
		return nil
	})
	require.NoError(t, err)

	consumer := newFakeConsumer(1)
	d, _ := delivery("orders", "a;42", nil)
	d.Key = "a"
	consumer.deliveries <- d
	close(consumer.deliveries)

	b, err := New[order, int](r, consumer, fake.NewProvider(),
		WithRoute("orders", "order.placed"),
		WithDecoder(func(d *messaging.Delivery) (order, error) {
			return order{ID: d.Key, Total: len(d.Body)}, nil
		}))
	require.NoError(t, err)
	require.NoError(t, b.Run(context.Background()))

	assert.Equal(t, order{ID: "a", Total: 4}, <-got)
}
