package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	eventType string
	payload   any
}

func (e *testEvent) GetEventType() string {
	return e.eventType
}

func (e *testEvent) GetPayload() any {
	return e.payload
}

type testHandler struct {
	callCount atomic.Int32
	mu        sync.Mutex
	events    []Event
	err       error
	delay     time.Duration
	panicMsg  string
}

func (h *testHandler) Handle(ctx context.Context, event Event) error {
	if h.delay > 0 {
		select {
		case <-time.After(h.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if h.panicMsg != "" {
		panic(h.panicMsg)
	}

	h.callCount.Add(1)
	h.mu.Lock()
	h.events = append(h.events, event)
	h.mu.Unlock()

	return h.err
}

func (h *testHandler) calls() int {
	return int(h.callCount.Load())
}

func newDispatcher(t *testing.T, opts ...Option) EventDispatcher {
	t.Helper()
	d := NewEventDispatcher(opts...)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestRegister(t *testing.T) {
	t.Run("registers multiple handlers", func(t *testing.T) {
		d := newDispatcher(t)
		h1, h2 := &testHandler{}, &testHandler{}

		require.NoError(t, d.Register("action:start", h1))
		require.NoError(t, d.Register("action:start", h2))

		assert.True(t, d.Has("action:start", h1))
		assert.True(t, d.Has("action:start", h2))
		assert.False(t, d.Has("action:complete", h1))
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		d := newDispatcher(t)
		h := &testHandler{}

		assert.ErrorIs(t, d.Register("", h), ErrEventTypeEmpty)
		assert.ErrorIs(t, d.Register("action:start", nil), ErrHandlerNil)

		require.NoError(t, d.Register("action:start", h))
		assert.ErrorIs(t, d.Register("action:start", h), ErrHandlerAlreadyRegistered)
	})

	t.Run("func handlers are comparable", func(t *testing.T) {
		d := newDispatcher(t)
		h := NewHandlerFunc(func(context.Context, Event) error { return nil })

		require.NoError(t, d.Register("action:start", h))
		assert.True(t, d.Has("action:start", h))
		require.NoError(t, d.Remove("action:start", h))
		assert.False(t, d.Has("action:start", h))
	})
}

func TestDispatch(t *testing.T) {
	t.Run("calls handlers in registration order", func(t *testing.T) {
		d := newDispatcher(t)
		var order []string
		for _, name := range []string{"a", "b", "c"} {
			name := name
			require.NoError(t, d.Register("x", NewHandlerFunc(func(context.Context, Event) error {
				order = append(order, name)
				return nil
			})))
		}

		require.NoError(t, d.Dispatch(context.Background(), &testEvent{eventType: "x"}))
		assert.Equal(t, []string{"a", "b", "c"}, order)
	})

	t.Run("no handlers is not an error", func(t *testing.T) {
		d := newDispatcher(t)
		assert.NoError(t, d.Dispatch(context.Background(), &testEvent{eventType: "unknown"}))
	})

	t.Run("nil event", func(t *testing.T) {
		d := newDispatcher(t)
		assert.ErrorIs(t, d.Dispatch(context.Background(), nil), ErrEventNil)
	})

	t.Run("stops on first error", func(t *testing.T) {
		d := newDispatcher(t)
		expected := errors.New("handler error")
		h1, h2, h3 := &testHandler{}, &testHandler{err: expected}, &testHandler{}
		require.NoError(t, d.Register("x", h1))
		require.NoError(t, d.Register("x", h2))
		require.NoError(t, d.Register("x", h3))

		err := d.Dispatch(context.Background(), &testEvent{eventType: "x"})

		assert.ErrorIs(t, err, expected)
		assert.Equal(t, 1, h1.calls())
		assert.Equal(t, 1, h2.calls())
		assert.Equal(t, 0, h3.calls())
	})

	t.Run("recovers handler panics", func(t *testing.T) {
		d := newDispatcher(t)
		require.NoError(t, d.Register("x", &testHandler{panicMsg: "boom"}))

		err := d.Dispatch(context.Background(), &testEvent{eventType: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("cancelled context skips handlers", func(t *testing.T) {
		d := newDispatcher(t)
		h := &testHandler{}
		require.NoError(t, d.Register("x", h))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, d.Dispatch(ctx, &testEvent{eventType: "x"}), context.Canceled)
		assert.Equal(t, 0, h.calls())
	})
}

func TestPublish(t *testing.T) {
	t.Run("delivers asynchronously to every handler", func(t *testing.T) {
		var reported atomic.Int32
		d := newDispatcher(t, WithErrorHandler(func(context.Context, Event, error) {
			reported.Add(1)
		}))
		failing := &testHandler{err: errors.New("subscriber failed")}
		ok := &testHandler{}
		require.NoError(t, d.Register("action:complete", failing))
		require.NoError(t, d.Register("action:complete", ok))

		for i := 0; i < 3; i++ {
			require.NoError(t, d.Publish(context.Background(), &testEvent{eventType: "action:complete", payload: i}))
		}
		require.NoError(t, d.Flush(context.Background()))

		assert.Equal(t, 3, failing.calls())
		assert.Equal(t, 3, ok.calls())
		assert.Equal(t, int32(3), reported.Load())
	})

	t.Run("does not block on slow handlers", func(t *testing.T) {
		d := newDispatcher(t)
		require.NoError(t, d.Register("x", &testHandler{delay: 50 * time.Millisecond}))

		start := time.Now()
		require.NoError(t, d.Publish(context.Background(), &testEvent{eventType: "x"}))
		assert.Less(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("drops events when the queue is full", func(t *testing.T) {
		release := make(chan struct{})
		d := NewEventDispatcher(WithBufferSize(1))
		require.NoError(t, d.Register("x", NewHandlerFunc(func(context.Context, Event) error {
			<-release
			return nil
		})))

		var full bool
		for i := 0; i < 10 && !full; i++ {
			full = errors.Is(d.Publish(context.Background(), &testEvent{eventType: "x"}), ErrQueueFull)
		}
		close(release)
		require.NoError(t, d.Close())

		assert.True(t, full)
	})

	t.Run("cancelled publisher context does not cancel delivery", func(t *testing.T) {
		d := newDispatcher(t)
		h := &testHandler{delay: 5 * time.Millisecond}
		require.NoError(t, d.Register("x", h))

		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, d.Publish(ctx, &testEvent{eventType: "x"}))
		cancel()
		require.NoError(t, d.Flush(context.Background()))

		assert.Equal(t, 1, h.calls())
	})

	t.Run("rejects after close and drains pending", func(t *testing.T) {
		d := NewEventDispatcher()
		h := &testHandler{}
		require.NoError(t, d.Register("x", h))
		require.NoError(t, d.Publish(context.Background(), &testEvent{eventType: "x"}))

		require.NoError(t, d.Close())
		require.NoError(t, d.Close())

		assert.Equal(t, 1, h.calls())
		assert.ErrorIs(t, d.Publish(context.Background(), &testEvent{eventType: "x"}), ErrDispatcherClosed)
		assert.NoError(t, d.Flush(context.Background()))
	})
}

func TestRemove(t *testing.T) {
	t.Run("removes only the first occurrence", func(t *testing.T) {
		d := NewEventDispatcher().(*eventDispatcher)
		t.Cleanup(func() { _ = d.Close() })
		h := &testHandler{}

		d.mu.Lock()
		d.handlers["x"] = append(d.handlers["x"], h, h)
		d.mu.Unlock()

		require.NoError(t, d.Remove("x", h))
		assert.True(t, d.Has("x", h))
	})

	t.Run("unknown handler is a no-op", func(t *testing.T) {
		d := newDispatcher(t)
		assert.NoError(t, d.Remove("x", &testHandler{}))
	})

	t.Run("clear drops everything", func(t *testing.T) {
		d := newDispatcher(t)
		h := &testHandler{}
		require.NoError(t, d.Register("a", h))
		require.NoError(t, d.Register("b", h))

		d.Clear()

		assert.False(t, d.Has("a", h))
		assert.False(t, d.Has("b", h))
	})
}

func TestConcurrentRegisterRemovePublish(t *testing.T) {
	d := newDispatcher(t, WithBufferSize(1024))
	handlers := make([]*testHandler, 20)
	for i := range handlers {
		handlers[i] = &testHandler{}
	}

	var wg sync.WaitGroup
	const n = 100
	wg.Add(n * 4)
	for i := 0; i < n; i++ {
		go func(idx int) {
			defer wg.Done()
			_ = d.Register("x", handlers[idx%len(handlers)])
		}(i)
		go func(idx int) {
			defer wg.Done()
			_ = d.Remove("x", handlers[idx%len(handlers)])
		}(i)
		go func() {
			defer wg.Done()
			_ = d.Dispatch(context.Background(), &testEvent{eventType: "x"})
		}()
		go func() {
			defer wg.Done()
			_ = d.Publish(context.Background(), &testEvent{eventType: "x"})
		}()
	}
	wg.Wait()

	assert.NoError(t, d.Flush(context.Background()))
}

func BenchmarkPublish(b *testing.B) {
	d := NewEventDispatcher(WithBufferSize(b.N + 1))
	defer d.Close()
	_ = d.Register("bench", &testHandler{})

	event := &testEvent{eventType: "bench"}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = d.Publish(ctx, event)
	}
}
