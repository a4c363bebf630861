package guard

import (
	"context"
	"sync"
	"time"
)

// Throttler runs at most one call per key per interval. The first call after
// the interval runs immediately on the caller's goroutine. Calls inside the
// interval fail with ErrThrottled, or with trailing enabled, wait for a single
// run at the interval boundary that uses the latest deferred call.
type Throttler[T, V any] struct {
	mu      sync.Mutex
	keys    map[string]*throttleEntry[T, V]
	stopped bool
}

type throttleEntry[T, V any] struct {
	lastRun  time.Time
	trailing *pendingRun[T, V]
	timer    *time.Timer
	// expiry drops the entry once its interval has passed without a deferred run.
	expiry   *time.Timer
}

// NewThrottler creates an empty keyed throttler.
func NewThrottler[T, V any]() *Throttler[T, V] {
	return &Throttler[T, V]{keys: make(map[string]*throttleEntry[T, V])}
}

// Do runs, defers or rejects fn for key.
func (t *Throttler[T, V]) Do(ctx context.Context, key string, interval time.Duration, trailing bool, value T, fn Func[T, V]) (V, error) {
	var zero V

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return zero, ErrStopped
	}

	e, ok := t.keys[key]
	if !ok {
		e = &throttleEntry[T, V]{}
		t.keys[key] = e
	}

	now := time.Now()
	if e.trailing == nil && (e.lastRun.IsZero() || now.Sub(e.lastRun) >= interval) {
		e.lastRun = now
		t.expire(key, e, interval)
		t.mu.Unlock()
		return fn(ctx, value)
	}

	if !trailing {
		t.mu.Unlock()
		return zero, ErrThrottled
	}

	if e.trailing == nil {
		e.trailing = &pendingRun[T, V]{}
		e.timer = time.AfterFunc(e.lastRun.Add(interval).Sub(now), func() { t.fire(key, e, interval) })
	}
	ch := e.trailing.absorb(ctx, value, fn)
	t.mu.Unlock()

	return wait(ctx, ch)
}

func (t *Throttler[T, V]) fire(key string, e *throttleEntry[T, V], interval time.Duration) {
	t.mu.Lock()
	run := e.trailing
	if run == nil || t.stopped {
		t.mu.Unlock()
		return
	}
	e.trailing = nil
	e.timer = nil
	e.lastRun = time.Now()
	t.expire(key, e, interval)
	t.mu.Unlock()

	run.run()
}

// expire schedules the removal of e one interval after its last run. Must be
// called with t.mu held.
func (t *Throttler[T, V]) expire(key string, e *throttleEntry[T, V], interval time.Duration) {
	if e.expiry != nil {
		e.expiry.Stop()
	}
	e.expiry = time.AfterFunc(interval, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.keys[key] == e && e.trailing == nil && time.Since(e.lastRun) >= interval {
			delete(t.keys, key)
		}
	})
}

// Len reports how many keys are currently tracked.
func (t *Throttler[T, V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.keys)
}

// Stop cancels deferred runs. Waiting callers receive ErrStopped.
func (t *Throttler[T, V]) Stop() {
	t.mu.Lock()
	t.stopped = true
	var runs []*pendingRun[T, V]
	for _, e := range t.keys {
		if e.expiry != nil {
			e.expiry.Stop()
		}
		if e.trailing != nil {
			e.timer.Stop()
			runs = append(runs, e.trailing)
			e.trailing = nil
		}
	}
	t.keys = make(map[string]*throttleEntry[T, V])
	t.mu.Unlock()

	for _, run := range runs {
		run.deliver(outcome[V]{err: ErrStopped})
	}
}
