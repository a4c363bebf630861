package guard

import (
	"context"
	"sync"
	"time"
)

// Debouncer delays work until a key has been quiet for the requested delay.
// Every call with the same key resets the timer; the run uses the context,
// value and function of the last call.
type Debouncer[T, V any] struct {
	mu      sync.Mutex
	pending map[string]*debounceEntry[T, V]
	stopped bool
}

type debounceEntry[T, V any] struct {
	pendingRun[T, V]
	timer *time.Timer
	seq   uint64 // detects stale timer callbacks
}

// NewDebouncer creates an empty keyed debouncer.
func NewDebouncer[T, V any]() *Debouncer[T, V] {
	return &Debouncer[T, V]{pending: make(map[string]*debounceEntry[T, V])}
}

// Do schedules fn for key after delay and blocks until the run that absorbs
// this call completes, or ctx is done.
func (d *Debouncer[T, V]) Do(ctx context.Context, key string, delay time.Duration, value T, fn Func[T, V]) (V, error) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		var zero V
		return zero, ErrStopped
	}

	e, ok := d.pending[key]
	if !ok {
		e = &debounceEntry[T, V]{}
		d.pending[key] = e
	}

	ch := e.absorb(ctx, value, fn)
	e.seq++
	seq := e.seq
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(delay, func() { d.fire(key, e, seq) })
	d.mu.Unlock()

	return wait(ctx, ch)
}

func (d *Debouncer[T, V]) fire(key string, e *debounceEntry[T, V], seq uint64) {
	d.mu.Lock()
	if d.pending[key] != e || e.seq != seq {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	e.run()
}

// Pending reports whether a run is scheduled for key.
func (d *Debouncer[T, V]) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Stop cancels every scheduled run. Waiting callers receive ErrStopped.
func (d *Debouncer[T, V]) Stop() {
	d.mu.Lock()
	entries := d.pending
	d.pending = make(map[string]*debounceEntry[T, V])
	d.stopped = true
	for _, e := range entries {
		e.timer.Stop()
	}
	d.mu.Unlock()

	for _, e := range entries {
		e.deliver(outcome[V]{err: ErrStopped})
	}
}
