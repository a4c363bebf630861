package actions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type order struct {
	ID    string
	Total int
}

// trail records handler calls across goroutines.
type trail struct {
	mu    sync.Mutex
	calls []string
}

func (t *trail) add(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, id)
}

func (t *trail) get() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

func newTestRegistry[R any](t *testing.T, opts ...Option) *Registry[order, R] {
	t.Helper()
	r, err := New[order, R](opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Dispose() })
	return r
}

func mustRegister[R any](t *testing.T, r *Registry[order, R], action string, fn HandlerFunc[order, R], opts ...HandlerOption) *Registration {
	t.Helper()
	reg, err := r.Register(action, fn, opts...)
	require.NoError(t, err)
	return reg
}

// recording returns a handler that appends id to tr and contributes id.
func recording(tr *trail, id string) HandlerFunc[order, string] {
	return func(_ context.Context, _ order, ctl *Controller[order, string]) error {
		tr.add(id)
		ctl.SetResult(id)
		return nil
	}
}

func statuses[R any](res *ExecutionResult[R]) map[string]HandlerStatus {
	out := make(map[string]HandlerStatus, len(res.Handlers))
	for _, h := range res.Handlers {
		out[h.ID] = h.Status
	}
	return out
}
