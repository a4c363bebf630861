package actions

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebounce(t *testing.T) {
	t.Run("collapses a burst into one run with the latest payload", func(t *testing.T) {
		r := newTestRegistry[string](t)
		var calls atomic.Int32
		var lastTotal atomic.Int64

		mustRegister(t, r, "search", func(_ context.Context, o order, ctl *Controller[order, string]) error {
			calls.Add(1)
			lastTotal.Store(int64(o.Total))
			ctl.SetResult("done")
			return nil
		})

		var wg sync.WaitGroup
		results := make([]*ExecutionResult[string], 3)
		for i := range 3 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := r.DispatchWithResult(context.Background(), "search", order{Total: i + 1}, WithDebounce(50*time.Millisecond))
				assert.NoError(t, err)
				results[i] = res
			}()
			time.Sleep(5 * time.Millisecond)
		}
		wg.Wait()

		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, int64(3), lastTotal.Load())
		for _, res := range results {
			require.NotNil(t, res)
			assert.Equal(t, results[0].ExecutionID, res.ExecutionID)
			assert.Equal(t, "done", res.Result)
		}

		*results[0].Results[0] = "mutated"
		assert.Equal(t, "done", *results[1].Results[0])
	})

	t.Run("guard key separates bursts", func(t *testing.T) {
		r := newTestRegistry[string](t)
		var calls atomic.Int32
		mustRegister(t, r, "search", func(context.Context, order, *Controller[order, string]) error {
			calls.Add(1)
			return nil
		})

		byCustomer := WithGuardKey(func(o order) string { return o.ID })
		var wg sync.WaitGroup
		for _, id := range []string{"a", "b", "a", "b"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, r.Dispatch(context.Background(), "search", order{ID: id},
					WithDebounce(30*time.Millisecond), byCustomer))
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("caller cancellation while waiting", func(t *testing.T) {
		r := newTestRegistry[string](t)
		mustRegister(t, r, "search", noopReport, WithID("search"))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		res, err := r.DispatchWithResult(ctx, "search", order{}, WithDebounce(time.Second))
		require.NoError(t, err)
		assert.True(t, res.Aborted)
		assert.Equal(t, ReasonCancelled, res.AbortReason)
		assert.Equal(t, StatusSkipped, statuses(res)["search"])
	})

	t.Run("last caller cancelling does not abort the shared run", func(t *testing.T) {
		r := newTestRegistry[string](t)
		var calls atomic.Int32
		mustRegister(t, r, "search", func(ctx context.Context, _ order, ctl *Controller[order, string]) error {
			calls.Add(1)
			ctl.SetResult("done")
			return ctx.Err()
		}, WithID("search"))

		first := make(chan *ExecutionResult[string], 1)
		go func() {
			res, err := r.DispatchWithResult(context.Background(), "search", order{Total: 1}, WithDebounce(50*time.Millisecond))
			assert.NoError(t, err)
			first <- res
		}()
		time.Sleep(5 * time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		last, err := r.DispatchWithResult(ctx, "search", order{Total: 2}, WithDebounce(50*time.Millisecond))
		require.NoError(t, err)
		assert.True(t, last.Aborted)

		res := <-first
		assert.True(t, res.Success)
		assert.False(t, res.Aborted)
		assert.Equal(t, 1, res.Execution.HandlersExecuted)
		assert.Equal(t, "done", res.Result)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("dispose releases waiting callers", func(t *testing.T) {
		r, err := New[order, string]()
		require.NoError(t, err)
		mustRegister(t, r, "search", noopReport)

		errs := make(chan error, 1)
		go func() {
			errs <- r.Dispatch(context.Background(), "search", order{}, WithDebounce(time.Second))
		}()
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, r.Dispose())

		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrDisposed)
		case <-time.After(time.Second):
			t.Fatal("debounced dispatch was not released")
		}
	})
}

func TestThrottle(t *testing.T) {
	t.Run("rejects calls inside the interval", func(t *testing.T) {
		r := newTestRegistry[string](t)
		var calls atomic.Int32
		mustRegister(t, r, "refresh", func(context.Context, order, *Controller[order, string]) error {
			calls.Add(1)
			return nil
		}, WithID("refresh"))

		first, err := r.DispatchWithResult(context.Background(), "refresh", order{}, WithThrottle(time.Minute, false))
		require.NoError(t, err)
		assert.True(t, first.Success)

		second, err := r.DispatchWithResult(context.Background(), "refresh", order{}, WithThrottle(time.Minute, false))
		require.NoError(t, err)
		assert.True(t, second.Aborted)
		assert.Equal(t, ReasonThrottled, second.AbortReason)
		assert.NoError(t, second.Err())
		require.Len(t, second.Errors, 1)
		assert.ErrorIs(t, second.Errors[0].Err, ErrThrottled)
		assert.Equal(t, StatusSkipped, statuses(second)["refresh"])

		assert.NoError(t, r.Dispatch(context.Background(), "refresh", order{}, WithThrottle(time.Minute, false)))
		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, int64(2), r.Stats("refresh").Throttled)
	})

	t.Run("trailing call runs at the boundary", func(t *testing.T) {
		r := newTestRegistry[string](t)
		var totals []int
		var mu sync.Mutex
		mustRegister(t, r, "refresh", func(_ context.Context, o order, _ *Controller[order, string]) error {
			mu.Lock()
			defer mu.Unlock()
			totals = append(totals, o.Total)
			return nil
		})

		throttle := WithThrottle(40*time.Millisecond, true)
		require.NoError(t, r.Dispatch(context.Background(), "refresh", order{Total: 1}, throttle))

		start := time.Now()
		res, err := r.DispatchWithResult(context.Background(), "refresh", order{Total: 2}, throttle)
		require.NoError(t, err)

		assert.True(t, res.Success)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
		mu.Lock()
		assert.Equal(t, []int{1, 2}, totals)
		mu.Unlock()
	})
}
