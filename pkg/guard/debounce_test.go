package guard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_CollapsesBurst(t *testing.T) {
	d := NewDebouncer[int, int]()
	var runs atomic.Int32
	var ran atomic.Int64

	fn := func(_ context.Context, v int) (int, error) {
		runs.Add(1)
		ran.Store(int64(v))
		return v * 10, nil
	}

	const callers = 5
	results := make([]int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := d.Do(context.Background(), "checkout", 40*time.Millisecond, i, fn)
			assert.NoError(t, err)
			results[i] = v
		}(i)
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	assert.Equal(t, int32(1), runs.Load())
	assert.Equal(t, int64(callers-1), ran.Load())
	for _, v := range results {
		assert.Equal(t, (callers-1)*10, v)
	}
	assert.False(t, d.Pending("checkout"))
}

func TestDebouncer_SpacedCallsRunEach(t *testing.T) {
	d := NewDebouncer[int, int]()
	var runs atomic.Int32
	fn := func(_ context.Context, v int) (int, error) {
		runs.Add(1)
		return v, nil
	}

	for i := 0; i < 3; i++ {
		v, err := d.Do(context.Background(), "k", 10*time.Millisecond, i, fn)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, int32(3), runs.Load())
}

func TestDebouncer_KeysAreIndependent(t *testing.T) {
	d := NewDebouncer[string, string]()
	var runs atomic.Int32
	fn := func(_ context.Context, v string) (string, error) {
		runs.Add(1)
		return v, nil
	}

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			v, err := d.Do(context.Background(), key, 20*time.Millisecond, key, fn)
			assert.NoError(t, err)
			assert.Equal(t, key, v)
		}(key)
	}
	wg.Wait()

	assert.Equal(t, int32(2), runs.Load())
}

func TestDebouncer_CallerContextCancelled(t *testing.T) {
	d := NewDebouncer[int, int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := d.Do(ctx, "k", 200*time.Millisecond, 1, func(context.Context, int) (int, error) { return 1, nil })

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDebouncer_Stop(t *testing.T) {
	d := NewDebouncer[int, int]()
	var runs atomic.Int32

	errCh := make(chan error, 1)
	go func() {
		_, err := d.Do(context.Background(), "k", 100*time.Millisecond, 1, func(context.Context, int) (int, error) {
			runs.Add(1)
			return 1, nil
		})
		errCh <- err
	}()

	require.Eventually(t, func() bool { return d.Pending("k") }, time.Second, time.Millisecond)
	d.Stop()

	assert.ErrorIs(t, <-errCh, ErrStopped)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())

	_, err := d.Do(context.Background(), "k", time.Millisecond, 1, func(context.Context, int) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrStopped)
}

func TestDebouncer_LastCallerCancelledStillRunsForOthers(t *testing.T) {
	d := NewDebouncer[int, int]()
	var runs atomic.Int32
	fn := func(ctx context.Context, v int) (int, error) {
		runs.Add(1)
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return v * 10, nil
	}

	first := make(chan int, 1)
	go func() {
		v, err := d.Do(context.Background(), "k", 50*time.Millisecond, 1, fn)
		assert.NoError(t, err)
		first <- v
	}()
	require.Eventually(t, func() bool { return d.Pending("k") }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := d.Do(ctx, "k", 50*time.Millisecond, 2, fn)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 20, <-first)
	assert.Equal(t, int32(1), runs.Load())
}
