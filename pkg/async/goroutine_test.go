package async

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestSafeGoRunsFunction(t *testing.T) {
	done := make(chan struct{})

	SafeGo(context.Background(), testLogger(), time.Second, "test", func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SafeGo function never ran")
	}
}

func TestSafeGoRecoversPanic(t *testing.T) {
	done := make(chan struct{})

	SafeGo(context.Background(), testLogger(), time.Second, "panicking task", func(ctx context.Context) error {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
		// The panic was recovered; the test process is still alive.
	case <-time.After(2 * time.Second):
		t.Fatal("panicking task never ran")
	}
}

func TestSafeGoDetachedSurvivesParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel() // parent already canceled

	done := make(chan error, 1)
	SafeGoDetached(parent, testLogger(), time.Second, "detached", func(ctx context.Context) error {
		done <- ctx.Err()
		return nil
	})

	select {
	case err := <-done:
		assert.NoError(t, err, "detached context must not inherit cancellation")
	case <-time.After(2 * time.Second):
		t.Fatal("detached task never ran")
	}
}

func TestWorkerPoolProcessesAll(t *testing.T) {
	pool := NewWorkerPool(context.Background(), testLogger(), 4, "test", time.Second)

	var count int64
	for i := 0; i < 50; i++ {
		err := pool.Submit(func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, pool.Shutdown(5*time.Second))
	assert.Equal(t, int64(50), atomic.LoadInt64(&count))
}

func TestWorkerPoolSubmitAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(context.Background(), testLogger(), 1, "test", time.Second)
	require.NoError(t, pool.Shutdown(time.Second))

	err := pool.Submit(func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestWorkerPoolCollectsErrors(t *testing.T) {
	pool := NewWorkerPool(context.Background(), testLogger(), 2, "test", time.Second)

	for i := 0; i < 3; i++ {
		i := i
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			return fmt.Errorf("task %d failed", i)
		}))
	}
	require.NoError(t, pool.Shutdown(5*time.Second))

	var errs []error
	for {
		select {
		case err := <-pool.Errors():
			errs = append(errs, err)
			continue
		default:
		}
		break
	}
	assert.Len(t, errs, 3)
}

func TestRunBoundsConcurrency(t *testing.T) {
	const workers = 3

	var mu sync.Mutex
	var inFlight, peak int

	items := make([]int, 30)
	errs := Run(context.Background(), testLogger(), items, workers, "concurrency probe", time.Second,
		func(ctx context.Context, _ int) error {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return nil
		})

	assert.Empty(t, errs)
	assert.LessOrEqual(t, peak, workers)
}

func TestRunReturnsErrors(t *testing.T) {
	items := []int{1, 2, 3, 4}
	errs := Run(context.Background(), testLogger(), items, 2, "failing", time.Second,
		func(ctx context.Context, n int) error {
			if n%2 == 0 {
				return fmt.Errorf("item %d", n)
			}
			return nil
		})
	assert.Len(t, errs, 2)
}

func TestRunKeepsEveryError(t *testing.T) {
	// Far more failures than the pool's default error capacity; none may
	// be dropped.
	items := make([]int, 64)
	for i := range items {
		items[i] = i
	}

	errs := Run(context.Background(), testLogger(), items, 2, "all failing", time.Second,
		func(ctx context.Context, n int) error {
			return fmt.Errorf("item %d", n)
		})
	assert.Len(t, errs, len(items))
}
