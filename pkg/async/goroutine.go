package async

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tallyhq/tally/pkg/observability"
)

// SafeGo executes a function in a goroutine with context cancellation,
// panic recovery, timeout enforcement, and error logging.
//
// The metering hot path uses this for every fire-and-forget side effect
// (ledger flushes, threshold checks): an error or panic in the side
// effect is logged and dropped, never propagated to the caller that
// already received a successful return.
//
// Example:
//
//	async.SafeGo(ctx, logger, 10*time.Second, "threshold check", func(ctx context.Context) error {
//	    return enforcer.CheckThresholds(ctx, tenantID)
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Error("background task failed")
		}
	}()
}

// SafeGoDetached is like SafeGo but detaches from the parent context's
// cancellation, keeping only its values. Use it for side effects that
// must outlive the request that triggered them, such as a size-triggered
// ledger flush.
func SafeGoDetached(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	SafeGo(context.WithoutCancel(parentCtx), logger, timeout, taskName, fn)
}

// WorkerPool manages a pool of workers that process tasks from a channel.
// Provides graceful shutdown and error collection.
type WorkerPool struct {
	workers      int
	taskName     string
	timeout      time.Duration
	logger       *observability.Logger
	workCh       chan func(context.Context) error
	doneCh       chan struct{}
	errCh        chan error
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
	shutdownOnce sync.Once
}

// NewWorkerPool creates a new worker pool.
//
// Example:
//
//	pool := async.NewWorkerPool(ctx, logger, 4, "media batch", 30*time.Second)
//	defer pool.Shutdown(5 * time.Second)
func NewWorkerPool(ctx context.Context, logger *observability.Logger, workers int, taskName string, timeout time.Duration) *WorkerPool {
	return newWorkerPool(ctx, logger, workers, taskName, timeout, workers*10)
}

// newWorkerPool lets callers that know the submission count up front
// size the error channel so no error is ever dropped.
func newWorkerPool(ctx context.Context, logger *observability.Logger, workers int, taskName string, timeout time.Duration, errCap int) *WorkerPool {
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		workers:  workers,
		taskName: taskName,
		timeout:  timeout,
		logger:   logger,
		workCh:   make(chan func(context.Context) error, workers*2),
		doneCh:   make(chan struct{}),
		errCh:    make(chan error, errCap),
		ctx:      ctx,
		cancel:   cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				pool.worker(id)
			}(i)
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit adds a task to the worker pool.
// Returns an error if the pool has been shut down.
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	select {
	case <-p.doneCh:
		return fmt.Errorf("worker pool shut down")
	default:
	}

	// The work channel may be closed between the check above and the
	// send below; recover turns that race into a clean error.
	defer func() {
		recover()
	}()

	select {
	case p.workCh <- fn:
		return nil
	case <-p.doneCh:
		return fmt.Errorf("worker pool shut down")
	}
}

// closeWork closes the work channel exactly once.
func (p *WorkerPool) closeWork() {
	p.closeOnce.Do(func() {
		close(p.workCh)
	})
}

// Shutdown gracefully shuts down the worker pool.
// Waits up to timeout for workers to drain queued tasks.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	var shutdownErr error

	p.shutdownOnce.Do(func() {
		p.closeWork()

		select {
		case <-p.doneCh:
			p.cancel()
		case <-time.After(timeout):
			p.cancel()
			shutdownErr = fmt.Errorf("worker pool shutdown timed out after %v", timeout)
		}
	})

	return shutdownErr
}

// Errors returns a channel that receives worker errors.
// Non-blocking, use select to check for errors.
func (p *WorkerPool) Errors() <-chan error {
	return p.errCh
}

func (p *WorkerPool) worker(id int) {
	defer observability.RecoverPanic(p.logger, fmt.Sprintf("%s worker %d", p.taskName, id))

	for {
		select {
		case <-p.ctx.Done():
			return

		case fn, ok := <-p.workCh:
			if !ok {
				return
			}

			ctx, cancel := context.WithTimeout(p.ctx, p.timeout)

			func() {
				defer cancel()
				defer func() {
					if r := recover(); r != nil {
						p.reportErr(fmt.Errorf("panic: %v", r))
					}
				}()

				if err := fn(ctx); err != nil {
					p.reportErr(err)
				}
			}()
		}
	}
}

func (p *WorkerPool) reportErr(err error) {
	select {
	case p.errCh <- err:
	default:
		p.logger.WithError(err).WithField("task", p.taskName).Warn("error channel full, dropping error")
	}
}

// Run processes a slice of items concurrently with a bounded number of
// workers and returns all errors encountered. The optimizer's batch
// executor builds on this to cap concurrent calls to metered services.
//
// Example:
//
//	errs := async.Run(ctx, logger, frames, 4, "frame analysis", 10*time.Second,
//	    func(ctx context.Context, f Frame) error { return analyze(ctx, f) })
func Run[T any](ctx context.Context, logger *observability.Logger, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	// Every item can fail, so the error channel must hold them all.
	pool := newWorkerPool(ctx, logger, workers, taskName, timeout, len(items))

	for _, item := range items {
		item := item
		if err := pool.Submit(func(ctx context.Context) error {
			return fn(ctx, item)
		}); err != nil {
			return []error{err}
		}
	}

	// Close the work channel so workers drain every queued task, then
	// wait for them to finish before collecting errors.
	pool.closeWork()
	<-pool.doneCh
	pool.cancel()

	var errs []error
	for {
		select {
		case err := <-pool.errCh:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}
