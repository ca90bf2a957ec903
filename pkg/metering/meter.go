package metering

import (
	"context"
	"sync"
	"time"

	"github.com/tallyhq/tally/pkg/async"
	"github.com/tallyhq/tally/pkg/observability"
)

// AggregateWriter receives the synchronous realtime-aggregate update for
// every recorded event
type AggregateWriter interface {
	Add(ctx context.Context, tenantID, service string, amountCents int64, day time.Time) error
}

// ThresholdChecker runs the post-hoc budget threshold sweep for a tenant.
// The meter fires it after every record and ignores its errors.
type ThresholdChecker interface {
	CheckThresholds(ctx context.Context, tenantID string) error
}

// Config holds meter tunables
type Config struct {
	// FlushSize is the buffer depth that trips an eager flush
	FlushSize int

	// FlushInterval is the timer-driven safety-net flush period
	FlushInterval time.Duration
}

// Meter records cost events without ever blocking the caller on durable
// storage.
//
// Record appends to an in-memory buffer and updates the realtime
// aggregate in the same logical step, so admission control sees
// in-flight spend that has not reached the ledger yet. Ledger writes
// happen asynchronously: eagerly when the buffer passes FlushSize, and
// on a fixed timer as a safety net. A failed flush requeues its batch
// onto the live buffer for the next cycle, giving at-least-once
// delivery; the accepted consequence is occasional duplicate ledger
// rows when a flush fails after partially committing, and reporting
// tolerates that.
type Meter struct {
	ledger     Ledger
	aggregates AggregateWriter
	thresholds ThresholdChecker
	logger     *observability.Logger
	metrics    *observability.Metrics
	cfg        Config

	// bufMu guards buf only; appends under it never touch I/O
	bufMu sync.Mutex
	buf   []CostEvent

	// flushMu serializes flushes so the timer and the size trigger
	// cannot double-flush the same swapped batch
	flushMu sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewMeter creates a meter and starts its flush timer. Call Close to
// drain remaining events and stop the background work.
func NewMeter(ledger Ledger, aggregates AggregateWriter, thresholds ThresholdChecker,
	logger *observability.Logger, metrics *observability.Metrics, cfg Config) *Meter {

	if cfg.FlushSize <= 0 {
		cfg.FlushSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 60 * time.Second
	}

	m := &Meter{
		ledger:     ledger,
		aggregates: aggregates,
		thresholds: thresholds,
		logger:     logger,
		metrics:    metrics,
		cfg:        cfg,
		buf:        make([]CostEvent, 0, cfg.FlushSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	go m.run()
	return m
}

// Record registers the cost of a completed billable operation.
//
// It never returns an error and never blocks on the ledger: the
// contract is that metering cannot fail the operation it measures. The
// realtime aggregate is updated before Record returns, so a caller that
// reads the aggregate immediately afterwards sees its own spend. Ledger
// delivery, and the budget threshold check, are fire-and-forget.
//
// Provisional events are estimate artifacts and are dropped here.
func (m *Meter) Record(ctx context.Context, ev CostEvent) {
	if ev.Provisional {
		return
	}
	if ev.TenantID == "" || ev.Service == "" || ev.Operation == "" {
		m.logger.WithFields(map[string]interface{}{
			"tenant_id": ev.TenantID,
			"service":   ev.Service,
			"operation": ev.Operation,
		}).Warn("dropping cost event with missing identity fields")
		return
	}
	if ev.TrackedAt.IsZero() {
		ev.TrackedAt = time.Now().UTC()
	}

	// Aggregate update and buffer append are the same logical step: the
	// aggregate must include buffered spend that has not been flushed,
	// or admission control would systematically undercount.
	if err := m.aggregates.Add(ctx, ev.TenantID, ev.Service, ev.AmountCents, ev.TrackedAt); err != nil {
		// Fail open: the cache is a soft view and the event still
		// reaches the ledger through the buffer.
		m.metrics.CacheErrorsTotal.WithLabelValues("add").Inc()
		m.logger.WithError(err).WithTenant(ev.TenantID).Warn("realtime aggregate update failed")
	}

	m.bufMu.Lock()
	m.buf = append(m.buf, ev)
	depth := len(m.buf)
	m.bufMu.Unlock()
	m.metrics.BufferDepth.Set(float64(depth))

	m.metrics.EventsRecordedTotal.WithLabelValues(ev.Service, ev.Operation).Inc()
	m.metrics.EventAmountCents.WithLabelValues(ev.Service).Add(float64(ev.AmountCents))

	if depth >= m.cfg.FlushSize {
		// Detached: the flush must survive the request that tripped it.
		async.SafeGoDetached(ctx, m.logger, 30*time.Second, "size-triggered ledger flush", m.flushOnce)
	}

	if m.thresholds != nil {
		tenantID := ev.TenantID
		async.SafeGoDetached(ctx, m.logger, 10*time.Second, "budget threshold check", func(ctx context.Context) error {
			return m.thresholds.CheckThresholds(ctx, tenantID)
		})
	}
}

// Flush synchronously drains the buffer to the ledger. Used on shutdown
// and by tests; the hot path never calls it.
func (m *Meter) Flush(ctx context.Context) error {
	return m.flushOnce(ctx)
}

// Close stops the flush timer and drains remaining buffered events
func (m *Meter) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
	return m.flushOnce(context.Background())
}

// run is the timer-driven safety net: it flushes whatever the size
// trigger has not already picked up
func (m *Meter) run() {
	defer close(m.done)
	defer observability.RecoverPanic(m.logger, "meter flush timer")

	ticker := time.NewTicker(m.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := m.flushOnce(ctx); err != nil {
				m.logger.WithError(err).Warn("timer-driven ledger flush failed")
			}
			cancel()
		case <-m.stop:
			return
		}
	}
}

// flushOnce swaps the live buffer and writes the swapped batch to the
// ledger. flushMu keeps at most one flush in flight; a failed batch is
// requeued ahead of anything recorded since the swap so it retries on
// the next cycle.
func (m *Meter) flushOnce(ctx context.Context) error {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	m.bufMu.Lock()
	if len(m.buf) == 0 {
		m.bufMu.Unlock()
		return nil
	}
	batch := m.buf
	m.buf = make([]CostEvent, 0, m.cfg.FlushSize)
	m.bufMu.Unlock()
	m.metrics.BufferDepth.Set(0)

	start := time.Now()
	err := m.ledger.Append(ctx, batch)
	if err != nil {
		m.bufMu.Lock()
		m.buf = append(batch, m.buf...)
		depth := len(m.buf)
		m.bufMu.Unlock()

		m.metrics.BufferDepth.Set(float64(depth))
		m.metrics.FlushesTotal.WithLabelValues("failure").Inc()
		m.metrics.LedgerRequeues.Inc()
		m.logger.WithError(err).Warnf("ledger flush failed, requeued %d events", len(batch))
		return err
	}

	m.metrics.FlushesTotal.WithLabelValues("success").Inc()
	m.metrics.FlushBatchSize.Observe(float64(len(batch)))
	m.metrics.FlushDuration.Observe(time.Since(start).Seconds())
	m.metrics.LedgerRowsTotal.Add(float64(len(batch)))
	m.logger.Debugf("flushed %d events to ledger", len(batch))
	return nil
}
