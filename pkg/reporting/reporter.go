package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tallyhq/tally/pkg/observability"
	"github.com/tallyhq/tally/pkg/optimizer"
)

// Report summarizes a tenant's spend over a time window.
//
// Totals come straight from the ledger. Because flush retries can leave
// occasional duplicate rows, figures here are upper bounds within the
// at-least-once delivery slack, which is acceptable for reporting.
type Report struct {
	TenantID    string           `json:"tenant_id"`
	From        time.Time        `json:"from"`
	To          time.Time        `json:"to"`
	TotalCents  int64            `json:"total_cents"`
	ByService   map[string]int64 `json:"by_service"`
	ByOperation map[string]int64 `json:"by_operation"`
	// TrendPercent is the change versus the equally sized preceding
	// window: positive means spend grew.
	TrendPercent float64 `json:"trend_percent"`
	Operations   int64   `json:"operations"`
}

// Reporter answers spend queries from the cost ledger
type Reporter struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewReporter creates a ledger-backed reporter
func NewReporter(db *sql.DB, logger *observability.Logger) *Reporter {
	return &Reporter{db: db, logger: logger}
}

type windowTotals struct {
	totalCents  int64
	operations  int64
	byService   map[string]int64
	byOperation map[string]int64
}

// Usage aggregates a tenant's spend over [from, to) with a
// period-over-period trend against the preceding window of equal length.
// The two window queries run in parallel.
func (r *Reporter) Usage(ctx context.Context, tenantID string, from, to time.Time) (*Report, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("invalid report window: %s is not before %s", from, to)
	}

	span := to.Sub(from)
	var current, previous *windowTotals

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = r.window(gctx, tenantID, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		previous, err = r.window(gctx, tenantID, from.Add(-span), from)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Report{
		TenantID:     tenantID,
		From:         from,
		To:           to,
		TotalCents:   current.totalCents,
		ByService:    current.byService,
		ByOperation:  current.byOperation,
		Operations:   current.operations,
		TrendPercent: trendPercent(current.totalCents, previous.totalCents),
	}, nil
}

// window aggregates one time window grouped by service and operation
func (r *Reporter) window(ctx context.Context, tenantID string, from, to time.Time) (*windowTotals, error) {
	query := `
		SELECT service, operation, SUM(amount_cents) AS total_cents, COUNT(*) AS operations
		FROM cost_ledger
		WHERE tenant_id = $1 AND tracked_at >= $2 AND tracked_at < $3
		GROUP BY service, operation
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query spend window: %w", err)
	}
	defer rows.Close()

	totals := &windowTotals{
		byService:   make(map[string]int64),
		byOperation: make(map[string]int64),
	}
	for rows.Next() {
		var service, operation string
		var cents, count int64
		if err := rows.Scan(&service, &operation, &cents, &count); err != nil {
			return nil, fmt.Errorf("failed to scan spend row: %w", err)
		}
		totals.totalCents += cents
		totals.operations += count
		totals.byService[service] += cents
		totals.byOperation[operation] += cents
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read spend rows: %w", err)
	}
	return totals, nil
}

// Efficiency scores a tenant's window using the injected policy. The
// cache hit rate comes from the optimizer's dedup accounting; callers
// that do not track it pass zero.
func (r *Reporter) Efficiency(ctx context.Context, tenantID string, from, to time.Time,
	cacheHitRate float64, policy optimizer.ScorePolicy) (float64, error) {

	totals, err := r.window(ctx, tenantID, from, to)
	if err != nil {
		return 0, err
	}
	return policy.Score(optimizer.ScoreInputs{
		TotalCents:   totals.totalCents,
		Operations:   totals.operations,
		CacheHitRate: cacheHitRate,
	}), nil
}

// trendPercent computes the period-over-period change. A zero previous
// window reports 0 for no spend and 100 for new spend.
func trendPercent(current, previous int64) float64 {
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return 100
	}
	return (float64(current) - float64(previous)) / float64(previous) * 100
}
