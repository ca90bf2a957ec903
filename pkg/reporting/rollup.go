package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Rollup maintains the cost_stats_daily table: one row per tenant,
// service and day, derived from the ledger. The rollup is idempotent,
// so re-running a day after late flushes simply overwrites the row.
type Rollup struct {
	db *sql.DB
}

// NewRollup creates a rollup maintainer
func NewRollup(db *sql.DB) *Rollup {
	return &Rollup{db: db}
}

// RollupDaily recomputes the daily stats for every tenant for the given
// calendar day
func (r *Rollup) RollupDaily(ctx context.Context, date time.Time) error {
	query := `
		INSERT INTO cost_stats_daily (tenant_id, date, service, total_cents, operations)
		SELECT
			tenant_id,
			$1::date AS date,
			service,
			COALESCE(SUM(amount_cents), 0) AS total_cents,
			COUNT(*) AS operations
		FROM cost_ledger
		WHERE tracked_at >= $1::date AND tracked_at < $1::date + INTERVAL '1 day'
		GROUP BY tenant_id, service
		ON CONFLICT (tenant_id, date, service) DO UPDATE SET
			total_cents = EXCLUDED.total_cents,
			operations = EXCLUDED.operations
	`

	if _, err := r.db.ExecContext(ctx, query, date.UTC().Format("2006-01-02")); err != nil {
		return fmt.Errorf("failed to roll up daily costs: %w", err)
	}
	return nil
}

// MonthToDateCents sums a tenant's rolled-up spend from the start of
// the month up to but excluding today. Today's spend lives in the
// realtime aggregate, so including it here would double-count.
func (r *Rollup) MonthToDateCents(ctx context.Context, tenantID string, now time.Time) (int64, error) {
	now = now.UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	query := `
		SELECT COALESCE(SUM(total_cents), 0)
		FROM cost_stats_daily
		WHERE tenant_id = $1 AND date >= $2::date AND date < $3::date
	`

	var cents int64
	err := r.db.QueryRowContext(ctx, query, tenantID,
		monthStart.Format("2006-01-02"), today.Format("2006-01-02")).Scan(&cents)
	if err != nil {
		return 0, fmt.Errorf("failed to sum month-to-date spend: %w", err)
	}
	return cents, nil
}
