package budget

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Store persists per-tenant budget configuration
type Store interface {
	// Get returns the tenant's config, or nil when none is stored
	Get(ctx context.Context, tenantID string) (*Config, error)
	// Put upserts the tenant's config
	Put(ctx context.Context, cfg *Config) error
}

// TenantLister enumerates tenants that have a stored budget config.
// The periodic threshold sweep walks this set; tenants running on tier
// defaults have nothing configured to alert against.
type TenantLister interface {
	ListTenantIDs(ctx context.Context) ([]string, error)
}

// PostgresStore implements Store on the budget_configs table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a budget config store backed by Postgres
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get fetches a tenant's budget config. A missing row is not an error:
// it returns nil and the caller falls back to tier defaults.
func (s *PostgresStore) Get(ctx context.Context, tenantID string) (*Config, error) {
	query := `
		SELECT tenant_id, tier, monthly_budget_cents, alert_thresholds, updated_at
		FROM budget_configs
		WHERE tenant_id = $1
	`

	cfg := &Config{}
	var thresholds pq.Int64Array
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&cfg.TenantID, &cfg.Tier, &cfg.MonthlyBudgetCents, &thresholds, &cfg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get budget config: %w", err)
	}

	cfg.AlertThresholds = []int64(thresholds)
	cfg.Normalize()
	return cfg, nil
}

// Put upserts a tenant's budget config as a single-row write
func (s *PostgresStore) Put(ctx context.Context, cfg *Config) error {
	if cfg.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	cfg.Normalize()

	query := `
		INSERT INTO budget_configs (tenant_id, tier, monthly_budget_cents, alert_thresholds, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tenant_id) DO UPDATE
		SET tier = EXCLUDED.tier,
		    monthly_budget_cents = EXCLUDED.monthly_budget_cents,
		    alert_thresholds = EXCLUDED.alert_thresholds,
		    updated_at = NOW()
	`

	if _, err := s.db.ExecContext(ctx, query,
		cfg.TenantID, string(cfg.Tier), cfg.MonthlyBudgetCents, pq.Array(cfg.AlertThresholds),
	); err != nil {
		return fmt.Errorf("failed to upsert budget config: %w", err)
	}
	return nil
}

// ListTenantIDs returns every tenant with a stored budget config
func (s *PostgresStore) ListTenantIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tenant_id FROM budget_configs ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant id: %w", err)
		}
		tenants = append(tenants, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tenant ids: %w", err)
	}
	return tenants, nil
}
