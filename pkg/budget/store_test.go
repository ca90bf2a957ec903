package budget

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStoreGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	updatedAt := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"tenant_id", "tier", "monthly_budget_cents", "alert_thresholds", "updated_at"}).
		AddRow("tenant-1", "pro", int64(20000), pq.Int64Array{50, 80, 100}, updatedAt)

	mock.ExpectQuery("SELECT tenant_id, tier, monthly_budget_cents").
		WithArgs("tenant-1").
		WillReturnRows(rows)

	cfg, err := store.Get(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, TierPro, cfg.Tier)
	assert.Equal(t, int64(20000), cfg.MonthlyBudgetCents)
	assert.Equal(t, []int64{50, 80, 100}, cfg.AlertThresholds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	mock.ExpectQuery("SELECT tenant_id, tier, monthly_budget_cents").
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "tier", "monthly_budget_cents", "alert_thresholds", "updated_at"}))

	cfg, err := store.Get(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Nil(t, cfg)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetAppliesDefaults(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	rows := sqlmock.NewRows([]string{"tenant_id", "tier", "monthly_budget_cents", "alert_thresholds", "updated_at"}).
		AddRow("tenant-1", "starter", int64(0), pq.Int64Array{}, time.Now())

	mock.ExpectQuery("SELECT tenant_id, tier, monthly_budget_cents").
		WithArgs("tenant-1").
		WillReturnRows(rows)

	cfg, err := store.Get(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, DefaultBudgetCents(TierStarter), cfg.MonthlyBudgetCents)
	assert.Equal(t, DefaultThresholds, cfg.AlertThresholds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorePut(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	mock.ExpectExec("INSERT INTO budget_configs").
		WithArgs("tenant-1", "pro", int64(20000), pq.Array([]int64{75, 90, 100})).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.Put(context.Background(), &Config{
		TenantID:           "tenant-1",
		Tier:               TierPro,
		MonthlyBudgetCents: 20000,
		AlertThresholds:    []int64{75, 90, 100},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListTenantIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	rows := sqlmock.NewRows([]string{"tenant_id"}).
		AddRow("tenant-1").
		AddRow("tenant-2")
	mock.ExpectQuery("SELECT tenant_id FROM budget_configs").WillReturnRows(rows)

	tenants, err := store.ListTenantIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant-1", "tenant-2"}, tenants)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListTenantIDsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	mock.ExpectQuery("SELECT tenant_id FROM budget_configs").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id"}))

	tenants, err := store.ListTenantIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tenants)
}

func TestPostgresStorePutRequiresTenant(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	err = store.Put(context.Background(), &Config{MonthlyBudgetCents: 100})
	assert.Error(t, err)
}
