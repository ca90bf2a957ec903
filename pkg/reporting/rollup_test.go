package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollupDaily(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rollup := NewRollup(db)

	mock.ExpectExec("INSERT INTO cost_stats_daily").
		WithArgs("2026-05-14").
		WillReturnResult(sqlmock.NewResult(0, 12))

	err = rollup.RollupDaily(context.Background(), time.Date(2026, 5, 14, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMonthToDateCentsExcludesToday(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rollup := NewRollup(db)

	now := time.Date(2026, 5, 14, 15, 30, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("tenant-1", "2026-05-01", "2026-05-14").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(8250)))

	cents, err := rollup.MonthToDateCents(context.Background(), "tenant-1", now)
	require.NoError(t, err)
	assert.Equal(t, int64(8250), cents)
	require.NoError(t, mock.ExpectationsWereMet())
}
