package metering

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresLedgerAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledger := NewPostgresLedger(db)

	trackedAt := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	events := []CostEvent{
		{
			TenantID:    "tenant-1",
			Service:     "llm",
			Operation:   "chat.completion",
			AmountCents: 120,
			Units:       2.4,
			Metadata:    map[string]any{"model": "large"},
			TrackedAt:   trackedAt,
		},
		{
			TenantID:    "tenant-1",
			Service:     "speech",
			Operation:   "transcribe",
			AmountCents: 30,
			Units:       0.5,
			TrackedAt:   trackedAt,
		},
	}

	mock.ExpectExec("INSERT INTO cost_ledger").
		WithArgs(
			sqlmock.AnyArg(), "tenant-1", "llm", "chat.completion", int64(120), 2.4, []byte(`{"model":"large"}`), trackedAt,
			sqlmock.AnyArg(), "tenant-1", "speech", "transcribe", int64(30), 0.5, []byte(nil), trackedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err = ledger.Append(context.Background(), events)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerAppendEmptyBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledger := NewPostgresLedger(db)

	// No statement expected: an empty batch is a no-op.
	require.NoError(t, ledger.Append(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerAppendError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledger := NewPostgresLedger(db)

	mock.ExpectExec("INSERT INTO cost_ledger").
		WillReturnError(errors.New("connection refused"))

	err = ledger.Append(context.Background(), []CostEvent{
		{TenantID: "tenant-1", Service: "llm", Operation: "chat.completion", AmountCents: 5},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to append 1 events")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerStampsMissingTrackedAt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledger := NewPostgresLedger(db)

	mock.ExpectExec("INSERT INTO cost_ledger").
		WithArgs(
			sqlmock.AnyArg(), "tenant-1", "llm", "chat.completion", int64(5), 0.0, []byte(nil), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ledger.Append(context.Background(), []CostEvent{
		{TenantID: "tenant-1", Service: "llm", Operation: "chat.completion", AmountCents: 5},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
