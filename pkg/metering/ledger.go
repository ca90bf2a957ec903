package metering

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ledger is the durable append-only store for cost events
type Ledger interface {
	// Append persists a batch of events in a single write. Implementations
	// must treat the batch atomically: either all rows land or the error
	// return signals the caller to retry the whole batch.
	Append(ctx context.Context, events []CostEvent) error
}

// PostgresLedger implements Ledger on the cost_ledger table
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger creates a ledger backed by Postgres
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Append inserts the batch as one multi-row INSERT statement
func (l *PostgresLedger) Append(ctx context.Context, events []CostEvent) error {
	if len(events) == 0 {
		return nil
	}

	const cols = 8
	var sb strings.Builder
	sb.WriteString(`INSERT INTO cost_ledger (id, tenant_id, service, operation, amount_cents, units, metadata, tracked_at) VALUES `)

	args := make([]interface{}, 0, len(events)*cols)
	for i, ev := range events {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * cols
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)

		var metadata []byte
		if len(ev.Metadata) > 0 {
			var err error
			metadata, err = json.Marshal(ev.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal event metadata: %w", err)
			}
		}

		trackedAt := ev.TrackedAt
		if trackedAt.IsZero() {
			trackedAt = time.Now().UTC()
		}

		args = append(args,
			uuid.NewString(),
			ev.TenantID,
			ev.Service,
			ev.Operation,
			ev.AmountCents,
			ev.Units,
			metadata,
			trackedAt,
		)
	}

	if _, err := l.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to append %d events to ledger: %w", len(events), err)
	}
	return nil
}
