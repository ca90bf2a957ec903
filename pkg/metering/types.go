package metering

import (
	"time"
)

// CostEvent is an immutable record of one billable operation's cost.
//
// Amounts are integer cents: repeated aggregation of floating-point
// dollars drifts, fixed-point cents do not. Provisional events exist
// only for pre-flight estimates; they are never buffered, never
// aggregated, and never reach the ledger.
type CostEvent struct {
	TenantID    string         `json:"tenant_id"`
	Service     string         `json:"service"`
	Operation   string         `json:"operation"`
	AmountCents int64          `json:"amount_cents"`
	Units       float64        `json:"units,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Provisional bool           `json:"provisional,omitempty"`
	TrackedAt   time.Time      `json:"tracked_at"`
}

// LedgerRecord is the durable, append-only persisted form of a CostEvent
// plus a server-assigned ID and persisted timestamp. The ledger is the
// source of truth for historical reporting; realtime aggregates are a
// cache over it.
type LedgerRecord struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	Service     string         `json:"service"`
	Operation   string         `json:"operation"`
	AmountCents int64          `json:"amount_cents"`
	Units       float64        `json:"units,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	TrackedAt   time.Time      `json:"tracked_at"`
	PersistedAt time.Time      `json:"persisted_at"`
}
