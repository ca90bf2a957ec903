// Package metering records the cost of billable operations.
//
// The Meter buffers events in memory and flushes them to the durable
// ledger asynchronously, so recording a cost never blocks or fails the
// operation being measured. Realtime aggregates are updated
// synchronously on every record; ledger delivery is at-least-once.
package metering
