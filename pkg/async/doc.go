// Package async provides safe goroutine execution and bounded-concurrency
// helpers for the metering service's fire-and-forget side effects.
//
// Cost recording must never block or fail the billable operation it
// measures, so every asynchronous step (ledger flush, budget threshold
// check, batched media processing) runs through SafeGo or a WorkerPool:
// panics are recovered and logged, errors are logged and dropped, and
// timeouts bound every task.
//
// Use SafeGoDetached for work that must survive the triggering request's
// cancellation, e.g. a size-triggered ledger flush.
package async
