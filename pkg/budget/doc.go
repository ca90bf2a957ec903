// Package budget enforces per-tenant monthly spending budgets.
//
// The Enforcer offers two soft controls: a pre-flight admission check
// that advises skipping an operation whose projected cost would pass
// the budget, and a post-hoc threshold sweep that alerts at configured
// spend percentages with per-day deduplication. Both fail open when
// their backing stores are unavailable.
package budget
