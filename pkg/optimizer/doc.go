// Package optimizer reduces the cost of metered processing.
//
// It selects a per-tier processing plan, estimates the cost of an
// operation before it runs, reuses prior results for identical or
// near-identical content, and batches work to amortize per-call
// overhead. Estimates are conservative because they feed admission
// control.
package optimizer
