// Package pricing loads the static per-unit price table for metered
// external services.
//
// The table is a YAML artifact mapping service -> operation -> unit
// price in cents, loaded once at process start and immutable afterwards.
// Prices are integer cents (fixed-point) so repeated aggregation cannot
// drift the way floating-point dollars would; fractional unit counts are
// rounded up, keeping every computed cost conservative.
//
// A lookup miss means the deployment's price table is out of date with
// the services actually being called. That is a configuration defect to
// log and fix, never a reason to block the operation: missing prices
// meter as zero.
package pricing
