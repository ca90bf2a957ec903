// Package reporting answers historical spend queries from the cost
// ledger and maintains daily rollups for cheap month-to-date reads.
package reporting
