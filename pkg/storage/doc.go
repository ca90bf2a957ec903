// Package storage opens and verifies the two datastores the metering
// engine depends on: the Postgres cost ledger (source of truth) and the
// Redis cache that backs realtime aggregates and alert-dedup markers.
//
// Callers receive the raw *sql.DB and *redis.Client; domain packages own
// their own queries and key schemas.
package storage
