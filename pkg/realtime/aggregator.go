package realtime

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// totalField is the hash field holding the tenant's running total.
// Service names must not collide with it; the price table owns service
// naming and none of the metered services is called "total".
const totalField = "total"

// Aggregate is the low-latency view of a tenant's spend for one calendar
// day. It is a cache, not a source of truth: it can be reconstructed from
// the ledger, and absence means "no spend recorded yet".
type Aggregate struct {
	TotalCents int64            `json:"total_cents"`
	ByService  map[string]int64 `json:"by_service"`
}

// Aggregator maintains per-tenant per-day spend totals in Redis.
//
// Increments run as a single HINCRBY per field so concurrent Record calls
// never lose updates; there is no read-modify-write on the caller side.
type Aggregator struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAggregator creates an aggregator writing aggregates with the given TTL
func NewAggregator(client *redis.Client, ttl time.Duration) *Aggregator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Aggregator{client: client, ttl: ttl}
}

// Key returns the cache key for a tenant and calendar day
func (a *Aggregator) Key(tenantID string, day time.Time) string {
	return fmt.Sprintf("cost:realtime:%s:%s", tenantID, day.UTC().Format("2006-01-02"))
}

// Add atomically adds amountCents to the tenant's daily total and the
// per-service subtotal, creating the aggregate on first write. The TTL is
// refreshed on every write; the key changes each calendar day anyway.
func (a *Aggregator) Add(ctx context.Context, tenantID, service string, amountCents int64, day time.Time) error {
	key := a.Key(tenantID, day)

	pipe := a.client.TxPipeline()
	pipe.HIncrBy(ctx, key, totalField, amountCents)
	pipe.HIncrBy(ctx, key, service, amountCents)
	pipe.Expire(ctx, key, a.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update realtime aggregate for %s: %w", tenantID, err)
	}
	return nil
}

// Get returns the tenant's aggregate for a day, or nil when no spend has
// been recorded (absence is zero spend, not an error).
func (a *Aggregator) Get(ctx context.Context, tenantID string, day time.Time) (*Aggregate, error) {
	fields, err := a.client.HGetAll(ctx, a.Key(tenantID, day)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read realtime aggregate for %s: %w", tenantID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	agg := &Aggregate{ByService: make(map[string]int64, len(fields)-1)}
	for field, raw := range fields {
		cents, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt aggregate field %q for %s: %w", field, tenantID, err)
		}
		if field == totalField {
			agg.TotalCents = cents
		} else {
			agg.ByService[field] = cents
		}
	}
	return agg, nil
}

// Total returns just the daily total in cents; zero when absent
func (a *Aggregator) Total(ctx context.Context, tenantID string, day time.Time) (int64, error) {
	raw, err := a.client.HGet(ctx, a.Key(tenantID, day), totalField).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read realtime total for %s: %w", tenantID, err)
	}
	cents, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt realtime total for %s: %w", tenantID, err)
	}
	return cents, nil
}
