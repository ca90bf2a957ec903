package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/tallyhq/tally/pkg/observability"
)

// SpendReader supplies the low-latency spend-so-far view the enforcer
// decides on. Satisfied by realtime.Aggregator.
type SpendReader interface {
	Total(ctx context.Context, tenantID string, day time.Time) (int64, error)
}

// MonthReader supplies month-to-date spend before today from the rollup
// store. Optional: when absent the enforcer decides on today's realtime
// view alone.
type MonthReader interface {
	MonthToDateCents(ctx context.Context, tenantID string, now time.Time) (int64, error)
}

// Enforcer makes soft admission-control decisions and emits threshold
// alerts against per-tenant monthly budgets.
//
// Both checks are advisory. The admission check is a check-then-act
// race against concurrent operations: overshoot bounded by the sum of
// in-flight estimates is accepted, because serializing every billable
// operation through a lock would cost more than the overshoot. Both
// checks fail open when the cache or the config store is unavailable.
type Enforcer struct {
	store    Store
	spend    SpendReader
	history  MonthReader
	cache    *redis.Client
	notifier Notifier
	logger   *observability.Logger
	metrics  *observability.Metrics
	alertTTL time.Duration

	// now is swappable for day-boundary tests
	now func() time.Time
}

// NewEnforcer creates a budget enforcer. history may be nil.
func NewEnforcer(store Store, spend SpendReader, history MonthReader, cache *redis.Client,
	notifier Notifier, logger *observability.Logger, metrics *observability.Metrics) *Enforcer {

	return &Enforcer{
		store:    store,
		spend:    spend,
		history:  history,
		cache:    cache,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
		alertTTL: 24 * time.Hour,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WouldExceed decides whether a prospective operation with the given
// estimated cost should be skipped.
//
// Two independent checks, both strict: the operation is skipped when
// projected spend (current total plus the estimate) would pass the
// monthly budget, or when the single estimate alone is more than 10% of
// the budget regardless of remaining headroom. Never returns an error:
// if spend cannot be read the check allows, since cost control is a
// soft guarantee and the billable operation's availability wins.
func (e *Enforcer) WouldExceed(ctx context.Context, tenantID string, estimateCents int64) Decision {
	cfg := e.configFor(ctx, tenantID)
	budget := cfg.MonthlyBudgetCents

	// Single-operation cap: estimate > 10% of budget. Integer compare,
	// strict inequality.
	if estimateCents*10 > budget {
		e.metrics.AdmissionChecksTotal.WithLabelValues("skip_cap").Inc()
		return Decision{
			Skip:        true,
			Reason:      fmt.Sprintf("estimated cost %d cents exceeds 10%% of monthly budget (%d cents)", estimateCents, budget),
			BudgetCents: budget,
		}
	}

	total, ok := e.currentSpend(ctx, tenantID)
	if !ok {
		e.metrics.AdmissionChecksTotal.WithLabelValues("allow_failopen").Inc()
		return Decision{Skip: false, BudgetCents: budget}
	}

	if total+estimateCents > budget {
		e.metrics.AdmissionChecksTotal.WithLabelValues("skip_budget").Inc()
		return Decision{
			Skip:        true,
			Reason:      fmt.Sprintf("projected spend %d cents exceeds monthly budget of %d cents", total+estimateCents, budget),
			SpendCents:  total,
			BudgetCents: budget,
		}
	}

	e.metrics.AdmissionChecksTotal.WithLabelValues("allow").Inc()
	return Decision{Skip: false, SpendCents: total, BudgetCents: budget}
}

// CheckThresholds evaluates the tenant's spend against each configured
// alert threshold and emits at most one alert per threshold per day.
//
// Thresholds are independent: crossing 100% emits only the 100% alert
// when 75 and 90 already fired earlier the same day. Dedup is a
// presence marker in the cache with a 24h TTL, set atomically so
// concurrent checks cannot double-alert.
func (e *Enforcer) CheckThresholds(ctx context.Context, tenantID string) error {
	cfg := e.configFor(ctx, tenantID)
	budget := cfg.MonthlyBudgetCents
	if budget <= 0 {
		return nil
	}

	total, ok := e.currentSpend(ctx, tenantID)
	if !ok {
		// Fail open: no spend view, no alerts.
		return nil
	}

	percentage := float64(total) / float64(budget) * 100
	day := e.now()

	for _, threshold := range cfg.AlertThresholds {
		if percentage < float64(threshold) {
			continue
		}

		set, err := e.cache.SetNX(ctx, e.alertKey(tenantID, threshold, day), "1", e.alertTTL).Result()
		if err != nil {
			e.metrics.CacheErrorsTotal.WithLabelValues("setnx").Inc()
			e.logger.WithError(err).WithTenant(tenantID).Warn("alert dedup check failed, skipping alert")
			continue
		}
		if !set {
			// Already alerted for this threshold today.
			continue
		}

		alert := Alert{
			TenantID:    tenantID,
			Threshold:   threshold,
			SpendCents:  total,
			BudgetCents: budget,
			Percentage:  percentage,
			Day:         day,
		}
		e.metrics.AlertsEmittedTotal.WithLabelValues(fmt.Sprintf("%d", threshold)).Inc()
		if err := e.notifier.Notify(ctx, alert); err != nil {
			e.logger.WithError(err).WithTenant(tenantID).
				Warnf("failed to deliver %d%% budget alert", threshold)
		}
	}
	return nil
}

// SweepThresholds runs the threshold check for every tenant with a
// stored budget config. The per-record checks already cover active
// tenants; the sweep catches spend that crossed a threshold while no
// events were arriving. The dedup markers make the two paths
// idempotent against each other.
//
// A failing tenant is logged and skipped so one bad tenant cannot
// starve the rest of the sweep.
func (e *Enforcer) SweepThresholds(ctx context.Context, tenants TenantLister) error {
	ids, err := tenants.ListTenantIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate tenants for threshold sweep: %w", err)
	}

	for _, tenantID := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.CheckThresholds(ctx, tenantID); err != nil {
			e.logger.WithError(err).WithTenant(tenantID).Warn("threshold sweep failed for tenant")
		}
	}
	return nil
}

// alertKey builds the per-day dedup marker key
func (e *Enforcer) alertKey(tenantID string, threshold int64, day time.Time) string {
	return fmt.Sprintf("cost:alert:%s:%d:%s", tenantID, threshold, day.UTC().Format("2006-01-02"))
}

// configFor loads the tenant's budget config, falling back to tier
// defaults on a missing row and failing open to defaults on store errors
func (e *Enforcer) configFor(ctx context.Context, tenantID string) *Config {
	cfg, err := e.store.Get(ctx, tenantID)
	if err != nil {
		e.logger.WithError(err).WithTenant(tenantID).Warn("budget config read failed, using defaults")
		return DefaultConfig(tenantID, TierFree)
	}
	if cfg == nil {
		return DefaultConfig(tenantID, TierFree)
	}
	return cfg
}

// currentSpend returns the tenant's month-to-date spend: today's
// realtime total plus the rollup store's prior-day sum when available.
// ok is false when the realtime view cannot be read.
func (e *Enforcer) currentSpend(ctx context.Context, tenantID string) (int64, bool) {
	now := e.now()

	today, err := e.spend.Total(ctx, tenantID, now)
	if err != nil {
		e.metrics.CacheErrorsTotal.WithLabelValues("total").Inc()
		e.logger.WithError(err).WithTenant(tenantID).Warn("realtime spend read failed, failing open")
		return 0, false
	}

	if e.history == nil {
		return today, true
	}

	prior, err := e.history.MonthToDateCents(ctx, tenantID, now)
	if err != nil {
		// Degrade to the realtime-only view rather than blocking.
		e.logger.WithError(err).WithTenant(tenantID).Warn("month-to-date rollup read failed, using realtime view only")
		return today, true
	}
	return today + prior, true
}
