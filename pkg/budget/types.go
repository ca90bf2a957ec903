package budget

import (
	"time"
)

// Tier is a tenant's subscription level
type Tier string

const (
	TierFree       Tier = "free"
	TierStarter    Tier = "starter"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// DefaultThresholds are the alert percentages applied when a tenant has
// not configured their own
var DefaultThresholds = []int64{75, 90, 100}

// defaultBudgetCents maps tier to the monthly budget used when a tenant
// has not set one explicitly
var defaultBudgetCents = map[Tier]int64{
	TierFree:       500,
	TierStarter:    2500,
	TierPro:        10000,
	TierEnterprise: 100000,
}

// DefaultBudgetCents returns the tier's default monthly budget. Unknown
// tiers get the free-tier budget.
func DefaultBudgetCents(tier Tier) int64 {
	if cents, ok := defaultBudgetCents[tier]; ok {
		return cents
	}
	return defaultBudgetCents[TierFree]
}

// Config is a tenant's budget configuration. Read-mostly, mutable by the
// tenant.
type Config struct {
	TenantID           string    `json:"tenant_id"`
	Tier               Tier      `json:"tier"`
	MonthlyBudgetCents int64     `json:"monthly_budget_cents"`
	AlertThresholds    []int64   `json:"alert_thresholds"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DefaultConfig returns the budget configuration used for a tenant with
// no stored record
func DefaultConfig(tenantID string, tier Tier) *Config {
	if tier == "" {
		tier = TierFree
	}
	return &Config{
		TenantID:           tenantID,
		Tier:               tier,
		MonthlyBudgetCents: DefaultBudgetCents(tier),
		AlertThresholds:    append([]int64(nil), DefaultThresholds...),
	}
}

// Normalize fills in tier defaults for unset fields
func (c *Config) Normalize() {
	if c.Tier == "" {
		c.Tier = TierFree
	}
	if c.MonthlyBudgetCents <= 0 {
		c.MonthlyBudgetCents = DefaultBudgetCents(c.Tier)
	}
	if len(c.AlertThresholds) == 0 {
		c.AlertThresholds = append([]int64(nil), DefaultThresholds...)
	}
}

// Decision is the outcome of an admission check. Skip true means the
// operation should not run; Reason explains why.
type Decision struct {
	Skip    bool   `json:"skip"`
	Reason  string `json:"reason,omitempty"`
	// SpendCents is the realtime total the decision was based on
	SpendCents  int64 `json:"spend_cents"`
	BudgetCents int64 `json:"budget_cents"`
}

// Alert describes one budget threshold crossing
type Alert struct {
	TenantID    string    `json:"tenant_id"`
	Threshold   int64     `json:"threshold"`
	SpendCents  int64     `json:"spend_cents"`
	BudgetCents int64     `json:"budget_cents"`
	Percentage  float64   `json:"percentage"`
	Day         time.Time `json:"day"`
}
