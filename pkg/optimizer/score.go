package optimizer

// ScoreInputs are the observable facts an efficiency score is computed
// from
type ScoreInputs struct {
	// TotalCents is the tenant's spend over the scored window
	TotalCents int64 `json:"total_cents"`
	// Operations is the number of billable operations in the window
	Operations int64 `json:"operations"`
	// CacheHitRate is the dedup hit fraction in [0, 1]
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// AvgCostCents is the average spend per operation, zero when no
// operations ran
func (s ScoreInputs) AvgCostCents() float64 {
	if s.Operations == 0 {
		return 0
	}
	return float64(s.TotalCents) / float64(s.Operations)
}

// ScorePolicy turns score inputs into a 0-100 efficiency score. The
// scoring formula is policy, not mechanism: deployments weight spend
// and reuse differently, so the policy is injected rather than fixed.
type ScorePolicy interface {
	Score(in ScoreInputs) float64
}

// WeightedPolicy scores by penalizing average per-operation cost and
// rewarding cache reuse, starting from a perfect 100
type WeightedPolicy struct {
	// CostPenaltyPerCent subtracts this many points per cent of average
	// operation cost
	CostPenaltyPerCent float64
	// HitRateBonus adds up to this many points at a 100% hit rate
	HitRateBonus float64
}

// DefaultScorePolicy returns a WeightedPolicy with moderate weights
func DefaultScorePolicy() *WeightedPolicy {
	return &WeightedPolicy{
		CostPenaltyPerCent: 0.5,
		HitRateBonus:       20,
	}
}

func (p *WeightedPolicy) Score(in ScoreInputs) float64 {
	score := 100.0
	score -= in.AvgCostCents() * p.CostPenaltyPerCent
	score += in.CacheHitRate * p.HitRateBonus

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
