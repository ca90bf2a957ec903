package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tallyhq/tally/pkg/budget"
)

func TestSelectPlanDeterministic(t *testing.T) {
	for _, tier := range []budget.Tier{budget.TierFree, budget.TierStarter, budget.TierPro, budget.TierEnterprise} {
		first := SelectPlan(tier)
		second := SelectPlan(tier)
		assert.Equal(t, first, second, "plan for tier %s must be stable", tier)
		assert.Equal(t, tier, first.Tier)
		assert.NotEmpty(t, first.Features)
		assert.Positive(t, first.TimeCeiling)
	}
}

func TestSelectPlanTierMonotonicity(t *testing.T) {
	// A higher tier never loses a feature the tier below it has.
	order := []budget.Tier{budget.TierFree, budget.TierStarter, budget.TierPro, budget.TierEnterprise}
	for i := 1; i < len(order); i++ {
		lower := SelectPlan(order[i-1])
		higher := SelectPlan(order[i])

		higherSet := make(map[Feature]bool, len(higher.Features))
		for _, f := range higher.Features {
			higherSet[f] = true
		}
		for _, f := range lower.Features {
			assert.True(t, higherSet[f], "tier %s is missing feature %s approved for %s", order[i], f, order[i-1])
		}
		assert.GreaterOrEqual(t, higher.TimeCeiling, lower.TimeCeiling)
	}
}

func TestSelectPlanUnknownTierFallsBackToFree(t *testing.T) {
	assert.Equal(t, SelectPlan(budget.TierFree).Features, SelectPlan(budget.Tier("trial")).Features)
}

func TestSelectPlanCopiesFeatures(t *testing.T) {
	plan := SelectPlan(budget.TierPro)
	plan.Features[0] = Feature("mutated")

	assert.NotEqual(t, Feature("mutated"), SelectPlan(budget.TierPro).Features[0])
}
