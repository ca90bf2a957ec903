package optimizer

import (
	"time"

	"github.com/tallyhq/tally/pkg/budget"
)

// Feature is an optional processing step that costs money to run
type Feature string

const (
	FeatureLabels        Feature = "labels"
	FeatureModeration    Feature = "moderation"
	FeatureTranscription Feature = "transcription"
	FeatureSentiment     Feature = "sentiment"
	FeatureSummary       Feature = "summary"
	FeatureEmbeddings    Feature = "embeddings"
)

// Plan is the processing plan for one tenant tier: which optional
// features run, in order, and how long processing may take.
type Plan struct {
	Tier        budget.Tier   `json:"tier"`
	Features    []Feature     `json:"features"`
	TimeCeiling time.Duration `json:"time_ceiling"`
}

// tierPlans is the static approval table. A feature appears only at
// the tier it was approved for and above; nothing here is computed.
var tierPlans = map[budget.Tier]Plan{
	budget.TierFree: {
		Tier:        budget.TierFree,
		Features:    []Feature{FeatureLabels},
		TimeCeiling: 30 * time.Second,
	},
	budget.TierStarter: {
		Tier:        budget.TierStarter,
		Features:    []Feature{FeatureLabels, FeatureModeration, FeatureSentiment},
		TimeCeiling: 2 * time.Minute,
	},
	budget.TierPro: {
		Tier:        budget.TierPro,
		Features:    []Feature{FeatureLabels, FeatureModeration, FeatureSentiment, FeatureTranscription, FeatureSummary},
		TimeCeiling: 10 * time.Minute,
	},
	budget.TierEnterprise: {
		Tier:        budget.TierEnterprise,
		Features:    []Feature{FeatureLabels, FeatureModeration, FeatureSentiment, FeatureTranscription, FeatureSummary, FeatureEmbeddings},
		TimeCeiling: 30 * time.Minute,
	},
}

// SelectPlan returns the processing plan for a tier. Pure: the same
// tier always yields the same plan. Unknown tiers get the free plan.
func SelectPlan(tier budget.Tier) Plan {
	plan, ok := tierPlans[tier]
	if !ok {
		plan = tierPlans[budget.TierFree]
	}

	// Copy the feature slice so callers cannot mutate the table.
	out := plan
	out.Features = append([]Feature(nil), plan.Features...)
	return out
}
