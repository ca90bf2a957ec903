package optimizer

import (
	"math"

	"github.com/tallyhq/tally/pkg/observability"
	"github.com/tallyhq/tally/pkg/pricing"
)

// MediaType classifies the input content for cost estimation
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
	MediaText  MediaType = "text"
)

// EstimateRequest describes a prospective operation to be priced before
// any billable work happens
type EstimateRequest struct {
	MediaType MediaType `json:"media_type"`
	SizeBytes int64     `json:"size_bytes"`
	Features  []Feature `json:"features"`
}

// featureBilling maps each feature to the priced service operation it
// invokes
var featureBilling = map[Feature]struct {
	service   string
	operation string
}{
	FeatureLabels:        {"vision", "label_detection"},
	FeatureModeration:    {"vision", "moderation"},
	FeatureTranscription: {"speech", "transcribe"},
	FeatureSentiment:     {"language", "sentiment"},
	FeatureSummary:       {"language", "summarize"},
	FeatureEmbeddings:    {"embedding", "generate"},
}

// Estimator prices prospective operations against the static price
// table. Estimates gate admission control, so they round up at every
// step: overestimating occasionally skips an affordable operation,
// underestimating silently blows budgets.
type Estimator struct {
	table   *pricing.Table
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewEstimator creates an estimator over the given price table
func NewEstimator(table *pricing.Table, logger *observability.Logger, metrics *observability.Metrics) *Estimator {
	return &Estimator{table: table, logger: logger, metrics: metrics}
}

// Estimate returns the conservative cost in cents of running the
// requested features plus storing the content. An unknown
// service/operation pair contributes zero and is logged as a
// configuration defect; it never blocks the operation.
func (e *Estimator) Estimate(req EstimateRequest) int64 {
	var total int64

	for _, feature := range req.Features {
		billing, ok := featureBilling[feature]
		if !ok {
			e.logger.WithField("feature", string(feature)).Warn("no billing mapping for feature, estimating zero")
			continue
		}

		units := e.featureUnits(feature, req)
		cents, ok := e.table.Cost(billing.service, billing.operation, units)
		if !ok {
			e.metrics.PricingMissTotal.WithLabelValues(billing.service, billing.operation).Inc()
			e.logger.WithFields(map[string]interface{}{
				"service":   billing.service,
				"operation": billing.operation,
			}).Warn("price table has no entry for operation, estimating zero")
			continue
		}
		total += cents
	}

	// Content is always stored, independent of which features run.
	if cents, ok := e.table.Cost("storage", "put", gigabytes(req.SizeBytes)); ok {
		total += cents
	}

	return total
}

// featureUnits derives the billing units for a feature from the content
// size. Every conversion rounds up.
func (e *Estimator) featureUnits(feature Feature, req EstimateRequest) float64 {
	switch feature {
	case FeatureLabels, FeatureModeration:
		units := 1.0
		if req.MediaType == MediaVideo {
			// Video analysis samples one frame per estimated minute.
			units = minutes(req.SizeBytes)
		}
		return units

	case FeatureTranscription:
		return minutes(req.SizeBytes)

	case FeatureSentiment, FeatureSummary:
		// Per 1000 characters, one byte per character assumed.
		return math.Ceil(float64(req.SizeBytes) / 1000)

	case FeatureEmbeddings:
		// Roughly 4 characters per token, priced per 1000 tokens.
		return math.Ceil(float64(req.SizeBytes) / 4 / 1000)

	default:
		return 1
	}
}

// minutes over-estimates media duration from size, assuming a low
// 1 MB/minute encoding so short high-bitrate clips never underestimate
func minutes(sizeBytes int64) float64 {
	m := math.Ceil(float64(sizeBytes) / (1 << 20))
	if m < 1 {
		m = 1
	}
	return m
}

func gigabytes(sizeBytes int64) float64 {
	return float64(sizeBytes) / (1 << 30)
}
