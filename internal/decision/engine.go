// Package decision combines per-source confidence scores into an overall
// score and maps it to a processing tier.
package decision

import (
	"github.com/quillfin/quill/internal/model"
)

// Config holds the combination weights and tier thresholds. Tier boundaries
// are inclusive at the lower bound.
type Config struct {
	ExtractionWeight        float64
	ClassificationWeight    float64
	AccountInfoWeight       float64
	AutoProcessThreshold    float64
	TargetedReviewThreshold float64
}

// DefaultConfig returns equal weights and the default tier thresholds.
func DefaultConfig() Config {
	return Config{
		ExtractionWeight:        1,
		ClassificationWeight:    1,
		AccountInfoWeight:       1,
		AutoProcessThreshold:    0.95,
		TargetedReviewThreshold: 0.80,
	}
}

// Scores carries the per-source confidence inputs.
type Scores struct {
	Extraction     float64
	Classification float64
	AccountInfo    float64
}

// Decision is the routing outcome for one transaction.
type Decision struct {
	Tier         model.ReviewTier
	FlaggedField string
	Overall      float64
}

// Engine maps combined confidence to review tiers.
type Engine struct {
	config Config
}

// NewEngine creates a decision engine, defaulting any unset weights or
// thresholds.
func NewEngine(config Config) *Engine {
	defaults := DefaultConfig()
	if config.ExtractionWeight <= 0 && config.ClassificationWeight <= 0 && config.AccountInfoWeight <= 0 {
		config.ExtractionWeight = defaults.ExtractionWeight
		config.ClassificationWeight = defaults.ClassificationWeight
		config.AccountInfoWeight = defaults.AccountInfoWeight
	}
	if config.AutoProcessThreshold <= 0 {
		config.AutoProcessThreshold = defaults.AutoProcessThreshold
	}
	if config.TargetedReviewThreshold <= 0 {
		config.TargetedReviewThreshold = defaults.TargetedReviewThreshold
	}
	return &Engine{config: config}
}

// Combine computes the weighted overall confidence, clamped to [0,1].
func (e *Engine) Combine(scores Scores) float64 {
	totalWeight := e.config.ExtractionWeight + e.config.ClassificationWeight + e.config.AccountInfoWeight
	if totalWeight == 0 {
		return 0
	}

	weighted := model.ClampConfidence(scores.Extraction)*e.config.ExtractionWeight +
		model.ClampConfidence(scores.Classification)*e.config.ClassificationWeight +
		model.ClampConfidence(scores.AccountInfo)*e.config.AccountInfoWeight

	return model.ClampConfidence(weighted / totalWeight)
}

// Decide combines the scores and routes the transaction: auto-accept,
// targeted review (flagging only the weakest contributing field), or full
// review. Thresholds are evaluated high to low.
func (e *Engine) Decide(scores Scores) Decision {
	overall := e.Combine(scores)

	switch {
	case overall >= e.config.AutoProcessThreshold:
		return Decision{Tier: model.TierAutoAccept, Overall: overall}
	case overall >= e.config.TargetedReviewThreshold:
		return Decision{
			Tier:         model.TierTargetedReview,
			Overall:      overall,
			FlaggedField: lowestField(scores),
		}
	default:
		return Decision{Tier: model.TierFullReview, Overall: overall}
	}
}

// lowestField names the least confident contributing source.
func lowestField(scores Scores) string {
	field := "extraction"
	lowest := scores.Extraction
	if scores.Classification < lowest {
		field, lowest = "classification", scores.Classification
	}
	if scores.AccountInfo < lowest {
		field = "accountInfo"
	}
	return field
}
