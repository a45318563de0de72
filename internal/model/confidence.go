package model

// ClampConfidence bounds a confidence value to [0,1]. Every engine write of
// a confidence value goes through this.
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ReviewTier is the processing decision for a classified transaction.
type ReviewTier string

// Review tier constants, ordered from most to least automated.
const (
	TierAutoAccept     ReviewTier = "AUTO_ACCEPT"
	TierTargetedReview ReviewTier = "TARGETED_REVIEW"
	TierFullReview     ReviewTier = "FULL_REVIEW"
)
