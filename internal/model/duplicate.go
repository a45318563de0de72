package model

// DuplicateType classifies how certain a duplicate grouping is.
type DuplicateType string

// Duplicate type constants.
const (
	DuplicateExact    DuplicateType = "exact"
	DuplicateLikely   DuplicateType = "likely"
	DuplicatePossible DuplicateType = "possible"
)

// DuplicateSuggestion is the recommended handling for a duplicate group.
type DuplicateSuggestion string

// Duplicate suggestion constants.
const (
	SuggestMerge DuplicateSuggestion = "merge"
	SuggestKeep  DuplicateSuggestion = "keep"
	SuggestFlag  DuplicateSuggestion = "flag"
)

// DuplicateGroup is a cluster of transactions judged to represent the same
// real-world event. Transactions always has at least two members; the
// representative is the member kept if the group is merged.
type DuplicateGroup struct {
	Transactions    []string            `json:"transactions"`
	Representative  string              `json:"representative"`
	DuplicateType   DuplicateType       `json:"duplicate_type"`
	Suggestion      DuplicateSuggestion `json:"suggestion"`
	Reason          []string            `json:"reason"`
	SimilarityScore float64             `json:"similarity_score"`
}
