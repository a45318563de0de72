package model

// RuleSuggestion is an ephemeral candidate rule mined from correction
// history. Suggestions are never persisted; accepting one materializes a
// real Rule and rejecting one simply discards it.
type RuleSuggestion struct {
	ID                 string      `json:"id"`
	Conditions         []Condition `json:"conditions"`
	Action             RuleAction  `json:"action"`
	Reason             string      `json:"reason"`
	BasedOnCorrections []string    `json:"based_on_corrections"`
	Confidence         float64     `json:"confidence"`
	EstimatedMatches   int         `json:"estimated_matches"`
}
