package model

import "time"

// PatternSource indicates where a learning pattern came from.
type PatternSource string

const (
	// PatternSourceCorrection indicates a pattern extracted from a user correction.
	PatternSourceCorrection PatternSource = "CORRECTION"
	// PatternSourceSeed indicates a pattern seeded by the host application.
	PatternSourceSeed PatternSource = "SEED"
)

// LearningPattern is a durable token fragment associated with a category,
// strengthened each time a correction repeats it.
type LearningPattern struct {
	LastSeen    time.Time     `json:"last_seen"`
	ID          string        `json:"id"`
	Pattern     string        `json:"pattern"`
	Category    string        `json:"category"`
	Source      PatternSource `json:"source"`
	Confidence  float64       `json:"confidence"`
	Occurrences int           `json:"occurrences"`
}

// Reinforce applies the upsert rule for a repeated (pattern, category)
// observation: occurrences increment, confidence rises by 0.1 capped at 1.0.
func (p *LearningPattern) Reinforce(seen time.Time) {
	p.Occurrences++
	p.Confidence = ClampConfidence(p.Confidence + 0.1)
	p.LastSeen = seen
}

// LearningMetrics is a point-in-time summary of accumulated learning state.
type LearningMetrics struct {
	LastTrainedAt       time.Time `json:"last_trained_at"`
	TotalCorrections    int       `json:"total_corrections"`
	PatternsLearned     int       `json:"patterns_learned"`
	AutoCreatedRules    int       `json:"auto_created_rules"`
	KnownCategories     int       `json:"known_categories"`
	AccuracyImprovement float64   `json:"accuracy_improvement"`
}
