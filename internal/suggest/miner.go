// Package suggest mines accumulated user corrections for candidate
// classification rules, ranked by estimated confidence.
package suggest

import (
	"crypto/sha256"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/quillfin/quill/internal/model"
)

// Config holds the mining thresholds.
type Config struct {
	MinCorrectionsForSuggestion int
	MaxSuggestionsPerSession    int
}

// DefaultConfig returns the default mining thresholds.
func DefaultConfig() Config {
	return Config{
		MinCorrectionsForSuggestion: 2,
		MaxSuggestionsPerSession:    5,
	}
}

// Miner analyzes correction history and proposes rules.
type Miner struct {
	config Config
}

// NewMiner creates a miner with the given configuration, falling back to
// defaults for unset thresholds.
func NewMiner(config Config) *Miner {
	if config.MinCorrectionsForSuggestion <= 0 {
		config.MinCorrectionsForSuggestion = 2
	}
	if config.MaxSuggestionsPerSession <= 0 {
		config.MaxSuggestionsPerSession = 5
	}
	return &Miner{config: config}
}

// Analyze groups corrections by corrected category and emits merchant,
// description-token, and amount-range rule suggestions, merged across
// groups, sorted by confidence descending, and truncated to the session
// limit. Empty input yields an empty result.
func (m *Miner) Analyze(corrections []model.UserCorrection) []model.RuleSuggestion {
	byCategory := make(map[string][]model.UserCorrection)
	for _, c := range corrections {
		if c.CorrectedClassification == "" {
			continue
		}
		byCategory[c.CorrectedClassification] = append(byCategory[c.CorrectedClassification], c)
	}

	var suggestions []model.RuleSuggestion
	for category, group := range byCategory {
		if len(group) < m.config.MinCorrectionsForSuggestion {
			continue
		}
		suggestions = append(suggestions, m.merchantSuggestions(category, group)...)
		suggestions = append(suggestions, m.tokenSuggestions(category, group)...)
		suggestions = append(suggestions, m.amountRangeSuggestions(category, group)...)
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		return suggestions[i].Reason < suggestions[j].Reason
	})

	if len(suggestions) > m.config.MaxSuggestionsPerSession {
		suggestions = suggestions[:m.config.MaxSuggestionsPerSession]
	}
	return suggestions
}

// merchantSuggestions emits a contains-merchant rule for each merchant
// repeated across enough corrections in the group.
func (m *Miner) merchantSuggestions(category string, group []model.UserCorrection) []model.RuleSuggestion {
	byMerchant := make(map[string][]model.UserCorrection)
	for _, c := range group {
		merchant := strings.ToLower(strings.TrimSpace(c.MerchantName))
		if merchant == "" {
			continue
		}
		byMerchant[merchant] = append(byMerchant[merchant], c)
	}

	var out []model.RuleSuggestion
	for merchant, matched := range byMerchant {
		count := len(matched)
		if count < m.config.MinCorrectionsForSuggestion {
			continue
		}
		out = append(out, model.RuleSuggestion{
			ID: suggestionID(category, "merchant", merchant),
			Conditions: []model.Condition{
				{Field: model.FieldMerchantName, Operator: model.OpContains, StringValue: merchant},
			},
			Action:             model.RuleAction{Type: model.ActionSetCategory, Value: category},
			Confidence:         math.Min(0.9, float64(count)*0.2),
			EstimatedMatches:   count,
			BasedOnCorrections: correctionIDs(matched),
			Reason:             fmt.Sprintf("%d corrections map merchant %q to %s", count, merchant, category),
		})
	}
	return out
}

// tokenSuggestions emits a contains-description rule for each significant
// token shared across enough corrections.
func (m *Miner) tokenSuggestions(category string, group []model.UserCorrection) []model.RuleSuggestion {
	tokenCorrections := make(map[string][]model.UserCorrection)
	for _, c := range group {
		seen := make(map[string]bool)
		for _, token := range SignificantTokens(c.Description) {
			if seen[token] {
				continue
			}
			seen[token] = true
			tokenCorrections[token] = append(tokenCorrections[token], c)
		}
	}

	var out []model.RuleSuggestion
	for token, matched := range tokenCorrections {
		count := len(matched)
		if count < m.config.MinCorrectionsForSuggestion {
			continue
		}
		out = append(out, model.RuleSuggestion{
			ID: suggestionID(category, "token", token),
			Conditions: []model.Condition{
				{Field: model.FieldDescription, Operator: model.OpContains, StringValue: token},
			},
			Action:             model.RuleAction{Type: model.ActionSetCategory, Value: category},
			Confidence:         math.Min(0.8, float64(count)*0.15),
			EstimatedMatches:   count,
			BasedOnCorrections: correctionIDs(matched),
			Reason:             fmt.Sprintf("%d corrected descriptions contain %q", count, token),
		})
	}
	return out
}

// amountRangeSuggestions buckets corrections by rounded amount magnitude and
// emits a two-condition range rule (±10% around the bucket mean) for dense
// buckets.
func (m *Miner) amountRangeSuggestions(category string, group []model.UserCorrection) []model.RuleSuggestion {
	buckets := make(map[float64][]model.UserCorrection)
	for _, c := range group {
		bucket := math.Round(math.Abs(c.Amount)/10) * 10
		buckets[bucket] = append(buckets[bucket], c)
	}

	var out []model.RuleSuggestion
	for bucket, matched := range buckets {
		count := len(matched)
		if count < m.config.MinCorrectionsForSuggestion {
			continue
		}

		var sum float64
		for _, c := range matched {
			sum += math.Abs(c.Amount)
		}
		mean := sum / float64(count)

		out = append(out, model.RuleSuggestion{
			ID: suggestionID(category, "amount", fmt.Sprintf("%.0f", bucket)),
			Conditions: []model.Condition{
				{Field: model.FieldAmount, Operator: model.OpGreaterThan, NumericValue: mean * 0.9},
				{Field: model.FieldAmount, Operator: model.OpLessThan, NumericValue: mean * 1.1},
			},
			Action:             model.RuleAction{Type: model.ActionSetCategory, Value: category},
			Confidence:         math.Min(0.7, float64(count)*0.1),
			EstimatedMatches:   count,
			BasedOnCorrections: correctionIDs(matched),
			Reason:             fmt.Sprintf("%d corrections near $%.2f map to %s", count, bucket, category),
		})
	}
	return out
}

// suggestionID derives a stable short identifier from what the suggestion
// proposes, so the same mining result yields the same IDs across sessions.
func suggestionID(category, kind, key string) string {
	sum := sha256.Sum256([]byte(category + "\x00" + kind + "\x00" + key))
	return fmt.Sprintf("%x", sum[:6])
}

func correctionIDs(corrections []model.UserCorrection) []string {
	ids := make([]string, len(corrections))
	for i, c := range corrections {
		ids[i] = c.ID
	}
	return ids
}
