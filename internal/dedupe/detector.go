// Package dedupe groups transactions into exact, likely, and possible
// duplicate clusters using the similarity primitives.
package dedupe

import (
	"fmt"
	"sort"

	"github.com/quillfin/quill/internal/model"
	"github.com/quillfin/quill/internal/similarity"
)

// Config holds the duplicate detection thresholds.
type Config struct {
	DateToleranceDays int
	AmountCents       int64
	DriftPercent      float64
	ExactThreshold    float64
	LikelyThreshold   float64
	PossibleThreshold float64
	WindowDays        int
	WindowAboveBatch  int
}

// DefaultConfig returns the default detection thresholds.
func DefaultConfig() Config {
	return Config{
		DateToleranceDays: 1,
		AmountCents:       1,
		DriftPercent:      0.2,
		ExactThreshold:    0.99,
		LikelyThreshold:   0.8,
		PossibleThreshold: 0.7,
		WindowDays:        7,
		WindowAboveBatch:  500,
	}
}

// Detector finds duplicate transaction groups within a batch.
type Detector struct {
	config Config
}

// NewDetector creates a detector with the given thresholds, falling back to
// defaults for unset values.
func NewDetector(config Config) *Detector {
	defaults := DefaultConfig()
	if config.ExactThreshold <= 0 {
		config.ExactThreshold = defaults.ExactThreshold
	}
	if config.LikelyThreshold <= 0 {
		config.LikelyThreshold = defaults.LikelyThreshold
	}
	if config.PossibleThreshold <= 0 {
		config.PossibleThreshold = defaults.PossibleThreshold
	}
	if config.AmountCents <= 0 {
		config.AmountCents = defaults.AmountCents
	}
	if config.DriftPercent <= 0 {
		config.DriftPercent = defaults.DriftPercent
	}
	if config.WindowDays <= 0 {
		config.WindowDays = defaults.WindowDays
	}
	if config.WindowAboveBatch <= 0 {
		config.WindowAboveBatch = defaults.WindowAboveBatch
	}
	return &Detector{config: config}
}

// pairMatch records one matching unordered pair.
type pairMatch struct {
	reason string
	i, j   int
	kind   model.DuplicateType
	score  float64
}

// Detect compares transaction pairs and returns the merged duplicate groups.
// The representative of each group (highest extraction confidence) gets a
// +0.1 corroboration boost applied in place. Empty input yields an empty
// result. Output is independent of input order.
func (d *Detector) Detect(txns []model.Transaction) []model.DuplicateGroup {
	if len(txns) < 2 {
		return nil
	}

	// Order by date then ID so windowing and grouping are deterministic
	// regardless of input order.
	order := make([]int, len(txns))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ta, tb := txns[order[a]], txns[order[b]]
		if !ta.Date.Equal(tb.Date) {
			return ta.Date.Before(tb.Date)
		}
		return ta.ID < tb.ID
	})

	windowed := len(txns) > d.config.WindowAboveBatch

	uf := newUnionFind(len(txns))
	var matches []pairMatch

	for a := 0; a < len(order); a++ {
		for b := a + 1; b < len(order); b++ {
			i, j := order[a], order[b]
			// Past the window no later transaction can match either; the
			// slice is date-sorted.
			if windowed && !similarity.DatesWithinTolerance(txns[i].Date, txns[j].Date, d.config.WindowDays) {
				break
			}
			if match, ok := d.comparePair(&txns[i], &txns[j]); ok {
				match.i, match.j = i, j
				matches = append(matches, match)
				uf.union(i, j)
			}
		}
	}

	return d.buildGroups(txns, uf, matches)
}

// comparePair classifies one unordered pair, strongest tier first.
func (d *Detector) comparePair(a, b *model.Transaction) (pairMatch, bool) {
	if !similarity.DatesWithinTolerance(a.Date, b.Date, d.config.DateToleranceDays) {
		return pairMatch{}, false
	}

	textScore := similarity.TextSimilarity(a.NormalizedDescription(), b.NormalizedDescription())
	sameDay := a.Date.Format("2006-01-02") == b.Date.Format("2006-01-02")
	exactAmount := similarity.AmountsWithinTolerance(a.Amount, b.Amount, 0, 0)
	closeAmount := similarity.AmountsWithinTolerance(a.Amount, b.Amount, d.config.AmountCents, 0)
	driftAmount := similarity.AmountsWithinTolerance(a.Amount, b.Amount, d.config.AmountCents, d.config.DriftPercent)

	switch {
	case sameDay && exactAmount && textScore >= d.config.ExactThreshold:
		return pairMatch{
			kind:   model.DuplicateExact,
			score:  textScore,
			reason: fmt.Sprintf("same day, same amount %.2f, descriptions match", a.Amount),
		}, true
	case closeAmount && textScore >= d.config.LikelyThreshold:
		return pairMatch{
			kind:   model.DuplicateLikely,
			score:  textScore,
			reason: fmt.Sprintf("dates within %d day(s), amounts within tolerance, description similarity %.2f", d.config.DateToleranceDays, textScore),
		}, true
	case driftAmount && textScore >= d.config.PossibleThreshold:
		return pairMatch{
			kind:   model.DuplicatePossible,
			score:  textScore,
			reason: fmt.Sprintf("amounts drift (%.2f vs %.2f), description similarity %.2f", a.Amount, b.Amount, textScore),
		}, true
	}
	return pairMatch{}, false
}

// buildGroups merges pairwise matches into DuplicateGroups, picks and boosts
// the representative, and attaches a handling suggestion.
func (d *Detector) buildGroups(txns []model.Transaction, uf *unionFind, matches []pairMatch) []model.DuplicateGroup {
	type groupAccum struct {
		members map[int]bool
		reasons []string
		kind    model.DuplicateType
		score   float64
	}

	accums := make(map[int]*groupAccum)
	for _, m := range matches {
		root := uf.find(m.i)
		acc, ok := accums[root]
		if !ok {
			acc = &groupAccum{members: make(map[int]bool), kind: m.kind, score: m.score}
			accums[root] = acc
		}
		acc.members[m.i] = true
		acc.members[m.j] = true
		acc.reasons = append(acc.reasons, m.reason)
		if strength(m.kind) > strength(acc.kind) {
			acc.kind = m.kind
		}
		if m.score > acc.score {
			acc.score = m.score
		}
	}

	groups := make([]model.DuplicateGroup, 0, len(accums))
	for _, acc := range accums {
		indices := make([]int, 0, len(acc.members))
		for idx := range acc.members {
			indices = append(indices, idx)
		}

		// Representative keeps the most trustworthy extraction.
		repIdx := indices[0]
		for _, idx := range indices[1:] {
			if txns[idx].ExtractionConfidence > txns[repIdx].ExtractionConfidence {
				repIdx = idx
			}
		}
		txns[repIdx].ExtractionConfidence = model.ClampConfidence(txns[repIdx].ExtractionConfidence + 0.1)

		ids := make([]string, len(indices))
		for i, idx := range indices {
			ids[i] = txns[idx].ID
		}
		sort.Strings(ids)

		suggestion, why := d.suggestFor(acc.kind)
		groups = append(groups, model.DuplicateGroup{
			Transactions:    ids,
			Representative:  txns[repIdx].ID,
			DuplicateType:   acc.kind,
			SimilarityScore: acc.score,
			Reason:          append(acc.reasons, why),
			Suggestion:      suggestion,
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Transactions[0] < groups[j].Transactions[0]
	})
	return groups
}

func (d *Detector) suggestFor(kind model.DuplicateType) (model.DuplicateSuggestion, string) {
	switch kind {
	case model.DuplicateExact:
		return model.SuggestMerge, "exact duplicates; keep the representative and merge the rest"
	case model.DuplicateLikely:
		return model.SuggestFlag, "likely duplicates; flag for review before merging"
	default:
		return model.SuggestKeep, "possible duplicates; keep both unless review says otherwise"
	}
}

func strength(kind model.DuplicateType) int {
	switch kind {
	case model.DuplicateExact:
		return 3
	case model.DuplicateLikely:
		return 2
	default:
		return 1
	}
}
