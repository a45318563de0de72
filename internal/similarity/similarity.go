// Package similarity provides the pure comparison primitives shared by
// duplicate detection and correction clustering.
package similarity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// TextSimilarity returns a normalized edit-distance similarity in [0,1]:
// 1 - levenshtein(a,b)/max(len(a),len(b)). Two empty strings are identical
// (1); one empty string matches nothing (0).
func TextSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	dist := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptions)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}

	return 1 - float64(dist)/float64(longest)
}

// DatesWithinTolerance reports whether two dates fall within toleranceDays
// of each other.
func DatesWithinTolerance(d1, d2 time.Time, toleranceDays int) bool {
	diff := d1.Sub(d2)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(toleranceDays)*24*time.Hour
}

// AmountsWithinTolerance reports whether two amounts are close enough to be
// the same charge. The allowed difference is the larger of absoluteCents and
// percent of the larger magnitude, so a percent tolerance can absorb drift
// like an added tip.
func AmountsWithinTolerance(a1, a2 float64, absoluteCents int64, percent float64) bool {
	d1 := decimal.NewFromFloat(a1)
	d2 := decimal.NewFromFloat(a2)

	diff := d1.Sub(d2).Abs()

	allowed := decimal.New(absoluteCents, -2)
	if percent > 0 {
		larger := d1.Abs()
		if d2.Abs().GreaterThan(larger) {
			larger = d2.Abs()
		}
		percentAllowed := larger.Mul(decimal.NewFromFloat(percent))
		if percentAllowed.GreaterThan(allowed) {
			allowed = percentAllowed
		}
	}

	return diff.LessThanOrEqual(allowed)
}
