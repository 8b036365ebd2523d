package scoring

import (
	"math"

	"github.com/fyrsmithlabs/recalld/internal/learning"
)

// RelevanceFloor is the decay score below which an item is considered
// stale for compiled-cache inclusion.
const RelevanceFloor = 0.10

// halfLifeDays maps learning type to decay half-life. Invariants decay
// far slower than patterns and antipatterns.
var halfLifeDays = map[learning.Type]float64{
	learning.TypeInvariant:   365,
	learning.TypeDecision:    180,
	learning.TypeGoldenPath:  150,
	learning.TypePattern:     90,
	learning.TypeAntipattern: 60,
}

// defaultHalfLifeDays is used for unrecognized types so decay is
// defined for every input.
const defaultHalfLifeDays = 90

// Decay returns the exponential time-decay score in (0, 1] for an item
// of the given type after daysSinceCreation days. Negative or
// non-finite day counts are treated as zero (fresh).
func Decay(daysSinceCreation float64, typ learning.Type) float64 {
	if daysSinceCreation < 0 || math.IsNaN(daysSinceCreation) || math.IsInf(daysSinceCreation, 0) {
		daysSinceCreation = 0
	}

	halfLife, ok := halfLifeDays[typ]
	if !ok {
		halfLife = defaultHalfLifeDays
	}

	return math.Exp2(-daysSinceCreation / halfLife)
}

// IsStillRelevant reports whether an item's decay score is above the
// staleness floor used when filtering compiled caches.
func IsStillRelevant(daysSinceCreation float64, typ learning.Type) bool {
	return Decay(daysSinceCreation, typ) >= RelevanceFloor
}
