// Package scoring provides the numeric primitives shared by the
// relevance engine and the cache compiler: cosine similarity and
// type-weighted time decay.
package scoring

import "math"

// Cosine computes cosine similarity between two vectors.
//
// It is defined for every input: nil or empty vectors, mismatched
// lengths, all-zero vectors, and non-finite components all yield 0.
// The result is always a finite value in [-1, 1].
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
			return 0
		}
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	// Guard against floating point drift outside [-1, 1].
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim
}
