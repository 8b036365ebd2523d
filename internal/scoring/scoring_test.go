package scoring

import (
	"math"
	"testing"

	"github.com/fyrsmithlabs/recalld/internal/learning"
	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	uniform := make([]float32, 384)
	for i := range uniform {
		uniform[i] = 0.1
	}
	other := make([]float32, 384)
	for i := range other {
		if i%2 == 0 {
			other[i] = 1
		} else {
			other[i] = -1
		}
	}

	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "nil vectors", a: nil, b: nil, want: 0},
		{name: "empty vectors", a: []float32{}, b: []float32{}, want: 0},
		{name: "mismatched lengths", a: []float32{1, 2, 3}, b: []float32{1, 2}, want: 0},
		{name: "all zero", a: []float32{0, 0, 0}, b: []float32{0, 0, 0}, want: 0},
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "NaN component", a: []float32{float32(math.NaN()), 1}, b: []float32{1, 1}, want: 0},
		{name: "Inf component", a: []float32{float32(math.Inf(1)), 1}, b: []float32{1, 1}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			assert.False(t, math.IsNaN(got) || math.IsInf(got, 0), "result must be finite")
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}

	t.Run("self similarity beats dissimilar", func(t *testing.T) {
		self := Cosine(uniform, uniform)
		diff := Cosine(uniform, other)
		assert.Greater(t, self, diff)
		assert.InDelta(t, 1.0, self, 1e-6)
	})
}

func TestDecay(t *testing.T) {
	t.Run("fresh items score 1", func(t *testing.T) {
		for _, typ := range learning.Types() {
			assert.InDelta(t, 1.0, Decay(0, typ), 1e-9, "type %s", typ)
		}
	})

	t.Run("half life", func(t *testing.T) {
		assert.InDelta(t, 0.5, Decay(365, learning.TypeInvariant), 1e-9)
		assert.InDelta(t, 0.5, Decay(90, learning.TypePattern), 1e-9)
	})

	t.Run("invariants decay slower than patterns", func(t *testing.T) {
		for _, days := range []float64{1, 30, 90, 365, 1000} {
			assert.Greater(t, Decay(days, learning.TypeInvariant), Decay(days, learning.TypePattern), "at %v days", days)
		}
	})

	t.Run("always in (0,1]", func(t *testing.T) {
		for _, days := range []float64{-5, 0, 10000, math.NaN(), math.Inf(1)} {
			got := Decay(days, learning.TypePattern)
			assert.Greater(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		}
	})

	t.Run("unknown type uses default half life", func(t *testing.T) {
		assert.InDelta(t, 0.5, Decay(90, learning.Type("mystery")), 1e-9)
	})
}

func TestIsStillRelevant(t *testing.T) {
	// Patterns fall below the 0.10 floor after ~300 days (90-day half life).
	assert.True(t, IsStillRelevant(90, learning.TypePattern))
	assert.False(t, IsStillRelevant(400, learning.TypePattern))
	// Invariants are still relevant well past a year.
	assert.True(t, IsStillRelevant(400, learning.TypeInvariant))
}
