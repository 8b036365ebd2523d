package classifier

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyTrivial(t *testing.T) {
	for _, q := range []string{"", "   ", "\t\n", "hi", "hello", "thanks"} {
		c := Classify(q, 0)
		assert.Equal(t, ComplexityTrivial, c.Complexity, "query %q", q)
		assert.Empty(t, c.Domains, "query %q", q)
		assert.Equal(t, 0, DeriveBudget(c).MaxTokens, "query %q", q)
	}
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Intent
	}{
		{"question", "what does the scheduler do?", IntentQuestion},
		{"generation", "write a migration for the users table", IntentGeneration},
		{"debugging", "the server crashes with a panic on startup", IntentDebugging},
		{"analysis", "compare the two retry strategies and their trade-offs", IntentAnalysis},
		{"continuation", "continue", IntentContinuation},
		{"greeting", "hello", IntentGreeting},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.query, 3).Intent)
		})
	}
}

func TestClassifyDomains(t *testing.T) {
	c := Classify("rotate the auth token before the database migration", 0)
	assert.Contains(t, c.Domains, "security")
	assert.Contains(t, c.Domains, "database")
}

func TestClassifyCodeContext(t *testing.T) {
	assert.True(t, Classify("why does `x := compute()` allocate?", 0).HasCodeContext)
	assert.False(t, Classify("why is the build slow", 0).HasCodeContext)
}

func TestClassifyReferencesHistory(t *testing.T) {
	assert.True(t, Classify("apply the fix you mentioned earlier", 5).ReferencesHistory)
	assert.True(t, Classify("run the migration again", 5).ReferencesHistory)
	assert.True(t, Classify("again, why does this fail", 5).ReferencesHistory)
	assert.False(t, Classify("apply the fix", 5).ReferencesHistory)

	// Markers embedded in longer words are not references to history.
	assert.False(t, Classify("guard against sql injection here", 5).ReferencesHistory)
	assert.False(t, Classify("plan beforehand for schema changes", 5).ReferencesHistory)
}

func TestClassifyPathologicalInput(t *testing.T) {
	inputs := []string{
		strings.Repeat("a", 100_000),
		strings.Repeat("SELECT * FROM users WHERE 1=1; ", 5000),
		"<script>alert('x')</script>" + strings.Repeat("\x00\x1b[31m", 2000),
		strings.Repeat("((((", 50_000),
		strings.Repeat("\xff\xfe", 10_000), // invalid UTF-8
	}
	for _, in := range inputs {
		start := time.Now()
		c := Classify(in, 2)
		elapsed := time.Since(start)

		assert.Less(t, elapsed, 5*time.Millisecond, "classification latency for %d bytes", len(in))
		assert.NotEqual(t, "unknown", c.Complexity.String())
		b := DeriveBudget(c)
		assert.GreaterOrEqual(t, b.MaxTokens, 0)
		assert.LessOrEqual(t, b.MaxTokens, MaxBudgetTokens)
	}
}

func TestDeriveBudgetClamp(t *testing.T) {
	// Maximal classification: raw math is 8000*1.5*1.2*1.2 = 12960.
	c := Classification{
		Complexity:        ComplexityDeep,
		Intent:            IntentAnalysis,
		ReferencesHistory: true,
		ConversationDepth: 25,
	}
	b := DeriveBudget(c)
	assert.Equal(t, MaxBudgetTokens, b.MaxTokens)
}

func TestDeriveBudgetModifiers(t *testing.T) {
	base := Classification{Complexity: ComplexityModerate, Intent: IntentQuestion}
	require.Equal(t, 1500, DeriveBudget(base).MaxTokens)

	withHistory := base
	withHistory.ReferencesHistory = true
	assert.Equal(t, 2250, DeriveBudget(withHistory).MaxTokens)

	deepConvo := base
	deepConvo.ConversationDepth = 12
	assert.Equal(t, 1800, DeriveBudget(deepConvo).MaxTokens)

	analysis := base
	analysis.Intent = IntentAnalysis
	assert.Equal(t, 1800, DeriveBudget(analysis).MaxTokens)
}

func TestDeriveBudgetUnknownComplexity(t *testing.T) {
	b := DeriveBudget(Classification{Complexity: Complexity(99)})
	assert.Equal(t, 500, b.MaxTokens)
}
