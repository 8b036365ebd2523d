package classifier

// MaxBudgetTokens is the hard ceiling for any derived budget. The clamp
// is a security invariant: no combination of modifiers may amplify a
// budget past it.
const MaxBudgetTokens = 10000

// deepDepthThreshold is the conversation depth treated as "high" for
// the budget modifier.
const deepDepthThreshold = 10

// Budget is the token allowance for memory injection on one request.
type Budget struct {
	MaxTokens   int    `json:"max_tokens"`
	Description string `json:"description"`
}

// baseBudget maps complexity to its base token allowance. Trivial
// queries cost nothing.
var baseBudget = map[Complexity]int{
	ComplexityTrivial:  0,
	ComplexitySimple:   500,
	ComplexityModerate: 1500,
	ComplexityComplex:  4000,
	ComplexityDeep:     8000,
}

// DeriveBudget computes the token budget for a classification.
//
// base × 1.5 if the query references history, × 1.2 on deep
// conversations, × 1.2 for analysis intent. The result is always
// clamped to [0, MaxBudgetTokens] regardless of how modifiers combine.
func DeriveBudget(c Classification) Budget {
	base, ok := baseBudget[c.Complexity]
	if !ok {
		base = baseBudget[ComplexitySimple]
	}

	tokens := float64(base)
	if c.ReferencesHistory {
		tokens *= 1.5
	}
	if c.ConversationDepth >= deepDepthThreshold {
		tokens *= 1.2
	}
	if c.Intent == IntentAnalysis {
		tokens *= 1.2
	}

	n := int(tokens)
	if n < 0 {
		n = 0
	}
	if n > MaxBudgetTokens {
		n = MaxBudgetTokens
	}

	return Budget{
		MaxTokens:   n,
		Description: c.Complexity.String() + "/" + string(c.Intent),
	}
}
