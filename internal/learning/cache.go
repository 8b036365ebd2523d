package learning

import "time"

// Tier identifies one of the three compiled-context sizes, keyed by the
// target model's context window.
type Tier int

const (
	// TierDNASummary is the smallest compiled context (≤16K windows).
	TierDNASummary Tier = 1

	// TierFieldGuide is the medium compiled context (≤64K windows).
	TierFieldGuide Tier = 2

	// TierFullDossier is never pre-compiled: large windows always get
	// live classifier-driven scoring.
	TierFullDossier Tier = 3
)

// String returns the tier's glossary name.
func (t Tier) String() string {
	switch t {
	case TierDNASummary:
		return "dna_summary"
	case TierFieldGuide:
		return "field_guide"
	case TierFullDossier:
		return "full_dossier"
	}
	return "unknown"
}

// CompiledCache is a pre-compiled prompt block for one (project, tier).
// Rows are overwritten by recompilation and flagged invalid (never
// deleted) when the learning pool changes. A row with InvalidatedAt set
// is treated as absent; validity is decided by this flag alone, not by
// comparing timestamps against the learning pool.
type CompiledCache struct {
	ProjectID       string     `json:"project_id"`
	Tier            Tier       `json:"tier"`
	CompiledContext string     `json:"compiled_context"`
	TokenEstimate   int        `json:"token_estimate"`
	LearningCount   int        `json:"learning_count"`
	InvariantCount  int        `json:"invariant_count"`
	CompiledAt      time.Time  `json:"compiled_at"`
	InvalidatedAt   *time.Time `json:"invalidated_at,omitempty"`

	// CompilerModel identifies which LLM produced the context, or
	// "rule-based" when the deterministic fallback formatter ran.
	CompilerModel string `json:"compiler_model"`
}
