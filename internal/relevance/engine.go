// Package relevance scores candidate learnings against a classified
// query and greedily selects a subset that fits the token budget.
//
// Scoring is local and fast: cosine similarity, a type-weighted boost,
// and a recency/usage factor. Selection honors the Conductor's Podium
// overrides (pin, mute, lens, focus domains) and type-dependent
// similarity floors, then renders the survivors into a marker-delimited
// context block.
package relevance

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/recalld/internal/learning"
	"github.com/fyrsmithlabs/recalld/internal/scoring"
)

const (
	// similarityWeight is the share of the final score contributed by
	// cosine similarity.
	similarityWeight = 0.5

	// recencyWeight and usageWeight shape the freshness factor.
	recencyWeight = 0.15
	usageWeight   = 0.10

	// usageSaturation is the usage count at which the usage factor maxes out.
	usageSaturation = 10

	// InvariantThreshold admits safety rules on weak semantic overlap.
	InvariantThreshold = 0.20

	// DefaultThreshold is the similarity floor for every other type.
	DefaultThreshold = 0.35
)

// typeBoost orders learning types by injection priority. Invariants get
// the largest boost.
var typeBoost = map[learning.Type]float64{
	learning.TypeInvariant:   0.25,
	learning.TypeDecision:    0.15,
	learning.TypePattern:     0.10,
	learning.TypeGoldenPath:  0.05,
	learning.TypeAntipattern: 0.05,
}

// Scored pairs a candidate with its computed score. Derived fields are
// never persisted.
type Scored struct {
	Learning        *learning.Learning `json:"learning"`
	Score           float64            `json:"score"`
	Similarity      float64            `json:"similarity"`
	RetrievalReason string             `json:"retrieval_reason"`
}

// ScoreCandidates scores every candidate against the query embedding.
// It returns exactly one entry per candidate, always with a finite
// numeric score, and tolerates missing embeddings, negative usage
// counts and non-finite vector components.
func ScoreCandidates(candidates []*learning.Learning, queryEmbedding []float32, now time.Time) []Scored {
	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		sim := scoring.Cosine(queryEmbedding, c.Embedding)
		if sim < 0 {
			sim = 0
		}

		boost := typeBoost[c.Type]

		age := c.Age(now)
		if c.LastUsedAt != nil {
			if d := now.Sub(*c.LastUsedAt).Hours() / 24; d >= 0 && d < age {
				age = d
			}
		}
		freshness := scoring.Decay(age, c.Type) * recencyWeight

		usage := c.UsageCount
		if usage < 0 {
			usage = 0
		}
		if usage > usageSaturation {
			usage = usageSaturation
		}
		usageFactor := float64(usage) / usageSaturation * usageWeight

		scored = append(scored, Scored{
			Learning:        c,
			Score:           sim*similarityWeight + boost + freshness + usageFactor,
			Similarity:      sim,
			RetrievalReason: fmt.Sprintf("similarity %.2f, %s boost", sim, c.Type),
		})
	}
	return scored
}

// SelectOptions carries the Conductor's Podium controls into selection.
type SelectOptions struct {
	// Lens scales scores of items matching FocusDomains before
	// threshold filtering. Zero means "unset" (treated as 1.0).
	Lens float64

	// FocusDomains are the user's per-project focus tags.
	FocusDomains []string

	// SkipThresholds disables similarity floors. Set when the query has
	// no embedding: with no similarity signal there is nothing to
	// threshold on, and ranking falls back to type and freshness.
	SkipThresholds bool
}

// SelectMemory greedily picks the highest-scoring candidates that fit
// within maxTokens (estimated at content length / 4).
//
// Pinned items bypass scoring and thresholds entirely and are admitted
// first, subject only to budget. Muted items are always excluded.
// Ordering is stable: descending final score, ties broken by more
// recent last use.
func SelectMemory(scored []Scored, maxTokens int, opts SelectOptions) []Scored {
	if maxTokens <= 0 {
		return nil
	}

	lens := opts.Lens
	if lens == 0 {
		lens = 1.0
	}
	focus := make(map[string]bool, len(opts.FocusDomains))
	for _, d := range opts.FocusDomains {
		focus[d] = true
	}

	// Transform, never mutate: lens application produces a new slice.
	working := make([]Scored, 0, len(scored))
	for _, sc := range scored {
		if sc.Learning.Muted() {
			continue
		}
		if lens != 1.0 && matchesFocus(sc.Learning.Domains, focus) {
			sc.Score *= lens
			sc.RetrievalReason += fmt.Sprintf(", lens ×%.2f", lens)
		}
		working = append(working, sc)
	}

	sort.SliceStable(working, func(i, j int) bool {
		if working[i].Score != working[j].Score {
			return working[i].Score > working[j].Score
		}
		return lastUsed(working[i].Learning).After(lastUsed(working[j].Learning))
	})

	var (
		selected []Scored
		used     int
	)

	// Pins first: they are always included, budget permitting.
	for _, sc := range working {
		if !sc.Learning.Pinned() {
			continue
		}
		cost := scoring.EstimateTokens(sc.Learning.Content)
		if used+cost > maxTokens {
			continue
		}
		sc.RetrievalReason = "pinned"
		selected = append(selected, sc)
		used += cost
	}

	for _, sc := range working {
		if sc.Learning.Pinned() {
			continue
		}
		if !opts.SkipThresholds && sc.Similarity < thresholdFor(sc.Learning.Type) {
			continue
		}
		cost := scoring.EstimateTokens(sc.Learning.Content)
		if used+cost > maxTokens {
			continue
		}
		selected = append(selected, sc)
		used += cost
	}

	// Pins claim budget first but do not jump the output order: the
	// final selection is score-ordered regardless of how it was chosen.
	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].Score != selected[j].Score {
			return selected[i].Score > selected[j].Score
		}
		return lastUsed(selected[i].Learning).After(lastUsed(selected[j].Learning))
	})

	return selected
}

func thresholdFor(t learning.Type) float64 {
	if t == learning.TypeInvariant {
		return InvariantThreshold
	}
	return DefaultThreshold
}

func matchesFocus(domains []string, focus map[string]bool) bool {
	for _, d := range domains {
		if focus[d] {
			return true
		}
	}
	return false
}

func lastUsed(l *learning.Learning) time.Time {
	if l.LastUsedAt != nil {
		return *l.LastUsedAt
	}
	return l.CreatedAt
}

// Context block markers. The prompt builder locates the injected block
// by these exact strings, so they are load-bearing constants.
const (
	ContextStartMarker = "=== PROJECT MEMORY ==="
	ContextEndMarker   = "=== END PROJECT MEMORY ==="
)

// AssembleContext renders selected items into a single marker-delimited
// block. Content is passed through verbatim: it is destined for an LLM
// prompt, not a browser, so escaping is the front end's concern.
func AssembleContext(selected []Scored) string {
	if len(selected) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(ContextStartMarker)
	b.WriteString("\n")
	for _, sc := range selected {
		b.WriteString("[")
		b.WriteString(string(sc.Learning.Type))
		b.WriteString("] ")
		b.WriteString(sc.Learning.Content)
		b.WriteString("\n")
	}
	b.WriteString(ContextEndMarker)
	return b.String()
}
