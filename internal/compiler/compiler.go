// Package compiler pre-compiles a project's memory pool into tiered
// prompt blocks sized for small and medium context windows. Tier 3
// (large windows) is never pre-compiled; those requests always get live
// classifier-driven scoring.
package compiler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/learning"
	"github.com/fyrsmithlabs/recalld/internal/llm"
	"github.com/fyrsmithlabs/recalld/internal/scoring"
	"github.com/fyrsmithlabs/recalld/internal/store"
)

const (
	// tier1WindowMax and tier2WindowMax bound the context windows each
	// pre-compiled tier serves.
	tier1WindowMax = 16384
	tier2WindowMax = 65536

	// Tier budget shapes. Tier 3 hands budgeting to the classifier.
	tier1BudgetCap   = 500
	tier1WindowShare = 0.06
	tier2BudgetCap   = 2500
	tier2WindowShare = 0.08
	tier3Budget      = 10000

	// tier1TopN caps how many items feed the DNA summary.
	tier1TopN = 12

	// directFormatMax: at or below this many items the LLM adds nothing
	// over the direct format.
	directFormatMax = 3

	// clusterSummaryMin: domain clusters larger than this get an LLM
	// summary; smaller clusters stay as lists.
	clusterSummaryMin = 3

	// Flat-list caps for tier 2 extras.
	maxGoldenPaths  = 3
	maxAntipatterns = 3

	// fallbackModel marks cache rows produced without an LLM.
	fallbackModel = "rule-based"
)

// TierConfig is the resolved injection tier for a context window.
type TierConfig struct {
	Tier         learning.Tier
	BudgetTokens int

	// Precompiled reports whether this tier serves a compiled cache.
	Precompiled bool
}

// SelectInjectionTier maps a target model's context window to a tier.
// Unknown or non-positive windows are treated as small: the safest
// assumption is the tightest budget.
func SelectInjectionTier(contextWindow int) TierConfig {
	switch {
	case contextWindow <= tier1WindowMax:
		budget := int(float64(contextWindow) * tier1WindowShare)
		if budget > tier1BudgetCap || contextWindow <= 0 {
			budget = tier1BudgetCap
		}
		if budget < 0 {
			budget = 0
		}
		return TierConfig{Tier: learning.TierDNASummary, BudgetTokens: budget, Precompiled: true}
	case contextWindow <= tier2WindowMax:
		budget := int(float64(contextWindow) * tier2WindowShare)
		if budget > tier2BudgetCap {
			budget = tier2BudgetCap
		}
		return TierConfig{Tier: learning.TierFieldGuide, BudgetTokens: budget, Precompiled: true}
	default:
		return TierConfig{Tier: learning.TierFullDossier, BudgetTokens: tier3Budget, Precompiled: false}
	}
}

// Compiler turns a project's learning pool into compiled cache rows.
type Compiler struct {
	store     store.Store
	completer llm.Completer
	logger    *zap.Logger
	now       func() time.Time
}

// New builds a compiler. A nil completer degrades every compilation to
// the rule-based formatter; a nil logger is replaced with a no-op one.
func New(st store.Store, completer llm.Completer, logger *zap.Logger) *Compiler {
	if completer == nil {
		completer = llm.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{store: st, completer: completer, logger: logger, now: time.Now}
}

// CompileProject recompiles both pre-compiled tiers for a project and
// upserts the rows, clearing any invalidation flag.
func (c *Compiler) CompileProject(ctx context.Context, projectID string) error {
	pool, err := c.store.ListLearnings(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load learning pool: %w", err)
	}

	for _, tier := range []learning.Tier{learning.TierDNASummary, learning.TierFieldGuide} {
		row, err := c.compileTier(ctx, projectID, tier, pool)
		if err != nil {
			return err
		}
		if err := c.store.UpsertCompiledCache(ctx, row); err != nil {
			return fmt.Errorf("store %s cache: %w", tier, err)
		}
		c.logger.Info("compiled cache tier",
			zap.String("project_id", projectID),
			zap.Stringer("tier", tier),
			zap.Int("learnings", row.LearningCount),
			zap.Int("tokens", row.TokenEstimate),
			zap.String("compiler_model", row.CompilerModel))
	}
	return nil
}

func (c *Compiler) compileTier(ctx context.Context, projectID string, tier learning.Tier, pool []*learning.Learning) (*learning.CompiledCache, error) {
	var text, model string
	var items []*learning.Learning

	switch tier {
	case learning.TierDNASummary:
		items = c.dnaCandidates(pool)
		text, model = c.compileDNASummary(ctx, items)
	case learning.TierFieldGuide:
		items = liveItems(pool, c.now())
		text, model = c.compileFieldGuide(ctx, items)
	default:
		return nil, fmt.Errorf("tier %s is not pre-compiled", tier)
	}

	invariants := 0
	for _, l := range items {
		if l.Type == learning.TypeInvariant {
			invariants++
		}
	}

	return &learning.CompiledCache{
		ProjectID:       projectID,
		Tier:            tier,
		CompiledContext: text,
		TokenEstimate:   scoring.EstimateTokens(text),
		LearningCount:   len(items),
		InvariantCount:  invariants,
		CompiledAt:      c.now(),
		CompilerModel:   model,
	}, nil
}

// dnaCandidates picks the top-N invariants, patterns and decisions by
// usage count, after decay filtering drops stale items.
func (c *Compiler) dnaCandidates(pool []*learning.Learning) []*learning.Learning {
	now := c.now()
	var live []*learning.Learning
	for _, l := range pool {
		switch l.Type {
		case learning.TypeInvariant, learning.TypePattern, learning.TypeDecision:
		default:
			continue
		}
		if l.Muted() {
			continue
		}
		if !scoring.IsStillRelevant(l.Age(now), l.Type) {
			continue
		}
		live = append(live, l)
	}
	sort.SliceStable(live, func(i, j int) bool {
		return live[i].UsageCount > live[j].UsageCount
	})
	if len(live) > tier1TopN {
		live = live[:tier1TopN]
	}
	return live
}

// liveItems drops muted and decay-expired learnings. Invariants are
// kept regardless of age; they never expire from the field guide.
func liveItems(pool []*learning.Learning, now time.Time) []*learning.Learning {
	var out []*learning.Learning
	for _, l := range pool {
		if l.Muted() {
			continue
		}
		if l.Type != learning.TypeInvariant && !scoring.IsStillRelevant(l.Age(now), l.Type) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// formatDirect renders items as terse labeled lists grouped by type.
func formatDirect(items []*learning.Learning) string {
	if len(items) == 0 {
		return ""
	}
	byType := map[learning.Type][]*learning.Learning{}
	for _, l := range items {
		byType[l.Type] = append(byType[l.Type], l)
	}

	var b strings.Builder
	// Invariants first, then the rest in fixed priority order.
	for _, typ := range []learning.Type{
		learning.TypeInvariant,
		learning.TypeDecision,
		learning.TypePattern,
		learning.TypeGoldenPath,
		learning.TypeAntipattern,
	} {
		group := byType[typ]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", strings.ToUpper(string(typ)))
		for _, l := range group {
			fmt.Fprintf(&b, "- %s\n", l.Content)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
