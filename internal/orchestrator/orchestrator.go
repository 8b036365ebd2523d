// Package orchestrator is the engine's single entry point. Each request
// walks a small state machine: select a tier for the caller's context
// window, serve the pre-compiled cache when it is valid, otherwise kick
// off background recompilation and fall through to live scoring, then
// assemble the final prompt and record stats. Feedback flows back in
// through OnInjection.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/classifier"
	"github.com/fyrsmithlabs/recalld/internal/compiler"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/learning"
	"github.com/fyrsmithlabs/recalld/internal/linkgraph"
	"github.com/fyrsmithlabs/recalld/internal/relevance"
	"github.com/fyrsmithlabs/recalld/internal/scoring"
	"github.com/fyrsmithlabs/recalld/internal/store"
)

// Outcome is the caller's judgement of an injection.
type Outcome string

const (
	OutcomePositive Outcome = "positive"
	OutcomeNeutral  Outcome = "neutral"
	OutcomeNegative Outcome = "negative"
)

// Recompiler is the background compilation trigger. Satisfied by
// *compiler.Recompiler; a test can substitute a recorder.
type Recompiler interface {
	Enqueue(projectID string)
}

// InjectRequest carries one injection call.
type InjectRequest struct {
	BasePrompt        string `json:"base_prompt"`
	ProjectID         string `json:"project_id"`
	UserQuery         string `json:"user_query"`
	UserID            string `json:"user_id,omitempty"`
	ConversationDepth int    `json:"conversation_depth"`
	ContextWindow     int    `json:"context_window"`
}

// Stats is the structured accounting attached to every terminal state.
type Stats struct {
	Complexity    string  `json:"complexity"`
	Intent        string  `json:"intent"`
	BudgetTokens  int     `json:"budget_tokens"`
	ItemsSelected int     `json:"items_selected"`
	LatencyMS     float64 `json:"latency_ms"`
	Tier          string  `json:"tier"`
	CacheHit      bool    `json:"cache_hit"`
}

// InjectResult is the terminal state of one injection. SystemPrompt is
// always present, possibly identical to the base prompt: a zero budget
// or an empty selection means "inject nothing" and is not an error.
type InjectResult struct {
	SystemPrompt  string             `json:"system_prompt"`
	SelectedItems []relevance.Scored `json:"selected_items,omitempty"`

	// Invariants are the project's active invariants, returned so the
	// caller can run response validation afterwards.
	Invariants    []*learning.Learning `json:"invariants,omitempty"`
	CriticalFiles []string             `json:"critical_files,omitempty"`

	Stats Stats `json:"stats"`
}

// Orchestrator wires the engine together per request.
type Orchestrator struct {
	store      store.Store
	embedder   embeddings.Provider
	links      *linkgraph.Service
	recompiler Recompiler
	logger     *zap.Logger
	now        func() time.Time
}

// New builds an orchestrator. Nil embedder and logger degrade to no-op
// implementations; a nil recompiler disables background recompilation.
func New(st store.Store, embedder embeddings.Provider, links *linkgraph.Service, rec Recompiler, logger *zap.Logger) *Orchestrator {
	if embedder == nil {
		embedder = embeddings.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:      st,
		embedder:   embedder,
		links:      links,
		recompiler: rec,
		logger:     logger,
		now:        time.Now,
	}
}

// InjectLearningContext runs the full injection state machine.
func (o *Orchestrator) InjectLearningContext(ctx context.Context, req InjectRequest) (*InjectResult, error) {
	start := o.now()

	tier := compiler.SelectInjectionTier(req.ContextWindow)
	classification := classifier.Classify(req.UserQuery, req.ConversationDepth)
	budget := classifier.DeriveBudget(classification)

	res := &InjectResult{
		SystemPrompt: req.BasePrompt,
		Stats: Stats{
			Complexity: classification.Complexity.String(),
			Intent:     string(classification.Intent),
			Tier:       tier.Tier.String(),
		},
	}

	settings, err := o.store.GetSettings(ctx, req.ProjectID)
	if err != nil {
		settings = learning.DefaultSettings(req.ProjectID)
	}
	res.CriticalFiles = settings.CriticalFiles

	// Trivial queries cost nothing, whatever the tier.
	if budget.MaxTokens == 0 {
		o.finish(res, start, "live", 0)
		return res, nil
	}

	if tier.Precompiled {
		cached, err := o.store.GetCompiledCache(ctx, req.ProjectID, tier.Tier)
		if err == nil {
			res.SystemPrompt = joinPrompt(req.BasePrompt, wrapContext(cached.CompiledContext))
			res.Stats.BudgetTokens = tier.BudgetTokens
			res.Stats.CacheHit = true
			res.Invariants, _ = o.activeInvariants(ctx, req.ProjectID)
			o.finish(res, start, "hit", cached.TokenEstimate)
			return res, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			o.logger.Warn("cache lookup failed, falling back to live scoring",
				zap.String("project_id", req.ProjectID), zap.Error(err))
		}
		if o.recompiler != nil {
			o.recompiler.Enqueue(req.ProjectID)
		}
		// Small windows keep their tier cap even on the live path.
		if tier.BudgetTokens < budget.MaxTokens {
			budget.MaxTokens = tier.BudgetTokens
		}
	}
	res.Stats.BudgetTokens = budget.MaxTokens

	if err := o.liveScore(ctx, req, settings, budget.MaxTokens, res); err != nil {
		return nil, err
	}

	injected := 0
	for _, sc := range res.SelectedItems {
		injected += scoring.EstimateTokens(sc.Learning.Content)
	}

	cacheLabel := "live"
	if tier.Precompiled {
		cacheLabel = "miss"
	}
	o.finish(res, start, cacheLabel, injected)
	return res, nil
}

// liveScore runs classification-driven scoring and selection.
func (o *Orchestrator) liveScore(ctx context.Context, req InjectRequest, settings *learning.Settings, maxTokens int, res *InjectResult) error {
	candidates, err := o.store.ListLearnings(ctx, req.ProjectID)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	queryEmbedding, err := o.embedder.Embed(ctx, req.UserQuery)
	opts := relevance.SelectOptions{
		Lens:         settings.ConductorLens,
		FocusDomains: settings.FocusDomains,
	}
	if err != nil {
		// No similarity signal: rank on type and freshness alone rather
		// than excluding everything below the similarity floors.
		o.logger.Warn("query embedding failed, scoring without similarity",
			zap.String("project_id", req.ProjectID), zap.Error(err))
		queryEmbedding = nil
		opts.SkipThresholds = true
	}

	now := o.now()
	scored := relevance.ScoreCandidates(candidates, queryEmbedding, now)

	seeds := relevance.Seeds(scored)
	if len(seeds) > 0 && o.links != nil {
		seedIDs := make([]string, len(seeds))
		for i, s := range seeds {
			seedIDs[i] = s.Learning.ID
		}
		links, err := o.links.LinksFrom(ctx, req.ProjectID, seedIDs)
		if err != nil {
			o.logger.Warn("link lookup failed, skipping activation spread", zap.Error(err))
		} else {
			scored = relevance.SpreadActivation(scored, seeds, links)
		}
		pairs, err := o.store.GetPairsForItems(ctx, req.ProjectID, seedIDs)
		if err != nil {
			o.logger.Warn("cohort lookup failed, skipping cohort boosts", zap.Error(err))
		} else {
			scored = relevance.ApplyCohortBoosts(scored, seeds, pairs)
		}
	}

	selected := relevance.SelectMemory(scored, maxTokens, opts)
	res.SelectedItems = selected
	res.Stats.ItemsSelected = len(selected)

	if block := relevance.AssembleContext(selected); block != "" {
		res.SystemPrompt = joinPrompt(req.BasePrompt, block)
	}

	res.Invariants, _ = o.activeInvariants(ctx, req.ProjectID)

	if len(selected) > 0 {
		ids := make([]string, len(selected))
		for i, sc := range selected {
			ids[i] = sc.Learning.ID
		}
		if err := o.store.BumpUsage(ctx, ids, now); err != nil {
			o.logger.Warn("usage bump failed", zap.Error(err))
		}
	}
	return nil
}

// OnInjection records the caller's outcome signal: co-occurrence counts
// for every injected pair, plus link reinforcement on positive
// outcomes. Best-effort by contract; failures are logged, never
// returned, because feedback must not break the response path.
func (o *Orchestrator) OnInjection(ctx context.Context, projectID string, injectedIDs []string, outcome Outcome) {
	FeedbackTotal.WithLabelValues(string(outcome)).Inc()
	if len(injectedIDs) < 2 {
		return
	}

	positive := outcome == OutcomePositive
	for i := 0; i < len(injectedIDs); i++ {
		for j := i + 1; j < len(injectedIDs); j++ {
			if err := o.store.UpsertPair(ctx, projectID, injectedIDs[i], injectedIDs[j], positive); err != nil {
				o.logger.Warn("co-occurrence update failed",
					zap.String("project_id", projectID), zap.Error(err))
			}
		}
	}

	if positive && o.links != nil {
		if err := o.links.ReinforceAmong(ctx, projectID, injectedIDs); err != nil {
			o.logger.Warn("link reinforcement failed",
				zap.String("project_id", projectID), zap.Error(err))
		}
	}
}

func (o *Orchestrator) activeInvariants(ctx context.Context, projectID string) ([]*learning.Learning, error) {
	invariants, err := o.store.ListLearningsByType(ctx, projectID, learning.TypeInvariant)
	if err != nil {
		return nil, err
	}
	out := invariants[:0]
	for _, inv := range invariants {
		if !inv.Muted() {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (o *Orchestrator) finish(res *InjectResult, start time.Time, cacheLabel string, injectedTokens int) {
	elapsed := o.now().Sub(start)
	res.Stats.LatencyMS = float64(elapsed.Microseconds()) / 1000

	InjectionsTotal.WithLabelValues(res.Stats.Tier, cacheLabel).Inc()
	InjectionDuration.Observe(elapsed.Seconds())
	InjectedTokens.Observe(float64(injectedTokens))

	o.logger.Debug("injection complete",
		zap.String("tier", res.Stats.Tier),
		zap.String("cache", cacheLabel),
		zap.String("complexity", res.Stats.Complexity),
		zap.Int("budget_tokens", res.Stats.BudgetTokens),
		zap.Int("items", res.Stats.ItemsSelected),
		zap.Float64("latency_ms", res.Stats.LatencyMS))
}

func joinPrompt(base, block string) string {
	if base == "" {
		return block
	}
	return base + "\n\n" + block
}

// wrapContext puts cached compiled text behind the same markers live
// assembly uses, so downstream consumers find one consistent block.
func wrapContext(compiled string) string {
	return relevance.ContextStartMarker + "\n" + compiled + "\n" + relevance.ContextEndMarker
}
