package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/learning"
	"github.com/fyrsmithlabs/recalld/internal/linkgraph"
	"github.com/fyrsmithlabs/recalld/internal/relevance"
	"github.com/fyrsmithlabs/recalld/internal/store"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) { return f.vec, f.err }
func (f *fakeEmbedder) Model() string                                    { return "fake" }

type fakeRecompiler struct{ enqueued []string }

func (f *fakeRecompiler) Enqueue(projectID string) { f.enqueued = append(f.enqueued, projectID) }

func seedScored(t *testing.T, st store.Store, typ learning.Type, content string, emb []float32) *learning.Learning {
	t.Helper()
	l, err := learning.New("proj", typ, content)
	require.NoError(t, err)
	l.Embedding = emb
	require.NoError(t, st.SaveLearning(context.Background(), l))
	return l
}

func newTestOrchestrator(st store.Store, emb []float32, rec Recompiler) *Orchestrator {
	return New(st, &fakeEmbedder{vec: emb}, linkgraph.NewService(st, nil, nil), rec, nil)
}

func TestInject_TrivialQueryInjectsNothing(t *testing.T) {
	st := store.NewMemory()
	seedScored(t, st, learning.TypeInvariant, "never log tokens", []float32{1, 0})
	o := newTestOrchestrator(st, []float32{1, 0}, nil)

	for _, query := range []string{"hi", "", "   "} {
		res, err := o.InjectLearningContext(context.Background(), InjectRequest{
			BasePrompt:    "You are a helpful assistant.",
			ProjectID:     "proj",
			UserQuery:     query,
			ContextWindow: 200000,
		})
		require.NoError(t, err)
		assert.Equal(t, "You are a helpful assistant.", res.SystemPrompt, "query %q", query)
		assert.Zero(t, res.Stats.BudgetTokens)
		assert.Zero(t, res.Stats.ItemsSelected)
		assert.Equal(t, "trivial", res.Stats.Complexity)
	}
}

func TestInject_CacheHit(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedScored(t, st, learning.TypeInvariant, "never log tokens", []float32{1, 0})

	require.NoError(t, st.UpsertCompiledCache(ctx, &learning.CompiledCache{
		ProjectID:       "proj",
		Tier:            learning.TierDNASummary,
		CompiledContext: "You must never log tokens.",
		TokenEstimate:   7,
		CompiledAt:      time.Now(),
		CompilerModel:   "rule-based",
	}))

	rec := &fakeRecompiler{}
	o := newTestOrchestrator(st, []float32{1, 0}, rec)

	res, err := o.InjectLearningContext(ctx, InjectRequest{
		BasePrompt:    "base",
		ProjectID:     "proj",
		UserQuery:     "how do we handle auth tokens in the logging layer?",
		ContextWindow: 8192,
	})
	require.NoError(t, err)
	assert.True(t, res.Stats.CacheHit)
	assert.Equal(t, "dna_summary", res.Stats.Tier)
	assert.Contains(t, res.SystemPrompt, relevance.ContextStartMarker)
	assert.Contains(t, res.SystemPrompt, "You must never log tokens.")
	assert.Contains(t, res.SystemPrompt, relevance.ContextEndMarker)
	assert.True(t, strings.HasPrefix(res.SystemPrompt, "base\n\n"))
	assert.Empty(t, rec.enqueued, "a hit must not trigger recompilation")
	require.Len(t, res.Invariants, 1)
}

func TestInject_CacheMissFallsThroughToLiveScoring(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedScored(t, st, learning.TypeInvariant, "never log tokens", []float32{1, 0})

	rec := &fakeRecompiler{}
	o := newTestOrchestrator(st, []float32{1, 0}, rec)

	res, err := o.InjectLearningContext(ctx, InjectRequest{
		BasePrompt:    "base",
		ProjectID:     "proj",
		UserQuery:     "how do we handle auth tokens in the logging layer?",
		ContextWindow: 8192,
	})
	require.NoError(t, err)
	assert.False(t, res.Stats.CacheHit)
	assert.Equal(t, []string{"proj"}, rec.enqueued)
	assert.Equal(t, 1, res.Stats.ItemsSelected)
	assert.Contains(t, res.SystemPrompt, "never log tokens")

	// Live fallback on a small window keeps the tier budget cap.
	assert.LessOrEqual(t, res.Stats.BudgetTokens, 500)
}

func TestInject_InvalidatedCacheIsAMiss(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedScored(t, st, learning.TypeInvariant, "never log tokens", []float32{1, 0})

	require.NoError(t, st.UpsertCompiledCache(ctx, &learning.CompiledCache{
		ProjectID:       "proj",
		Tier:            learning.TierDNASummary,
		CompiledContext: "stale compiled text",
		CompiledAt:      time.Now(),
		CompilerModel:   "rule-based",
	}))
	require.NoError(t, st.InvalidateCaches(ctx, "proj"))

	rec := &fakeRecompiler{}
	o := newTestOrchestrator(st, []float32{1, 0}, rec)

	res, err := o.InjectLearningContext(ctx, InjectRequest{
		BasePrompt:    "base",
		ProjectID:     "proj",
		UserQuery:     "how do we handle auth tokens in the logging layer?",
		ContextWindow: 8192,
	})
	require.NoError(t, err)
	assert.False(t, res.Stats.CacheHit)
	assert.NotContains(t, res.SystemPrompt, "stale compiled text")
	assert.Equal(t, []string{"proj"}, rec.enqueued)
}

func TestInject_Tier3AlwaysLive(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedScored(t, st, learning.TypePattern, "wrap errors with fmt.Errorf and %w", []float32{1, 0})

	rec := &fakeRecompiler{}
	o := newTestOrchestrator(st, []float32{1, 0}, rec)

	res, err := o.InjectLearningContext(ctx, InjectRequest{
		BasePrompt:    "base",
		ProjectID:     "proj",
		UserQuery:     "design a migration plan for the error handling refactor across services",
		ContextWindow: 200000,
	})
	require.NoError(t, err)
	assert.Equal(t, "full_dossier", res.Stats.Tier)
	assert.False(t, res.Stats.CacheHit)
	assert.Empty(t, rec.enqueued, "tier 3 never recompiles")
	assert.Equal(t, 1, res.Stats.ItemsSelected)
}

func TestInject_UsageBumpedForSelected(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	l := seedScored(t, st, learning.TypeInvariant, "never log tokens", []float32{1, 0})

	o := newTestOrchestrator(st, []float32{1, 0}, nil)
	_, err := o.InjectLearningContext(ctx, InjectRequest{
		BasePrompt:    "base",
		ProjectID:     "proj",
		UserQuery:     "how do we handle auth tokens in the logging layer?",
		ContextWindow: 200000,
	})
	require.NoError(t, err)

	got, err := st.GetLearning(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsageCount)
	assert.NotNil(t, got.LastUsedAt)
}

func TestInject_EmbeddingFailureDegrades(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedScored(t, st, learning.TypeInvariant, "never log tokens", []float32{1, 0})

	o := New(st, nil, linkgraph.NewService(st, nil, nil), nil, nil) // Nop embedder fails

	res, err := o.InjectLearningContext(ctx, InjectRequest{
		BasePrompt:    "base",
		ProjectID:     "proj",
		UserQuery:     "how do we handle auth tokens in the logging layer?",
		ContextWindow: 200000,
	})
	require.NoError(t, err)
	// Without similarity the thresholds are skipped, so ranking falls
	// back to type and freshness instead of excluding everything.
	assert.Equal(t, 1, res.Stats.ItemsSelected)
}

func TestInject_LensAndFocusDomains(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	authPattern, err := learning.New("proj", learning.TypePattern, "auth middleware validates tokens first")
	require.NoError(t, err)
	authPattern.Embedding = []float32{1, 0}
	authPattern.Domains = []string{"auth"}
	require.NoError(t, st.SaveLearning(ctx, authPattern))

	storagePattern, err := learning.New("proj", learning.TypePattern, "storage layer uses wal mode")
	require.NoError(t, err)
	storagePattern.Embedding = []float32{1, 0}
	storagePattern.Domains = []string{"storage"}
	require.NoError(t, st.SaveLearning(ctx, storagePattern))

	require.NoError(t, st.SaveSettings(ctx, &learning.Settings{
		ProjectID:     "proj",
		ConductorLens: 3.0,
		FocusDomains:  []string{"auth"},
	}))

	o := newTestOrchestrator(st, []float32{1, 0}, nil)
	res, err := o.InjectLearningContext(ctx, InjectRequest{
		BasePrompt:    "base",
		ProjectID:     "proj",
		UserQuery:     "how should requests flow through the middleware stack here?",
		ContextWindow: 200000,
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Stats.ItemsSelected)
	assert.Contains(t, res.SelectedItems[0].Learning.Content, "auth middleware")
}

func TestOnInjection_Feedback(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	links := linkgraph.NewService(st, nil, nil)
	o := New(st, nil, links, nil, nil)

	a := seedScored(t, st, learning.TypeInvariant, "alpha rule", nil)
	b := seedScored(t, st, learning.TypePattern, "beta pattern", nil)
	c := seedScored(t, st, learning.TypeDecision, "gamma decision", nil)

	link, err := learning.NewLink(a.ID, b.ID, learning.LinkSupports, 0.5, learning.LinkSourceUser)
	require.NoError(t, err)
	require.NoError(t, links.Upsert(ctx, "proj", link))

	o.OnInjection(ctx, "proj", []string{a.ID, b.ID, c.ID}, OutcomePositive)

	pairs, err := st.GetPairsForItems(ctx, "proj", []string{a.ID})
	require.NoError(t, err)
	assert.Len(t, pairs, 2) // (a,b) and (a,c)
	for _, p := range pairs {
		assert.Equal(t, 1, p.Count)
		assert.Equal(t, 1, p.PositiveCount)
	}

	got, err := st.GetLinksAmong(ctx, "proj", []string{a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Greater(t, got[0].Strength, 0.5, "positive outcome reinforces links")

	// Negative outcome: counted, not positive, no reinforcement.
	o.OnInjection(ctx, "proj", []string{a.ID, b.ID}, OutcomeNegative)
	pairs, err = st.GetPairsForItems(ctx, "proj", []string{a.ID})
	require.NoError(t, err)
	for _, p := range pairs {
		if p.ItemA == min2(a.ID, b.ID) && p.ItemB == max2(a.ID, b.ID) {
			assert.Equal(t, 2, p.Count)
			assert.Equal(t, 1, p.PositiveCount)
		}
	}

	// Single-item injections produce no pairs.
	o.OnInjection(ctx, "proj", []string{a.ID}, OutcomePositive)
}

func min2(a, b string) string {
	if a < b {
		return a
	}
	return b
}

func max2(a, b string) string {
	if a < b {
		return b
	}
	return a
}
