// Package dedup keeps the learning pool from growing unbounded. New
// learnings pass an exact content-hash check, then a semantic
// similarity check; near-duplicates are merged into the existing row
// (newest phrasing wins) instead of inserted.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/learning"
	"github.com/fyrsmithlabs/recalld/internal/scoring"
	"github.com/fyrsmithlabs/recalld/internal/store"
	"go.uber.org/zap"
)

// MergeThreshold is the cosine similarity at which a new learning is
// merged into an existing one of the same type.
const MergeThreshold = 0.85

// Outcome reports what storing a learning did.
type Outcome string

const (
	// OutcomeDuplicate means an exact hash match existed; nothing was written.
	OutcomeDuplicate Outcome = "duplicate"

	// OutcomeMerged means a near-duplicate absorbed the new phrasing.
	OutcomeMerged Outcome = "merged"

	// OutcomeInserted means a new row was created.
	OutcomeInserted Outcome = "inserted"
)

// Result describes the stored (or absorbed) learning.
type Result struct {
	Outcome  Outcome            `json:"outcome"`
	Learning *learning.Learning `json:"learning"`

	// Similarity is set for merges: the cosine score against the
	// absorbed row.
	Similarity float64 `json:"similarity,omitempty"`
}

// Deduplicator writes learnings through duplicate detection.
type Deduplicator struct {
	store    store.Store
	embedder embeddings.Provider
	logger   *zap.Logger
}

// New creates a deduplicator. A nil logger defaults to a no-op logger.
func New(s store.Store, embedder embeddings.Provider, logger *zap.Logger) *Deduplicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if embedder == nil {
		embedder = embeddings.Nop{}
	}
	return &Deduplicator{store: s, embedder: embedder, logger: logger}
}

// Store writes a learning through exact and semantic dedup:
//
//  1. Normalized content hash within the same project and type; a match
//     counts as a duplicate and writes nothing.
//  2. With an embedding available, cosine similarity against existing
//     items of the same type; >= MergeThreshold merges the new wording
//     into the existing row and bumps its usage count.
//  3. Otherwise insert a new row.
//
// Embedding generation failure degrades to hash-only dedup; it never
// aborts storage.
func (d *Deduplicator) Store(ctx context.Context, l *learning.Learning) (*Result, error) {
	if l.Content == "" {
		return nil, learning.ErrEmptyContent
	}

	hash := learning.ContentHash(l.Content)
	existing, err := d.store.FindByContentHash(ctx, l.ProjectID, l.Type, hash)
	if err == nil {
		d.logger.Debug("exact duplicate learning",
			zap.String("project_id", l.ProjectID),
			zap.String("existing_id", existing.ID))
		return &Result{Outcome: OutcomeDuplicate, Learning: existing}, nil
	}
	if err != store.ErrNotFound {
		return nil, fmt.Errorf("hash lookup failed: %w", err)
	}

	if len(l.Embedding) == 0 {
		emb, embErr := d.embedder.Embed(ctx, l.Content)
		if embErr != nil {
			// Degrade to hash-only dedup.
			d.logger.Warn("embedding generation failed, skipping semantic dedup",
				zap.String("project_id", l.ProjectID),
				zap.Error(embErr))
		} else {
			l.Embedding = emb
		}
	}

	if len(l.Embedding) > 0 {
		match, sim, err := d.closestSameType(ctx, l)
		if err != nil {
			return nil, err
		}
		if match != nil && sim >= MergeThreshold {
			return d.merge(ctx, match, l, sim)
		}
	}

	if err := d.store.SaveLearning(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to save learning: %w", err)
	}
	if err := d.store.InvalidateCaches(ctx, l.ProjectID); err != nil {
		d.logger.Warn("cache invalidation failed after insert", zap.Error(err))
	}
	return &Result{Outcome: OutcomeInserted, Learning: l}, nil
}

// closestSameType scans existing items of the same project and type for
// the highest cosine similarity.
func (d *Deduplicator) closestSameType(ctx context.Context, l *learning.Learning) (*learning.Learning, float64, error) {
	candidates, err := d.store.ListLearningsByType(ctx, l.ProjectID, l.Type)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list candidates: %w", err)
	}

	var (
		best    *learning.Learning
		bestSim float64
	)
	for _, c := range candidates {
		sim := scoring.Cosine(l.Embedding, c.Embedding)
		if sim > bestSim {
			bestSim = sim
			best = c
		}
	}
	return best, bestSim, nil
}

// merge overwrites the existing row with the new wording. History is
// not kept: the newest phrasing wins.
func (d *Deduplicator) merge(ctx context.Context, existing, incoming *learning.Learning, sim float64) (*Result, error) {
	existing.Content = incoming.Content
	existing.Embedding = incoming.Embedding
	if incoming.Context != "" {
		existing.Context = incoming.Context
	}
	existing.Domains = mergeDomains(existing.Domains, incoming.Domains)
	existing.UsageCount++
	now := time.Now()
	existing.LastUsedAt = &now

	if err := d.store.UpdateLearning(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to merge learning: %w", err)
	}
	if err := d.store.InvalidateCaches(ctx, existing.ProjectID); err != nil {
		d.logger.Warn("cache invalidation failed after merge", zap.Error(err))
	}

	d.logger.Info("merged near-duplicate learning",
		zap.String("project_id", existing.ProjectID),
		zap.String("learning_id", existing.ID),
		zap.Float64("similarity", sim))

	return &Result{Outcome: OutcomeMerged, Learning: existing, Similarity: sim}, nil
}

func mergeDomains(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, d := range append(append([]string{}, a...), b...) {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
