// Package queue drains the durable learning queue: claimed items flow
// through extraction, grounding verification and deduplication, then
// invalidate the project's compiled caches. Failures retry up to the
// attempt cap and are then terminally failed with the error retained.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/dedup"
	"github.com/fyrsmithlabs/recalld/internal/extraction"
	"github.com/fyrsmithlabs/recalld/internal/grounding"
	"github.com/fyrsmithlabs/recalld/internal/learning"
	"github.com/fyrsmithlabs/recalld/internal/store"
)

// defaultClaimLimit bounds items taken per drain pass.
const defaultClaimLimit = 32

// DrainStats summarizes one drain pass.
type DrainStats struct {
	Claimed   int `json:"claimed"`
	Completed int `json:"completed"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`

	Inserted int `json:"inserted"`
	Merged   int `json:"merged"`
	Staged   int `json:"staged"`
	Released int `json:"released,omitempty"`

	// Projects lists the distinct project ids of claimed items, so
	// callers can run per-project followups like link inference.
	Projects []string `json:"projects,omitempty"`
}

// Drainer processes queued conversations into learnings.
type Drainer struct {
	store      store.Store
	extractor  extraction.Extractor
	verifier   *grounding.Verifier
	dedup      *dedup.Deduplicator
	logger     *zap.Logger
	claimLimit int
}

// NewDrainer wires the extraction pipeline. A nil logger is replaced
// with a no-op one.
func NewDrainer(st store.Store, ex extraction.Extractor, dd *dedup.Deduplicator, logger *zap.Logger) *Drainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Drainer{
		store:      st,
		extractor:  ex,
		verifier:   grounding.NewVerifier(),
		dedup:      dd,
		logger:     logger,
		claimLimit: defaultClaimLimit,
	}
}

// Drain claims pending items and processes each to completion. An empty
// projectID drains every project. Item failures never abort the pass;
// they are recorded on the item and the pass moves on. Reprocessing a
// conversation is harmless: deduplication absorbs repeated learnings.
func (d *Drainer) Drain(ctx context.Context, projectID string) (*DrainStats, error) {
	items, err := d.store.ClaimQueueItems(ctx, projectID, d.claimLimit)
	if err != nil {
		return nil, fmt.Errorf("claim queue items: %w", err)
	}

	stats := &DrainStats{Claimed: len(items)}
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if !seen[item.ProjectID] {
			seen[item.ProjectID] = true
			stats.Projects = append(stats.Projects, item.ProjectID)
		}
		if err := ctx.Err(); err != nil {
			d.releaseClaims(items[i:], stats)
			return stats, err
		}
		if err := d.processItem(ctx, item, stats); err != nil {
			if ctx.Err() != nil {
				// The item failed because the pass was aborted, not on
				// its own merits. Give it back without an attempt.
				d.releaseClaims(items[i:], stats)
				return stats, ctx.Err()
			}
			d.failItem(ctx, item, err, stats)
			continue
		}
		if err := d.store.CompleteQueueItem(ctx, item.ID); err != nil {
			d.logger.Warn("failed to mark queue item completed",
				zap.String("item_id", item.ID), zap.Error(err))
			continue
		}
		stats.Completed++
	}

	d.logger.Info("queue drain pass complete",
		zap.String("project_id", projectID),
		zap.Int("claimed", stats.Claimed),
		zap.Int("completed", stats.Completed),
		zap.Int("inserted", stats.Inserted),
		zap.Int("merged", stats.Merged),
		zap.Int("staged", stats.Staged),
		zap.Int("retried", stats.Retried),
		zap.Int("failed", stats.Failed))
	return stats, nil
}

func (d *Drainer) processItem(ctx context.Context, item *learning.QueueItem, stats *DrainStats) error {
	var messages []extraction.Message
	if err := json.Unmarshal([]byte(item.Payload), &messages); err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}

	candidates, err := d.extractor.Extract(ctx, messages)
	if err != nil {
		return fmt.Errorf("extract learnings: %w", err)
	}

	history := make([]grounding.Message, len(messages))
	for i, m := range messages {
		history[i] = grounding.Message{Role: m.Role, Content: m.Content}
	}

	for _, cand := range candidates {
		typ, err := learning.ParseType(cand.Type)
		if err != nil {
			continue
		}

		verdict := d.verifier.VerifyReference(cand.Content, item.ConversationID, history)
		if !verdict.Verified {
			if err := d.stage(ctx, item, typ, cand, verdict.Reason); err != nil {
				return err
			}
			stats.Staged++
			continue
		}

		l, err := learning.New(item.ProjectID, typ, cand.Content)
		if err != nil {
			continue
		}
		l.Context = cand.Context
		l.Domains = cand.Domains

		res, err := d.dedup.Store(ctx, l)
		if err != nil {
			return fmt.Errorf("store learning: %w", err)
		}
		switch res.Outcome {
		case dedup.OutcomeInserted:
			stats.Inserted++
		case dedup.OutcomeMerged:
			stats.Merged++
		}
	}
	return nil
}

// stage parks an unverified candidate for human review instead of
// letting unprovenanced content into the pool.
func (d *Drainer) stage(ctx context.Context, item *learning.QueueItem, typ learning.Type, cand extraction.Candidate, reason string) error {
	p, err := learning.NewPending(item.ProjectID, typ, cand.Content, reason)
	if err != nil {
		return fmt.Errorf("build pending learning: %w", err)
	}
	if err := d.store.SavePending(ctx, p); err != nil {
		return fmt.Errorf("stage pending learning: %w", err)
	}
	d.logger.Info("staged unverified learning",
		zap.String("project_id", item.ProjectID),
		zap.String("type", cand.Type),
		zap.String("reason", reason))
	return nil
}

// releaseClaims returns unprocessed claims to pending when a pass
// aborts early, so no item is stranded in processing. The drain
// context is already canceled by the time this runs, so the store
// writes use a detached context.
func (d *Drainer) releaseClaims(items []*learning.QueueItem, stats *DrainStats) {
	ctx := context.Background()
	for _, item := range items {
		if err := d.store.ReleaseQueueItem(ctx, item.ID); err != nil {
			d.logger.Error("failed to release claimed queue item",
				zap.String("item_id", item.ID), zap.Error(err))
			continue
		}
		stats.Released++
	}
	d.logger.Warn("drain pass aborted, released unprocessed claims",
		zap.Int("released", stats.Released))
}

func (d *Drainer) failItem(ctx context.Context, item *learning.QueueItem, cause error, stats *DrainStats) {
	terminal := item.Attempts+1 >= learning.MaxQueueAttempts
	if err := d.store.FailQueueItem(ctx, item.ID, cause.Error(), terminal); err != nil {
		d.logger.Error("failed to record queue item failure",
			zap.String("item_id", item.ID), zap.Error(err))
		return
	}
	if terminal {
		stats.Failed++
		d.logger.Error("queue item terminally failed",
			zap.String("item_id", item.ID),
			zap.Int("attempts", item.Attempts+1),
			zap.Error(cause))
		return
	}
	stats.Retried++
	d.logger.Warn("queue item failed, will retry",
		zap.String("item_id", item.ID),
		zap.Int("attempts", item.Attempts+1),
		zap.Error(cause))
}
