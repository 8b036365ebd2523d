// Package store defines the typed data-access layer the engine consumes
// and provides SQLite and in-memory implementations.
//
// Every row crossing this boundary is mapped to an explicit record with
// validated enums; unrecognized type, link-type or status values are
// rejected at the boundary rather than flowing through as raw strings.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/recalld/internal/learning"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the full data-access surface. The compiled-cache table is
// the only structure needing upsert-with-conflict semantics; all other
// writes are append-or-merge keyed by deterministic identity (content
// hash, canonical pair ordering, or the (from, to, type) link triple).
type Store interface {
	Learnings
	PendingLearnings
	CompiledCaches
	Cooccurrence
	Links
	Queue
	Settings

	Close() error
}

// Learnings is the read/write surface over the learning pool.
type Learnings interface {
	SaveLearning(ctx context.Context, l *learning.Learning) error

	// UpdateLearning overwrites content, context, embedding, domains,
	// usage count and pin/mute state of an existing row.
	UpdateLearning(ctx context.Context, l *learning.Learning) error

	GetLearning(ctx context.Context, id string) (*learning.Learning, error)
	ListLearnings(ctx context.Context, projectID string) ([]*learning.Learning, error)
	ListLearningsByType(ctx context.Context, projectID string, typ learning.Type) ([]*learning.Learning, error)

	// FindByContentHash looks up an exact duplicate within a project and
	// type. Returns ErrNotFound when no row matches.
	FindByContentHash(ctx context.Context, projectID string, typ learning.Type, hash string) (*learning.Learning, error)

	// BumpUsage increments usage counters and stamps last_used_at for
	// the given learnings. Best-effort ranking metadata.
	BumpUsage(ctx context.Context, ids []string, usedAt time.Time) error

	DeleteLearning(ctx context.Context, id string) error
}

// PendingLearnings stages learnings whose provenance is unverified.
type PendingLearnings interface {
	SavePending(ctx context.Context, p *learning.Pending) error
	GetPending(ctx context.Context, id string) (*learning.Pending, error)
	ListPending(ctx context.Context, projectID string, status learning.PendingStatus) ([]*learning.Pending, error)
	UpdatePendingStatus(ctx context.Context, id string, status learning.PendingStatus) error
}

// CompiledCaches holds pre-compiled context rows keyed by (project, tier).
type CompiledCaches interface {
	// UpsertCompiledCache creates or overwrites the row for the cache's
	// (project, tier) key and clears any invalidation flag.
	UpsertCompiledCache(ctx context.Context, c *learning.CompiledCache) error

	// GetCompiledCache returns the valid cache row for (project, tier).
	// Rows flagged invalid are treated as absent (ErrNotFound); validity
	// is invalidation-hook-driven, never timestamp-driven.
	GetCompiledCache(ctx context.Context, projectID string, tier learning.Tier) (*learning.CompiledCache, error)

	// InvalidateCaches flips the invalidated_at flag on every tier row
	// for the project. Cheap by design: recompute happens out of band.
	InvalidateCaches(ctx context.Context, projectID string) error
}

// Cooccurrence records which learnings get injected together.
type Cooccurrence interface {
	// UpsertPair canonicalizes ordering, increments count and, when
	// positive is set, positive_count. Self-pairs are rejected.
	UpsertPair(ctx context.Context, projectID, itemA, itemB string, positive bool) error

	// GetCohorts returns pairs with count >= minCount, ranked by count
	// descending, capped at limit.
	GetCohorts(ctx context.Context, projectID string, minCount, limit int) ([]*learning.Pair, error)

	// GetPairsForItems returns every pair touching any of the given ids.
	GetPairsForItems(ctx context.Context, projectID string, ids []string) ([]*learning.Pair, error)
}

// Links is the typed relationship graph between learnings.
type Links interface {
	// UpsertLink inserts the link or, when the (from, to, type) triple
	// exists, updates its strength and source.
	UpsertLink(ctx context.Context, projectID string, l *learning.Link) error

	// GetLinksFrom returns outgoing links for any of the given ids.
	GetLinksFrom(ctx context.Context, projectID string, fromIDs []string) ([]*learning.Link, error)

	// GetLinksAmong returns links whose endpoints are both in ids.
	GetLinksAmong(ctx context.Context, projectID string, ids []string) ([]*learning.Link, error)

	// ListContradictions materializes strong "contradicts" links joined
	// to both learnings' content.
	ListContradictions(ctx context.Context, projectID string, minStrength float64) ([]*learning.Contradiction, error)
}

// Queue is the durable learning-extraction pipeline.
type Queue interface {
	EnqueueItem(ctx context.Context, item *learning.QueueItem) error

	// ClaimQueueItems atomically transitions up to limit pending items
	// to processing and returns them. Safe under concurrent drains: an
	// item is returned to exactly one caller. An empty projectID claims
	// across all projects.
	ClaimQueueItems(ctx context.Context, projectID string, limit int) ([]*learning.QueueItem, error)

	CompleteQueueItem(ctx context.Context, id string) error

	// FailQueueItem records a failed attempt. When terminal is set the
	// item moves to the failed state and is never retried automatically;
	// otherwise it returns to pending.
	FailQueueItem(ctx context.Context, id string, errMsg string, terminal bool) error

	// ReleaseQueueItem returns a claimed item to pending without
	// counting an attempt, so an aborted drain pass does not strand or
	// penalize work it never started.
	ReleaseQueueItem(ctx context.Context, id string) error

	GetQueueItem(ctx context.Context, id string) (*learning.QueueItem, error)
}

// Settings reads and writes per-project conductor settings.
type Settings interface {
	// GetSettings returns the project's settings, or defaults when no
	// row exists.
	GetSettings(ctx context.Context, projectID string) (*learning.Settings, error)
	SaveSettings(ctx context.Context, s *learning.Settings) error
}
