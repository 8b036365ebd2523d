// Package linkgraph maintains the typed relationship graph between
// learnings: explicit upserts, reinforcement of links whose endpoints
// keep getting injected together, and batch LLM inference of new links
// from co-occurrence cohorts.
package linkgraph

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/learning"
	"github.com/fyrsmithlabs/recalld/internal/llm"
	"github.com/fyrsmithlabs/recalld/internal/store"
)

const (
	// ContradictionFloor is the minimum strength at which a
	// "contradicts" link is surfaced to the user.
	ContradictionFloor = 0.6

	// inferenceBatchSize bounds pairs per LLM call.
	inferenceBatchSize = 20

	// minInferenceConfidence drops low-confidence inferred links.
	minInferenceConfidence = 0.7

	// initialInferredStrength seeds links created by inference. They
	// earn strength through reinforcement afterwards.
	initialInferredStrength = 0.5

	// cohortMinCount and cohortLimit scope which co-occurrence pairs are
	// worth asking the model about.
	cohortMinCount = 3
	cohortLimit    = 50
)

// Service owns link graph mutations.
type Service struct {
	store     store.Store
	completer llm.Completer
	logger    *zap.Logger
}

// NewService builds a link graph service. A nil logger is replaced with
// a no-op logger.
func NewService(st store.Store, completer llm.Completer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if completer == nil {
		completer = llm.Nop{}
	}
	return &Service{store: st, completer: completer, logger: logger}
}

// Upsert validates and stores a link. The (from, to, type) triple is
// unique; an existing triple gets its strength and source updated.
func (s *Service) Upsert(ctx context.Context, projectID string, l *learning.Link) error {
	if l.FromID == l.ToID {
		return learning.ErrSelfLink
	}
	if _, err := learning.ParseLinkType(string(l.Type)); err != nil {
		return err
	}
	if l.Strength < 0 || l.Strength > 1 {
		return learning.ErrInvalidStrength
	}
	if err := s.store.UpsertLink(ctx, projectID, l); err != nil {
		return fmt.Errorf("upsert link: %w", err)
	}
	return nil
}

// ReinforceAmong strengthens every existing link whose endpoints were
// both part of a positively received injection. Missing links are not
// created here; creation is inference's job.
func (s *Service) ReinforceAmong(ctx context.Context, projectID string, ids []string) error {
	if len(ids) < 2 {
		return nil
	}
	links, err := s.store.GetLinksAmong(ctx, projectID, ids)
	if err != nil {
		return fmt.Errorf("load links among injected items: %w", err)
	}
	for _, l := range links {
		l.Reinforce()
		if err := s.store.UpsertLink(ctx, projectID, l); err != nil {
			return fmt.Errorf("reinforce link %s -> %s: %w", l.FromID, l.ToID, err)
		}
	}
	if len(links) > 0 {
		s.logger.Debug("reinforced links",
			zap.String("project_id", projectID),
			zap.Int("links", len(links)))
	}
	return nil
}

// Contradictions surfaces strong contradicts-links joined to content.
// They are warnings for the user, never auto-resolved.
func (s *Service) Contradictions(ctx context.Context, projectID string) ([]*learning.Contradiction, error) {
	return s.store.ListContradictions(ctx, projectID, ContradictionFloor)
}

// LinksFrom returns outgoing edges for the given learnings, used by
// activation spreading at injection time.
func (s *Service) LinksFrom(ctx context.Context, projectID string, ids []string) ([]*learning.Link, error) {
	return s.store.GetLinksFrom(ctx, projectID, ids)
}
