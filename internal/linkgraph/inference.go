package linkgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/learning"
	"github.com/fyrsmithlabs/recalld/internal/llm"
)

const inferenceSystemPrompt = `You classify the relationship between pairs of engineering learnings from the same project.

For each numbered pair, decide whether the first learning relates to the second as one of:
  supports     - the first reinforces or is evidence for the second
  contradicts  - the two cannot both be followed
  supersedes   - the first replaces the second
  protects     - the first is a safety rule guarding the behavior in the second
  none         - no meaningful relationship

Respond with ONLY a JSON array, one object per pair, in input order:
[{"pair": 1, "link_type": "supports", "confidence": 0.9}, ...]

Use "none" whenever you are unsure. Confidence is 0.0 to 1.0.`

type inferenceVerdict struct {
	Pair       int     `json:"pair"`
	LinkType   string  `json:"link_type"`
	Confidence float64 `json:"confidence"`
}

// candidatePair is a cohort pair joined to both learnings' content.
type candidatePair struct {
	A *learning.Learning
	B *learning.Learning
}

// InferLinks asks the completer to classify relationships for the
// project's strongest co-occurrence cohorts and stores the inferred
// links. Without an available completer it is a no-op: the graph still
// works, it just grows only through explicit and reinforced links.
func (s *Service) InferLinks(ctx context.Context, projectID string) (int, error) {
	if !s.completer.Available() {
		s.logger.Debug("link inference skipped, no completer", zap.String("project_id", projectID))
		return 0, nil
	}

	pairs, err := s.store.GetCohorts(ctx, projectID, cohortMinCount, cohortLimit)
	if err != nil {
		return 0, fmt.Errorf("load cohorts: %w", err)
	}

	candidates, err := s.resolvePairs(ctx, projectID, pairs)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	created := 0
	for start := 0; start < len(candidates); start += inferenceBatchSize {
		end := start + inferenceBatchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		n, err := s.inferBatch(ctx, projectID, candidates[start:end])
		if err != nil {
			// A failed batch loses nothing durable; cohorts remain and
			// the next inference run retries them.
			s.logger.Warn("link inference batch failed",
				zap.String("project_id", projectID),
				zap.Int("batch_start", start),
				zap.Error(err))
			continue
		}
		created += n
	}
	return created, nil
}

func (s *Service) resolvePairs(ctx context.Context, projectID string, pairs []*learning.Pair) ([]candidatePair, error) {
	out := make([]candidatePair, 0, len(pairs))
	for _, p := range pairs {
		a, err := s.store.GetLearning(ctx, p.ItemA)
		if err != nil {
			continue // deleted since the pair was recorded
		}
		b, err := s.store.GetLearning(ctx, p.ItemB)
		if err != nil {
			continue
		}
		out = append(out, candidatePair{A: a, B: b})
	}
	return out, nil
}

func (s *Service) inferBatch(ctx context.Context, projectID string, batch []candidatePair) (int, error) {
	var prompt strings.Builder
	for i, c := range batch {
		fmt.Fprintf(&prompt, "Pair %d:\n  First: [%s] %s\n  Second: [%s] %s\n\n",
			i+1, c.A.Type, c.A.Content, c.B.Type, c.B.Content)
	}

	raw, err := s.completer.Complete(ctx, inferenceSystemPrompt, []llm.Message{
		{Role: "user", Content: prompt.String()},
	})
	if err != nil {
		return 0, fmt.Errorf("complete: %w", err)
	}

	verdicts, err := parseVerdicts(raw)
	if err != nil {
		return 0, fmt.Errorf("parse inference response: %w", err)
	}

	created := 0
	for _, v := range verdicts {
		idx := v.Pair - 1
		if idx < 0 || idx >= len(batch) {
			continue
		}
		if v.LinkType == "none" || v.Confidence < minInferenceConfidence {
			continue
		}
		typ, err := learning.ParseLinkType(v.LinkType)
		if err != nil {
			// Unknown label from the model: treat as no relationship.
			continue
		}
		c := batch[idx]
		link, err := learning.NewLink(c.A.ID, c.B.ID, typ, initialInferredStrength, learning.LinkSourceInferred)
		if err != nil {
			continue
		}
		if err := s.store.UpsertLink(ctx, projectID, link); err != nil {
			return created, fmt.Errorf("store inferred link: %w", err)
		}
		created++
	}

	s.logger.Info("link inference batch complete",
		zap.String("project_id", projectID),
		zap.Int("pairs", len(batch)),
		zap.Int("links_created", created))
	return created, nil
}

// parseVerdicts tolerates models that wrap the JSON array in prose or
// markdown fences by extracting the outermost array.
func parseVerdicts(raw string) ([]inferenceVerdict, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in response")
	}
	var verdicts []inferenceVerdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &verdicts); err != nil {
		return nil, err
	}
	return verdicts, nil
}
