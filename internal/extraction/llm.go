package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/learning"
	"github.com/fyrsmithlabs/recalld/internal/llm"
)

const extractionSystemPrompt = `You extract durable engineering learnings from a development conversation.

A learning is worth keeping only if it will still matter in future sessions: a rule that must hold, a decision with a reason, a recurring code pattern, a known-good sequence of steps, or a known-bad approach.

Types: invariant, decision, pattern, golden_path, antipattern.

Respond with ONLY a JSON array:
[{"type": "decision", "content": "...", "context": "why/when", "domains": ["auth"], "confidence": 0.9}, ...]

Return [] if nothing durable was said. Confidence is 0.0 to 1.0.`

// maxTranscriptChars bounds the transcript handed to the model.
const maxTranscriptChars = 24000

// LLMExtractor asks a completion model for candidates and falls back
// to the heuristic extractor on any failure.
type LLMExtractor struct {
	completer llm.Completer
	fallback  *HeuristicExtractor
	logger    *zap.Logger
}

// NewLLMExtractor wires the completer with a heuristic fallback.
func NewLLMExtractor(completer llm.Completer, logger *zap.Logger) *LLMExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMExtractor{
		completer: completer,
		fallback:  NewHeuristicExtractor(),
		logger:    logger,
	}
}

// Extract uses the LLM when it is available and yields parseable
// output. Every failure path degrades to the heuristic extractor.
func (e *LLMExtractor) Extract(ctx context.Context, messages []Message) ([]Candidate, error) {
	if !e.completer.Available() {
		return e.fallback.Extract(ctx, messages)
	}

	out, err := e.completer.Complete(ctx, extractionSystemPrompt, []llm.Message{
		{Role: "user", Content: renderTranscript(messages)},
	})
	if err != nil {
		e.logger.Warn("llm extraction failed, using heuristic", zap.Error(err))
		return e.fallback.Extract(ctx, messages)
	}

	candidates, err := parseCandidates(out)
	if err != nil {
		e.logger.Warn("llm extraction output unparseable, using heuristic", zap.Error(err))
		return e.fallback.Extract(ctx, messages)
	}
	return candidates, nil
}

func renderTranscript(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	s := b.String()
	if len(s) > maxTranscriptChars {
		// Keep the tail: recent turns carry the conclusions.
		s = s[len(s)-maxTranscriptChars:]
	}
	return s
}

// parseCandidates extracts the outermost JSON array and drops entries
// with unknown types or empty content.
func parseCandidates(raw string) ([]Candidate, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in response")
	}
	var parsed []Candidate
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(parsed))
	for _, c := range parsed {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		if _, err := learning.ParseType(c.Type); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// NewExtractor picks the LLM extractor when a completer is configured
// and the bare heuristic otherwise.
func NewExtractor(completer llm.Completer, logger *zap.Logger) Extractor {
	if completer == nil || !completer.Available() {
		return NewHeuristicExtractor()
	}
	return NewLLMExtractor(completer, logger)
}

var _ Extractor = (*LLMExtractor)(nil)
