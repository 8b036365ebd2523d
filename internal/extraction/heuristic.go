package extraction

import (
	"context"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/recalld/internal/learning"
)

// pattern maps a phrasing signal to a learning type with a base
// confidence weight.
type pattern struct {
	regex      string
	typ        learning.Type
	confidence float64
}

// defaultPatterns order matters: the first match on a sentence wins, so
// stronger signals come first.
var defaultPatterns = []pattern{
	{`(?i)\b(never|must not|must never)\b`, learning.TypeInvariant, 0.8},
	{`(?i)\b(always|must)\b.*\b(before|when|after)\b`, learning.TypeInvariant, 0.7},
	{`(?i)\b(we decided|we chose|decided to go with|let'?s go with|settled on)\b`, learning.TypeDecision, 0.8},
	{`(?i)\b(instead of|rather than)\b`, learning.TypeDecision, 0.55},
	{`(?i)\b(avoid|don'?t use|do not use|anti-?pattern)\b`, learning.TypeAntipattern, 0.7},
	{`(?i)\b(the pattern here is|the convention is|we usually|the way we do)\b`, learning.TypePattern, 0.7},
	{`(?i)\b(the right way to|the correct sequence|step by step|first .* then)\b`, learning.TypeGoldenPath, 0.6},
}

type compiledPattern struct {
	pattern
	re *regexp.Regexp
}

// HeuristicExtractor finds candidates by phrasing signals alone. It
// needs no provider, so it is the floor every deployment has.
type HeuristicExtractor struct {
	patterns      []compiledPattern
	minConfidence float64
	contextTurns  int
}

// NewHeuristicExtractor compiles the default pattern set. Patterns that
// fail to compile are skipped.
func NewHeuristicExtractor() *HeuristicExtractor {
	compiled := make([]compiledPattern, 0, len(defaultPatterns))
	for _, p := range defaultPatterns {
		re, err := regexp.Compile(p.regex)
		if err != nil {
			continue
		}
		compiled = append(compiled, compiledPattern{pattern: p, re: re})
	}
	return &HeuristicExtractor{
		patterns:      compiled,
		minConfidence: 0.5,
		contextTurns:  2,
	}
}

// Extract scans assistant turns sentence by sentence. The surrounding
// user turn is attached as candidate context.
func (h *HeuristicExtractor) Extract(_ context.Context, messages []Message) ([]Candidate, error) {
	var candidates []Candidate
	for i, msg := range messages {
		if msg.Role != "assistant" {
			continue
		}
		for _, sentence := range splitSentences(msg.Content) {
			best, ok := h.bestMatch(sentence)
			if !ok || best.confidence < h.minConfidence {
				continue
			}
			candidates = append(candidates, Candidate{
				Type:       string(best.typ),
				Content:    sentence,
				Context:    h.surroundingContext(messages, i),
				Confidence: best.confidence,
			})
		}
	}
	return candidates, nil
}

func (h *HeuristicExtractor) bestMatch(sentence string) (pattern, bool) {
	var best pattern
	found := false
	for _, p := range h.patterns {
		if !p.re.MatchString(sentence) {
			continue
		}
		if !found || p.confidence > best.confidence {
			best = p.pattern
			found = true
		}
	}
	return best, found
}

func (h *HeuristicExtractor) surroundingContext(messages []Message, idx int) string {
	start := idx - h.contextTurns
	if start < 0 {
		start = 0
	}
	var parts []string
	for _, m := range messages[start:idx] {
		if m.Role == "user" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// splitSentences is deliberately crude: transcripts are messy and an
// imperfect split only shifts candidate boundaries, it never crashes.
func splitSentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		for _, s := range strings.FieldsFunc(line, func(r rune) bool {
			return r == '.' || r == '!' || r == '?'
		}) {
			s = strings.TrimSpace(s)
			if len(s) >= 15 {
				out = append(out, s)
			}
		}
	}
	return out
}

var _ Extractor = (*HeuristicExtractor)(nil)
