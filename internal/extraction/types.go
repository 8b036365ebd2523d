// Package extraction mines conversation transcripts for learning
// candidates. Two extractors share one interface: a pattern-matching
// heuristic that always works, and an LLM extractor that understands
// more but degrades to the heuristic on any failure.
package extraction

import "context"

// Message is one conversation turn handed to an extractor.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Candidate is a potential learning mined from a conversation. It has
// not yet passed grounding verification or deduplication.
type Candidate struct {
	Type       string   `json:"type"`
	Content    string   `json:"content"`
	Context    string   `json:"context"`
	Domains    []string `json:"domains"`
	Confidence float64  `json:"confidence"`
}

// Extractor mines candidates from a transcript.
type Extractor interface {
	Extract(ctx context.Context, messages []Message) ([]Candidate, error)
}
