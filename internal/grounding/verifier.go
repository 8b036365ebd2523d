// Package grounding verifies that candidate learning content is
// traceable to actual conversation text before it is trusted. This is
// the anti-poisoning gate: a "learning" that was hallucinated or
// injected, rather than actually said, fails verification and is staged
// instead of stored.
package grounding

import (
	"strings"
)

// minOverlap is the fraction of a candidate's keywords a single message
// must contain before the candidate is considered grounded.
const minOverlap = 0.5

// maxHistoryMessages caps how far back the verifier searches.
const maxHistoryMessages = 50

// Message is one turn of recent conversation history.
type Message struct {
	ID      string
	Role    string
	Content string
}

// Provenance records where a verified learning came from, for audit.
type Provenance struct {
	ConversationID       string   `json:"conversation_id"`
	SupportingMessageIDs []string `json:"supporting_message_ids"`
}

// Result is the outcome of a verification check.
type Result struct {
	Verified   bool        `json:"verified"`
	Reason     string      `json:"reason"`
	Provenance *Provenance `json:"provenance,omitempty"`
}

// Verifier checks learning content against recent history.
type Verifier struct{}

// NewVerifier creates a grounding verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// VerifyReference extracts significant keywords from content and
// searches recent history for a message containing more than half of
// them. No history or no extractable keywords yields an unverified
// result with a reason, never an error.
func (v *Verifier) VerifyReference(content, conversationID string, history []Message) Result {
	if len(history) == 0 {
		return Result{Reason: "no conversation history to verify against"}
	}

	keywords := extractKeywords(content)
	if len(keywords) == 0 {
		return Result{Reason: "no significant keywords to verify"}
	}

	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}

	var supporting []string
	for _, msg := range history {
		overlap := keywordOverlap(keywords, msg.Content)
		if overlap > minOverlap {
			supporting = append(supporting, msg.ID)
		}
	}

	if len(supporting) == 0 {
		return Result{Reason: "content not traceable to recent conversation"}
	}

	return Result{
		Verified: true,
		Reason:   "keyword overlap with conversation history",
		Provenance: &Provenance{
			ConversationID:       conversationID,
			SupportingMessageIDs: supporting,
		},
	}
}

// extractKeywords tokenizes content into lowercase terms, dropping
// stopwords and short tokens.
func extractKeywords(content string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !isAlphanumeric(r)
	})

	seen := make(map[string]bool, len(tokens))
	keywords := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len(tok) <= 2 || stopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		keywords = append(keywords, tok)
	}
	return keywords
}

// keywordOverlap returns the fraction of keywords present in text.
func keywordOverlap(keywords []string, text string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isAlphanumeric(r)
	})
	present := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		present[tok] = true
	}

	matches := 0
	for _, kw := range keywords {
		if present[kw] {
			matches++
		}
	}
	return float64(matches) / float64(len(keywords))
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_'
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "was": true,
	"use": true, "has": true, "had": true, "this": true, "that": true,
	"with": true, "from": true, "they": true, "will": true, "would": true,
	"should": true, "could": true, "when": true, "where": true,
	"which": true, "their": true, "there": true, "then": true,
	"than": true, "always": true, "never": true, "must": true,
	"into": true, "your": true, "have": true, "been": true,
	"because": true, "about": true, "after": true, "before": true,
}
