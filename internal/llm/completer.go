// Package llm exposes the completion provider used for cache
// compression, cluster summarization, link-type classification and
// learning extraction. Every caller has a deterministic fallback: a
// failed or absent completer degrades the feature, never the request.
package llm

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by completers that cannot serve requests.
var ErrUnavailable = errors.New("llm provider unavailable")

// Message is one turn handed to the completion provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer generates text from a system prompt plus messages.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, messages []Message) (string, error)

	// Available reports whether calls can be expected to succeed. Callers
	// use this to skip straight to their fallback.
	Available() bool

	// Model identifies the completion model, recorded in compiled caches.
	Model() string
}

// Nop is a Completer for deployments with no LLM configured.
type Nop struct{}

// Complete always fails.
func (Nop) Complete(context.Context, string, []Message) (string, error) {
	return "", ErrUnavailable
}

// Available returns false.
func (Nop) Available() bool { return false }

// Model returns the placeholder model name.
func (Nop) Model() string { return "none" }

var _ Completer = Nop{}
