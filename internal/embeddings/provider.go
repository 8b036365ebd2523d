// Package embeddings exposes the pluggable embedding provider used by
// the relevance engine and deduplicator. Provider failures never abort
// callers: a missing embedding simply means no similarity signal.
package embeddings

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by providers that cannot serve embeddings.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Provider generates embeddings for learning content and queries.
type Provider interface {
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model identifies the embedding model, for diagnostics.
	Model() string
}

// Nop is a Provider for deployments with no embedding service. Every
// call fails with ErrUnavailable, which callers degrade around.
type Nop struct{}

// Embed always fails.
func (Nop) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrUnavailable
}

// Model returns the placeholder model name.
func (Nop) Model() string { return "none" }

var _ Provider = Nop{}
