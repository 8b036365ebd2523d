package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/learning"
	"github.com/fyrsmithlabs/recalld/internal/llm"
)

type fakeCompleter struct {
	response  string
	err       error
	available bool
}

func (f *fakeCompleter) Complete(context.Context, string, []llm.Message) (string, error) {
	return f.response, f.err
}
func (f *fakeCompleter) Available() bool { return f.available }
func (f *fakeCompleter) Model() string   { return "fake" }

func TestHeuristicExtractor(t *testing.T) {
	h := NewHeuristicExtractor()
	ctx := context.Background()

	messages := []Message{
		{Role: "user", Content: "how should we store sessions?"},
		{Role: "assistant", Content: "We decided to go with redis for session storage. " +
			"Never store session tokens in localStorage because XSS can read them. " +
			"ok."},
		{Role: "user", Content: "never say never"}, // user turns are ignored
	}

	candidates, err := h.Extract(ctx, messages)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	byType := map[string]Candidate{}
	for _, c := range candidates {
		byType[c.Type] = c
	}

	dec, ok := byType[string(learning.TypeDecision)]
	require.True(t, ok)
	assert.Contains(t, dec.Content, "redis")
	assert.Contains(t, dec.Context, "store sessions")

	inv, ok := byType[string(learning.TypeInvariant)]
	require.True(t, ok)
	assert.Contains(t, inv.Content, "localStorage")
	assert.GreaterOrEqual(t, inv.Confidence, 0.5)
}

func TestHeuristicExtractor_NoSignalNoCandidates(t *testing.T) {
	h := NewHeuristicExtractor()
	candidates, err := h.Extract(context.Background(), []Message{
		{Role: "assistant", Content: "Sure, here is the file you asked about."},
	})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestLLMExtractor_ParsesResponse(t *testing.T) {
	fake := &fakeCompleter{
		available: true,
		response: `Found these:
[{"type": "invariant", "content": "never log tokens", "context": "security review", "domains": ["auth"], "confidence": 0.9},
 {"type": "gossip", "content": "ignored unknown type", "confidence": 0.9},
 {"type": "pattern", "content": "", "confidence": 0.9}]`,
	}
	e := NewLLMExtractor(fake, nil)

	candidates, err := e.Extract(context.Background(), []Message{
		{Role: "assistant", Content: "irrelevant"},
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "never log tokens", candidates[0].Content)
	assert.Equal(t, []string{"auth"}, candidates[0].Domains)
}

func TestLLMExtractor_FallsBackOnFailure(t *testing.T) {
	messages := []Message{
		{Role: "assistant", Content: "We decided to go with sqlite for the store layer."},
	}

	for name, fake := range map[string]*fakeCompleter{
		"call error":   {available: true, err: errors.New("timeout")},
		"garbage":      {available: true, response: "no json here"},
		"unavailable":  {available: false},
	} {
		t.Run(name, func(t *testing.T) {
			e := NewLLMExtractor(fake, nil)
			candidates, err := e.Extract(context.Background(), messages)
			require.NoError(t, err)
			require.Len(t, candidates, 1)
			assert.Equal(t, string(learning.TypeDecision), candidates[0].Type)
		})
	}
}

func TestNewExtractor_Factory(t *testing.T) {
	assert.IsType(t, &HeuristicExtractor{}, NewExtractor(nil, nil))
	assert.IsType(t, &HeuristicExtractor{}, NewExtractor(llm.Nop{}, nil))
	assert.IsType(t, &LLMExtractor{}, NewExtractor(&fakeCompleter{available: true}, nil))
}
