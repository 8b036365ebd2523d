package linkgraph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/learning"
	"github.com/fyrsmithlabs/recalld/internal/llm"
	"github.com/fyrsmithlabs/recalld/internal/store"
)

// fakeCompleter replays scripted responses.
type fakeCompleter struct {
	responses []string
	calls     int
	err       error
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, _ []llm.Message) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "[]", nil
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func (f *fakeCompleter) Available() bool { return true }
func (f *fakeCompleter) Model() string   { return "fake" }

func seedLearning(t *testing.T, st store.Store, projectID string, typ learning.Type, content string) *learning.Learning {
	t.Helper()
	l, err := learning.New(projectID, typ, content)
	require.NoError(t, err)
	require.NoError(t, st.SaveLearning(context.Background(), l))
	return l
}

func TestService_Upsert_Validation(t *testing.T) {
	svc := NewService(store.NewMemory(), nil, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		link *learning.Link
		want error
	}{
		{"self link", &learning.Link{FromID: "a", ToID: "a", Type: learning.LinkSupports, Strength: 0.5}, learning.ErrSelfLink},
		{"bad type", &learning.Link{FromID: "a", ToID: "b", Type: "friends", Strength: 0.5}, learning.ErrInvalidLinkType},
		{"strength too high", &learning.Link{FromID: "a", ToID: "b", Type: learning.LinkSupports, Strength: 1.5}, learning.ErrInvalidStrength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, svc.Upsert(ctx, "proj", tt.link), tt.want)
		})
	}
}

func TestService_ReinforceAmong(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := NewService(st, nil, nil)

	link, err := learning.NewLink("id-a", "id-b", learning.LinkSupports, 0.5, learning.LinkSourceUser)
	require.NoError(t, err)
	require.NoError(t, svc.Upsert(ctx, "proj", link))

	require.NoError(t, svc.ReinforceAmong(ctx, "proj", []string{"id-a", "id-b", "id-c"}))

	links, err := st.GetLinksAmong(ctx, "proj", []string{"id-a", "id-b"})
	require.NoError(t, err)
	require.Len(t, links, 1)
	// 0.5 + 0.05×(1−0.5) = 0.525
	assert.InDelta(t, 0.525, links[0].Strength, 1e-9)

	// Fewer than two ids is a no-op.
	require.NoError(t, svc.ReinforceAmong(ctx, "proj", []string{"id-a"}))
}

func TestService_Contradictions_FloorApplied(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := NewService(st, nil, nil)

	a := seedLearning(t, st, "proj", learning.TypeDecision, "use tabs")
	b := seedLearning(t, st, "proj", learning.TypeDecision, "use spaces")
	c := seedLearning(t, st, "proj", learning.TypeDecision, "use two spaces")

	strong, err := learning.NewLink(a.ID, b.ID, learning.LinkContradicts, 0.8, learning.LinkSourceUser)
	require.NoError(t, err)
	require.NoError(t, svc.Upsert(ctx, "proj", strong))

	weak, err := learning.NewLink(a.ID, c.ID, learning.LinkContradicts, 0.3, learning.LinkSourceInferred)
	require.NoError(t, err)
	require.NoError(t, svc.Upsert(ctx, "proj", weak))

	got, err := svc.Contradictions(ctx, "proj")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].FromID)
	assert.Equal(t, b.ID, got[0].ToID)
	assert.Equal(t, "use tabs", got[0].FromContent)
}

func TestService_InferLinks(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	a := seedLearning(t, st, "proj", learning.TypeInvariant, "never log tokens")
	b := seedLearning(t, st, "proj", learning.TypePattern, "redact secrets in middleware")

	// Pair must clear cohortMinCount.
	for i := 0; i < cohortMinCount; i++ {
		require.NoError(t, st.UpsertPair(ctx, "proj", a.ID, b.ID, true))
	}

	fake := &fakeCompleter{responses: []string{
		`Here you go:
[{"pair": 1, "link_type": "protects", "confidence": 0.9}]`,
	}}
	svc := NewService(st, fake, nil)

	created, err := svc.InferLinks(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, fake.calls)

	links, err := st.GetLinksAmong(ctx, "proj", []string{a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, learning.LinkProtects, links[0].Type)
	assert.Equal(t, learning.LinkSourceInferred, links[0].Source)
	assert.InDelta(t, initialInferredStrength, links[0].Strength, 1e-9)
}

func TestService_InferLinks_ConservativeDefaults(t *testing.T) {
	ctx := context.Background()

	seedAndPair := func(t *testing.T) (store.Store, *learning.Learning, *learning.Learning) {
		st := store.NewMemory()
		a := seedLearning(t, st, "proj", learning.TypeDecision, "alpha")
		b := seedLearning(t, st, "proj", learning.TypeDecision, "beta")
		for i := 0; i < cohortMinCount; i++ {
			require.NoError(t, st.UpsertPair(ctx, "proj", a.ID, b.ID, false))
		}
		return st, a, b
	}

	tests := []struct {
		name     string
		response string
	}{
		{"explicit none", `[{"pair": 1, "link_type": "none", "confidence": 0.99}]`},
		{"low confidence", `[{"pair": 1, "link_type": "supports", "confidence": 0.5}]`},
		{"unknown label", `[{"pair": 1, "link_type": "sibling", "confidence": 0.95}]`},
		{"out of range index", `[{"pair": 7, "link_type": "supports", "confidence": 0.95}]`},
		{"malformed json", `sure thing, boss`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, a, b := seedAndPair(t)
			svc := NewService(st, &fakeCompleter{responses: []string{tt.response}}, nil)

			created, err := svc.InferLinks(ctx, "proj")
			require.NoError(t, err) // batch failures degrade, never propagate
			assert.Zero(t, created)

			links, err := st.GetLinksAmong(ctx, "proj", []string{a.ID, b.ID})
			require.NoError(t, err)
			assert.Empty(t, links)
		})
	}
}

func TestService_InferLinks_NoCompleter(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := NewService(st, llm.Nop{}, nil)

	created, err := svc.InferLinks(ctx, "proj")
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestService_InferLinks_CompleterErrorDegrades(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	a := seedLearning(t, st, "proj", learning.TypeDecision, "alpha")
	b := seedLearning(t, st, "proj", learning.TypeDecision, "beta")
	for i := 0; i < cohortMinCount; i++ {
		require.NoError(t, st.UpsertPair(ctx, "proj", a.ID, b.ID, false))
	}

	svc := NewService(st, &fakeCompleter{err: errors.New("rate limited")}, nil)
	created, err := svc.InferLinks(ctx, "proj")
	require.NoError(t, err)
	assert.Zero(t, created)
}
