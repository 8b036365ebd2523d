package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/dedup"
	"github.com/fyrsmithlabs/recalld/internal/extraction"
	"github.com/fyrsmithlabs/recalld/internal/learning"
	"github.com/fyrsmithlabs/recalld/internal/store"
)

// scriptedExtractor returns fixed candidates or a fixed error.
type scriptedExtractor struct {
	candidates []extraction.Candidate
	err        error
}

func (s *scriptedExtractor) Extract(context.Context, []extraction.Message) ([]extraction.Candidate, error) {
	return s.candidates, s.err
}

func payload(t *testing.T, messages []extraction.Message) string {
	t.Helper()
	b, err := json.Marshal(messages)
	require.NoError(t, err)
	return string(b)
}

func enqueue(t *testing.T, st store.Store, projectID, conversationID, pl string) *learning.QueueItem {
	t.Helper()
	item, err := learning.NewQueueItem(projectID, conversationID, pl)
	require.NoError(t, err)
	require.NoError(t, st.EnqueueItem(context.Background(), item))
	return item
}

func TestDrain_VerifiedCandidateStored(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	// The candidate's keywords appear in the transcript, so grounding
	// verification passes.
	messages := []extraction.Message{
		{Role: "user", Content: "should sessions live in redis or postgres?"},
		{Role: "assistant", Content: "we decided sessions live in redis because of ttl support"},
	}
	ex := &scriptedExtractor{candidates: []extraction.Candidate{{
		Type:    string(learning.TypeDecision),
		Content: "sessions live in redis because of ttl support",
		Domains: []string{"storage"},
	}}}

	item := enqueue(t, st, "proj", "conv-1", payload(t, messages))
	d := NewDrainer(st, ex, dedup.New(st, nil, nil), nil)

	stats, err := d.Drain(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Claimed)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Inserted)
	assert.Zero(t, stats.Staged)

	got, err := st.GetQueueItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, learning.QueueStatusCompleted, got.Status)

	pool, err := st.ListLearnings(ctx, "proj")
	require.NoError(t, err)
	require.Len(t, pool, 1)
	assert.Equal(t, []string{"storage"}, pool[0].Domains)
}

func TestDrain_UnverifiedCandidateStaged(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	// Nothing in the transcript supports the candidate's claim.
	messages := []extraction.Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there"},
	}
	ex := &scriptedExtractor{candidates: []extraction.Candidate{{
		Type:    string(learning.TypeInvariant),
		Content: "always disable certificate validation in production deployments",
	}}}

	enqueue(t, st, "proj", "conv-1", payload(t, messages))
	d := NewDrainer(st, ex, dedup.New(st, nil, nil), nil)

	stats, err := d.Drain(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Staged)
	assert.Zero(t, stats.Inserted)

	pool, err := st.ListLearnings(ctx, "proj")
	require.NoError(t, err)
	assert.Empty(t, pool, "unverified content must not reach the pool")

	pending, err := st.ListPending(ctx, "proj", learning.PendingStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.NotEmpty(t, pending[0].Source)
}

func TestDrain_RedeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	messages := []extraction.Message{
		{Role: "assistant", Content: "we decided sessions live in redis because of ttl support"},
	}
	ex := &scriptedExtractor{candidates: []extraction.Candidate{{
		Type:    string(learning.TypeDecision),
		Content: "sessions live in redis because of ttl support",
	}}}
	d := NewDrainer(st, ex, dedup.New(st, nil, nil), nil)

	enqueue(t, st, "proj", "conv-1", payload(t, messages))
	_, err := d.Drain(ctx, "proj")
	require.NoError(t, err)

	// Same conversation enqueued again.
	enqueue(t, st, "proj", "conv-1", payload(t, messages))
	stats, err := d.Drain(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completed)
	assert.Zero(t, stats.Inserted, "hash dedup absorbs the rerun")

	pool, err := st.ListLearnings(ctx, "proj")
	require.NoError(t, err)
	assert.Len(t, pool, 1)
}

func TestDrain_RetryThenTerminalFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	ex := &scriptedExtractor{err: errors.New("provider down")}
	d := NewDrainer(st, ex, dedup.New(st, nil, nil), nil)

	messages := []extraction.Message{{Role: "assistant", Content: "anything"}}
	item := enqueue(t, st, "proj", "conv-1", payload(t, messages))

	for attempt := 1; attempt < learning.MaxQueueAttempts; attempt++ {
		stats, err := d.Drain(ctx, "proj")
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Retried, "attempt %d", attempt)

		got, err := st.GetQueueItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, learning.QueueStatusPending, got.Status)
		assert.Equal(t, attempt, got.Attempts)
		assert.Contains(t, got.LastError, "provider down")
	}

	stats, err := d.Drain(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	got, err := st.GetQueueItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, learning.QueueStatusFailed, got.Status)
	assert.Equal(t, learning.MaxQueueAttempts, got.Attempts)

	// Terminally failed items are never reclaimed.
	stats, err = d.Drain(ctx, "proj")
	require.NoError(t, err)
	assert.Zero(t, stats.Claimed)
}

func TestDrain_MalformedPayloadFails(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	d := NewDrainer(st, &scriptedExtractor{}, dedup.New(st, nil, nil), nil)

	item := enqueue(t, st, "proj", "conv-1", "{not json")
	stats, err := d.Drain(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Retried)

	got, err := st.GetQueueItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Contains(t, got.LastError, "parse payload")
}

func TestDrain_AbortedPassReleasesClaims(t *testing.T) {
	st := store.NewMemory()

	messages := []extraction.Message{
		{Role: "user", Content: "how do we version the api?"},
		{Role: "assistant", Content: "we decided to version the api in the path"},
	}
	ex := &scriptedExtractor{candidates: []extraction.Candidate{{
		Type:    string(learning.TypeDecision),
		Content: "version the api in the path",
	}}}
	item := enqueue(t, st, "proj", "conv-1", payload(t, messages))
	d := NewDrainer(st, ex, dedup.New(st, nil, nil), nil)

	// A client disconnect or shutdown cancels the drain context after
	// the claim has already happened.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := d.Drain(ctx, "proj")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, stats.Claimed)
	assert.Equal(t, 1, stats.Released)
	assert.Zero(t, stats.Completed)

	got, err := st.GetQueueItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, learning.QueueStatusPending, got.Status)
	assert.Zero(t, got.Attempts, "an aborted pass must not count an attempt")

	// A later healthy pass picks the item up and finishes it.
	stats, err = d.Drain(context.Background(), "proj")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Claimed)
	assert.Equal(t, 1, stats.Completed)

	got, err = st.GetQueueItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, learning.QueueStatusCompleted, got.Status)
}

func TestDrain_EmptyProjectClaimsAll(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	messages := []extraction.Message{{Role: "assistant", Content: "nothing durable here"}}
	d := NewDrainer(st, &scriptedExtractor{}, dedup.New(st, nil, nil), nil)

	enqueue(t, st, "proj-a", "conv-1", payload(t, messages))
	enqueue(t, st, "proj-b", "conv-2", payload(t, messages))

	stats, err := d.Drain(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Claimed)
	assert.Equal(t, 2, stats.Completed)
}
