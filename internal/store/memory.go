package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/recalld/internal/learning"
)

// Memory is an in-memory Store used by tests and ephemeral runs. It
// mirrors SQLite's semantics, including canonical pair ordering, link
// triple uniqueness, invalidation-as-absence for caches, and
// compare-and-swap queue claims.
type Memory struct {
	mu        sync.Mutex
	learnings map[string]*learning.Learning
	pending   map[string]*learning.Pending
	caches    map[cacheKey]*learning.CompiledCache
	pairs     map[pairKey]*learning.Pair
	links     map[linkKey]*learning.Link
	queue     map[string]*learning.QueueItem
	settings  map[string]*learning.Settings
}

type cacheKey struct {
	project string
	tier    learning.Tier
}

type pairKey struct {
	project string
	a, b    string
}

type linkKey struct {
	project string
	from    string
	to      string
	typ     learning.LinkType
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		learnings: make(map[string]*learning.Learning),
		pending:   make(map[string]*learning.Pending),
		caches:    make(map[cacheKey]*learning.CompiledCache),
		pairs:     make(map[pairKey]*learning.Pair),
		links:     make(map[linkKey]*learning.Link),
		queue:     make(map[string]*learning.QueueItem),
		settings:  make(map[string]*learning.Settings),
	}
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func copyLearning(l *learning.Learning) *learning.Learning {
	c := *l
	c.Embedding = append([]float32(nil), l.Embedding...)
	c.Domains = append([]string(nil), l.Domains...)
	return &c
}

// --- Learnings ---

func (m *Memory) SaveLearning(_ context.Context, l *learning.Learning) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.learnings[l.ID] = copyLearning(l)
	return nil
}

func (m *Memory) UpdateLearning(_ context.Context, l *learning.Learning) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.learnings[l.ID]; !ok {
		return ErrNotFound
	}
	m.learnings[l.ID] = copyLearning(l)
	return nil
}

func (m *Memory) GetLearning(_ context.Context, id string) (*learning.Learning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.learnings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyLearning(l), nil
}

func (m *Memory) ListLearnings(_ context.Context, projectID string) ([]*learning.Learning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*learning.Learning
	for _, l := range m.learnings {
		if l.ProjectID == projectID {
			out = append(out, copyLearning(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListLearningsByType(_ context.Context, projectID string, typ learning.Type) ([]*learning.Learning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*learning.Learning
	for _, l := range m.learnings {
		if l.ProjectID == projectID && l.Type == typ {
			out = append(out, copyLearning(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UsageCount > out[j].UsageCount })
	return out, nil
}

func (m *Memory) FindByContentHash(_ context.Context, projectID string, typ learning.Type, hash string) (*learning.Learning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.learnings {
		if l.ProjectID == projectID && l.Type == typ && learning.ContentHash(l.Content) == hash {
			return copyLearning(l), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) BumpUsage(_ context.Context, ids []string, usedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if l, ok := m.learnings[id]; ok {
			l.UsageCount++
			t := usedAt
			l.LastUsedAt = &t
		}
	}
	return nil
}

func (m *Memory) DeleteLearning(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.learnings, id)
	return nil
}

// --- Pending learnings ---

func (m *Memory) SavePending(_ context.Context, p *learning.Pending) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *p
	m.pending[p.ID] = &c
	return nil
}

func (m *Memory) GetPending(_ context.Context, id string) (*learning.Pending, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	return &c, nil
}

func (m *Memory) ListPending(_ context.Context, projectID string, status learning.PendingStatus) ([]*learning.Pending, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*learning.Pending
	for _, p := range m.pending {
		if p.ProjectID == projectID && p.Status == status {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdatePendingStatus(_ context.Context, id string, status learning.PendingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	return nil
}

// --- Compiled caches ---

func (m *Memory) UpsertCompiledCache(_ context.Context, c *learning.CompiledCache) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	cp.InvalidatedAt = nil
	m.caches[cacheKey{c.ProjectID, c.Tier}] = &cp
	return nil
}

func (m *Memory) GetCompiledCache(_ context.Context, projectID string, tier learning.Tier) (*learning.CompiledCache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.caches[cacheKey{projectID, tier}]
	if !ok || c.InvalidatedAt != nil {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) InvalidateCaches(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for k, c := range m.caches {
		if k.project == projectID && c.InvalidatedAt == nil {
			t := now
			c.InvalidatedAt = &t
		}
	}
	return nil
}

// --- Co-occurrence ---

func (m *Memory) UpsertPair(_ context.Context, projectID, itemA, itemB string, positive bool) error {
	a, b, err := learning.CanonicalPair(itemA, itemB)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{projectID, a, b}
	p, ok := m.pairs[key]
	if !ok {
		p = &learning.Pair{ItemA: a, ItemB: b}
		m.pairs[key] = p
	}
	p.Count++
	if positive {
		p.PositiveCount++
	}
	p.LastSeen = time.Now()
	return nil
}

func (m *Memory) GetCohorts(_ context.Context, projectID string, minCount, limit int) ([]*learning.Pair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*learning.Pair
	for k, p := range m.pairs {
		if k.project == projectID && p.Count >= minCount {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) GetPairsForItems(_ context.Context, projectID string, ids []string) ([]*learning.Pair, error) {
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*learning.Pair
	for k, p := range m.pairs {
		if k.project == projectID && (idSet[p.ItemA] || idSet[p.ItemB]) {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

// --- Links ---

func (m *Memory) UpsertLink(_ context.Context, projectID string, l *learning.Link) error {
	if l.FromID == l.ToID {
		return learning.ErrSelfLink
	}
	if _, err := learning.ParseLinkType(string(l.Type)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := linkKey{projectID, l.FromID, l.ToID, l.Type}
	if existing, ok := m.links[key]; ok {
		existing.Strength = l.Strength
		existing.Source = l.Source
		existing.UpdatedAt = time.Now()
		return nil
	}
	c := *l
	m.links[key] = &c
	return nil
}

func (m *Memory) GetLinksFrom(_ context.Context, projectID string, fromIDs []string) ([]*learning.Link, error) {
	fromSet := make(map[string]bool, len(fromIDs))
	for _, id := range fromIDs {
		fromSet[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*learning.Link
	for k, l := range m.links {
		if k.project == projectID && fromSet[l.FromID] {
			c := *l
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *Memory) GetLinksAmong(_ context.Context, projectID string, ids []string) ([]*learning.Link, error) {
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*learning.Link
	for k, l := range m.links {
		if k.project == projectID && idSet[l.FromID] && idSet[l.ToID] {
			c := *l
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *Memory) ListContradictions(_ context.Context, projectID string, minStrength float64) ([]*learning.Contradiction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*learning.Contradiction
	for k, l := range m.links {
		if k.project != projectID || l.Type != learning.LinkContradicts || l.Strength < minStrength {
			continue
		}
		from, okF := m.learnings[l.FromID]
		to, okT := m.learnings[l.ToID]
		if !okF || !okT {
			continue
		}
		out = append(out, &learning.Contradiction{
			FromID:      l.FromID,
			ToID:        l.ToID,
			FromContent: from.Content,
			ToContent:   to.Content,
			Strength:    l.Strength,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strength > out[j].Strength })
	return out, nil
}

// --- Queue ---

func (m *Memory) EnqueueItem(_ context.Context, item *learning.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *item
	m.queue[item.ID] = &c
	return nil
}

func (m *Memory) ClaimQueueItems(_ context.Context, projectID string, limit int) ([]*learning.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []*learning.QueueItem
	for _, item := range m.queue {
		if item.Status != learning.QueueStatusPending {
			continue
		}
		if projectID != "" && item.ProjectID != projectID {
			continue
		}
		pending = append(pending, item)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	if len(pending) > limit {
		pending = pending[:limit]
	}

	var claimed []*learning.QueueItem
	for _, item := range pending {
		item.Status = learning.QueueStatusProcessing
		item.UpdatedAt = time.Now()
		c := *item
		claimed = append(claimed, &c)
	}
	return claimed, nil
}

func (m *Memory) GetQueueItem(_ context.Context, id string) (*learning.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.queue[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *item
	return &c, nil
}

func (m *Memory) CompleteQueueItem(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.queue[id]; ok {
		item.Status = learning.QueueStatusCompleted
		item.UpdatedAt = time.Now()
	}
	return nil
}

func (m *Memory) FailQueueItem(_ context.Context, id string, errMsg string, terminal bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.queue[id]
	if !ok {
		return ErrNotFound
	}
	item.Attempts++
	item.LastError = errMsg
	if terminal {
		item.Status = learning.QueueStatusFailed
	} else {
		item.Status = learning.QueueStatusPending
	}
	item.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) ReleaseQueueItem(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.queue[id]; ok && item.Status == learning.QueueStatusProcessing {
		item.Status = learning.QueueStatusPending
		item.UpdatedAt = time.Now()
	}
	return nil
}

// --- Settings ---

func (m *Memory) GetSettings(_ context.Context, projectID string) (*learning.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[projectID]
	if !ok {
		return learning.DefaultSettings(projectID), nil
	}
	c := *s
	return &c, nil
}

func (m *Memory) SaveSettings(_ context.Context, s *learning.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.settings[s.ProjectID] = &c
	return nil
}

var _ Store = (*Memory)(nil)
