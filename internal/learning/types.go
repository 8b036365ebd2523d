package learning

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors for learning operations.
var (
	ErrNotFound        = errors.New("learning not found")
	ErrEmptyContent    = errors.New("learning content cannot be empty")
	ErrEmptyProjectID  = errors.New("project ID cannot be empty")
	ErrInvalidType     = errors.New("invalid learning type")
	ErrInvalidLinkType = errors.New("invalid link type")
	ErrInvalidStrength = errors.New("link strength must be between 0.0 and 1.0")
	ErrSelfLink        = errors.New("a learning cannot link to itself")
	ErrSelfPair        = errors.New("a learning cannot co-occur with itself")
	ErrInvalidStatus   = errors.New("invalid status")
)

// Type categorizes a learning item. The type drives decay half-life,
// scoring boost, and the similarity floor for inclusion.
type Type string

const (
	// TypeInvariant is a rule that must never be violated. Invariants
	// decay slowest, carry the largest scoring boost, and are admitted
	// at the lowest similarity floor.
	TypeInvariant Type = "invariant"

	// TypeDecision records a choice the team made and should stick to.
	TypeDecision Type = "decision"

	// TypePattern is a recurring approach that worked.
	TypePattern Type = "pattern"

	// TypeAntipattern is an approach that failed and should be avoided.
	TypeAntipattern Type = "antipattern"

	// TypeGoldenPath is a known-good end-to-end recipe.
	TypeGoldenPath Type = "golden_path"
)

// Types lists all valid learning types.
func Types() []Type {
	return []Type{TypeInvariant, TypeDecision, TypePattern, TypeAntipattern, TypeGoldenPath}
}

// ParseType validates a raw string from the data layer.
func ParseType(s string) (Type, error) {
	t := Type(s)
	switch t {
	case TypeInvariant, TypeDecision, TypePattern, TypeAntipattern, TypeGoldenPath:
		return t, nil
	}
	return "", ErrInvalidType
}

// Learning is a single item of project knowledge eligible for injection.
type Learning struct {
	// ID is the unique learning identifier (UUID).
	ID string `json:"id"`

	// ProjectID identifies which project this learning belongs to.
	ProjectID string `json:"project_id"`

	// Type categorizes the learning (pattern, decision, invariant, ...).
	Type Type `json:"type"`

	// Content is the learning text injected into prompts.
	Content string `json:"content"`

	// Context is optional supporting detail (where it came from, caveats).
	Context string `json:"context,omitempty"`

	// CheckPattern is an optional user-supplied regex for post-hoc
	// response validation. Validated against a ReDoS heuristic before use.
	CheckPattern string `json:"check_pattern,omitempty"`

	// Embedding is the content embedding, or nil when generation failed
	// or has not run yet. A missing embedding means "no similarity
	// signal", never an error.
	Embedding []float32 `json:"embedding,omitempty"`

	// Domains are inferred tags such as "security" or "database".
	Domains []string `json:"domains,omitempty"`

	// UsageCount tracks how many times this learning has been injected.
	UsageCount int `json:"usage_count"`

	// LastUsedAt is when the learning was last injected, if ever.
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`

	// CreatedAt is when the learning was stored.
	CreatedAt time.Time `json:"created_at"`

	// PinnedAt, when set, forces inclusion regardless of score.
	PinnedAt *time.Time `json:"pinned_at,omitempty"`

	// MutedAt, when set, excludes the learning regardless of score.
	MutedAt *time.Time `json:"muted_at,omitempty"`
}

// New creates a learning with a generated UUID and creation timestamp.
func New(projectID string, typ Type, content string) (*Learning, error) {
	if projectID == "" {
		return nil, ErrEmptyProjectID
	}
	if content == "" {
		return nil, ErrEmptyContent
	}
	if _, err := ParseType(string(typ)); err != nil {
		return nil, err
	}
	return &Learning{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Type:      typ,
		Content:   content,
		CreatedAt: time.Now(),
	}, nil
}

// Pinned reports whether the user pinned this learning.
func (l *Learning) Pinned() bool { return l.PinnedAt != nil }

// Muted reports whether the user muted this learning.
func (l *Learning) Muted() bool { return l.MutedAt != nil }

// Age returns days since creation, never negative.
func (l *Learning) Age(now time.Time) float64 {
	d := now.Sub(l.CreatedAt).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}

// LinkType is the logical relationship between two learnings.
type LinkType string

const (
	LinkSupports    LinkType = "supports"
	LinkContradicts LinkType = "contradicts"
	LinkSupersedes  LinkType = "supersedes"
	LinkProtects    LinkType = "protects"
)

// ParseLinkType validates a raw string from the data layer.
func ParseLinkType(s string) (LinkType, error) {
	t := LinkType(s)
	switch t {
	case LinkSupports, LinkContradicts, LinkSupersedes, LinkProtects:
		return t, nil
	}
	return "", ErrInvalidLinkType
}

// LinkSource records how a link came to exist.
type LinkSource string

const (
	LinkSourceInferred     LinkSource = "inferred"
	LinkSourceCooccurrence LinkSource = "co-occurrence"
	LinkSourceUser         LinkSource = "user"
)

// Link is a directed, typed, strength-weighted edge between learnings.
// A (FromID, ToID, LinkType) triple is unique; re-creating it updates
// strength rather than duplicating the edge.
type Link struct {
	FromID    string     `json:"from_id"`
	ToID      string     `json:"to_id"`
	Type      LinkType   `json:"link_type"`
	Strength  float64    `json:"strength"`
	Source    LinkSource `json:"source"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewLink validates and builds a link.
func NewLink(fromID, toID string, typ LinkType, strength float64, source LinkSource) (*Link, error) {
	if fromID == toID {
		return nil, ErrSelfLink
	}
	if _, err := ParseLinkType(string(typ)); err != nil {
		return nil, err
	}
	if strength < 0 || strength > 1 {
		return nil, ErrInvalidStrength
	}
	now := time.Now()
	return &Link{
		FromID:    fromID,
		ToID:      toID,
		Type:      typ,
		Strength:  strength,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Reinforce nudges strength asymptotically toward 1. The step shrinks
// as strength grows, so strength never reaches 1.
func (l *Link) Reinforce() {
	l.Strength = l.Strength + 0.05*(1-l.Strength)
	l.UpdatedAt = time.Now()
}

// Pair is a canonically ordered co-occurrence record: ItemA < ItemB,
// never a self-pair.
type Pair struct {
	ItemA         string    `json:"item_a"`
	ItemB         string    `json:"item_b"`
	Count         int       `json:"count"`
	PositiveCount int       `json:"positive_count"`
	LastSeen      time.Time `json:"last_seen"`
}

// CanonicalPair orders two IDs so the smaller comes first.
// Returns ErrSelfPair when both IDs are equal.
func CanonicalPair(a, b string) (string, string, error) {
	if a == b {
		return "", "", ErrSelfPair
	}
	if a > b {
		a, b = b, a
	}
	return a, b, nil
}

// PositiveRatio is the fraction of co-occurrences judged positive.
func (p *Pair) PositiveRatio() float64 {
	if p.Count <= 0 {
		return 0
	}
	return float64(p.PositiveCount) / float64(p.Count)
}

// Contradiction joins a strong "contradicts" link back to both
// learnings' content. Surfaced as a user-facing warning, never resolved
// automatically.
type Contradiction struct {
	FromID      string  `json:"from_id"`
	ToID        string  `json:"to_id"`
	FromContent string  `json:"from_content"`
	ToContent   string  `json:"to_content"`
	Strength    float64 `json:"strength"`
}

// PendingStatus is the review state of a staged learning.
type PendingStatus string

const (
	PendingStatusPending  PendingStatus = "pending"
	PendingStatusApproved PendingStatus = "approved"
	PendingStatusRejected PendingStatus = "rejected"
)

// ParsePendingStatus validates a raw string from the data layer.
func ParsePendingStatus(s string) (PendingStatus, error) {
	st := PendingStatus(s)
	switch st {
	case PendingStatusPending, PendingStatusApproved, PendingStatusRejected:
		return st, nil
	}
	return "", ErrInvalidStatus
}

// Pending is a staged learning whose provenance is unverified, such as
// a bulk import. Approval routes it through the deduplicator.
type Pending struct {
	Learning
	Status PendingStatus `json:"status"`
	Source string        `json:"source"`
}

// NewPending stages a learning for review. Source records why it was
// staged rather than stored directly.
func NewPending(projectID string, typ Type, content, source string) (*Pending, error) {
	l, err := New(projectID, typ, content)
	if err != nil {
		return nil, err
	}
	return &Pending{
		Learning: *l,
		Status:   PendingStatusPending,
		Source:   source,
	}, nil
}
