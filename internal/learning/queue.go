package learning

import (
	"time"

	"github.com/google/uuid"
)

// QueueStatus is the processing state of a queued conversation.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
)

// MaxQueueAttempts is the retry cap before an item is terminally failed.
const MaxQueueAttempts = 3

// QueueItem is a durable unit of extraction work: a batch of raw
// conversation turns waiting to be turned into learnings.
type QueueItem struct {
	ID             string      `json:"id"`
	ProjectID      string      `json:"project_id"`
	ConversationID string      `json:"conversation_id"`

	// Payload is the serialized conversation turns (JSON array of
	// role/content messages).
	Payload string `json:"payload"`

	Status    QueueStatus `json:"status"`
	Attempts  int         `json:"attempts"`
	LastError string      `json:"last_error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// NewQueueItem stages a conversation for background extraction.
func NewQueueItem(projectID, conversationID, payload string) (*QueueItem, error) {
	if projectID == "" {
		return nil, ErrEmptyProjectID
	}
	now := time.Now()
	return &QueueItem{
		ID:             uuid.New().String(),
		ProjectID:      projectID,
		ConversationID: conversationID,
		Payload:        payload,
		Status:         QueueStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Settings are the per-project conductor controls: a lens multiplier
// and focus domains that scale scores before threshold filtering, plus
// the critical file paths used for blast-radius warnings.
type Settings struct {
	ProjectID     string   `json:"project_id"`
	ConductorLens float64  `json:"conductor_lens"`
	FocusDomains  []string `json:"focus_domains,omitempty"`
	CriticalFiles []string `json:"critical_files,omitempty"`
}

// DefaultSettings returns neutral settings for projects with no row.
func DefaultSettings(projectID string) *Settings {
	return &Settings{ProjectID: projectID, ConductorLens: 1.0}
}
