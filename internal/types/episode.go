package types

import "time"

// Episode is a consolidated run of messages from one conversation (spec.md §3).
// Invariants: MessageCount == len(Messages); DateFrom <= DateTo; every referenced
// ChatMessage has Episodized = true and EpisodizedAt set to the commit time.
type Episode struct {
	ID           string           `gorm:"column:id;primaryKey" json:"id"`
	UserID       string           `gorm:"column:user_id;index" json:"user_id"`
	SourceKind   ConversationKind `gorm:"column:source_kind" json:"source_kind"`
	SourceID     string           `gorm:"column:source_id;index" json:"source_id"`
	Messages     []MessageSnapshot `gorm:"column:messages;serializer:json" json:"messages"`
	MessageCount int              `gorm:"column:message_count" json:"message_count"`
	DateFrom     time.Time        `gorm:"column:date_from" json:"date_from"`
	DateTo       time.Time        `gorm:"column:date_to" json:"date_to"`
	Embedding    []float32        `gorm:"column:embedding;serializer:json" json:"-"`
	Metadata     map[string]any   `gorm:"column:metadata;serializer:json" json:"metadata,omitempty"`
	Tags         []string         `gorm:"column:tags;serializer:json" json:"tags,omitempty"`
	Importance   float64          `gorm:"column:importance" json:"importance"`
	CreatedAt    time.Time        `gorm:"column:created_at;index" json:"created_at"`
}

// TableName implements gorm.Tabler.
func (Episode) TableName() string { return "episodes" }

// MessageSnapshot is the frozen copy of a ChatMessage carried inside an Episode or
// Instance. Episodes never hold back-pointers into the message table (design note):
// only the flag+timestamp live on the message row, the content lives here.
type MessageSnapshot struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// Validate checks the Episode invariants from spec.md §3.
func (e *Episode) Validate() error {
	if e.MessageCount != len(e.Messages) {
		return errInvariant("episode message_count does not match len(messages)")
	}
	if e.DateFrom.After(e.DateTo) {
		return errInvariant("episode date_from is after date_to")
	}
	return nil
}

// Instance is an archived Episode past the retention threshold (spec.md §3).
// An Episode and its Instance never coexist.
type Instance struct {
	ID                string            `gorm:"column:id;primaryKey" json:"id"`
	OriginalEpisodeID string            `gorm:"column:original_episode_id;index" json:"original_episode_id"`
	UserID            string            `gorm:"column:user_id;index" json:"user_id"`
	SourceKind        ConversationKind  `gorm:"column:source_kind" json:"source_kind"`
	SourceID          string            `gorm:"column:source_id" json:"source_id"`
	Messages          []MessageSnapshot `gorm:"column:messages;serializer:json" json:"messages"`
	MessageCount      int               `gorm:"column:message_count" json:"message_count"`
	DateFrom          time.Time         `gorm:"column:date_from" json:"date_from"`
	DateTo            time.Time         `gorm:"column:date_to" json:"date_to"`
	Embedding         []float32         `gorm:"column:embedding;serializer:json" json:"-"`
	Metadata          map[string]any    `gorm:"column:metadata;serializer:json" json:"metadata,omitempty"`
	Tags              []string          `gorm:"column:tags;serializer:json" json:"tags,omitempty"`
	Importance        float64           `gorm:"column:importance" json:"importance"`
	CreatedAt         time.Time         `gorm:"column:created_at" json:"created_at"`
	InstancizedAt     time.Time         `gorm:"column:instancized_at" json:"instancized_at"`
	Compressed        bool              `gorm:"column:compressed" json:"compressed"`
	CompressedBlob     []byte           `gorm:"column:compressed_blob" json:"compressed_blob,omitempty"`
}

// TableName implements gorm.Tabler.
func (Instance) TableName() string { return "instances" }

// FromEpisode builds an Instance snapshot from an Episode at archival time.
func (i *Instance) FromEpisode(e *Episode, now time.Time) *Instance {
	return &Instance{
		ID:                i.ID,
		OriginalEpisodeID: e.ID,
		UserID:            e.UserID,
		SourceKind:        e.SourceKind,
		SourceID:          e.SourceID,
		Messages:          e.Messages,
		MessageCount:      e.MessageCount,
		DateFrom:          e.DateFrom,
		DateTo:            e.DateTo,
		Embedding:         e.Embedding,
		Metadata:          e.Metadata,
		Tags:              e.Tags,
		Importance:        e.Importance,
		CreatedAt:         e.CreatedAt,
		InstancizedAt:     now,
	}
}

type invariantError string

func (e invariantError) Error() string { return string(e) }

func errInvariant(msg string) error { return invariantError(msg) }
