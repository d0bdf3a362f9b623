package types

import "time"

// ChatMessage is one turn in a conversation, per spec.md §3.
// It is immutable after write except for the Episodized flag.
type ChatMessage struct {
	ID             string      `gorm:"column:id;primaryKey" json:"id"`
	ConversationID string      `gorm:"column:conversation_id;index" json:"conversation_id"`
	Role           MessageRole `gorm:"column:role" json:"role"`
	Content        string      `gorm:"column:content" json:"content"`
	CreatedAt      time.Time   `gorm:"column:created_at;index" json:"created_at"`
	Episodized     bool        `gorm:"column:episodized;index" json:"episodized"`
	EpisodizedAt   *time.Time  `gorm:"column:episodized_at" json:"episodized_at,omitempty"`
}

// TableName implements gorm.Tabler. SuperChat and DeepDive messages share this schema;
// the table split is modeled by ConversationID referencing the owning conversation kind.
func (ChatMessage) TableName() string { return "conversation_messages" }

// Conversation is the container for messages, in one of two shapes (spec.md §3):
// SuperChat (at most one per user, monotonic timeline) or DeepDive (per-topic thread).
type Conversation struct {
	ID        string           `gorm:"column:id;primaryKey" json:"id"`
	UserID    string           `gorm:"column:user_id;index" json:"user_id"`
	Kind      ConversationKind `gorm:"column:kind" json:"kind"`
	Title     string           `gorm:"column:title" json:"title,omitempty"`
	Tenant    string           `gorm:"column:tenant" json:"tenant,omitempty"`
	CreatedAt time.Time        `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time        `gorm:"column:updated_at" json:"updated_at"`
}

// TableName implements gorm.Tabler.
func (Conversation) TableName() string { return "conversations" }
