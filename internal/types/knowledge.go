package types

import "time"

// KnowledgeItem is the long-lived factual record described in spec.md §3.
type KnowledgeItem struct {
	ID             string            `gorm:"column:id;primaryKey" json:"id"`
	UserID         string            `gorm:"column:user_id;index" json:"user_id"`
	Category       KnowledgeCategory `gorm:"column:category" json:"category"`
	Content        string            `gorm:"column:content" json:"content"`
	Tags           []string          `gorm:"column:tags;serializer:json" json:"tags,omitempty"`
	Metadata       map[string]any    `gorm:"column:metadata;serializer:json" json:"metadata,omitempty"`
	Importance     float64           `gorm:"column:importance" json:"importance"`
	Confidence     float64           `gorm:"column:confidence" json:"confidence"`
	Embedding      []float32         `gorm:"column:embedding;serializer:json" json:"-"`
	CreatedAt      time.Time         `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"column:updated_at" json:"updated_at"`
	LastAccessedAt time.Time         `gorm:"column:last_accessed_at" json:"last_accessed_at"`
}

// TableName implements gorm.Tabler.
func (KnowledgeItem) TableName() string { return "knowledge_base" }

// Clamp clamps Importance and Confidence into [0,1] per the cross-entity invariant
// in spec.md §3 ("the optimizer clamps out-of-range values before use").
func (k *KnowledgeItem) Clamp() {
	k.Importance = clamp01(k.Importance)
	k.Confidence = clamp01(k.Confidence)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
