package types

import "time"

// Persona is the per-user profile record described in spec.md §3.
type Persona struct {
	UserID      string             `gorm:"column:user_id;primaryKey" json:"user_id"`
	Name        string             `gorm:"column:name" json:"name,omitempty"`
	Preferences map[string]any     `gorm:"column:preferences;serializer:json" json:"preferences,omitempty"`
	Interests   []string           `gorm:"column:interests;serializer:json" json:"interests,omitempty"`
	Expertise   []string           `gorm:"column:expertise;serializer:json" json:"expertise,omitempty"`
	RawContent  string             `gorm:"column:raw_content" json:"raw_content,omitempty"`
	Embedding   []float32          `gorm:"column:embedding;serializer:json" json:"-"`
	CreatedAt   time.Time          `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time          `gorm:"column:updated_at" json:"updated_at"`
}

// TableName implements gorm.Tabler.
func (Persona) TableName() string { return "user_persona" }

// Clone returns a deep-enough copy safe for concurrent read after the write path
// releases its lock; preferences/interests/expertise/embedding are copied by value.
func (p *Persona) Clone() *Persona {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Preferences != nil {
		clone.Preferences = make(map[string]any, len(p.Preferences))
		for k, v := range p.Preferences {
			clone.Preferences[k] = v
		}
	}
	clone.Interests = append([]string(nil), p.Interests...)
	clone.Expertise = append([]string(nil), p.Expertise...)
	clone.Embedding = append([]float32(nil), p.Embedding...)
	return &clone
}
