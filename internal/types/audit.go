package types

import "time"

// AuditEventKind enumerates the lifecycle audit log event kinds (spec.md §6).
type AuditEventKind string

const (
	AuditEpisodized  AuditEventKind = "episodized"
	AuditInstancized AuditEventKind = "instancized"
	AuditCompressed  AuditEventKind = "compressed"
	AuditInvalidated AuditEventKind = "invalidated"
)

// AuditEvent is one append-only lifecycle audit log row.
type AuditEvent struct {
	ID        string         `gorm:"column:id;primaryKey" json:"id"`
	Kind      AuditEventKind `gorm:"column:kind;index" json:"kind"`
	EntityID  string         `gorm:"column:entity_id;index" json:"entity_id"`
	UserID    string         `gorm:"column:user_id;index" json:"user_id"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
}

// TableName implements gorm.Tabler.
func (AuditEvent) TableName() string { return "lifecycle_audit_log" }
