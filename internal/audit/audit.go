// Package audit implements the lifecycle audit log (spec.md §6): an
// append-only record of episodized/instancized/compressed/invalidated
// events, consumed by the episodic pipeline and cache invalidation paths.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/layeredmemory/engine/internal/errors"
	"github.com/layeredmemory/engine/internal/store"
	"github.com/layeredmemory/engine/internal/types"
)

// Log appends lifecycle events to the store's audit table.
type Log struct {
	store store.Store
}

// New builds an audit Log over st.
func New(st store.Store) *Log {
	return &Log{store: st}
}

// Record appends one audit event. It is called from within the episodic
// pipeline's group-commit transactions so the audit entry commits
// atomically with the state transition it records.
func (l *Log) Record(ctx context.Context, kind types.AuditEventKind, entityID, userID string) error {
	event := types.AuditEvent{
		ID:        uuid.New().String(),
		Kind:      kind,
		EntityID:  entityID,
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	err := l.store.Put(ctx, store.TableAudit, store.Row{
		ID: event.ID,
		Fields: map[string]any{
			"kind":      string(event.Kind),
			"entity_id": event.EntityID,
			"user_id":   event.UserID,
		},
		CreatedAt: event.CreatedAt,
	})
	if err != nil {
		return apperrors.NewTransient("audit log append failed").WithCause(err)
	}
	return nil
}

// RecordTx is Record scoped to an in-flight transaction's Store handle, for
// callers already inside store.Store.Tx.
func RecordTx(ctx context.Context, tx store.Store, kind types.AuditEventKind, entityID, userID string) error {
	return New(tx).Record(ctx, kind, entityID, userID)
}

// ListByEntity returns audit events for entityID, newest first, for
// diagnostics and tests.
func (l *Log) ListByEntity(ctx context.Context, entityID string, limit int) ([]types.AuditEvent, error) {
	rows, err := l.store.Scan(ctx, store.TableAudit, nil, limit, store.Order{Field: "created_at", Descending: true})
	if err != nil {
		return nil, apperrors.NewTransient("audit log scan failed").WithCause(err)
	}
	events := make([]types.AuditEvent, 0, len(rows))
	for _, row := range rows {
		if id, ok := row.Fields["entity_id"].(string); !ok || id != entityID {
			continue
		}
		kind, _ := row.Fields["kind"].(string)
		userID, _ := row.Fields["user_id"].(string)
		events = append(events, types.AuditEvent{
			ID:        row.ID,
			Kind:      types.AuditEventKind(kind),
			EntityID:  entityID,
			UserID:    userID,
			CreatedAt: row.CreatedAt,
		})
	}
	return events, nil
}
