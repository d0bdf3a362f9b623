package episodic

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/layeredmemory/engine/internal/audit"
	apperrors "github.com/layeredmemory/engine/internal/errors"
	"github.com/layeredmemory/engine/internal/logger"
	"github.com/layeredmemory/engine/internal/store"
	"github.com/layeredmemory/engine/internal/types"
)

// RunInstancize executes the instancization job once (spec.md §4.E
// "Instancization"): archives episodes past the retention threshold into
// instances, then flags instances past the compression threshold as
// compression candidates, then logs (but does not delete) orphaned episodes.
func (p *Pipeline) RunInstancize(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{}

	if p.store.Overloaded(ctx) {
		stats.Skipped = true
		return stats, nil
	}

	now := time.Now()
	retentionCutoff := now.Add(-time.Duration(p.cfg.RetentionDays) * 24 * time.Hour)
	compressCutoff := now.Add(-time.Duration(p.cfg.CompressAfterDays) * 24 * time.Hour)

	episodes, err := p.store.Scan(ctx, store.TableEpisode, nil, -1, store.Order{Field: "created_at"})
	if err != nil {
		return nil, apperrors.NewTransient("instancize: failed to list episodes").WithCause(err)
	}

	conversationExists := make(map[string]bool)

	for _, ep := range episodes {
		if err := ctx.Err(); err != nil {
			return stats, apperrors.NewCancelled("context cancelled").WithCause(err)
		}

		sourceID, _ := ep.Fields["source_id"].(string)
		if _, checked := conversationExists[sourceID]; !checked {
			_, exists, err := p.store.Get(ctx, store.TableConversation, sourceID)
			if err != nil {
				logger.Errorf(ctx, "instancize: failed to check conversation %s: %v", sourceID, err)
				exists = true // don't falsely orphan on a transient read error
			}
			conversationExists[sourceID] = exists
		}
		if !conversationExists[sourceID] {
			logger.Warnf(ctx, "instancize: episode %s references missing conversation %s (orphan, left for operator action)", ep.ID, sourceID)
			stats.OrphansLogged++
			continue
		}

		if ep.CreatedAt.After(retentionCutoff) {
			continue
		}
		if err := p.archiveEpisode(ctx, ep, now); err != nil {
			logger.Errorf(ctx, "instancize: failed to archive episode %s, will retry next run: %v", ep.ID, err)
			continue
		}
		stats.InstancesCreated++
		stats.EpisodesArchived++
	}

	instances, err := p.store.Scan(ctx, store.TableInstance, nil, -1, store.Order{Field: "created_at"})
	if err != nil {
		return stats, apperrors.NewTransient("instancize: failed to list instances").WithCause(err)
	}
	for _, inst := range instances {
		if err := ctx.Err(); err != nil {
			return stats, apperrors.NewCancelled("context cancelled").WithCause(err)
		}
		compressed, _ := inst.Fields["compressed"].(bool)
		if compressed || inst.CreatedAt.After(compressCutoff) {
			continue
		}
		if err := p.markCompressionCandidate(ctx, inst); err != nil {
			logger.Errorf(ctx, "instancize: failed to mark instance %s for compression: %v", inst.ID, err)
			continue
		}
		stats.InstancesCompressed++
	}

	return stats, nil
}

func (p *Pipeline) archiveEpisode(ctx context.Context, ep store.Row, now time.Time) error {
	instanceID := uuid.New().String()
	userID, _ := ep.Fields["user_id"].(string)

	return p.store.Tx(ctx, func(ctx context.Context, tx store.Store) error {
		fields := make(map[string]any, len(ep.Fields)+2)
		for k, v := range ep.Fields {
			fields[k] = v
		}
		fields["original_episode_id"] = ep.ID
		fields["instancized_at"] = now
		fields["compressed"] = false

		if err := tx.Put(ctx, store.TableInstance, store.Row{
			ID:         instanceID,
			Fields:     fields,
			Tags:       ep.Tags,
			Metadata:   ep.Metadata,
			Embedding:  ep.Embedding,
			Importance: ep.Importance,
			CreatedAt:  ep.CreatedAt,
		}); err != nil {
			return err
		}
		if err := tx.Delete(ctx, store.TableEpisode, ep.ID); err != nil {
			return err
		}
		return audit.RecordTx(ctx, tx, types.AuditInstancized, instanceID, userID)
	})
}

func (p *Pipeline) markCompressionCandidate(ctx context.Context, inst store.Row) error {
	userID, _ := inst.Fields["user_id"].(string)
	return p.store.Tx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.Update(ctx, store.TableInstance, inst.ID, map[string]any{"compressed": true}); err != nil {
			return err
		}
		return audit.RecordTx(ctx, tx, types.AuditCompressed, inst.ID, userID)
	})
}
