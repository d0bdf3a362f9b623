// Package episodic implements the Episodic Pipeline (spec.md §4.E):
// windowed grouping of conversation messages into episodes, and the
// episode-to-instance archival sweep, both idempotent and crash-safe.
package episodic

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/layeredmemory/engine/internal/audit"
	"github.com/layeredmemory/engine/internal/capability/embedding"
	"github.com/layeredmemory/engine/internal/config"
	apperrors "github.com/layeredmemory/engine/internal/errors"
	"github.com/layeredmemory/engine/internal/filter"
	"github.com/layeredmemory/engine/internal/logger"
	"github.com/layeredmemory/engine/internal/store"
	"github.com/layeredmemory/engine/internal/types"
)

// embeddingTokenBudget bounds how much concatenated message content feeds
// the episode embedding before falling back to a sampled subset (spec.md
// §4.E step 2: "or a sampled subset if concatenation exceeds a per-embedding
// budget").
const embeddingTokenBudget = 2000

// RunStats summarizes one pipeline run, returned for logging/testing.
type RunStats struct {
	ConversationsScanned int
	GroupsClosed         int
	EpisodesCreated      int
	MessagesEpisodized   int
	InstancesCreated     int
	EpisodesArchived     int
	InstancesCompressed  int
	OrphansLogged        int
	Skipped              bool
}

// Pipeline runs the episodization and instancization jobs.
type Pipeline struct {
	store    store.Store
	embedder embedding.Embedder
	audit    *audit.Log
	cfg      *config.EpisodicConfig
	locks    *shardedLocks
	pool     *ants.Pool
}

// New builds a Pipeline.
func New(st store.Store, embedder embedding.Embedder, cfg *config.EpisodicConfig) *Pipeline {
	return &Pipeline{
		store:    st,
		embedder: embedder,
		audit:    audit.New(st),
		cfg:      cfg,
		locks:    newShardedLocks(),
	}
}

// WithPool bounds RunEpisodize's per-conversation fan-out to pool rather than
// processing conversations one at a time. Each conversation still serializes
// under its own per-conversation lock (spec.md §5 "per-user locks are
// required only around the episodic pipeline's per-conversation
// transactions") — the pool only bounds how many distinct conversations run
// concurrently. Nil (the New default) keeps the sequential fallback.
func (p *Pipeline) WithPool(pool *ants.Pool) *Pipeline {
	p.pool = pool
	return p
}

// RunEpisodize executes the episodization job once (spec.md §4.E
// "Episodization"). It is idempotent: messages already flagged
// episodized=true are never re-grouped, so a crash between runs simply
// leaves the next run to pick up where the last one left off.
func (p *Pipeline) RunEpisodize(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{}

	if p.store.Overloaded(ctx) {
		stats.Skipped = true
		return stats, nil
	}

	conversations, err := p.store.Scan(ctx, store.TableConversation, nil, -1, store.Order{Field: "created_at"})
	if err != nil {
		return nil, apperrors.NewTransient("episodize: failed to list conversations").WithCause(err)
	}
	stats.ConversationsScanned = len(conversations)

	now := time.Now()
	window := time.Duration(p.cfg.WindowSeconds) * time.Second
	idleGap := time.Duration(p.cfg.IdleGapSeconds) * time.Second

	if p.pool == nil {
		for _, conv := range conversations {
			if err := ctx.Err(); err != nil {
				return stats, apperrors.NewCancelled("context cancelled").WithCause(err)
			}
			p.episodizeConversationLocked(ctx, conv, window, idleGap, now, stats)
		}
		return stats, nil
	}

	var (
		wg       sync.WaitGroup
		statsMu  sync.Mutex
		submitMu sync.Mutex // ants.Pool.Submit itself is safe for concurrent use, kept for symmetry with statsMu
	)
	for _, conv := range conversations {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return stats, apperrors.NewCancelled("context cancelled").WithCause(err)
		}
		conv := conv
		wg.Add(1)
		submitMu.Lock()
		err := p.pool.Submit(func() {
			defer wg.Done()
			local := &RunStats{}
			p.episodizeConversationLocked(ctx, conv, window, idleGap, now, local)
			statsMu.Lock()
			stats.GroupsClosed += local.GroupsClosed
			stats.EpisodesCreated += local.EpisodesCreated
			stats.MessagesEpisodized += local.MessagesEpisodized
			statsMu.Unlock()
		})
		submitMu.Unlock()
		if err != nil {
			wg.Done()
			logger.Errorf(ctx, "episodize: failed to submit conversation %s to pool, running inline: %v", conv.ID, err)
			p.episodizeConversationLocked(ctx, conv, window, idleGap, now, stats)
		}
	}
	wg.Wait()

	return stats, nil
}

func (p *Pipeline) episodizeConversationLocked(
	ctx context.Context, conv store.Row, window, idleGap time.Duration, now time.Time, stats *RunStats,
) {
	lock := p.locks.lockFor(conv.ID)
	lock.Lock()
	defer lock.Unlock()
	if err := p.episodizeConversation(ctx, conv, window, idleGap, now, stats); err != nil {
		logger.Errorf(ctx, "episodize: conversation %s failed, will retry next run: %v", conv.ID, err)
	}
}

func (p *Pipeline) episodizeConversation(
	ctx context.Context, conv store.Row, window, idleGap time.Duration, now time.Time, stats *RunStats,
) error {
	kind, _ := conv.Fields["kind"].(string)
	userID, _ := conv.Fields["user_id"].(string)

	predicate, err := filter.Compile(
		filter.And(
			filter.Leaf("conversation_id", filter.OpEQ, conv.ID),
			filter.Leaf("episodized", filter.OpEQ, false),
		),
		nil, now,
	)
	if err != nil {
		return err
	}

	msgs, err := p.store.Scan(ctx, store.TableMessage, predicate, -1, store.Order{Field: "created_at"})
	if err != nil {
		return apperrors.NewTransient("episodize: failed to scan messages").WithCause(err)
	}
	if len(msgs) == 0 {
		return nil
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })

	policy := policyFor(types.ConversationKind(kind), window, idleGap, p.cfg.SuperChatCap, p.cfg.DeepDiveCap)
	groups := groupMessages(msgs, policy, now)

	for _, group := range groups {
		if err := p.commitGroup(ctx, conv.ID, userID, types.ConversationKind(kind), group); err != nil {
			return err
		}
		stats.GroupsClosed++
		stats.EpisodesCreated++
		stats.MessagesEpisodized += len(group)
	}
	return nil
}

func (p *Pipeline) commitGroup(
	ctx context.Context, conversationID, userID string, kind types.ConversationKind, group []store.Row,
) error {
	snapshots := make([]types.MessageSnapshot, len(group))
	contents := make([]string, len(group))
	for i, m := range group {
		role, _ := m.Fields["role"].(string)
		content, _ := m.Fields["content"].(string)
		snapshots[i] = types.MessageSnapshot{Role: types.MessageRole(role), Content: content, CreatedAt: m.CreatedAt}
		contents[i] = content
	}

	vec, err := p.embedder.Embed(ctx, concatForEmbedding(contents))
	if err != nil {
		return apperrors.NewTransient("episodize: embedding failed").WithCause(err)
	}

	episode := types.Episode{
		ID:           uuid.New().String(),
		UserID:       userID,
		SourceKind:   kind,
		SourceID:     conversationID,
		Messages:     snapshots,
		MessageCount: len(snapshots),
		DateFrom:     group[0].CreatedAt,
		DateTo:       group[len(group)-1].CreatedAt,
		Embedding:    vec,
		CreatedAt:    time.Now(),
	}
	if err := episode.Validate(); err != nil {
		return apperrors.NewInternal("episodize: invalid episode").WithCause(err)
	}

	return p.store.Tx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.Put(ctx, store.TableEpisode, store.Row{
			ID:         episode.ID,
			Fields:     map[string]any{"user_id": episode.UserID, "source_kind": string(episode.SourceKind), "source_id": episode.SourceID, "message_count": episode.MessageCount},
			Embedding:  episode.Embedding,
			Importance: 0,
			CreatedAt:  episode.CreatedAt,
			Metadata:   map[string]any{"messages": snapshots, "date_from": episode.DateFrom, "date_to": episode.DateTo},
		}); err != nil {
			return err
		}
		now := time.Now()
		for _, m := range group {
			if err := tx.Update(ctx, store.TableMessage, m.ID, map[string]any{
				"episodized":    true,
				"episodized_at": now,
			}); err != nil {
				return err
			}
		}
		return audit.RecordTx(ctx, tx, types.AuditEpisodized, episode.ID, userID)
	})
}

// concatForEmbedding joins message contents, sampling the head and tail when
// the concatenation would exceed embeddingTokenBudget (spec.md §4.E step 2).
func concatForEmbedding(contents []string) string {
	joined := strings.Join(contents, "\n")
	tokens := strings.Fields(joined)
	if len(tokens) <= embeddingTokenBudget {
		return joined
	}
	half := embeddingTokenBudget / 2
	sample := append(append([]string{}, tokens[:half]...), tokens[len(tokens)-half:]...)
	return strings.Join(sample, " ")
}
