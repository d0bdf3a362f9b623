package memory

import (
	"context"
	"sort"
	"time"

	apperrors "github.com/layeredmemory/engine/internal/errors"
	"github.com/layeredmemory/engine/internal/filter"
	"github.com/layeredmemory/engine/internal/optimize"
	"github.com/layeredmemory/engine/internal/retrieve"
	"github.com/layeredmemory/engine/internal/store"
	"github.com/layeredmemory/engine/internal/types"
)

// episodicHitShare bounds how many of k go to episodic hits vs. semantic
// hits when assembling get_context, so neither starves the other on a
// small k.
const episodicHitShare = 0.4

// GetContext assembles persona, top semantic hits, recent raw messages and
// top episodic hits into one optimizer-trimmed bundle (spec.md §4.H
// "get_context").
func (f *Facade) GetContext(ctx context.Context, user, query string, k int) (*Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewCancelled("get_context: context done").WithCause(err)
	}
	if k <= 0 {
		return &Context{Stats: &types.OptimizerStats{}}, nil
	}

	persona, _ := f.cache.GetPersona(ctx, user)
	if persona == nil {
		if row, found, err := f.store.Get(ctx, store.TablePersona, user); err == nil && found {
			persona = rowToPersona(row)
			f.cache.PutPersona(ctx, user, persona)
		}
	}

	kEpisodic := int(float64(k) * episodicHitShare)
	if kEpisodic < 1 {
		kEpisodic = 1
	}
	kSemantic := k - kEpisodic
	if kSemantic < 1 {
		kSemantic = 1
	}

	semanticResult, err := f.knowledgeRetriever.Retrieve(ctx, retrieve.Query{
		UserID: user, Text: query, Filter: withUser(nil, user), K: kSemantic, Table: store.TableKnowledge,
	})
	if err != nil {
		return nil, err
	}

	episodicResult, err := f.episodicRetriever.Retrieve(ctx, retrieve.Query{
		UserID: user, Text: query, Filter: withUser(nil, user), K: kEpisodic, Table: store.TableEpisode,
	})
	if err != nil {
		return nil, err
	}

	recent, err := f.recentMessages(ctx, user)
	if err != nil {
		return nil, err
	}

	// Tag each hit's origin before merging so the post-optimizer split below
	// can tell a surviving semantic hit from a surviving episodic one; the
	// store layer doesn't populate Document.Kind on its own (spec.md §6
	// storage schema doesn't carry a generic "kind" column).
	for _, h := range semanticResult.Hits {
		h.Doc.Kind = types.EntityKnowledgeItem
	}
	for _, h := range episodicResult.Hits {
		h.Doc.Kind = types.EntityEpisode
	}
	combined := append(append([]*types.RetrieveHit{}, semanticResult.Hits...), episodicResult.Hits...)
	optCfg := optimize.ResolveProfile(f.cfg.Optimizer, types.ProfileBalanced)
	pipeline := optimize.New(optCfg, f.model)
	optimized, stats, err := pipeline.Run(ctx, query, combined)
	if err != nil {
		return nil, apperrors.NewInternal("get_context: optimizer failed").WithCause(err)
	}

	var finalSemantic, finalEpisodic []*types.RetrieveHit
	for _, h := range optimized {
		if h.Doc.Kind == types.EntityEpisode || h.Doc.Kind == types.EntityInstance {
			finalEpisodic = append(finalEpisodic, h)
			continue
		}
		finalSemantic = append(finalSemantic, h)
	}

	return &Context{
		Persona:        persona,
		SemanticHits:   finalSemantic,
		EpisodicHits:   finalEpisodic,
		RecentMessages: recent,
		Stats:          stats,
		Truncated:      semanticResult.Truncated || episodicResult.Truncated || stats.Truncated,
	}, nil
}

func (f *Facade) recentMessages(ctx context.Context, user string) ([]types.ChatMessage, error) {
	compiled, err := filter.Compile(filter.Leaf("user_id", filter.OpEQ, user), f.registry, time.Now())
	if err != nil {
		return nil, err
	}
	rows, err := f.store.Scan(ctx, store.TableMessage, compiled, recentMessageLimit, store.Order{Field: "created_at", Descending: true})
	if err != nil {
		return nil, apperrors.NewTransient("get_context: recent message scan failed").WithCause(err)
	}
	messages := make([]types.ChatMessage, len(rows))
	for i, row := range rows {
		role, _ := row.Fields["role"].(string)
		content, _ := row.Fields["content"].(string)
		conversationID, _ := row.Fields["conversation_id"].(string)
		messages[i] = types.ChatMessage{
			ID: row.ID, ConversationID: conversationID,
			Role: types.MessageRole(role), Content: content, CreatedAt: row.CreatedAt,
		}
	}
	sort.SliceStable(messages, func(i, j int) bool { return messages[i].CreatedAt.After(messages[j].CreatedAt) })
	return messages, nil
}

func rowToPersona(row store.Row) *types.Persona {
	p := &types.Persona{UserID: row.ID, Embedding: row.Embedding, CreatedAt: row.CreatedAt}
	if v, ok := row.Fields["raw_content"].(string); ok {
		p.RawContent = v
	}
	return p
}
