package episodic

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layeredmemory/engine/internal/capability/embedding"
	"github.com/layeredmemory/engine/internal/config"
	"github.com/layeredmemory/engine/internal/store"
	storemem "github.com/layeredmemory/engine/internal/store/memory"
	"github.com/layeredmemory/engine/internal/types"
)

func seedConversation(t *testing.T, st *storemem.Store, kind types.ConversationKind, messageCount int, oldest time.Duration) string {
	t.Helper()
	ctx := context.Background()
	convID := uuid.New().String()
	require.NoError(t, st.Put(ctx, store.TableConversation, store.Row{
		ID:        convID,
		Fields:    map[string]any{"user_id": "u1", "kind": string(kind)},
		CreatedAt: time.Now().Add(-oldest),
	}))
	base := time.Now().Add(-oldest)
	for i := 0; i < messageCount; i++ {
		require.NoError(t, st.Put(ctx, store.TableMessage, store.Row{
			ID: uuid.New().String(),
			Fields: map[string]any{
				"conversation_id": convID,
				"role":            "user",
				"content":         "hello there",
				"episodized":      false,
			},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	return convID
}

func newPipeline() (*Pipeline, *storemem.Store) {
	st := storemem.New()
	cfg := config.Default().Episodic
	return New(st, embedding.NewFallback(16), cfg), st
}

func TestRunEpisodizeClosesOldConversationIntoEpisode(t *testing.T) {
	p, st := newPipeline()
	convID := seedConversation(t, st, types.SourceSuperChat, 3, 24*time.Hour)

	stats, err := p.RunEpisodize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EpisodesCreated)
	assert.Equal(t, 3, stats.MessagesEpisodized)

	episodes, err := st.Scan(context.Background(), store.TableEpisode, nil, -1, store.Order{})
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, convID, episodes[0].Fields["source_id"])
}

func TestRunEpisodizeDoesNotReEpisodizeAlreadyFlaggedMessages(t *testing.T) {
	p, st := newPipeline()
	seedConversation(t, st, types.SourceSuperChat, 2, 24*time.Hour)

	first, err := p.RunEpisodize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.EpisodesCreated)

	second, err := p.RunEpisodize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.EpisodesCreated)
}

func TestRunEpisodizeLeavesRecentOpenConversationUntouched(t *testing.T) {
	p, st := newPipeline()
	seedConversation(t, st, types.SourceSuperChat, 2, 0)

	stats, err := p.RunEpisodize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.EpisodesCreated)
}

func TestRunInstancizeArchivesOldEpisodes(t *testing.T) {
	p, st := newPipeline()
	convID := seedConversation(t, st, types.SourceSuperChat, 2, 40*24*time.Hour)

	_, err := p.RunEpisodize(context.Background())
	require.NoError(t, err)

	episodes, err := st.Scan(context.Background(), store.TableEpisode, nil, -1, store.Order{})
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	// Backdate the episode past the retention window directly since
	// episodize always stamps CreatedAt at commit time.
	episodes[0].CreatedAt = time.Now().Add(-40 * 24 * time.Hour)
	require.NoError(t, st.Put(context.Background(), store.TableEpisode, episodes[0]))

	stats, err := p.RunInstancize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EpisodesArchived)
	assert.Equal(t, 1, stats.InstancesCreated)

	remaining, err := st.Scan(context.Background(), store.TableEpisode, nil, -1, store.Order{})
	require.NoError(t, err)
	assert.Empty(t, remaining)

	instances, err := st.Scan(context.Background(), store.TableInstance, nil, -1, store.Order{})
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, convID, instances[0].Fields["source_id"])
}

func TestRunInstancizeLogsOrphanEpisodeWithoutDeleting(t *testing.T) {
	p, st := newPipeline()
	require.NoError(t, st.Put(context.Background(), store.TableEpisode, store.Row{
		ID:        uuid.New().String(),
		Fields:    map[string]any{"user_id": "u1", "source_id": "missing-conversation"},
		CreatedAt: time.Now().Add(-40 * 24 * time.Hour),
	}))

	stats, err := p.RunInstancize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.OrphansLogged)

	remaining, err := st.Scan(context.Background(), store.TableEpisode, nil, -1, store.Order{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
