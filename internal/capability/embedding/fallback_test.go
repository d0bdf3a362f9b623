package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackIsDeterministic(t *testing.T) {
	f := NewFallback(16)
	ctx := context.Background()

	a, err := f.Embed(ctx, "hello world")
	require.NoError(t, err)
	b, err := f.Embed(ctx, "hello world")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestFallbackDiffersAcrossInputs(t *testing.T) {
	f := NewFallback(16)
	ctx := context.Background()

	a, _ := f.Embed(ctx, "hello world")
	b, _ := f.Embed(ctx, "goodbye world")

	assert.NotEqual(t, a, b)
}

func TestFallbackIsTaggedAsFallback(t *testing.T) {
	f := NewFallback(16)
	assert.True(t, f.IsFallback())
}

func TestNewResolvesUnknownSourceToFallback(t *testing.T) {
	e := New(Config{Source: "unknown", Dimensions: 8})
	assert.True(t, e.IsFallback())
}

func TestNewResolvesOpenAIWithoutKeyToFallback(t *testing.T) {
	e := New(Config{Source: "openai", Dimensions: 8})
	assert.True(t, e.IsFallback())
}

func TestBatchEmbedMatchesEmbed(t *testing.T) {
	f := NewFallback(8)
	ctx := context.Background()

	single, err := f.Embed(ctx, "abc")
	require.NoError(t, err)

	batch, err := f.BatchEmbed(ctx, []string{"abc"})
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, single, batch[0])
}
