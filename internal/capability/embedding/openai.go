package embedding

import (
	"context"
	"time"

	apperrors "github.com/layeredmemory/engine/internal/errors"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder implements Embedder via the OpenAI embeddings API (or any
// OpenAI-compatible endpoint via BaseURL).
type OpenAIEmbedder struct {
	client    *openai.Client
	modelName string
	dim       int
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAI builds an OpenAI-backed embedder.
func NewOpenAI(apiKey, baseURL, modelName string, dim int) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if modelName == "" {
		modelName = string(openai.SmallEmbedding3)
	}
	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		modelName: modelName,
		dim:       dim,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, apperrors.NewTransient("openai embedding: empty response")
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := apperrors.Retry(ctx, 3, 250*time.Millisecond, func(ctx context.Context) error {
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: texts,
			Model: openai.EmbeddingModel(e.modelName),
		})
		if err != nil {
			return apperrors.NewTransient("openai embedding request failed").WithCause(err)
		}
		out = make([][]float32, len(resp.Data))
		for _, d := range resp.Data {
			out[d.Index] = d.Embedding
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dim }
func (e *OpenAIEmbedder) IsFallback() bool { return false }
