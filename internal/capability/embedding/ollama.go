package embedding

import (
	"context"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/layeredmemory/engine/internal/errors"
	ollamaapi "github.com/ollama/ollama/api"
)

// OllamaEmbedder implements Embedder against a local/self-hosted Ollama
// instance.
type OllamaEmbedder struct {
	client    *ollamaapi.Client
	modelName string
	dim       int
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllama builds an Ollama-backed embedder against baseURL.
func NewOllama(baseURL, modelName string, dim int) *OllamaEmbedder {
	if modelName == "" {
		modelName = "nomic-embed-text"
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsed, err := url.Parse(baseURL)
	var client *ollamaapi.Client
	if err != nil {
		client = ollamaapi.NewClient(&url.URL{Scheme: "http", Host: "localhost:11434"}, http.DefaultClient)
	} else {
		client = ollamaapi.NewClient(parsed, http.DefaultClient)
	}
	return &OllamaEmbedder{client: client, modelName: modelName, dim: dim}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, apperrors.NewTransient("ollama embedding: empty response")
	}
	return vectors[0], nil
}

func (e *OllamaEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	err := apperrors.Retry(ctx, 3, 250*time.Millisecond, func(ctx context.Context) error {
		for i, text := range texts {
			resp, err := e.client.Embeddings(ctx, &ollamaapi.EmbeddingRequest{
				Model:  e.modelName,
				Prompt: text,
			})
			if err != nil {
				return apperrors.NewTransient("ollama embedding request failed").WithCause(err)
			}
			vec := make([]float32, len(resp.Embedding))
			for j, v := range resp.Embedding {
				vec[j] = float32(v)
			}
			out[i] = vec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *OllamaEmbedder) Dimensions() int { return e.dim }
func (e *OllamaEmbedder) IsFallback() bool { return false }
