// Package embedding implements the Embedder capability (spec.md §6):
// embed(text) -> Vec<f32>[D], with a remote model provider and a
// deterministic fallback used when no provider is configured.
package embedding

import (
	"context"
)

// Embedder converts text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int

	// IsFallback reports whether this implementation is the deterministic
	// hash-projected stand-in rather than a real semantic model. Callers that
	// requested a specific provider must surface this rather than silently
	// accepting degraded search quality (design note, spec.md §6).
	IsFallback() bool
}

// Config selects and parameterizes an Embedder backend.
type Config struct {
	Source     string // "openai" | "ollama" | "fallback"
	BaseURL    string
	ModelName  string
	APIKey     string
	Dimensions int
}

// New constructs the Embedder named by cfg.Source. An empty or unrecognized
// source, or a remote source missing its credentials, resolves to the
// fallback embedder rather than failing construction — callers that care
// must check Embedder.IsFallback().
func New(cfg Config) Embedder {
	switch cfg.Source {
	case "openai":
		if cfg.APIKey == "" {
			return NewFallback(cfg.Dimensions)
		}
		return NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.ModelName, cfg.Dimensions)
	case "ollama":
		return NewOllama(cfg.BaseURL, cfg.ModelName, cfg.Dimensions)
	default:
		return NewFallback(cfg.Dimensions)
	}
}
