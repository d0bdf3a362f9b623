// Package llm defines the LLM capability (spec.md §6). In this module it is
// consumed only by the optimizer's contradiction stage, optionally; the
// compression stage is extractive and does not use it. Absence breaks no
// core operation.
package llm

import (
	"context"
	"time"

	apperrors "github.com/layeredmemory/engine/internal/errors"
	openai "github.com/sashabaranov/go-openai"
)

// LLM is the minimal text-completion capability the optimizer consumes.
// Callers treat a nil LLM as "capability absent" and fall back to their
// heuristic path rather than erroring.
type LLM interface {
	// Complete returns a single free-text completion for prompt.
	Complete(ctx context.Context, prompt string) (string, error)
}

// OpenAI adapts an OpenAI-compatible chat endpoint to LLM, used by the
// optimizer's contradiction-detection stage when a real model is configured.
type OpenAI struct {
	client    *openai.Client
	modelName string
}

var _ LLM = (*OpenAI)(nil)

// NewOpenAI builds an OpenAI-backed LLM capability.
func NewOpenAI(apiKey, baseURL, modelName string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if modelName == "" {
		modelName = openai.GPT4oMini
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), modelName: modelName}
}

func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	var out string
	err := apperrors.Retry(ctx, 2, 250*time.Millisecond, func(ctx context.Context) error {
		resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: o.modelName,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			return apperrors.NewTransient("llm completion request failed").WithCause(err)
		}
		if len(resp.Choices) == 0 {
			return apperrors.NewTransient("llm completion: empty response")
		}
		out = resp.Choices[0].Message.Content
		return nil
	})
	return out, err
}
