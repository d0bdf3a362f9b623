// Package classify implements the Classifier capability (spec.md §6) and a
// rule-based fallback router used when no classifier is configured (spec.md
// §4.H: "Classification uses an injected capability; when absent, the
// Facade falls back to a rule-based router based on grammatical person ...
// presence of temporal markers ... otherwise knowledge").
package classify

import (
	"context"
	"regexp"
	"strings"

	"github.com/layeredmemory/engine/internal/types"
)

// Result is the outcome of classifying a piece of text.
type Result struct {
	Layer      types.MemoryLayer
	Category   types.KnowledgeCategory
	Confidence float64
}

// Classifier assigns a memory layer and category to free text.
type Classifier interface {
	Classify(ctx context.Context, text string, personaHint string) (Result, error)

	// IsFallback mirrors embedding.Embedder.IsFallback: callers must be able
	// to tell a rule-based guess from a model-backed classification.
	IsFallback() bool
}

var (
	firstPersonStatement = regexp.MustCompile(`(?i)\b(i am|i'm|i have|i like|i prefer|i work|i live|my name is|i was born)\b`)
	skillMarker          = regexp.MustCompile(`(?i)\b(i can|i know how to|i'm (good|skilled) at)\b`)
	processMarker        = regexp.MustCompile(`(?i)\b(first,?|then,?|next,?|finally,?|step \d|the process (is|for))\b`)
	temporalMarker       = regexp.MustCompile(`(?i)\b(today|yesterday|tomorrow|last (week|month|year|night)|this (morning|afternoon|evening)|on (monday|tuesday|wednesday|thursday|friday|saturday|sunday)|\d{4}-\d{2}-\d{2})\b`)
)

// ruleBased is the deterministic grammatical-person / temporal-marker router.
type ruleBased struct{}

var _ Classifier = (*ruleBased)(nil)

// NewRuleBased returns the spec's fallback Classifier.
func NewRuleBased() Classifier { return ruleBased{} }

func (ruleBased) Classify(ctx context.Context, text string, personaHint string) (Result, error) {
	trimmed := strings.TrimSpace(text)

	if temporalMarker.MatchString(trimmed) {
		return Result{Layer: types.LayerEpisodic, Confidence: 0.6}, nil
	}
	if processMarker.MatchString(trimmed) {
		return Result{Layer: types.LayerProcess, Category: types.CategoryProcess, Confidence: 0.55}, nil
	}
	if skillMarker.MatchString(trimmed) {
		return Result{Layer: types.LayerSkill, Category: types.CategorySkill, Confidence: 0.6}, nil
	}
	if firstPersonStatement.MatchString(trimmed) {
		return Result{Layer: types.LayerPersona, Confidence: 0.6}, nil
	}
	return Result{Layer: types.LayerKnowledge, Category: types.CategoryKnowledge, Confidence: 0.4}, nil
}

func (ruleBased) IsFallback() bool { return true }
