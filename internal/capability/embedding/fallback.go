package embedding

import (
	"context"
	"crypto/sha256"
	"math"
)

// fallback is the deterministic content-hash-projected embedder (spec.md §6:
// "used when no key is configured ... not a search-quality substitute; it
// exists to keep the pipeline functional and tests reproducible").
type fallback struct {
	dim int
}

var _ Embedder = (*fallback)(nil)

// NewFallback returns a deterministic embedder of the given dimension.
func NewFallback(dim int) Embedder {
	if dim <= 0 {
		dim = 384
	}
	return &fallback{dim: dim}
}

func (f *fallback) Embed(ctx context.Context, text string) ([]float32, error) {
	return hashProject(text, f.dim), nil
}

func (f *fallback) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashProject(t, f.dim)
	}
	return out, nil
}

func (f *fallback) Dimensions() int { return f.dim }
func (f *fallback) IsFallback() bool { return true }

// hashProject deterministically expands repeated SHA-256 digests of text
// into dim float32 components in [-1, 1], then L2-normalizes so cosine
// similarity behaves sanely even though the vector carries no semantics.
func hashProject(text string, dim int) []float32 {
	out := make([]float32, dim)
	block := sha256.Sum256([]byte(text))
	counter := byte(0)
	for i := 0; i < dim; i++ {
		if i > 0 && i%32 == 0 {
			counter++
			seed := append([]byte{counter}, block[:]...)
			block = sha256.Sum256(seed)
		}
		b := block[i%32]
		out[i] = float32(int(b)-128) / 128.0
	}
	var norm float64
	for _, v := range out {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / norm)
	}
	return out
}
