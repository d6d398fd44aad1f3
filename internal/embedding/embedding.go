// Package embedding implements the Embedding Generator: it produces
// position-aligned embedding vectors for a batch of messages, skipping tool
// messages and messages with no extractable text, and validates the
// resulting vector dimension against the set of dimensions the caller
// accepts.
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/redeven/agentcore/internal/agenterr"
	"github.com/redeven/agentcore/internal/messages"
)

// Model is the embedding half of an LLM provider. Not every provider
// implements it — Anthropic has no embeddings endpoint, so an agent
// configured with an Anthropic chat model and nothing else simply never gets
// an embedding model wired in, and C2 degrades by returning a nil Embedding
// rather than failing.
type Model interface {
	// EmbedBatch returns one vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is the fixed vector width this model produces.
	Dimension() int
	// ModelID identifies the embedding model for storage/debugging.
	ModelID() string
}

// AcceptedDimensions is the closed set of vector widths the rest of the
// system (vector search, storage) is prepared to index. A model whose
// Dimension() falls outside this set makes Generate fail with InvalidArgument
// (after the provider call, whenever the batch has any text to embed) rather
// than silently corrupting the vector index.
var AcceptedDimensions = map[int]bool{
	384:  true,
	768:  true,
	1024: true,
	1536: true,
	3072: true,
}

// Embedding is the result of embedding a batch of messages: one vector (or
// nil) per input message, all sharing Dimension and Model.
type Embedding struct {
	Vectors   []([]float32)
	Dimension int
	Model     string
}

// Generate embeds the non-tool, non-empty messages in msgs and scatters the
// resulting vectors back into a dimension-preserving, position-aligned
// slice. It returns (nil, nil) — not an error — when model is nil or when
// every message in msgs is a tool message or has empty text.
func Generate(ctx context.Context, model Model, msgs []messages.CoreMessage) (*Embedding, error) {
	if model == nil {
		return nil, nil
	}

	texts := make([]string, 0, len(msgs))
	indices := make([]int, 0, len(msgs))
	for i, m := range msgs {
		if m.IsTool() {
			continue
		}
		t := m.Text()
		if t == "" {
			continue
		}
		texts = append(texts, t)
		indices = append(indices, i)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := model.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, agenterr.WrapProvider("embedding.Generate", err)
	}
	if len(vectors) != len(texts) {
		return nil, agenterr.WrapProvider("embedding.Generate",
			fmt.Errorf("provider returned %d vectors for %d inputs", len(vectors), len(texts)))
	}

	dim := model.Dimension()
	if !AcceptedDimensions[dim] {
		return nil, agenterr.NewInvalidArgument("embedding.Generate", fmt.Sprintf("unsupported embedding dimension %d", dim))
	}

	out := make([][]float32, len(msgs))
	for j, vec := range vectors {
		if len(vec) != dim {
			return nil, agenterr.WrapProvider("embedding.Generate",
				fmt.Errorf("vector %d has length %d, want %d", j, len(vec), dim))
		}
		out[indices[j]] = vec
	}

	return &Embedding{Vectors: out, Dimension: dim, Model: model.ModelID()}, nil
}

// CosineSimilarity scores two equal-length vectors in [-1, 1]. Used by the
// brute-force vector search in internal/store; no approximate index is
// built here.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
