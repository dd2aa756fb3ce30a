package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/relaydesk/voicegate/internal/types"
)

// Index is an immutable in-memory vector index for one namespace.
// Contents never change after construction, so concurrent reads from many
// calls in the same namespace are safe without locking.
type Index struct {
	texts    []string
	vectors  [][]float32
	embedder Embedder
}

// NewIndex builds an index over the given chunks using the embedder
func NewIndex(ctx context.Context, embedder Embedder, chunks []string) (*Index, error) {
	if len(chunks) == 0 {
		return &Index{embedder: embedder}, nil
	}

	vectors, err := embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	texts := make([]string, len(chunks))
	copy(texts, chunks)

	return &Index{
		texts:    texts,
		vectors:  vectors,
		embedder: embedder,
	}, nil
}

// Size returns the number of indexed chunks
func (ix *Index) Size() int {
	return len(ix.texts)
}

// Search returns the top-k chunks most similar to the query, scores
// descending. Ties keep insertion order so repeated queries over the same
// index are deterministic.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]types.Snippet, error) {
	if len(ix.texts) == 0 || k <= 0 {
		return nil, nil
	}

	qvec, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(qvec) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(qvec))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	order := make([]int, len(ix.vectors))
	scores := make([]float64, len(ix.vectors))
	for i, v := range ix.vectors {
		order[i] = i
		scores[i] = cosine(qvec[0], v)
	}

	// Stable sort: equal scores stay in insertion order
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if k > len(order) {
		k = len(order)
	}
	out := make([]types.Snippet, 0, k)
	for _, idx := range order[:k] {
		out = append(out, types.Snippet{Text: ix.texts[idx], Score: scores[idx]})
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
