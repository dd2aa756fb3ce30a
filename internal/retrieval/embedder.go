package retrieval

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder turns texts into vectors. One vector per input text, all
// vectors the same dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

const hashDims = 256

// HashEmbedder is a deterministic, keyless embedder: token hashing into a
// fixed-size bag-of-words vector. Used when no embedding API key is
// configured and in tests, where reproducible scores matter more than
// semantic quality.
type HashEmbedder struct{}

// NewHashEmbedder creates a deterministic local embedder
func NewHashEmbedder() *HashEmbedder { return &HashEmbedder{} }

// Embed hashes each text's tokens into a normalized vector
func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = hashVector(text)
	}
	return out, nil
}

func hashVector(text string) []float32 {
	vec := make([]float32, hashDims)
	start := -1
	for i := 0; i <= len(text); i++ {
		var c byte
		if i < len(text) {
			c = text[i]
		}
		isWord := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
		if isWord {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			vec[tokenBucket(text[start:i])]++
			start = -1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

func tokenBucket(token string) int {
	h := fnv.New32a()
	for i := 0; i < len(token); i++ {
		c := token[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		h.Write([]byte{c})
	}
	return int(h.Sum32() % hashDims)
}
