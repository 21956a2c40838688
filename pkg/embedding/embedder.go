// Package embedding provides embedding generation and caching for semantic rubro matching
package embedding

import (
	"context"
	"math"
)

// Embedder generates vector embeddings for text.
//
// Implementations support batch operations natively; for a single text,
// pass a slice with one element.
type Embedder interface {
	// Generate creates embeddings for the given texts, one vector per
	// input in the same order.
	Generate(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings produced by
	// this embedder.
	Dimensions() int

	// Model returns the model identifier used by this embedder.
	Model() string

	// Close releases any resources held by the embedder.
	Close() error
}

// Cache provides content-addressed caching for embeddings
type Cache interface {
	// Get retrieves a cached embedding for the given content hash.
	// The second return is false when the embedding is not cached.
	Get(ctx context.Context, contentHash string) ([]float32, bool)

	// Put stores an embedding under the given content hash. Writes are
	// idempotent; concurrent writers for the same hash are safe.
	Put(ctx context.Context, contentHash string, embedding []float32) error
}

// NormalizeL2 scales a vector to unit length in place and returns it.
// Zero vectors are returned unchanged.
func NormalizeL2(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// Dot computes the dot product of two vectors. For unit vectors this is
// their cosine similarity.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// ZeroVector returns the sentinel embedding used for empty text
func ZeroVector(dimensions int) []float32 {
	return make([]float32, dimensions)
}
