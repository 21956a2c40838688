// Package vectorindex provides in-memory similarity search over reference embeddings
package vectorindex

import (
	"sort"

	"github.com/andestx/rubromatch/pkg/embedding"
)

// Hit is one query result: the position of the vector in the build-time
// slice and its cosine similarity to the query.
type Hit struct {
	Position   int
	Similarity float64
}

// Index answers nearest-neighbor queries over a fixed vector set.
// Implementations are immutable after construction and safe for
// concurrent queries.
type Index interface {
	// Query returns up to k hits ordered by similarity descending,
	// ties broken by position ascending.
	Query(vec []float32, k int) []Hit

	// Size returns the number of indexed vectors.
	Size() int
}

// Build constructs an index for the given vectors. Catalogs at or below
// approxThreshold get an exact flat index; larger catalogs get the
// approximate IVF index. Vectors must be unit length.
func Build(vectors [][]float32, approxThreshold int) Index {
	if approxThreshold > 0 && len(vectors) > approxThreshold {
		return NewIVFIndex(vectors)
	}
	return NewFlatIndex(vectors)
}

// FlatIndex performs exact brute-force search. Query results are
// identical to scanning every vector by construction.
type FlatIndex struct {
	vectors [][]float32
}

// NewFlatIndex builds a flat index over unit-length vectors
func NewFlatIndex(vectors [][]float32) *FlatIndex {
	return &FlatIndex{vectors: vectors}
}

// Query scans all vectors and returns the top k by similarity
func (f *FlatIndex) Query(vec []float32, k int) []Hit {
	if k <= 0 || len(f.vectors) == 0 {
		return nil
	}

	hits := make([]Hit, len(f.vectors))
	for i, v := range f.vectors {
		hits[i] = Hit{Position: i, Similarity: embedding.Dot(vec, v)}
	}
	sortHits(hits)

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k]
}

// Size returns the number of indexed vectors
func (f *FlatIndex) Size() int {
	return len(f.vectors)
}

// sortHits orders by similarity descending, position ascending on ties
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Position < hits[j].Position
	})
}
