package vectorindex

import (
	"math"

	"github.com/andestx/rubromatch/pkg/embedding"
)

// kmeansIterations bounds the coarse quantizer training loop
const kmeansIterations = 10

// IVFIndex is an inverted-file index: vectors are partitioned into
// clusters by a k-means coarse quantizer, and queries only scan the
// lists of the closest centroids. Results are approximate.
type IVFIndex struct {
	vectors   [][]float32
	centroids [][]float32
	lists     [][]int
	nprobe    int
}

// NewIVFIndex builds an IVF index over unit-length vectors.
// The number of clusters scales with sqrt(n); nprobe scans a quarter of
// them, which keeps recall high for catalog-sized data sets.
func NewIVFIndex(vectors [][]float32) *IVFIndex {
	nlist := int(math.Sqrt(float64(len(vectors))))
	if nlist < 1 {
		nlist = 1
	}
	nprobe := nlist / 4
	if nprobe < 1 {
		nprobe = 1
	}

	centroids, lists := trainKMeans(vectors, nlist)

	return &IVFIndex{
		vectors:   vectors,
		centroids: centroids,
		lists:     lists,
		nprobe:    nprobe,
	}
}

// Query scans the lists of the nprobe closest centroids
func (x *IVFIndex) Query(vec []float32, k int) []Hit {
	if k <= 0 || len(x.vectors) == 0 {
		return nil
	}

	// Rank centroids by similarity to the query.
	centroidHits := make([]Hit, len(x.centroids))
	for i, c := range x.centroids {
		centroidHits[i] = Hit{Position: i, Similarity: embedding.Dot(vec, c)}
	}
	sortHits(centroidHits)

	probes := x.nprobe
	if probes > len(centroidHits) {
		probes = len(centroidHits)
	}

	var hits []Hit
	for _, ch := range centroidHits[:probes] {
		for _, pos := range x.lists[ch.Position] {
			hits = append(hits, Hit{Position: pos, Similarity: embedding.Dot(vec, x.vectors[pos])})
		}
	}
	sortHits(hits)

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k]
}

// Size returns the number of indexed vectors
func (x *IVFIndex) Size() int {
	return len(x.vectors)
}

// trainKMeans clusters vectors into nlist groups. Seeding is
// deterministic: initial centroids are evenly spaced over the input,
// so index construction is reproducible for a given catalog.
func trainKMeans(vectors [][]float32, nlist int) ([][]float32, [][]int) {
	if nlist >= len(vectors) {
		nlist = len(vectors)
	}

	dims := 0
	if len(vectors) > 0 {
		dims = len(vectors[0])
	}

	centroids := make([][]float32, nlist)
	step := len(vectors) / nlist
	for i := 0; i < nlist; i++ {
		src := vectors[i*step]
		centroids[i] = append([]float32(nil), src...)
	}

	assignments := make([]int, len(vectors))
	for iter := 0; iter < kmeansIterations; iter++ {
		changed := false
		for i, v := range vectors {
			best := nearestCentroid(v, centroids)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		// Recompute centroids as normalized means of their members.
		sums := make([][]float64, nlist)
		counts := make([]int, nlist)
		for i := range sums {
			sums[i] = make([]float64, dims)
		}
		for i, v := range vectors {
			c := assignments[i]
			counts[c]++
			for d, val := range v {
				sums[c][d] += float64(val)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for d := range centroids[c] {
				centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
			embedding.NormalizeL2(centroids[c])
		}
	}

	lists := make([][]int, nlist)
	for i, c := range assignments {
		lists[c] = append(lists[c], i)
	}
	return centroids, lists
}

func nearestCentroid(vec []float32, centroids [][]float32) int {
	best := 0
	bestSim := math.Inf(-1)
	for i, c := range centroids {
		if sim := embedding.Dot(vec, c); sim > bestSim {
			bestSim = sim
			best = i
		}
	}
	return best
}
