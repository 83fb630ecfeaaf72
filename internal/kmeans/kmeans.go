// Package kmeans implements Lloyd's algorithm with k-means++ seeding over
// flattened centroid storage. It is used to train both the coarse router
// centroids and the per-subspace product-quantizer codebooks.
package kmeans

import (
	"math"
	"math/rand"

	"github.com/vexsearch/vex/internal/math32"
)

// Train clusters the given flattened vectors (n * dim) into k centroids and
// returns them flattened (k * dim).
//
// If fewer than k vectors are provided, the data points are repeated
// cyclically so that every centroid is populated; callers with tiny corpora
// still get a usable codebook.
func Train(vectors []float32, dim, k, maxIter int) []float32 {
	n := len(vectors) / dim

	centroids := make([]float32, k*dim)

	if n <= k {
		for i := 0; i < k; i++ {
			src := (i % n) * dim
			copy(centroids[i*dim:(i+1)*dim], vectors[src:src+dim])
		}
		return centroids
	}

	seedPlusPlus(centroids, vectors, dim, k)

	assignments := make([]int, n)
	counts := make([]int, k)
	sums := make([]float32, k*dim)

	for iter := 0; iter < maxIter; iter++ {
		changed := false

		// Assignment step
		for i := 0; i < n; i++ {
			vec := vectors[i*dim : (i+1)*dim]
			best := Assign(vec, centroids, dim)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}

		if iter > 0 && !changed {
			break
		}

		// Update step
		for i := range sums {
			sums[i] = 0
		}
		for i := range counts {
			counts[i] = 0
		}

		for i := 0; i < n; i++ {
			cluster := assignments[i]
			vec := vectors[i*dim : (i+1)*dim]
			for d := 0; d < dim; d++ {
				sums[cluster*dim+d] += vec[d]
			}
			counts[cluster]++
		}

		for j := 0; j < k; j++ {
			if counts[j] > 0 {
				scale := 1.0 / float32(counts[j])
				for d := 0; d < dim; d++ {
					centroids[j*dim+d] = sums[j*dim+d] * scale
				}
			} else {
				// Re-initialize empty cluster with a random point
				idx := rand.Intn(n)
				copy(centroids[j*dim:(j+1)*dim], vectors[idx*dim:(idx+1)*dim])
			}
		}
	}

	return centroids
}

// Assign returns the index of the centroid nearest to vec under squared L2.
func Assign(vec []float32, centroids []float32, dim int) int {
	k := len(centroids) / dim

	best := 0
	minDist := float32(math.MaxFloat32)

	for j := 0; j < k; j++ {
		d := math32.SquaredL2(vec, centroids[j*dim:(j+1)*dim])
		if d < minDist {
			minDist = d
			best = j
		}
	}

	return best
}

// seedPlusPlus initializes centroids with k-means++: the first centroid is a
// random data point, each subsequent one is sampled proportional to its
// squared distance from the nearest already-chosen centroid.
func seedPlusPlus(centroids, vectors []float32, dim, k int) {
	n := len(vectors) / dim

	first := rand.Intn(n)
	copy(centroids[0:dim], vectors[first*dim:(first+1)*dim])

	// minDistSq tracks each vector's squared distance to its nearest chosen centroid.
	minDistSq := make([]float32, n)
	var sum float32
	for i := 0; i < n; i++ {
		d := math32.SquaredL2(vectors[i*dim:(i+1)*dim], centroids[0:dim])
		minDistSq[i] = d
		sum += d
	}

	for c := 1; c < k; c++ {
		if sum == 0 {
			idx := rand.Intn(n)
			copy(centroids[c*dim:(c+1)*dim], vectors[idx*dim:(idx+1)*dim])
			continue
		}

		target := rand.Float32() * sum
		var cumsum float32
		chosen := 0
		for i, d := range minDistSq {
			cumsum += d
			if cumsum >= target {
				chosen = i
				break
			}
		}
		copy(centroids[c*dim:(c+1)*dim], vectors[chosen*dim:(chosen+1)*dim])

		// Update minDistSq incrementally (O(n) per centroid).
		sum = 0
		for i := 0; i < n; i++ {
			d := math32.SquaredL2(vectors[i*dim:(i+1)*dim], centroids[c*dim:(c+1)*dim])
			if d < minDistSq[i] {
				minDistSq[i] = d
			}
			sum += minDistSq[i]
		}
	}
}
