// Package coarse implements the first-stage cluster router of the inverted
// file index. It partitions the vector space with a flat codebook of
// centroids and prunes search to the clusters nearest a query.
package coarse

import (
	"errors"
	"fmt"
	"sort"

	"github.com/vexsearch/vex/internal/math32"
)

// ErrDimensionMismatch indicates an input vector whose length does not match
// the router's configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Router assigns vectors to coarse clusters and selects probe candidates.
//
// The centroid codebook is immutable; all methods are safe for concurrent
// use. The centroid count is expected to stay small enough for a linear
// scan per call.
type Router struct {
	dim       int
	clusters  int
	centroids []float32 // flattened: centroid c at [c*dim : (c+1)*dim]
}

// NewRouter creates a router around a flattened coarse codebook. The slice
// is retained without copying and must not be mutated afterwards.
func NewRouter(dim int, centroids []float32) (*Router, error) {
	if dim <= 0 {
		return nil, errors.New("dimension must be positive")
	}
	if len(centroids) == 0 || len(centroids)%dim != 0 {
		return nil, fmt.Errorf("centroid slice length %d is not a positive multiple of dimension %d", len(centroids), dim)
	}

	return &Router{
		dim:       dim,
		clusters:  len(centroids) / dim,
		centroids: centroids,
	}, nil
}

// NumClusters returns the number of coarse clusters.
func (r *Router) NumClusters() int { return r.clusters }

// Dimension returns the vector dimension the router operates on.
func (r *Router) Dimension() int { return r.dim }

// Centroid returns the centroid vector for cluster c as a read-only slice.
func (r *Router) Centroid(c int) []float32 {
	return r.centroids[c*r.dim : (c+1)*r.dim]
}

// Centroids returns the flattened codebook. Read-only.
func (r *Router) Centroids() []float32 { return r.centroids }

// Assign returns the id of the cluster whose centroid is nearest to vec
// under squared L2.
func (r *Router) Assign(vec []float32) (int, error) {
	if len(vec) != r.dim {
		return 0, &ErrDimensionMismatch{Expected: r.dim, Actual: len(vec)}
	}

	best := 0
	minDist := math32.SquaredL2(vec, r.Centroid(0))

	for c := 1; c < r.clusters; c++ {
		d := math32.SquaredL2(vec, r.Centroid(c))
		if d < minDist {
			minDist = d
			best = c
		}
	}

	return best, nil
}

// Probe returns the nProbe clusters nearest to vec, ascending by distance
// with ties broken by lower cluster id. nProbe larger than the cluster
// count is clamped; nProbe == NumClusters degrades to exhaustive search.
func (r *Router) Probe(vec []float32, nProbe int) ([]int, error) {
	if len(vec) != r.dim {
		return nil, &ErrDimensionMismatch{Expected: r.dim, Actual: len(vec)}
	}
	if nProbe < 1 {
		return nil, fmt.Errorf("nProbe must be at least 1, got %d", nProbe)
	}
	if nProbe > r.clusters {
		nProbe = r.clusters
	}

	dists := make([]float32, r.clusters)
	order := make([]int, r.clusters)
	for c := 0; c < r.clusters; c++ {
		dists[c] = math32.SquaredL2(vec, r.Centroid(c))
		order[c] = c
	}

	// Stable over ascending ids, so equal distances keep the lower id first.
	sort.SliceStable(order, func(i, j int) bool {
		return dists[order[i]] < dists[order[j]]
	})

	return order[:nProbe], nil
}
