// Package index defines the immutable IVF-PQ index aggregate: the coarse
// router, the product quantizer, and the inverted-list store, built once
// and read-only during serving.
package index

import (
	"errors"
	"fmt"

	"github.com/vexsearch/vex/coarse"
	"github.com/vexsearch/vex/distance"
	"github.com/vexsearch/vex/ivf"
	"github.com/vexsearch/vex/quantization"
)

// ErrInvalidK is returned when k is not positive.
var ErrInvalidK = errors.New("k must be positive")

// ErrDimensionMismatch indicates a query/vector dimensionality mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrInvalidNProbe indicates an nProbe outside [1, NumClusters].
type ErrInvalidNProbe struct {
	NProbe int
	Max    int
}

func (e *ErrInvalidNProbe) Error() string {
	return fmt.Sprintf("nProbe must be in [1, %d], got %d", e.Max, e.NProbe)
}

// Index is the aggregate of coarse codebook, PQ codebooks, and inverted
// lists. It is immutable after construction; updates require a rebuild and
// an atomic swap in the manager.
type Index struct {
	metric distance.Metric
	router *coarse.Router
	pq     *quantization.ProductQuantizer
	store  *ivf.Store
}

// New assembles an index from its parts, checking they agree on dimension,
// cluster count, and code size.
func New(metric distance.Metric, router *coarse.Router, pq *quantization.ProductQuantizer, store *ivf.Store) (*Index, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("unknown metric: %v", metric)
	}
	if router == nil || pq == nil || store == nil {
		return nil, errors.New("router, quantizer, and store are all required")
	}
	if router.Dimension() != pq.Dimension() {
		return nil, fmt.Errorf("router dimension %d != quantizer dimension %d", router.Dimension(), pq.Dimension())
	}
	if store.NumClusters() != router.NumClusters() {
		return nil, fmt.Errorf("store has %d clusters, router has %d", store.NumClusters(), router.NumClusters())
	}
	if store.CodeSize() != pq.NumSubvectors() {
		return nil, fmt.Errorf("store code size %d != quantizer subvector count %d", store.CodeSize(), pq.NumSubvectors())
	}
	if !pq.IsTrained() {
		return nil, quantization.ErrNotTrained
	}

	return &Index{
		metric: metric,
		router: router,
		pq:     pq,
		store:  store,
	}, nil
}

// Metric returns the distance metric the index was built with.
func (idx *Index) Metric() distance.Metric { return idx.metric }

// Router returns the coarse cluster router.
func (idx *Index) Router() *coarse.Router { return idx.router }

// Quantizer returns the product quantizer.
func (idx *Index) Quantizer() *quantization.ProductQuantizer { return idx.pq }

// Store returns the inverted-list store.
func (idx *Index) Store() *ivf.Store { return idx.store }

// Dimension returns the vector dimensionality the index accepts.
func (idx *Index) Dimension() int { return idx.router.Dimension() }

// Count returns the number of indexed vectors.
func (idx *Index) Count() int { return idx.store.Count() }

// Validate walks every posting list and checks the structural invariants:
// each stored code has exactly M sub-indices, each below the centroid
// count. Loaders run this before installing an index.
func (idx *Index) Validate() error {
	for c := 0; c < idx.store.NumClusters(); c++ {
		it, err := idx.store.Iterate(c)
		if err != nil {
			return err
		}
		pos := 0
		for p, ok := it.Next(); ok; p, ok = it.Next() {
			if !idx.pq.ValidCode(p.Code) {
				return fmt.Errorf("cluster %d posting %d (label %q): code %v exceeds %d centroids",
					c, pos, p.Label, p.Code, idx.pq.NumCentroids())
			}
			pos++
		}
	}

	return nil
}
