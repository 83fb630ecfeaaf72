// Package searcher implements the query path of the index: distance-table
// construction, probed cluster scans, and bounded top-k selection.
package searcher

import (
	"context"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/vexsearch/vex/distance"
	"github.com/vexsearch/vex/index"
	"github.com/vexsearch/vex/quantization"
)

// Result is one ranked search hit. Score is the approximate squared
// distance between the query and the stored vector (lower is closer).
type Result struct {
	Label string
	Score float32
}

// Options tunes a single search call.
type Options struct {
	// Filter restricts results to postings whose ordinal is set in the
	// bitmap. Nil means no filtering.
	Filter *roaring.Bitmap
}

// scratch is the per-call search state: the ADC table and the bounded
// result queue. Pooled to keep the steady-state search allocation-free.
type scratch struct {
	table *quantization.DistanceTable
	queue *Queue
	query []float32
}

var scratchPool = sync.Pool{
	New: func() any {
		return &scratch{queue: NewQueue(16)}
	},
}

// Search runs an approximate nearest-neighbor query against idx and returns
// up to k results ascending by score, ties broken by insertion order.
//
// nProbe selects how many clusters are scanned; nProbe equal to the cluster
// count degrades to an exhaustive scan. The context is checked once per
// probed cluster, bounding worst-case latency under large nProbe.
//
// Search performs no mutation and any number of calls may run concurrently
// against the same index.
func Search(ctx context.Context, idx *index.Index, query []float32, k, nProbe int, opts *Options) ([]Result, error) {
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	router := idx.Router()
	if nProbe < 1 || nProbe > router.NumClusters() {
		return nil, &index.ErrInvalidNProbe{NProbe: nProbe, Max: router.NumClusters()}
	}
	if len(query) != idx.Dimension() {
		return nil, &index.ErrDimensionMismatch{Expected: idx.Dimension(), Actual: len(query)}
	}

	sc := scratchPool.Get().(*scratch)
	defer scratchPool.Put(sc)

	q := query
	if idx.Metric() == distance.MetricCosine {
		if cap(sc.query) < len(query) {
			sc.query = make([]float32, len(query))
		}
		sc.query = sc.query[:len(query)]
		copy(sc.query, query)
		// A zero-norm query has no direction; it scans unnormalized and
		// ranks everything by plain L2, which is still well-defined.
		distance.NormalizeL2InPlace(sc.query)
		q = sc.query
	}

	pq := idx.Quantizer()
	if sc.table == nil || !sc.table.Fits(pq.NumSubvectors(), pq.NumCentroids()) {
		sc.table = quantization.NewDistanceTable(pq.NumSubvectors(), pq.NumCentroids())
	}
	if err := pq.FillDistanceTable(sc.table, q); err != nil {
		return nil, err
	}

	probes, err := router.Probe(q, nProbe)
	if err != nil {
		return nil, err
	}

	// The queue never holds more than the index has postings, so a huge k
	// must not translate into a huge allocation.
	capacity := k
	if n := idx.Count(); capacity > n {
		capacity = n
	}
	sc.queue.Reset(capacity)
	var filter *roaring.Bitmap
	if opts != nil {
		filter = opts.Filter
	}

	store := idx.Store()
	for _, c := range probes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		it, err := store.Iterate(c)
		if err != nil {
			return nil, err
		}

		for p, ok := it.Next(); ok; p, ok = it.Next() {
			if filter != nil && !filter.Contains(p.Ord) {
				continue
			}
			sc.queue.Push(Item{
				Distance: sc.table.ADC(p.Code),
				Ord:      p.Ord,
				Label:    p.Label,
			})
		}
	}

	items := sc.queue.Drain()
	results := make([]Result, len(items))
	for i, item := range items {
		results[i] = Result{Label: item.Label, Score: item.Distance}
	}

	return results, nil
}
