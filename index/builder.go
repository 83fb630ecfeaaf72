package index

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/vexsearch/vex/coarse"
	"github.com/vexsearch/vex/distance"
	"github.com/vexsearch/vex/internal/kmeans"
	"github.com/vexsearch/vex/ivf"
	"github.com/vexsearch/vex/quantization"
)

const coarseTrainIterations = 25

// BuildOptions configures an index build.
type BuildOptions struct {
	// Metric selects the distance metric. Cosine L2-normalizes every vector
	// before training and encoding.
	Metric distance.Metric

	// NumClusters is the coarse cluster count (K_coarse).
	NumClusters int

	// NumSubvectors is the PQ subvector count (M). Must divide the vector
	// dimension.
	NumSubvectors int

	// NumCentroids is the PQ codebook size per subspace (K_sub), at most 256.
	NumCentroids int

	// TrainSize caps how many of the leading vectors train the quantizers.
	// Zero means train on everything.
	TrainSize int
}

// DefaultBuildOptions returns the build defaults: L2, 16 clusters, 8
// subvectors, 256 centroids, train on all vectors.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		Metric:        distance.MetricL2,
		NumClusters:   16,
		NumSubvectors: 8,
		NumCentroids:  256,
	}
}

// Build constructs an immutable index from a labeled vector collection:
// it trains the coarse centroids and PQ codebooks, assigns every vector to
// its nearest cluster, encodes it, and bulk-loads the postings grouped by
// cluster.
func Build(vectors [][]float32, labels []string, opts BuildOptions) (*Index, error) {
	if len(vectors) == 0 {
		return nil, errors.New("no vectors to index")
	}
	if len(vectors) != len(labels) {
		return nil, fmt.Errorf("%d vectors but %d labels", len(vectors), len(labels))
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, errors.New("vectors must have at least one dimension")
	}
	for _, v := range vectors {
		if len(v) != dim {
			return nil, &ErrDimensionMismatch{Expected: dim, Actual: len(v)}
		}
	}
	if opts.NumClusters <= 0 {
		return nil, errors.New("NumClusters must be positive")
	}

	prepared := vectors
	if opts.Metric == distance.MetricCosine {
		prepared = make([][]float32, len(vectors))
		for i, v := range vectors {
			nv, ok := distance.NormalizeL2Copy(v)
			if !ok {
				return nil, fmt.Errorf("vector %d (label %q) has zero norm, cannot index under cosine", i, labels[i])
			}
			prepared[i] = nv
		}
	}

	trainSet := prepared
	if opts.TrainSize > 0 && opts.TrainSize < len(prepared) {
		trainSet = prepared[:opts.TrainSize]
	}

	// Coarse codebook over the training set.
	flat := make([]float32, 0, len(trainSet)*dim)
	for _, v := range trainSet {
		flat = append(flat, v...)
	}
	centroids := kmeans.Train(flat, dim, opts.NumClusters, coarseTrainIterations)

	router, err := coarse.NewRouter(dim, centroids)
	if err != nil {
		return nil, err
	}

	pq, err := quantization.NewProductQuantizer(dim, opts.NumSubvectors, opts.NumCentroids)
	if err != nil {
		return nil, err
	}
	if err := pq.Train(trainSet); err != nil {
		return nil, err
	}

	store, err := ivf.NewStore(opts.NumClusters, opts.NumSubvectors)
	if err != nil {
		return nil, err
	}

	entries, err := encodeAll(prepared, labels, router, pq)
	if err != nil {
		return nil, err
	}
	if err := store.BulkLoad(entries); err != nil {
		return nil, err
	}

	return New(opts.Metric, router, pq, store)
}

// encodeAll assigns and encodes every vector, in parallel over chunks. The
// entries slice preserves input order so posting ordinals match insertion
// order.
func encodeAll(vectors [][]float32, labels []string, router *coarse.Router, pq *quantization.ProductQuantizer) ([]ivf.Entry, error) {
	entries := make([]ivf.Entry, len(vectors))
	codes := make([]byte, len(vectors)*pq.NumSubvectors())

	workers := runtime.GOMAXPROCS(0)
	chunk := (len(vectors) + workers - 1) / workers

	g := &errgroup.Group{}
	for start := 0; start < len(vectors); start += chunk {
		end := min(start+chunk, len(vectors))
		g.Go(func() error {
			m := pq.NumSubvectors()
			for i := start; i < end; i++ {
				cluster, err := router.Assign(vectors[i])
				if err != nil {
					return err
				}
				code := codes[i*m : (i+1)*m]
				if err := pq.EncodeTo(code, vectors[i]); err != nil {
					return err
				}
				entries[i] = ivf.Entry{
					Cluster: cluster,
					Code:    code,
					Label:   labels[i],
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return entries, nil
}
