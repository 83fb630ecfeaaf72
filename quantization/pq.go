// Package quantization implements product quantization (PQ) for compact
// vector storage and asymmetric distance computation.
//
// A D-dimensional vector is split into M contiguous subvectors; each
// subvector is quantized independently against a codebook of K centroids.
// The resulting code is M uint8 indices, an 8-32x compression over float32.
package quantization

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/vexsearch/vex/internal/kmeans"
	"github.com/vexsearch/vex/internal/math32"
)

const (
	// MaxCentroids is the largest codebook size per subspace. Codes are
	// stored one byte per subvector, so K must fit in a uint8 index space.
	MaxCentroids = 256

	// trainIterations is the k-means iteration budget per codebook.
	trainIterations = 20
)

// ErrNotTrained is returned when Encode/Decode is called before the
// quantizer has codebooks.
var ErrNotTrained = errors.New("product quantizer has no codebooks")

// ErrDimensionMismatch indicates an input vector whose length does not match
// the quantizer's configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrInvalidCode indicates a code whose length or indices do not fit the
// quantizer's layout.
type ErrInvalidCode struct {
	Reason string
}

func (e *ErrInvalidCode) Error() string {
	return "invalid code: " + e.Reason
}

// ProductQuantizer quantizes vectors into M sub-code indices.
//
// Codebooks are immutable once set; all query-time methods are safe for
// concurrent use.
type ProductQuantizer struct {
	dimension     int // D: original vector dimension
	numSubvectors int // M: number of subvectors
	numCentroids  int // K: centroids per subspace
	subvectorDim  int // D/M: dimensions per subvector

	// codebooks is flattened as [M][K][subvectorDim]:
	// centroid (m, k) lives at codebooks[(m*numCentroids+k)*subvectorDim:].
	codebooks []float32
	trained   bool
}

// NewProductQuantizer creates an untrained PQ quantizer. Train must be
// called before the quantizer can encode.
func NewProductQuantizer(dimension, numSubvectors, numCentroids int) (*ProductQuantizer, error) {
	if dimension <= 0 || numSubvectors <= 0 {
		return nil, errors.New("dimension and numSubvectors must be positive")
	}
	if dimension%numSubvectors != 0 {
		return nil, fmt.Errorf("dimension %d must be divisible by numSubvectors %d", dimension, numSubvectors)
	}
	if numCentroids < 1 || numCentroids > MaxCentroids {
		return nil, fmt.Errorf("numCentroids must be in [1, %d], got %d", MaxCentroids, numCentroids)
	}

	return &ProductQuantizer{
		dimension:     dimension,
		numSubvectors: numSubvectors,
		numCentroids:  numCentroids,
		subvectorDim:  dimension / numSubvectors,
	}, nil
}

// NewFromCodebooks creates a PQ quantizer around externally trained
// codebooks, flattened as [M][K][D/M]. The slice is retained without copying
// and must not be mutated afterwards.
func NewFromCodebooks(dimension, numSubvectors, numCentroids int, codebooks []float32) (*ProductQuantizer, error) {
	pq, err := NewProductQuantizer(dimension, numSubvectors, numCentroids)
	if err != nil {
		return nil, err
	}

	if want := numSubvectors * numCentroids * pq.subvectorDim; len(codebooks) != want {
		return nil, fmt.Errorf("codebook length mismatch: expected %d floats, got %d", want, len(codebooks))
	}

	pq.codebooks = codebooks
	pq.trained = true

	return pq, nil
}

// Train builds one codebook per subspace with k-means over the training
// vectors. Subspaces are independent, so they train in parallel.
func (pq *ProductQuantizer) Train(vectors [][]float32) error {
	if len(vectors) == 0 {
		return errors.New("no vectors provided for training")
	}
	if len(vectors[0]) != pq.dimension {
		return &ErrDimensionMismatch{Expected: pq.dimension, Actual: len(vectors[0])}
	}

	codebooks := make([]float32, pq.numSubvectors*pq.numCentroids*pq.subvectorDim)

	g := &errgroup.Group{}
	g.SetLimit(runtime.GOMAXPROCS(0))

	for m := 0; m < pq.numSubvectors; m++ {
		g.Go(func() error {
			sub := make([]float32, 0, len(vectors)*pq.subvectorDim)
			start := m * pq.subvectorDim
			for _, vec := range vectors {
				if len(vec) != pq.dimension {
					return &ErrDimensionMismatch{Expected: pq.dimension, Actual: len(vec)}
				}
				sub = append(sub, vec[start:start+pq.subvectorDim]...)
			}

			centroids := kmeans.Train(sub, pq.subvectorDim, pq.numCentroids, trainIterations)
			copy(pq.codebookFor(codebooks, m), centroids)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	pq.codebooks = codebooks
	pq.trained = true

	return nil
}

// Encode quantizes a vector into M sub-code indices.
func (pq *ProductQuantizer) Encode(vec []float32) ([]byte, error) {
	code := make([]byte, pq.numSubvectors)
	if err := pq.EncodeTo(code, vec); err != nil {
		return nil, err
	}
	return code, nil
}

// EncodeTo quantizes vec into dst, which must have length M. It avoids
// per-vector allocations during bulk builds.
func (pq *ProductQuantizer) EncodeTo(dst []byte, vec []float32) error {
	if !pq.trained {
		return ErrNotTrained
	}
	if len(vec) != pq.dimension {
		return &ErrDimensionMismatch{Expected: pq.dimension, Actual: len(vec)}
	}
	if len(dst) != pq.numSubvectors {
		return &ErrInvalidCode{Reason: fmt.Sprintf("destination length %d, want %d", len(dst), pq.numSubvectors)}
	}

	for m := 0; m < pq.numSubvectors; m++ {
		start := m * pq.subvectorDim
		subvec := vec[start : start+pq.subvectorDim]
		dst[m] = uint8(pq.nearestCentroid(subvec, m))
	}

	return nil
}

// Decode reconstructs an approximate vector by concatenating the chosen
// centroids. The reconstruction is lossy but lands in the same quantization
// cell: re-encoding the result yields the same code.
func (pq *ProductQuantizer) Decode(code []byte) ([]float32, error) {
	if !pq.trained {
		return nil, ErrNotTrained
	}
	if len(code) != pq.numSubvectors {
		return nil, &ErrInvalidCode{Reason: fmt.Sprintf("length %d, want %d", len(code), pq.numSubvectors)}
	}

	reconstructed := make([]float32, pq.dimension)

	for m, c := range code {
		if int(c) >= pq.numCentroids {
			return nil, &ErrInvalidCode{Reason: fmt.Sprintf("sub-code %d at position %d exceeds %d centroids", c, m, pq.numCentroids)}
		}
		centroid := pq.centroid(m, int(c))
		copy(reconstructed[m*pq.subvectorDim:], centroid)
	}

	return reconstructed, nil
}

// ValidCode reports whether code has M entries each below the centroid count.
func (pq *ProductQuantizer) ValidCode(code []byte) bool {
	if len(code) != pq.numSubvectors {
		return false
	}
	for _, c := range code {
		if int(c) >= pq.numCentroids {
			return false
		}
	}
	return true
}

// Dimension returns the configured vector dimension (D).
func (pq *ProductQuantizer) Dimension() int { return pq.dimension }

// NumSubvectors returns the number of subvectors (M).
func (pq *ProductQuantizer) NumSubvectors() int { return pq.numSubvectors }

// NumCentroids returns the number of centroids per subspace (K).
func (pq *ProductQuantizer) NumCentroids() int { return pq.numCentroids }

// IsTrained returns whether the quantizer has codebooks.
func (pq *ProductQuantizer) IsTrained() bool { return pq.trained }

// Codebooks returns the flattened [M][K][D/M] codebooks. The returned slice
// is the quantizer's own storage and must be treated as read-only.
func (pq *ProductQuantizer) Codebooks() []float32 { return pq.codebooks }

// CompressionRatio returns the storage ratio of float32 vectors to codes.
func (pq *ProductQuantizer) CompressionRatio() float64 {
	return float64(pq.dimension*4) / float64(pq.numSubvectors)
}

func (pq *ProductQuantizer) codebookFor(codebooks []float32, m int) []float32 {
	size := pq.numCentroids * pq.subvectorDim
	return codebooks[m*size : (m+1)*size]
}

func (pq *ProductQuantizer) centroid(m, k int) []float32 {
	off := (m*pq.numCentroids + k) * pq.subvectorDim
	return pq.codebooks[off : off+pq.subvectorDim]
}

func (pq *ProductQuantizer) nearestCentroid(subvec []float32, m int) int {
	best := 0
	minDist := math32.SquaredL2(subvec, pq.centroid(m, 0))

	for k := 1; k < pq.numCentroids; k++ {
		d := math32.SquaredL2(subvec, pq.centroid(m, k))
		if d < minDist {
			minDist = d
			best = k
		}
	}

	return best
}
