package quantization

// DistanceTable holds precomputed squared distances between one query's
// subvectors and every codebook centroid.
//
// The table is flattened as [M][K]: the distance between query subvector m
// and centroid k lives at values[m*K+k]. Scoring a stored code is then M
// table lookups instead of an O(D) distance computation - the standard
// asymmetric distance computation (ADC) trick.
//
// A DistanceTable belongs to a single search call and is not safe for
// concurrent use; reuse it across calls via FillDistanceTable.
type DistanceTable struct {
	m      int
	k      int
	values []float32
}

// NewDistanceTable allocates an empty table for a quantizer with M
// subvectors and K centroids per subspace.
func NewDistanceTable(m, k int) *DistanceTable {
	return &DistanceTable{
		m:      m,
		k:      k,
		values: make([]float32, m*k),
	}
}

// Fits reports whether the table was sized for m subvectors and k centroids.
func (t *DistanceTable) Fits(m, k int) bool {
	return t.m == m && t.k == k
}

// Lookup returns the precomputed distance for sub-quantizer m, centroid k.
func (t *DistanceTable) Lookup(m, k int) float32 {
	return t.values[m*t.k+k]
}

// ADC sums the per-subvector table entries selected by code, yielding the
// approximate squared distance between the query and the encoded vector.
// The code must have M entries with indices below K; bulk scan paths
// validate codes at load time, not here.
func (t *DistanceTable) ADC(code []byte) float32 {
	var sum float32
	k := t.k
	for m, c := range code {
		sum += t.values[m*k+int(c)]
	}
	return sum
}

// BuildDistanceTable computes the ADC table for query.
func (pq *ProductQuantizer) BuildDistanceTable(query []float32) (*DistanceTable, error) {
	t := NewDistanceTable(pq.numSubvectors, pq.numCentroids)
	if err := pq.FillDistanceTable(t, query); err != nil {
		return nil, err
	}
	return t, nil
}

// FillDistanceTable recomputes t in place for query, reusing its storage.
// The table must have been created for this quantizer's M and K.
func (pq *ProductQuantizer) FillDistanceTable(t *DistanceTable, query []float32) error {
	if !pq.trained {
		return ErrNotTrained
	}
	if len(query) != pq.dimension {
		return &ErrDimensionMismatch{Expected: pq.dimension, Actual: len(query)}
	}

	subDim := pq.subvectorDim

	for m := 0; m < pq.numSubvectors; m++ {
		querySub := query[m*subDim : (m+1)*subDim]
		row := t.values[m*pq.numCentroids : (m+1)*pq.numCentroids]
		base := m * pq.numCentroids * subDim

		for k := 0; k < pq.numCentroids; k++ {
			cent := pq.codebooks[base+k*subDim : base+(k+1)*subDim]

			var dist float32
			for i, val := range querySub {
				diff := val - cent[i]
				dist += diff * diff
			}
			row[k] = dist
		}
	}

	return nil
}
