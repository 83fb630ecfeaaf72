package vex

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/require"

	"github.com/vexsearch/vex/blobstore"
	"github.com/vexsearch/vex/distance"
	"github.com/vexsearch/vex/index"
	"github.com/vexsearch/vex/persistence"
)

func putBundle(t *testing.T, store blobstore.WritableBlobStore, name, labelPrefix string, anchors [][]float32) {
	t.Helper()

	var vectors [][]float32
	var labels []string
	for i, anchor := range anchors {
		for j := 0; j < 4; j++ {
			v := make([]float32, len(anchor))
			copy(v, anchor)
			v[0] += float32(j) * 0.01
			vectors = append(vectors, v)
			labels = append(labels, fmt.Sprintf("%s-%d-%d", labelPrefix, i, j))
		}
	}

	idx, err := index.Build(vectors, labels, index.BuildOptions{
		Metric:        distance.MetricL2,
		NumClusters:   2,
		NumSubvectors: 2,
		NumCentroids:  4,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = persistence.WriteIndex(&buf, idx)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), name+".vex", buf.Bytes()))
}

var testAnchors = [][]float32{
	{0, 0, 0, 0},
	{10, 10, 10, 10},
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *blobstore.MemoryStore) {
	t.Helper()
	store := blobstore.NewMemoryStore()
	opts = append([]Option{WithLogger(nil)}, opts...)
	eng, err := Open(context.Background(), store, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng, store
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)

	putBundle(t, store, "products", "p", testAnchors)
	require.NoError(t, eng.Load(ctx, "products"))
	require.Equal(t, []string{"products"}, eng.Names())

	results, err := eng.Search(ctx, "products", []float32{0, 0, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "p-0-0", results[0].Label)
	for i := 1; i < len(results); i++ {
		require.LessOrEqual(t, results[i-1].Score, results[i].Score)
	}

	require.NoError(t, eng.Unload("products"))
	_, err = eng.Search(ctx, "products", []float32{0, 0, 0, 0}, 3)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAutoDiscover(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	putBundle(t, store, "a", "a", testAnchors)
	putBundle(t, store, "b", "b", testAnchors)

	eng, err := Open(ctx, store, WithLogger(nil), WithAutoDiscover())
	require.NoError(t, err)
	defer eng.Close()

	require.Equal(t, []string{"a", "b"}, eng.Names())
}

func TestPrefixSearch(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)

	putBundle(t, store, "docs-en", "en", [][]float32{{0, 0, 0, 0}, {50, 50, 50, 50}})
	putBundle(t, store, "docs-de", "de", [][]float32{{20, 20, 20, 20}, {90, 90, 90, 90}})
	require.NoError(t, eng.Load(ctx, "docs-en"))
	require.NoError(t, eng.Load(ctx, "docs-de"))

	results, err := eng.Search(ctx, "docs", []float32{0, 0, 0, 0}, 6)
	require.NoError(t, err)
	require.Len(t, results, 6)
	require.Equal(t, "en-0-0", results[0].Label)
}

func TestSearchOptions(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t, WithDefaultNProbe(1))

	putBundle(t, store, "items", "i", testAnchors)
	require.NoError(t, eng.Load(ctx, "items"))

	// With one probe only the query's home cluster is scanned.
	results, err := eng.Search(ctx, "items", []float32{0, 0, 0, 0}, 8)
	require.NoError(t, err)
	require.Len(t, results, 4)

	// Overriding nProbe widens the scan.
	results, err = eng.Search(ctx, "items", []float32{0, 0, 0, 0}, 8, NProbe(2))
	require.NoError(t, err)
	require.Len(t, results, 8)

	// An explicit nProbe beyond the cluster count is rejected on an
	// exact-name search but capped on a prefix fan-out.
	_, err = eng.Search(ctx, "items", []float32{0, 0, 0, 0}, 8, NProbe(100))
	var np *ErrInvalidNProbe
	require.ErrorAs(t, err, &np)

	results, err = eng.Search(ctx, "item", []float32{0, 0, 0, 0}, 8, NProbe(100))
	require.NoError(t, err)
	require.Len(t, results, 8)

	// Ordinal filter keeps only the second inserted vector.
	filter := roaring.New()
	filter.Add(1)
	results, err = eng.Search(ctx, "items", []float32{0, 0, 0, 0}, 8, NProbe(2), WithFilter(filter))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "i-0-1", results[0].Label)
}

func TestErrorTranslation(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)

	putBundle(t, store, "items", "i", testAnchors)
	require.NoError(t, eng.Load(ctx, "items"))

	_, err := eng.Search(ctx, "items", []float32{0, 0, 0, 0}, 0)
	require.ErrorIs(t, err, ErrInvalidK)

	_, err = eng.Search(ctx, "items", []float32{0, 0}, 3)
	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	require.Equal(t, 4, dm.Expected)
	require.Equal(t, 2, dm.Actual)

	_, err = eng.Search(ctx, "items", []float32{0, 0, 0, 0}, 3, NProbe(-1))
	var np *ErrInvalidNProbe
	require.ErrorAs(t, err, &np)

	err = eng.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, "bad.vex", []byte("garbage")))
	err = eng.Load(ctx, "bad")
	require.ErrorIs(t, err, ErrCorrupt)
}
