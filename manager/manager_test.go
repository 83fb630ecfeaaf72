package manager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vexsearch/vex/blobstore"
	"github.com/vexsearch/vex/distance"
	"github.com/vexsearch/vex/index"
	"github.com/vexsearch/vex/persistence"
)

// buildBundle creates a tiny index around the given anchor points and
// serializes it. Each anchor gets a small cloud of labeled vectors so
// training has something to chew on.
func buildBundle(t *testing.T, labelPrefix string, anchors [][]float32) []byte {
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
	return buf.Bytes()
}

var testAnchors = [][]float32{
	{0, 0, 0, 0},
	{10, 10, 10, 10},
}

func newTestManager(t *testing.T) (*Manager, *blobstore.MemoryStore) {
	t.Helper()
	store := blobstore.NewMemoryStore()
	m := New(store, WithRefreshInterval(0))
	t.Cleanup(func() { m.Close() })
	return m, store
}

func TestLoadAndSearch(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	require.NoError(t, store.Put(ctx, "products.vex", buildBundle(t, "p", testAnchors)))
	require.NoError(t, m.Load(ctx, "products"))

	results, err := m.Search(ctx, "products", []float32{0, 0, 0, 0}, 3, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "p-0-0", results[0].Label)

	require.Equal(t, []string{"products"}, m.Names())
}

func TestSearchUnknownIndex(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Search(context.Background(), "nope", []float32{0, 0, 0, 0}, 1, 1, nil)
	var notFound *ErrIndexNotFound
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "nope", notFound.Name)
}

func TestLoadMissingBundle(t *testing.T) {
	m, _ := newTestManager(t)

	err := m.Load(context.Background(), "ghost")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestPrefixFanOut(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	// Two shards of the same logical collection, plus an unrelated index.
	near := [][]float32{{0, 0, 0, 0}, {50, 50, 50, 50}}
	far := [][]float32{{20, 20, 20, 20}, {90, 90, 90, 90}}
	require.NoError(t, store.Put(ctx, "products-a.vex", buildBundle(t, "a", near)))
	require.NoError(t, store.Put(ctx, "products-b.vex", buildBundle(t, "b", far)))
	require.NoError(t, store.Put(ctx, "users.vex", buildBundle(t, "u", near)))

	for _, name := range []string{"products-a", "products-b", "users"} {
		require.NoError(t, m.Load(ctx, name))
	}

	results, err := m.Search(ctx, "products", []float32{0, 0, 0, 0}, 6, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 6)

	// The global nearest live in products-a's first cloud; nothing from
	// users may leak in.
	require.Equal(t, "a-0-0", results[0].Label)
	for _, r := range results {
		require.NotContains(t, r.Label, "u-")
	}
	for i := 1; i < len(results); i++ {
		require.LessOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSearchHugeK(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	require.NoError(t, store.Put(ctx, "shard-a.vex", buildBundle(t, "a", testAnchors)))
	require.NoError(t, store.Put(ctx, "shard-b.vex", buildBundle(t, "b", testAnchors)))
	require.NoError(t, m.Load(ctx, "shard-a"))
	require.NoError(t, m.Load(ctx, "shard-b"))

	// k far beyond the corpus size is valid and returns everything,
	// both on one index and across a fan-out merge.
	results, err := m.Search(ctx, "shard-a", []float32{0, 0, 0, 0}, math.MaxInt, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 8)

	results, err = m.Search(ctx, "shard", []float32{0, 0, 0, 0}, math.MaxInt, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 16)
}

func TestSearchNProbeValidation(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	require.NoError(t, store.Put(ctx, "shard-a.vex", buildBundle(t, "a", testAnchors)))
	require.NoError(t, m.Load(ctx, "shard-a"))

	// Exact-name searches keep the strict probe range check.
	_, err := m.Search(ctx, "shard-a", []float32{0, 0, 0, 0}, 2, 100, nil)
	var np *index.ErrInvalidNProbe
	require.ErrorAs(t, err, &np)
	require.Equal(t, 100, np.NProbe)
	require.Equal(t, 2, np.Max)

	// A prefix fan-out caps nProbe at each index's cluster count.
	results, err := m.Search(ctx, "shard", []float32{0, 0, 0, 0}, 2, 100, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// nProbe zero selects the manager default, likewise capped.
	results, err = m.Search(ctx, "shard-a", []float32{0, 0, 0, 0}, 8, 0, nil)
	require.NoError(t, err)
	require.Len(t, results, 8)
}

func TestSwapReplacesGeneration(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	require.NoError(t, store.Put(ctx, "items.vex", buildBundle(t, "old", testAnchors)))
	require.NoError(t, m.Load(ctx, "items"))

	// Pin the old generation, then swap in a new build.
	h, err := m.Acquire("items")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "items.vex", buildBundle(t, "new", testAnchors)))
	require.NoError(t, m.Load(ctx, "items"))

	// New searches see the new build.
	results, err := m.Search(ctx, "items", []float32{0, 0, 0, 0}, 1, 2, nil)
	require.NoError(t, err)
	require.Equal(t, "new-0-0", results[0].Label)

	// The pinned handle still serves the old build.
	require.NotNil(t, h.Index())
	require.Equal(t, 8, h.Index().Count())
	require.NoError(t, h.Close())
}

func TestUnload(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	require.NoError(t, store.Put(ctx, "items.vex", buildBundle(t, "x", testAnchors)))
	require.NoError(t, m.Load(ctx, "items"))

	require.NoError(t, m.Unload("items"))
	require.Empty(t, m.Names())

	var notFound *ErrIndexNotFound
	err := m.Unload("items")
	require.ErrorAs(t, err, &notFound)

	_, err = m.Acquire("items")
	require.ErrorAs(t, err, &notFound)
}

func TestConcurrentSearchDuringSwap(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	require.NoError(t, store.Put(ctx, "live.vex", buildBundle(t, "v", testAnchors)))
	require.NoError(t, m.Load(ctx, "live"))

	stop := make(chan struct{})
	errCh := make(chan error, 4)
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				results, err := m.Search(ctx, "live", []float32{0, 0, 0, 0}, 2, 2, nil)
				if err != nil {
					errCh <- err
					return
				}
				if len(results) != 2 {
					errCh <- fmt.Errorf("got %d results, want 2", len(results))
					return
				}
			}
		}()
	}

	for i := 0; i < 20; i++ {
		require.NoError(t, m.Load(ctx, "live"))
	}
	close(stop)
	wg.Wait()

	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}
}

func TestDiscoverAndRefresh(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	m := New(store, WithRefreshInterval(time.Hour))
	defer m.Close()

	require.NoError(t, store.Put(ctx, "a.vex", buildBundle(t, "a", testAnchors)))
	require.NoError(t, store.Put(ctx, "b.vex", buildBundle(t, "b", testAnchors)))
	require.NoError(t, store.Put(ctx, "notes.txt", []byte("not a bundle")))

	names, err := m.Discover(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, names)

	loaded, err := m.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, loaded)
	require.Equal(t, []string{"a", "b"}, m.Names())

	// Inside the refresh interval the second pass is dropped.
	loaded, err = m.Refresh(ctx)
	require.NoError(t, err)
	require.Zero(t, loaded)
}

func TestRefreshSkipsCorruptBundle(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	require.NoError(t, store.Put(ctx, "good.vex", buildBundle(t, "g", testAnchors)))
	require.NoError(t, store.Put(ctx, "bad.vex", []byte("garbage")))

	loaded, err := m.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, loaded)
	require.Equal(t, []string{"good"}, m.Names())
}

func TestCorruptBundleReportsError(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	require.NoError(t, store.Put(ctx, "bad.vex", []byte("garbage")))
	err := m.Load(ctx, "bad")
	require.Error(t, err)
	require.True(t, errors.Is(err, persistence.ErrCorruptIndex))
}
