// Package vex is an embeddable approximate nearest neighbor engine for
// serving read-only IVF-PQ indexes.
//
// Indexes are built offline from a labeled vector collection, persisted
// as immutable bundles, and served from memory. Compression comes from
// product quantization; recall and latency are traded off per query via
// the number of probed clusters.
//
// # Quick Start
//
// Build and save an index:
//
//	idx, _ := index.Build(vectors, labels, index.BuildOptions{
//	    Metric:        distance.MetricCosine,
//	    NumClusters:   256,
//	    NumSubvectors: 16,
//	    NumCentroids:  256,
//	})
//	persistence.SaveToFile("./data/products.vex", func(w io.Writer) error {
//	    _, err := persistence.WriteIndex(w, idx)
//	    return err
//	})
//
// Serve it:
//
//	ctx := context.Background()
//	store, _ := blobstore.NewLocalStore("./data")
//	eng, _ := vex.Open(ctx, store, vex.WithAutoDiscover())
//	defer eng.Close()
//
//	results, _ := eng.Search(ctx, "products", query, 10, vex.NProbe(32))
//	for _, r := range results {
//	    fmt.Println(r.Label, r.Score)
//	}
//
// A search name that matches no index exactly is treated as a prefix
// and fans out over all matching indexes, merging their results.
//
// Reloading a bundle swaps the served index atomically: searches
// already running finish on the generation they started with.
//
// # Storage
//
// Bundles can live on local disk (memory-mapped), in memory, or in
// S3-compatible object storage; see the blobstore subpackages.
package vex
