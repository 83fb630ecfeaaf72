package vex

import (
	"context"

	"github.com/vexsearch/vex/blobstore"
	"github.com/vexsearch/vex/manager"
	"github.com/vexsearch/vex/searcher"
)

// DefaultNProbe is the probe count used when neither the engine nor the
// search sets one.
const DefaultNProbe = manager.DefaultNProbe

// Result is one search hit. Score is squared L2 distance between the
// query and the quantized vector (cosine indexes normalize first), so
// lower is closer.
type Result struct {
	Label string
	Score float32
}

// Engine serves top-k queries over the indexes registered in its
// manager. All methods are safe for concurrent use.
type Engine struct {
	manager *manager.Manager
	logger  *Logger
}

// Open creates an engine over the given blob store. With
// WithAutoDiscover, every bundle in the store is loaded before Open
// returns.
func Open(ctx context.Context, store blobstore.BlobStore, opts ...Option) (*Engine, error) {
	o := options{
		logger: NewLogger(nil),
		nProbe: DefaultNProbe,
	}
	for _, opt := range opts {
		opt(&o)
	}

	mgrOpts := []manager.Option{
		manager.WithLogger(o.logger.Logger),
		manager.WithDefaultNProbe(o.nProbe),
	}
	if o.refreshInterval > 0 {
		mgrOpts = append(mgrOpts, manager.WithRefreshInterval(o.refreshInterval))
	}

	e := &Engine{
		manager: manager.New(store, mgrOpts...),
		logger:  o.logger,
	}

	if o.autoDiscover {
		loaded, err := e.manager.Refresh(ctx)
		e.logger.LogRefresh(ctx, loaded, err)
		if err != nil {
			return nil, translateError(err)
		}
	}
	return e, nil
}

// Load reads the bundle for name from the blob store and makes it
// searchable, atomically replacing any generation already serving under
// that name.
func (e *Engine) Load(ctx context.Context, name string) error {
	err := e.manager.Load(ctx, name)
	e.logger.LogLoad(ctx, name, err)
	return translateError(err)
}

// Unload removes an index. In-flight searches on it finish normally.
func (e *Engine) Unload(name string) error {
	return translateError(e.manager.Unload(name))
}

// Names returns the loaded index names, sorted.
func (e *Engine) Names() []string {
	return e.manager.Names()
}

// Refresh lists the blob store and loads every bundle it finds. Calls
// inside the configured refresh interval are dropped. It returns the
// number of bundles loaded.
func (e *Engine) Refresh(ctx context.Context) (int, error) {
	loaded, err := e.manager.Refresh(ctx)
	e.logger.LogRefresh(ctx, loaded, err)
	return loaded, translateError(err)
}

// Search returns the k nearest labels to query, ordered by ascending
// score. name selects an index; if it matches none exactly, it is
// treated as a prefix and the search fans out over all matching
// indexes.
//
// Without an NProbe option the engine's default probe count applies,
// capped at each index's cluster count. An explicit NProbe is validated
// strictly on exact-name searches and capped only on fan-out.
func (e *Engine) Search(ctx context.Context, name string, query []float32, k int, opts ...SearchOption) ([]Result, error) {
	var so searchOptions
	for _, opt := range opts {
		opt(&so)
	}

	var searchOpts *searcher.Options
	if so.filter != nil {
		searchOpts = &searcher.Options{Filter: so.filter}
	}

	hits, err := e.manager.Search(ctx, name, query, k, so.nProbe, searchOpts)
	e.logger.LogSearch(ctx, name, k, len(hits), err)
	if err != nil {
		return nil, translateError(err)
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{Label: h.Label, Score: h.Score}
	}
	return results, nil
}

// Close unloads all indexes.
func (e *Engine) Close() error {
	return e.manager.Close()
}
