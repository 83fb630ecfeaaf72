// Package manager keeps a registry of loaded indexes and serves
// lock-free lookups against them. Each index name points at the current
// generation through an atomic pointer; reloading swaps the pointer, so
// searches already running keep their generation until they finish and
// new searches see the fresh build immediately.
package manager

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/vexsearch/vex/blobstore"
	"github.com/vexsearch/vex/persistence"
	"github.com/vexsearch/vex/searcher"
)

// BundleSuffix is the blob name suffix of persisted index bundles.
const BundleSuffix = ".vex"

// DefaultNProbe is the probe count used by searches that pass zero.
const DefaultNProbe = 8

// ErrIndexNotFound is returned when no registered index matches a name
// or name prefix.
type ErrIndexNotFound struct {
	Name string
}

func (e *ErrIndexNotFound) Error() string {
	return fmt.Sprintf("index not found: %q", e.Name)
}

type entry struct {
	current atomic.Pointer[generation]
}

// Manager loads index bundles from a blob store and routes searches to
// them by name or name prefix.
type Manager struct {
	store   blobstore.BlobStore
	logger  *slog.Logger
	limiter *rate.Limiter
	nProbe  int

	mu      sync.RWMutex
	entries map[string]*entry
	seq     atomic.Uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRefreshInterval sets the minimum interval between Refresh passes.
// Refresh calls inside the interval return without touching the store.
// A zero interval disables throttling.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.limiter = rate.NewLimiter(rate.Every(d), 1)
		} else {
			m.limiter = nil
		}
	}
}

// WithDefaultNProbe sets the probe count applied when Search is called
// with nProbe zero.
func WithDefaultNProbe(nProbe int) Option {
	return func(m *Manager) {
		if nProbe > 0 {
			m.nProbe = nProbe
		}
	}
}

// New creates a Manager over the given blob store.
func New(store blobstore.BlobStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		logger:  slog.Default(),
		limiter: rate.NewLimiter(rate.Every(30*time.Second), 1),
		nProbe:  DefaultNProbe,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load reads the bundle <name>.vex from the blob store and installs it
// under name. If the name is already registered, the new generation is
// swapped in atomically and the old one retires once its in-flight
// searches finish.
func (m *Manager) Load(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("index name must not be empty")
	}

	start := time.Now()

	blob, err := m.store.Open(ctx, name+BundleSuffix)
	if err != nil {
		return fmt.Errorf("open bundle for %q: %w", name, err)
	}
	defer blob.Close()

	data, err := blobstore.ReadAll(ctx, blob)
	if err != nil {
		return fmt.Errorf("read bundle for %q: %w", name, err)
	}

	idx, err := persistence.ReadIndex(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode bundle for %q: %w", name, err)
	}

	gen := newGeneration(name, m.seq.Add(1), idx)

	m.mu.Lock()
	e, ok := m.entries[name]
	if !ok {
		e = &entry{}
		m.entries[name] = e
	}
	m.mu.Unlock()

	if old := e.current.Swap(gen); old != nil {
		old.retire()
	}

	m.logger.InfoContext(ctx, "index loaded",
		"name", name,
		"generation", gen.seq,
		"vectors", idx.Count(),
		"dimension", idx.Dimension(),
		"metric", idx.Metric().String(),
		"duration", time.Since(start),
	)
	return nil
}

// Unload removes an index from the registry. In-flight searches on it
// finish normally.
func (m *Manager) Unload(name string) error {
	m.mu.Lock()
	e, ok := m.entries[name]
	if ok {
		delete(m.entries, name)
	}
	m.mu.Unlock()

	if !ok {
		return &ErrIndexNotFound{Name: name}
	}
	if gen := e.current.Swap(nil); gen != nil {
		gen.retire()
	}

	m.logger.Info("index unloaded", "name", name)
	return nil
}

// Names returns the registered index names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	m.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Acquire pins the current generation of the named index. The caller
// must Close the handle when done.
func (m *Manager) Acquire(name string) (*Handle, error) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return nil, &ErrIndexNotFound{Name: name}
	}

	// A load can swap the generation between reading the pointer and
	// taking the reference, in which case acquire fails and we re-read.
	for {
		gen := e.current.Load()
		if gen == nil {
			return nil, &ErrIndexNotFound{Name: name}
		}
		if gen.acquire() {
			return &Handle{gen: gen}, nil
		}
	}
}

// Search runs a top-k query. If name matches a registered index
// exactly, only that index is searched and nProbe is validated strictly
// against its cluster count. Otherwise name is treated as a prefix and
// the query fans out over every matching index, with nProbe capped at
// each index's cluster count and the per-index results merged into a
// single ascending top-k.
//
// nProbe zero selects the manager's default probe count, capped at the
// cluster count of each searched index.
func (m *Manager) Search(ctx context.Context, name string, query []float32, k, nProbe int, opts *searcher.Options) ([]searcher.Result, error) {
	clamp := false
	if nProbe == 0 {
		nProbe = m.nProbe
		clamp = true
	}

	targets, exact, err := m.resolve(name)
	if err != nil {
		return nil, err
	}

	if exact {
		return m.searchOne(ctx, targets[0], query, k, nProbe, clamp, opts)
	}

	var merged []searcher.Result
	for _, target := range targets {
		results, err := m.searchOne(ctx, target, query, k, nProbe, true, opts)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", target, err)
		}
		merged = append(merged, results...)
	}

	// Stable over the sorted target order keeps the merge deterministic
	// when scores collide across indexes.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score < merged[j].Score
	})
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

func (m *Manager) searchOne(ctx context.Context, name string, query []float32, k, nProbe int, clamp bool, opts *searcher.Options) ([]searcher.Result, error) {
	h, err := m.Acquire(name)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	idx := h.Index()
	if clusters := idx.Router().NumClusters(); clamp && nProbe > clusters {
		nProbe = clusters
	}
	return searcher.Search(ctx, idx, query, k, nProbe, opts)
}

// resolve maps a query name to concrete index names: an exact match
// wins, otherwise all names with the given prefix, sorted.
func (m *Manager) resolve(name string) ([]string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.entries[name]; ok {
		return []string{name}, true, nil
	}

	var targets []string
	for candidate := range m.entries {
		if strings.HasPrefix(candidate, name) {
			targets = append(targets, candidate)
		}
	}
	if len(targets) == 0 {
		return nil, false, &ErrIndexNotFound{Name: name}
	}
	sort.Strings(targets)
	return targets, false, nil
}

// Refresh lists the blob store and loads every bundle it finds,
// swapping in fresh generations for names already registered. Calls
// inside the configured refresh interval are dropped. It returns the
// number of bundles loaded.
func (m *Manager) Refresh(ctx context.Context) (int, error) {
	if m.limiter != nil && !m.limiter.Allow() {
		return 0, nil
	}

	names, err := m.Discover(ctx)
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, name := range names {
		if err := m.Load(ctx, name); err != nil {
			m.logger.WarnContext(ctx, "bundle load failed", "name", name, "error", err)
			continue
		}
		loaded++
	}
	return loaded, nil
}

// Discover returns the index names with a bundle in the blob store,
// without loading them.
func (m *Manager) Discover(ctx context.Context) ([]string, error) {
	blobs, err := m.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}

	var names []string
	for _, blob := range blobs {
		if strings.HasSuffix(blob, BundleSuffix) {
			names = append(names, strings.TrimSuffix(blob, BundleSuffix))
		}
	}
	return names, nil
}

// Close unloads all indexes.
func (m *Manager) Close() error {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range entries {
		if gen := e.current.Swap(nil); gen != nil {
			gen.retire()
		}
	}
	return nil
}
