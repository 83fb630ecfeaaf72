package manager

import (
	"sync/atomic"

	"github.com/vexsearch/vex/index"
)

// generation is one immutable loaded build of an index. The registry
// holds one reference; every in-flight search holds another. A swap
// retires the registry reference, and the generation stays alive until
// the last search releases it.
type generation struct {
	name string
	seq  uint64
	idx  *index.Index
	refs atomic.Int64
}

func newGeneration(name string, seq uint64, idx *index.Index) *generation {
	g := &generation{name: name, seq: seq, idx: idx}
	g.refs.Store(1)
	return g
}

// acquire takes a reference. It fails if the generation is already
// fully released, in which case the caller must re-read the current
// generation pointer.
func (g *generation) acquire() bool {
	for {
		n := g.refs.Load()
		if n <= 0 {
			return false
		}
		if g.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (g *generation) release() {
	if g.refs.Add(-1) == 0 {
		g.idx = nil
	}
}

// retire drops the registry reference taken at construction.
func (g *generation) retire() {
	g.release()
}

// Handle pins a generation for use outside the manager. Close releases
// the pin; the Index must not be used afterwards.
type Handle struct {
	gen *generation
}

// Index returns the pinned index.
func (h *Handle) Index() *index.Index {
	return h.gen.idx
}

// Name returns the registered index name.
func (h *Handle) Name() string {
	return h.gen.name
}

// Close releases the pin.
func (h *Handle) Close() error {
	h.gen.release()
	return nil
}
