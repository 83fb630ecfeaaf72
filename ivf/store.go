// Package ivf implements the inverted-list store of the index: one posting
// list per coarse cluster, holding compressed codes and their external
// labels.
//
// Codes within a list are stored in one contiguous byte slice (SOA layout)
// so a cluster scan walks memory linearly. This contiguity is an invariant
// the scan loop's performance depends on, not a convenience.
package ivf

import (
	"errors"
	"fmt"
	"slices"
)

// ErrUnknownCluster indicates a posting routed to a cluster id outside the
// coarse codebook. This is an index-construction invariant violation, not a
// query-time condition.
type ErrUnknownCluster struct {
	Cluster  int
	Clusters int
}

func (e *ErrUnknownCluster) Error() string {
	return fmt.Sprintf("unknown cluster %d: index has %d clusters", e.Cluster, e.Clusters)
}

// ErrCodeSize indicates a code whose byte length does not match the store's
// configured code size.
type ErrCodeSize struct {
	Expected int
	Actual   int
}

func (e *ErrCodeSize) Error() string {
	return fmt.Sprintf("code size mismatch: expected %d bytes, got %d", e.Expected, e.Actual)
}

// Posting is one (code, label) pair yielded during a cluster scan. Code is
// a view into the store's contiguous storage and must not be mutated or
// retained past the scan.
type Posting struct {
	Code  []byte
	Label string

	// Ord is the posting's dense insertion ordinal across the whole index.
	// It is the deterministic tie-breaker for equal distances and the key
	// space for allow-list filters.
	Ord uint32
}

// Entry is one posting to bulk-load, tagged with its assigned cluster.
type Entry struct {
	Cluster int
	Code    []byte
	Label   string
}

type list struct {
	codes  []byte
	labels []string
	ords   []uint32
}

// Store holds the per-cluster posting lists.
//
// A Store is written during build and read-only afterwards: any number of
// concurrent readers may iterate once no writer is active.
type Store struct {
	codeSize int
	lists    []list
	count    int
}

// NewStore creates an empty store for numClusters clusters with codeSize
// bytes per code.
func NewStore(numClusters, codeSize int) (*Store, error) {
	if numClusters <= 0 {
		return nil, errors.New("numClusters must be positive")
	}
	if codeSize <= 0 {
		return nil, errors.New("codeSize must be positive")
	}

	return &Store{
		codeSize: codeSize,
		lists:    make([]list, numClusters),
	}, nil
}

// NumClusters returns the number of posting lists.
func (s *Store) NumClusters() int { return len(s.lists) }

// CodeSize returns the byte length of every stored code.
func (s *Store) CodeSize() int { return s.codeSize }

// Count returns the total number of postings across all clusters.
func (s *Store) Count() int { return s.count }

// ClusterLen returns the number of postings in cluster c.
func (s *Store) ClusterLen(c int) (int, error) {
	if c < 0 || c >= len(s.lists) {
		return 0, &ErrUnknownCluster{Cluster: c, Clusters: len(s.lists)}
	}
	return len(s.lists[c].labels), nil
}

// Add appends one posting to cluster c and returns its ordinal. The code
// bytes are copied into the cluster's contiguous storage.
func (s *Store) Add(c int, code []byte, label string) (uint32, error) {
	if c < 0 || c >= len(s.lists) {
		return 0, &ErrUnknownCluster{Cluster: c, Clusters: len(s.lists)}
	}
	if len(code) != s.codeSize {
		return 0, &ErrCodeSize{Expected: s.codeSize, Actual: len(code)}
	}

	ord := uint32(s.count)
	l := &s.lists[c]
	l.codes = append(l.codes, code...)
	l.labels = append(l.labels, label)
	l.ords = append(l.ords, ord)
	s.count++

	return ord, nil
}

// AddWithOrd appends a posting with an explicit ordinal. Loaders replaying
// a persisted index use it to restore original insertion ordinals; mixing
// it with Add on the same store is the caller's responsibility.
func (s *Store) AddWithOrd(c int, code []byte, label string, ord uint32) error {
	if c < 0 || c >= len(s.lists) {
		return &ErrUnknownCluster{Cluster: c, Clusters: len(s.lists)}
	}
	if len(code) != s.codeSize {
		return &ErrCodeSize{Expected: s.codeSize, Actual: len(code)}
	}

	l := &s.lists[c]
	l.codes = append(l.codes, code...)
	l.labels = append(l.labels, label)
	l.ords = append(l.ords, ord)
	s.count++

	return nil
}

// BulkLoad groups entries by cluster and appends them with contiguous
// per-cluster storage preallocated in one pass. Ordinals follow the input
// order, so ties at search time resolve by original insertion order even
// though physical storage is grouped.
func (s *Store) BulkLoad(entries []Entry) error {
	sizes := make([]int, len(s.lists))
	for i := range entries {
		e := &entries[i]
		if e.Cluster < 0 || e.Cluster >= len(s.lists) {
			return &ErrUnknownCluster{Cluster: e.Cluster, Clusters: len(s.lists)}
		}
		if len(e.Code) != s.codeSize {
			return &ErrCodeSize{Expected: s.codeSize, Actual: len(e.Code)}
		}
		sizes[e.Cluster]++
	}

	for c := range s.lists {
		if sizes[c] == 0 {
			continue
		}
		l := &s.lists[c]
		l.codes = slices.Grow(l.codes, sizes[c]*s.codeSize)
		l.labels = slices.Grow(l.labels, sizes[c])
		l.ords = slices.Grow(l.ords, sizes[c])
	}

	for i := range entries {
		e := &entries[i]
		if _, err := s.Add(e.Cluster, e.Code, e.Label); err != nil {
			return err
		}
	}

	return nil
}

// Iterate returns a restartable iterator over cluster c's postings in
// storage order. Safe for concurrent readers; each call owns its iterator.
func (s *Store) Iterate(c int) (*Iterator, error) {
	if c < 0 || c >= len(s.lists) {
		return nil, &ErrUnknownCluster{Cluster: c, Clusters: len(s.lists)}
	}

	return &Iterator{
		list:     &s.lists[c],
		codeSize: s.codeSize,
	}, nil
}

// Iterator walks one posting list. Not safe for concurrent use; create one
// iterator per scanning goroutine.
type Iterator struct {
	list     *list
	codeSize int
	pos      int
}

// Next returns the next posting. The returned Posting's Code aliases the
// store's internal buffer and is only valid until the store is released.
func (it *Iterator) Next() (Posting, bool) {
	if it.pos >= len(it.list.labels) {
		return Posting{}, false
	}

	i := it.pos
	it.pos++

	return Posting{
		Code:  it.list.codes[i*it.codeSize : (i+1)*it.codeSize],
		Label: it.list.labels[i],
		Ord:   it.list.ords[i],
	}, true
}

// Reset rewinds the iterator to the start of the list.
func (it *Iterator) Reset() {
	it.pos = 0
}
