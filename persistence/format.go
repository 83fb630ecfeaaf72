// Package persistence implements the binary on-disk format for indexes:
// a fixed header, the raw codebook sections, a zstd-compressed posting
// section laid out contiguously per cluster, and a trailing CRC32.
package persistence

import "errors"

const (
	// MagicNumber identifies vex index files (ASCII: "VEXI").
	MagicNumber = 0x56455849
	// Version is the current file format version (v1.0.0).
	Version = 0x00010000
)

var (
	// ErrCorruptIndex is returned when a persisted index fails structural
	// validation. Errors wrap it with detail; match with errors.Is.
	ErrCorruptIndex = errors.New("corrupt index")

	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported version")
)

// FileHeader is the fixed-size header at the start of every index file.
// All multi-byte fields are little-endian.
type FileHeader struct {
	Magic      uint32 // 0x56455849 ("VEXI")
	Version    uint32 // File format version
	Metric     uint8  // distance.Metric value
	Compressed uint8  // 1 = posting section is zstd-compressed
	Padding    [2]byte

	Dimension     uint32 // D: vector dimensionality
	NumClusters   uint32 // K_coarse: coarse cluster count
	NumSubvectors uint32 // M: PQ subvector count
	NumCentroids  uint32 // K_sub: centroids per subspace
	Count         uint64 // Total number of postings
}
