package vex

import (
	"errors"
	"fmt"

	"github.com/vexsearch/vex/blobstore"
	"github.com/vexsearch/vex/index"
	"github.com/vexsearch/vex/manager"
	"github.com/vexsearch/vex/persistence"
)

var (
	// ErrNotFound is returned when no index matches a name or prefix.
	ErrNotFound = errors.New("index not found")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrCorrupt is returned when an index bundle fails validation.
	ErrCorrupt = errors.New("corrupt index bundle")
)

// ErrDimensionMismatch indicates a query/index dimensionality mismatch.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrInvalidNProbe indicates an out-of-range probe count.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrInvalidNProbe struct {
	NProbe int
	Max    int
	cause  error
}

func (e *ErrInvalidNProbe) Error() string {
	return fmt.Sprintf("invalid nprobe %d: must be in [1, %d]", e.NProbe, e.Max)
}

func (e *ErrInvalidNProbe) Unwrap() error { return e.cause }

// translateError normalizes subpackage errors into the package's
// public error surface.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var inf *manager.ErrIndexNotFound
	if errors.As(err, &inf) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	var np *index.ErrInvalidNProbe
	if errors.As(err, &np) {
		return &ErrInvalidNProbe{NProbe: np.NProbe, Max: np.Max, cause: err}
	}
	if errors.Is(err, index.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}

	if errors.Is(err, persistence.ErrCorruptIndex) {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	return err
}
