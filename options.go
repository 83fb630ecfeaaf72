package vex

import (
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

type options struct {
	logger          *Logger
	nProbe          int
	refreshInterval time.Duration
	autoDiscover    bool
}

// Option configures engine construction.
type Option func(*options)

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithDefaultNProbe sets the probe count used by searches that do not
// set one explicitly. Higher values improve recall at the cost of
// latency; the effective value is capped at an index's cluster count.
func WithDefaultNProbe(nProbe int) Option {
	return func(o *options) {
		o.nProbe = nProbe
	}
}

// WithRefreshInterval sets the minimum interval between Refresh passes
// against the blob store. A zero interval disables throttling.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *options) {
		o.refreshInterval = d
	}
}

// WithAutoDiscover loads every bundle found in the blob store during
// Open.
func WithAutoDiscover() Option {
	return func(o *options) {
		o.autoDiscover = true
	}
}

type searchOptions struct {
	nProbe int
	filter *roaring.Bitmap
}

// SearchOption configures a single search.
type SearchOption func(*searchOptions)

// NProbe overrides the engine's default probe count for this search.
// On an exact-name search the value must be within [1, cluster count];
// on a prefix fan-out it is capped at each index's cluster count.
func NProbe(nProbe int) SearchOption {
	return func(o *searchOptions) {
		o.nProbe = nProbe
	}
}

// WithFilter restricts results to postings whose insertion ordinal is
// set in the bitmap.
func WithFilter(filter *roaring.Bitmap) SearchOption {
	return func(o *searchOptions) {
		o.filter = filter
	}
}
