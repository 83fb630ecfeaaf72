// Package blobstore abstracts where persisted index bundles live: local
// disk, memory, or S3-compatible object storage. Serving never touches a
// store; only the index manager reads bundles at load time.
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// errors.Is(err, ErrNotFound). The default maps to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// BlobStore is an abstraction for accessing immutable index bundles.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)

	// List returns the blob names under the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// WritableBlobStore is a BlobStore that also accepts uploads. Index
// builders use it to publish bundles; the serving path never writes.
type WritableBlobStore interface {
	BlobStore

	// Put writes a blob atomically under the given name.
	Put(ctx context.Context, name string, data []byte) error
}

// Blob is a read-only handle to one bundle.
type Blob interface {
	// ReadAt reads len(p) bytes starting at off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)

	// Size returns the size of the blob in bytes.
	Size() int64

	io.Closer
}

// Mappable is an optional interface for Blobs that can hand out their
// full content as one byte slice, either already resident (memory
// blobs, mmap-backed local blobs) or via a bulk fetch. The slice is
// valid until the Blob is closed.
type Mappable interface {
	Bytes(ctx context.Context) ([]byte, error)
}

// ReadAll returns the blob's full content. Mappable blobs are returned
// through Bytes; others are read through ReadAt in one call.
func ReadAll(ctx context.Context, b Blob) ([]byte, error) {
	if m, ok := b.(Mappable); ok {
		return m.Bytes(ctx)
	}

	buf := make([]byte, b.Size())
	n, err := b.ReadAt(ctx, buf, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}
