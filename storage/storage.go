// Package storage keeps an off-site copy of encrypted containers in an
// S3-compatible object store. Only ciphertext ever leaves the host: replica
// objects are byte-for-byte copies of the on-disk containers, so the replica
// needs no access to the encryption key.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo contains basic information about a replicated object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// Replicator mirrors encrypted containers to remote object storage.
// Implementations must be safe for concurrent use.
type Replicator interface {
	// Put uploads a container copy under the given key using the provided reader.
	Put(ctx context.Context, key string, r io.Reader, size int64) (ObjectInfo, error)
	// Get retrieves a replicated container as a streaming reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes a replicated container by key.
	Delete(ctx context.Context, key string) error
}
