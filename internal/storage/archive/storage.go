// Package archive keeps an append-only audit trail of computed predictions
// on the local filesystem or an S3-compatible bucket.
package archive

import "context"

// Storage defines the interface for archive storage backends.
// Paths are slash-separated and relative to the backend root.
type Storage interface {
	// Write stores data at the given path
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path. Missing paths yield core.ErrNotFound.
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths under the prefix
	List(ctx context.Context, prefix string) ([]string, error)
}
