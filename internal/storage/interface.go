package storage

import (
	"context"
	"io"
)

// ObjectStorage is the report archive backend. Generated job reports are
// written once and read back by URL or key.
type ObjectStorage interface {
	// Upload writes an object under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download streams an object back. The caller closes the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the public URL for an object.
	GetURL(key string) string

	// Exists reports whether an object is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes an object.
	Delete(ctx context.Context, key string) error
}
