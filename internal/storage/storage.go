// Package storage talks to the object store holding the binary logs and
// the converted CSV files.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrObjectExists is returned by UploadFile when the key is taken.
	ErrObjectExists = errors.New("object already exists")
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("object not found")
)

// ObjectInfo represents metadata for a remote file/object.
type ObjectInfo struct {
	Key     string
	Size    int64
	Updated time.Time
}

// ObjectStorage captures the operations the pipeline needs. Implementations
// are safe for concurrent use.
type ObjectStorage interface {
	// ListObjects returns every object whose key starts with prefix, in the
	// order the store reports them.
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// DownloadObject writes the object to destPath on the local filesystem.
	DownloadObject(ctx context.Context, key string, destPath string) error
	// UploadFile stores the local file at srcPath under key. It never
	// replaces an existing object and returns ErrObjectExists instead.
	UploadFile(ctx context.Context, srcPath string, key string) error
}
