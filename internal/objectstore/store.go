// Package objectstore stores uploaded blobs by slash-separated path.
package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned when no object exists at a path.
	ErrNotFound = errors.New("objectstore: object not found")
	// ErrInvalidPath is returned for empty, absolute or escaping paths.
	ErrInvalidPath = errors.New("objectstore: invalid path")
)

// Handle identifies an uploaded object.
type Handle struct {
	Path        string
	Size        int64
	ContentType string
}

// Object describes a stored blob.
type Object struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Store is the object store used by the image adapter, media serving and reconciliation.
type Store interface {
	Upload(ctx context.Context, path string, blob []byte, contentType string) (Handle, error)
	ResolveURL(ctx context.Context, h Handle) (string, error)
	Delete(ctx context.Context, path string) error
	Open(ctx context.Context, path string) (io.ReadCloser, *Object, error)
	Walk(ctx context.Context, prefix string, fn func(Object) error) error
}
