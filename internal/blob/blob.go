// Package blob stores opaque named objects, used for index snapshots.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when the named object does not exist.
var ErrNotFound = errors.New("object not found")

// Store is a flat namespace of named byte streams.
type Store interface {
	// Put writes the object, replacing any previous content under name.
	Put(ctx context.Context, name string, r io.Reader) error
	// Get opens the object for reading. The caller closes it.
	Get(ctx context.Context, name string) (io.ReadCloser, error)
	// List returns the stored object names in lexical order.
	List(ctx context.Context) ([]string, error)
}
