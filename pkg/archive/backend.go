// Package archive stores transcripts and synthesized audio produced by the
// CLI on local disk or in an S3-compatible bucket.
//
// Records are laid out under fixed prefixes:
//
//	transcripts/<id>.json
//	audio/<id>.<ext>
package archive

import (
	"context"
	"io"
	"iter"
)

// Backend is the object store an Archive writes to.
//
// Paths are forward-slash separated and relative to the backend root.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Read opens the named object. A missing object yields an error
	// wrapping os.ErrNotExist.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write creates or truncates the named object. The object is complete
	// once the returned writer is closed without error.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named object. Missing objects are not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named object exists.
	Exists(ctx context.Context, path string) (bool, error)

	// List yields the paths of all objects whose path starts with prefix,
	// in lexical order.
	List(ctx context.Context, prefix string) iter.Seq2[string, error]
}
