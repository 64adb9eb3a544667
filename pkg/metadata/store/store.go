// Package store defines durable, serialized access to the metadata
// document. Backends guarantee single-writer semantics: no two Update
// calls run concurrently, and a failed mutator leaves no trace.
package store

import (
	"context"

	"github.com/dropgate/dropgate/pkg/metadata"
)

// Store is the durable home of the state document.
//
// Both callbacks receive a document that is only valid until the
// callback returns; callers must copy out anything they keep. Clone
// what you return, not what you read.
type Store interface {
	// View runs fn against the current committed document. The
	// document must be treated as read-only.
	View(ctx context.Context, fn func(doc *metadata.Document) error) error

	// Update runs fn against a working copy of the document and
	// commits it when fn returns nil. When fn returns an error the
	// working copy is discarded, nothing is persisted, and the error
	// is returned unchanged. Updates are serialized in arrival order.
	Update(ctx context.Context, fn func(doc *metadata.Document) error) error

	// Close flushes and releases the backing resources.
	Close() error
}
