package persistence

import "context"

// StateStore persists whole JSON documents keyed by namespace. Implementations
// compare content digests and skip writes that would not change the document.
type StateStore interface {
	// Load returns the document stored under namespace or ErrNotFound.
	Load(ctx context.Context, namespace string) (Document, error)
	// Save replaces the document. It reports whether anything was written.
	Save(ctx context.Context, namespace string, data []byte) (bool, error)
	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, namespace string) error
	// List returns the namespaces starting with prefix in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)
}
