package store

import (
	"context"
)

// ObjectStore is the storage capability the locking and document layers are
// built on: keyed blobs with an atomic create-if-absent primitive.
// This abstraction allows switching between backends (DynamoDB, in-memory)
// without changing the core business logic.
type ObjectStore interface {
	// ConditionalCreate writes payload at key only if no object exists there.
	// Returns ErrAlreadyExists if the key is taken. The check-and-write is
	// atomic; this is the primitive the lock protocol relies on.
	ConditionalCreate(ctx context.Context, key string, payload []byte) error

	// Overwrite writes payload at key unconditionally.
	Overwrite(ctx context.Context, key string, payload []byte) error

	// Read returns the payload at key, or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object at key. Returns ErrNotFound if absent.
	Delete(ctx context.Context, key string) error

	// List returns all keys starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
