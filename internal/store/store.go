// Package store provides the key-value persistence boundary for
// notebook-saver. The model catalog and the hand-off queue are the only
// writers; each component owns its keys exclusively and all access goes
// through that component's serialized operations.
//
// Three implementations are provided: an in-memory store for tests and
// zero-config runs, a file-backed snapshot store, and a SQLite store for
// durable deployments.
package store

import "context"

// Store is the abstract persistent key-value store injected into the
// catalog service and the hand-off queue.
type Store interface {
	// Get returns the value for key. The second return is false when the
	// key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set writes the value for key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases all resources held by the store.
	Close() error
}
