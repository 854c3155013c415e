// Package kv provides the flat key-value namespace that holds persisted device
// preferences, with SQLite persistence and an in-memory variant.
package kv

// Bucket is the interface for key-value storage operations.
// Values are JSON-compatible: strings, numbers, booleans.
type Bucket interface {
	// Name returns the bucket name.
	Name() string

	// IsPersistent returns true if the bucket survives a restart.
	IsPersistent() bool

	// Store saves a value with the given key.
	Store(key string, value any) error

	// StoreAll saves several keys as one unit: either every key is
	// written or none is.
	StoreAll(values map[string]any) error

	// Get retrieves a value by key.
	// Returns nil if the key doesn't exist.
	Get(key string) (any, error)

	// Delete removes a key from the bucket.
	// Returns true if the key existed.
	Delete(key string) (bool, error)

	// Keys returns all keys in the bucket.
	Keys() ([]string, error)

	// Clear removes all keys from the bucket.
	Clear() error
}
