package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrFailedWrite is returned by a MemoryBucket armed with FailWrites.
var ErrFailedWrite = errors.New("kv: write failed")

// MemoryBucket is an in-memory bucket (not persisted).
// Values round-trip through JSON so reads see the same types a SQLite bucket returns.
type MemoryBucket struct {
	name       string
	entries    map[string][]byte
	failWrites bool
	mu         sync.RWMutex
}

// NewMemoryBucket creates a new in-memory bucket.
func NewMemoryBucket(name string) *MemoryBucket {
	return &MemoryBucket{
		name:    name,
		entries: make(map[string][]byte),
	}
}

// Name returns the bucket name.
func (b *MemoryBucket) Name() string {
	return b.name
}

// IsPersistent returns false (memory buckets are not persistent).
func (b *MemoryBucket) IsPersistent() bool {
	return false
}

// FailWrites makes every subsequent write return ErrFailedWrite.
func (b *MemoryBucket) FailWrites(fail bool) {
	b.mu.Lock()
	b.failWrites = fail
	b.mu.Unlock()
}

// Store saves a value with the given key.
func (b *MemoryBucket) Store(key string, value any) error {
	return b.StoreAll(map[string]any{key: value})
}

// StoreAll saves all values or none.
func (b *MemoryBucket) StoreAll(values map[string]any) error {
	encoded := make(map[string][]byte, len(values))
	for key, value := range values {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal value for %s: %w", key, err)
		}
		encoded[key] = data
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failWrites {
		return ErrFailedWrite
	}
	for key, data := range encoded {
		b.entries[key] = data
	}
	return nil
}

// Get retrieves a value by key.
func (b *MemoryBucket) Get(key string) (any, error) {
	b.mu.RLock()
	data, ok := b.entries[key]
	b.mu.RUnlock()

	if !ok {
		return nil, nil
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return value, nil
}

// Delete removes a key from the bucket.
func (b *MemoryBucket) Delete(key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.entries[key]
	if ok {
		delete(b.entries, key)
	}
	return ok, nil
}

// Keys returns all keys in the bucket.
func (b *MemoryBucket) Keys() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.entries))
	for key := range b.entries {
		keys = append(keys, key)
	}
	return keys, nil
}

// Clear removes all keys from the bucket.
func (b *MemoryBucket) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = make(map[string][]byte)
	return nil
}
