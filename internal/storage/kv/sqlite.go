package kv

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLiteBucket is a persistent bucket backed by SQLite.
type SQLiteBucket struct {
	db   *sql.DB
	name string
}

// NewSQLiteBucket creates a new SQLite-backed bucket.
func NewSQLiteBucket(db *sql.DB, name string) *SQLiteBucket {
	return &SQLiteBucket{
		db:   db,
		name: name,
	}
}

// Name returns the bucket name.
func (b *SQLiteBucket) Name() string {
	return b.name
}

// IsPersistent returns true (SQLite buckets are always persistent).
func (b *SQLiteBucket) IsPersistent() bool {
	return true
}

const upsertSQL = `
	INSERT INTO kv_store (bucket, key, value, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(bucket, key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
`

// Store saves a value with the given key.
func (b *SQLiteBucket) Store(key string, value any) error {
	return b.StoreAll(map[string]any{key: value})
}

// StoreAll saves all values inside a single transaction.
func (b *SQLiteBucket) StoreAll(values map[string]any) error {
	encoded := make(map[string]string, len(values))
	for key, value := range values {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal value for %s: %w", key, err)
		}
		encoded[key] = string(data)
	}

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	now := time.Now().UTC().Unix()
	for key, data := range encoded {
		if _, err := tx.Exec(upsertSQL, b.name, key, data, now, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit values: %w", err)
	}
	return nil
}

// Get retrieves a value by key.
func (b *SQLiteBucket) Get(key string) (any, error) {
	var valueStr string

	err := b.db.QueryRow(`
		SELECT value FROM kv_store
		WHERE bucket = ? AND key = ?
	`, b.name, key).Scan(&valueStr)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get value: %w", err)
	}

	var value any
	if err := json.Unmarshal([]byte(valueStr), &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return value, nil
}

// Delete removes a key from the bucket.
func (b *SQLiteBucket) Delete(key string) (bool, error) {
	result, err := b.db.Exec(`
		DELETE FROM kv_store WHERE bucket = ? AND key = ?
	`, b.name, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete key: %w", err)
	}

	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// Keys returns all keys in the bucket.
func (b *SQLiteBucket) Keys() ([]string, error) {
	rows, err := b.db.Query(`SELECT key FROM kv_store WHERE bucket = ?`, b.name)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// Clear removes all keys from the bucket.
func (b *SQLiteBucket) Clear() error {
	_, err := b.db.Exec(`DELETE FROM kv_store WHERE bucket = ?`, b.name)
	if err != nil {
		return fmt.Errorf("failed to clear bucket: %w", err)
	}
	return nil
}
