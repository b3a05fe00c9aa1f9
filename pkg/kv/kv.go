// Package kv defines the expiring key-value contract the session cache is
// built on, with a BadgerDB-backed implementation.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the key does not exist or has expired.
var ErrNotFound = errors.New("key not found")

// Store is a key-value store with per-key expiry.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// SetTTL stores value under key, expiring after ttl. A ttl of zero
	// stores the key without expiry.
	SetTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases the backing store.
	Close() error
}
