// Package kv defines the ephemeral key-value store boundary used by the
// session context cache and the generation cache. Implementations can use
// redis or an in-memory map; callers must tolerate unavailability, so every
// method takes a context and returns an explicit error.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// Store is the interface for the ephemeral key-value store.
type Store interface {
	// Get retrieves the value for key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value without expiry.
	Set(ctx context.Context, key, value string) error

	// SetTTL stores a value with an expiry.
	SetTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// Del removes one or more keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// Keys returns all keys matching a glob-style pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}
