// Package storage abstracts the object store holding bot packages
// (.gbdialog scripts, .gbkb documents, .gbot configuration). Production
// deployments use an S3-compatible server; tests use the in-memory driver.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("storage: object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	ETag         string
	Size         int64
	LastModified time.Time
}

// ObjectStore lists and reads objects from a tenant bucket.
type ObjectStore interface {
	// List returns objects under prefix. With recursive set, nested
	// "directories" are walked; otherwise only direct children appear.
	List(ctx context.Context, bucket, prefix string, recursive bool) ([]ObjectInfo, error)

	// Read returns the full contents of an object.
	Read(ctx context.Context, bucket, key string) ([]byte, error)

	// Stat returns metadata for a single object.
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)

	// BucketExists reports whether the bucket has been provisioned.
	BucketExists(ctx context.Context, bucket string) (bool, error)
}
