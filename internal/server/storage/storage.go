// Package storage abstracts where uploaded vault blobs live. Deployments
// either keep blobs inline in Postgres (no BlobStore configured) or hand them
// to an S3-compatible backend and keep only the object key in the database.
package storage

import "context"

// BlobStore stores opaque vault images under server-chosen keys.
type BlobStore interface {
	// Put writes data under key, overwriting any previous object.
	Put(ctx context.Context, key string, data []byte) error

	// Get reads the object stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object stored under key. Deleting a missing
	// object is not an error.
	Delete(ctx context.Context, key string) error
}
