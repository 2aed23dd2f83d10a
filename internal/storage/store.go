package storage

import (
	"context"
	"time"
)

// ObjectStore is a remote bucket the upload pipeline can write to.
type ObjectStore interface {
	// Scheme is the ref scheme produced by this store (gs, r2).
	Scheme() string
	Bucket() string
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) (Ref, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}
