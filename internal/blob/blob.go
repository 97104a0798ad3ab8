// Package blob provides key-addressed binary object storage for catalog
// images. The interface is deliberately narrow so any backend (directory,
// S3 bucket, in-process map) can be substituted.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound indicates the key holds no object.
var ErrNotFound = errors.New("blob: not found")

// Store is a key-addressed object store with content-type metadata.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (data []byte, contentType string, err error)
	Delete(ctx context.Context, key string) error
}
