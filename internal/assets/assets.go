// Package assets stores uploaded tour media in object storage.
//
// Keys are slash-separated paths such as "files/<fileId>/key/<name>".
// Writes overwrite and deletes succeed when the object is already gone, so
// every operation can be retried safely.
package assets

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotExist is returned when a requested object is missing.
var ErrNotExist = errors.New("asset does not exist")

type Store interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Copy(ctx context.Context, srcKey, dstKey string) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Exists(ctx context.Context, key string) (bool, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
