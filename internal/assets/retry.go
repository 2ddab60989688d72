package assets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retrying retries failed calls of the wrapped Store with exponential
// backoff. Missing objects fail immediately.
type Retrying struct {
	next       Store
	logger     *slog.Logger
	maxRetries uint64

	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration
}

func NewRetrying(next Store, maxRetries int, logger *slog.Logger) *Retrying {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrying{
		next:            next,
		logger:          logger,
		maxRetries:      uint64(maxRetries),
		InitialInterval: 200 * time.Millisecond,
	}
}

func (r *Retrying) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.InitialInterval
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, r.maxRetries), ctx)
}

func (r *Retrying) do(ctx context.Context, op, key string, fn func() error) error {
	operation := func() error {
		err := fn()
		if errors.Is(err, ErrNotExist) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("asset store call failed, retrying", "op", op, "key", key, "wait", wait, "error", err)
	}
	return backoff.RetryNotify(operation, r.backOff(ctx), notify)
}

func (r *Retrying) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := r.do(ctx, "get", key, func() error {
		var err error
		rc, err = r.next.Get(ctx, key)
		return err
	})
	return rc, err
}

// Put is not retried when r cannot be rewound.
func (r *Retrying) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	seeker, ok := body.(io.Seeker)
	if !ok {
		return r.next.Put(ctx, key, body, size, contentType)
	}
	return r.do(ctx, "put", key, func() error {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(err)
		}
		return r.next.Put(ctx, key, body, size, contentType)
	})
}

func (r *Retrying) Copy(ctx context.Context, srcKey, dstKey string) error {
	return r.do(ctx, "copy", srcKey, func() error { return r.next.Copy(ctx, srcKey, dstKey) })
}

func (r *Retrying) Delete(ctx context.Context, key string) error {
	return r.do(ctx, "delete", key, func() error { return r.next.Delete(ctx, key) })
}

func (r *Retrying) DeletePrefix(ctx context.Context, prefix string) error {
	return r.do(ctx, "delete_prefix", prefix, func() error { return r.next.DeletePrefix(ctx, prefix) })
}

func (r *Retrying) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := r.do(ctx, "exists", key, func() error {
		var err error
		ok, err = r.next.Exists(ctx, key)
		return err
	})
	return ok, err
}

func (r *Retrying) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	var u string
	err := r.do(ctx, "signed_url", key, func() error {
		var err error
		u, err = r.next.SignedURL(ctx, key, ttl)
		return err
	})
	return u, err
}
