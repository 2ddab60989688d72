package assets

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// S3Store keeps objects in one bucket of an S3-compatible service.
type S3Store struct {
	client *minio.Client
	bucket string
	region string
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client: %w", err)
	}
	return &S3Store{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", s.bucket, err)
	}
	if ok {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("creating bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Check implements health.Checker.
func (s *S3Store) Check(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", key, err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("getting %s: %w", key, ErrNotExist)
		}
		return nil, fmt.Errorf("getting %s: %w", key, err)
	}
	return obj, nil
}

func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("putting %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: s.bucket, Object: srcKey},
	)
	if isNoSuchKey(err) {
		return fmt.Errorf("copying %s: %w", srcKey, ErrNotExist)
	}
	if err != nil {
		return fmt.Errorf("copying %s to %s: %w", srcKey, dstKey, err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every object whose key starts with prefix.
func (s *S3Store) DeletePrefix(ctx context.Context, prefix string) error {
	list := func(ctx context.Context) <-chan minio.ObjectInfo {
		return s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	}
	err := removeListed(ctx, list, func(ctx context.Context, objects <-chan minio.ObjectInfo) <-chan minio.RemoveObjectError {
		return s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{})
	})
	if err != nil {
		return fmt.Errorf("deleting prefix %s: %w", prefix, err)
	}
	return nil
}

// removeListed feeds the listed objects to remove and collects both list
// and removal errors. It returns only once the forwarding goroutine has
// exited, even when remove stops reading early.
func removeListed(
	ctx context.Context,
	list func(context.Context) <-chan minio.ObjectInfo,
	remove func(context.Context, <-chan minio.ObjectInfo) <-chan minio.RemoveObjectError,
) error {
	fwdCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var listErrs []error
	objects := make(chan minio.ObjectInfo)
	done := make(chan struct{})
	listed := list(fwdCtx)
	go func() {
		defer close(done)
		defer close(objects)
		for {
			var obj minio.ObjectInfo
			var ok bool
			select {
			case obj, ok = <-listed:
				if !ok {
					return
				}
			case <-fwdCtx.Done():
				return
			}
			if obj.Err != nil {
				listErrs = append(listErrs, obj.Err)
				continue
			}
			select {
			case objects <- obj:
			case <-fwdCtx.Done():
				return
			}
		}
	}()

	var result *multierror.Error
	for rerr := range remove(ctx, objects) {
		result = multierror.Append(result, fmt.Errorf("deleting %s: %w", rerr.ObjectName, rerr.Err))
	}
	cancel()
	<-done

	result = multierror.Append(result, listErrs...)
	if err := ctx.Err(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if isNoSuchKey(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return true, nil
}

func (s *S3Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("signing %s: %w", key, err)
	}
	return u.String(), nil
}
