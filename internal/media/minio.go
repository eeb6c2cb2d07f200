package media

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// MinIOConfig holds the connection settings of an S3-compatible bucket.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOBucket stores objects in an S3-compatible object store.
type MinIOBucket struct {
	client *minio.Client
	bucket string
}

// NewMinIOBucket connects to the object store and creates the bucket when missing.
func NewMinIOBucket(ctx context.Context, cfg MinIOConfig) (*MinIOBucket, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("media: minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("media: check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("media: create bucket %s: %w", cfg.Bucket, err)
		}
		log.Info().Str("bucket", cfg.Bucket).Msg("media: created object bucket")
	}

	return &MinIOBucket{client: client, bucket: cfg.Bucket}, nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func (b *MinIOBucket) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) error {
	if !ValidName(name) {
		return fmt.Errorf("media: invalid object name %q", name)
	}
	_, err := b.client.PutObject(ctx, b.bucket, name, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("media: put %s: %w", name, err)
	}
	return nil
}

func (b *MinIOBucket) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if ok, err := b.Exists(ctx, name); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrNotExist
	}
	obj, err := b.client.GetObject(ctx, b.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("media: get %s: %w", name, err)
	}
	return obj, nil
}

func (b *MinIOBucket) Exists(ctx context.Context, name string) (bool, error) {
	_, err := b.client.StatObject(ctx, b.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("media: stat %s: %w", name, err)
	}
	return true, nil
}

// Rename copies the object server-side and removes the source.
func (b *MinIOBucket) Rename(ctx context.Context, from, to string) error {
	if !ValidName(to) {
		return fmt.Errorf("media: invalid object name %q", to)
	}
	_, err := b.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: b.bucket, Object: to},
		minio.CopySrcOptions{Bucket: b.bucket, Object: from},
	)
	if err != nil {
		if isNoSuchKey(err) {
			return ErrNotExist
		}
		return fmt.Errorf("media: copy %s: %w", from, err)
	}
	return b.Delete(ctx, from)
}

func (b *MinIOBucket) Delete(ctx context.Context, name string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, name, minio.RemoveObjectOptions{}); err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("media: remove %s: %w", name, err)
	}
	return nil
}

func (b *MinIOBucket) List(ctx context.Context) ([]Object, error) {
	var objects []Object
	for info := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if info.Err != nil {
			return nil, fmt.Errorf("media: list %s: %w", b.bucket, info.Err)
		}
		objects = append(objects, Object{Name: info.Key, Size: info.Size, ModTime: info.LastModified})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}
