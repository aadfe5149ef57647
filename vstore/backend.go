package vstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Backend is where artifact bytes live. The store works identically against
// a local directory tree and an object store.
type Backend interface {
	// Put stores the blob under key, overwriting any previous content, and
	// returns the byte count written.
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	// Get opens the blob for reading.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// URL produces a downstream-deliverable reference: a presigned URL for
	// object storage, a plain path for the local backend.
	URL(ctx context.Context, key string, expiry time.Duration) (string, error)
	// Delete removes the blob. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// LocalBackend keeps blobs under a root directory, key slashes become path
// separators.
type LocalBackend struct {
	Root string
}

var _ Backend = (*LocalBackend)(nil)

func NewLocalBackend(root string) (*LocalBackend, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("unable to create storage root: %w", err)
	}
	return &LocalBackend{Root: root}, nil
}

func (b *LocalBackend) path(key string) string {
	return filepath.Join(b.Root, filepath.FromSlash(key))
}

func (b *LocalBackend) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p := b.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return 0, fmt.Errorf("unable to create blob directory: %w", err)
	}
	// write to a sibling temp name first so readers of the stable "latest"
	// key never observe a partial file
	tmp := p + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("unable to create blob: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("unable to write blob %s: %w", key, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("unable to finalize blob %s: %w", key, err)
	}
	return n, nil
}

func (b *LocalBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(b.path(key))
	if err != nil {
		return nil, fmt.Errorf("unable to open blob %s: %w", key, err)
	}
	return f, nil
}

func (b *LocalBackend) URL(_ context.Context, key string, _ time.Duration) (string, error) {
	return b.path(key), nil
}

func (b *LocalBackend) Delete(_ context.Context, key string) error {
	err := os.Remove(b.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unable to delete blob %s: %w", key, err)
	}
	return nil
}

// S3Backend stores blobs in a bucket under an optional prefix.
type S3Backend struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
}

var _ Backend = (*S3Backend)(nil)

func NewS3Backend(ctx context.Context, bucket, prefix, region string) (*S3Backend, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 backend requires a bucket name")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load aws configuration: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Backend{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
	}, nil
}

func (b *S3Backend) fullKey(key string) string {
	if b.prefix == "" {
		return key
	}
	return b.prefix + "/" + key
}

func (b *S3Backend) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	// S3 wants a seekable body or a known length; artifacts are small enough
	// to buffer
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("unable to buffer blob %s: %w", key, err)
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.fullKey(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return 0, fmt.Errorf("unable to upload blob %s: %w", key, err)
	}
	return int64(len(data)), nil
}

func (b *S3Backend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.fullKey(key)),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to fetch blob %s: %w", key, err)
	}
	return out.Body, nil
}

func (b *S3Backend) URL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.fullKey(key)),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("unable to presign blob %s: %w", key, err)
	}
	return req.URL, nil
}

func (b *S3Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.fullKey(key)),
	})
	if err != nil {
		return fmt.Errorf("unable to delete blob %s: %w", key, err)
	}
	return nil
}
