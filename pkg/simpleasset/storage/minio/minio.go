package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/tendant/simple-asset/pkg/simpleasset"
)

// ErrObjectNotFound is returned by Head for missing keys
var ErrObjectNotFound = errors.New("object not found")

// Config options for the MinIO backend
type Config struct {
	Endpoint        string // host[:port], without scheme
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Timeout         time.Duration // HTTP client timeout (default: 30s)
	MaxRetries      int           // minio-go retry budget per request (default: 3)
}

// Backend is a MinIO implementation of the simpleasset.BlobStore interface
type Backend struct {
	client *minio.Client
	bucket string
}

// New creates a MinIO backend. Setting Region avoids a bucket-location
// lookup before presigning.
func New(config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}

	transport, err := minio.DefaultTransport(config.UseSSL)
	if err != nil {
		return nil, fmt.Errorf("failed to build transport: %w", err)
	}
	transport.ResponseHeaderTimeout = config.Timeout

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:      credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure:     config.UseSSL,
		Region:     config.Region,
		Transport:  transport,
		MaxRetries: config.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Backend{client: client, bucket: config.Bucket}, nil
}

func (b *Backend) Name() string {
	return "minio"
}

// Put uploads content; a negative size streams with unknown length
func (b *Backend) Put(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	if size <= 0 {
		size = -1
	}
	_, err := b.client.PutObject(ctx, b.bucket, objectKey, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to minio: %w", err)
	}
	return nil
}

// PresignGet returns a presigned URL for downloading content
func (b *Backend) PresignGet(ctx context.Context, objectKey string, expiration time.Duration) (string, error) {
	u, err := b.client.PresignedGetObject(ctx, b.bucket, objectKey, expiration, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned download URL: %w", err)
	}
	return u.String(), nil
}

// Head retrieves metadata for an object
func (b *Backend) Head(ctx context.Context, objectKey string) (*simpleasset.ObjectMeta, error) {
	info, err := b.client.StatObject(ctx, b.bucket, objectKey, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).StatusCode == http.StatusNotFound {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get object metadata: %w", err)
	}
	return &simpleasset.ObjectMeta{
		Key:         objectKey,
		Size:        info.Size,
		ContentType: info.ContentType,
		ETag:        info.ETag,
		UpdatedAt:   info.LastModified,
	}, nil
}

var _ simpleasset.BlobStore = (*Backend)(nil)
