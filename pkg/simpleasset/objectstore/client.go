// Package objectstore moves binary content between callers and a single
// bucket held by a simpleasset.BlobStore, and mints presigned read URLs.
//
// Uploads never fail loudly: a failed upload is logged and reported as an
// UploadResult with an empty key so callers can decide per item what to do.
// Presigning has no safe empty value, so presign failures are returned.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-asset/pkg/simpleasset"
	"golang.org/x/sync/errgroup"
)

// Client implements simpleasset.ObjectStore over a BlobStore.
type Client struct {
	blobs             simpleasset.BlobStore
	logger            *slog.Logger
	observer          Observer
	presignExpiration time.Duration
	maxConcurrency    int
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver sets the metrics observer
func WithObserver(observer Observer) Option {
	return func(c *Client) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// WithPresignExpiration sets the expiration used when callers pass a
// non-positive one.
func WithPresignExpiration(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.presignExpiration = d
		}
	}
}

// WithMaxConcurrency bounds the number of in-flight sub-operations of a bulk
// call. Zero or less means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(c *Client) {
		c.maxConcurrency = n
	}
}

// New creates a Client over blobs.
func New(blobs simpleasset.BlobStore, opts ...Option) (*Client, error) {
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}

	c := &Client{
		blobs:             blobs,
		logger:            slog.Default(),
		observer:          noopObserver{},
		presignExpiration: simpleasset.DefaultPresignExpiration,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ObjectKey joins prefix, trimmed of surrounding separators, with filename.
func ObjectKey(prefix, filename string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return filename
	}
	return prefix + "/" + filename
}

// Upload streams file to the store under ObjectKey(pathPrefix, file.Name).
func (c *Client) Upload(ctx context.Context, pathPrefix string, file simpleasset.File) simpleasset.UploadResult {
	key := ObjectKey(pathPrefix, file.Name)
	logger := c.logger.With("backend", c.blobs.Name(), "object_key", key)

	logger.Info("Uploading object")
	start := time.Now()
	err := c.blobs.Put(ctx, key, file.Body, file.Size, file.ContentType)
	c.observer.RecordUpload(time.Since(start), file.Size, err)

	if err != nil {
		logger.Error("Unable to upload object", "err", err)
		return simpleasset.UploadResult{
			Err: &simpleasset.StorageError{Backend: c.blobs.Name(), Key: key, Op: "upload", Err: err},
		}
	}

	logger.Info("Object uploaded")
	return simpleasset.UploadResult{Key: key}
}

// BulkUpload uploads files concurrently over the shared blob store. Result i
// always corresponds to files[i], whatever the completion order.
func (c *Client) BulkUpload(ctx context.Context, pathPrefix string, files []simpleasset.File) []simpleasset.UploadResult {
	results := make([]simpleasset.UploadResult, len(files))
	batchID := uuid.NewString()
	c.logger.Info("Starting bulk upload", "batch_id", batchID, "files", len(files))

	var g errgroup.Group
	if c.maxConcurrency > 0 {
		g.SetLimit(c.maxConcurrency)
	}
	for i, file := range files {
		g.Go(func() error {
			results[i] = c.Upload(ctx, pathPrefix, file)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.Ok() {
			failed++
		}
	}
	c.logger.Info("Bulk upload finished", "batch_id", batchID, "files", len(files), "failed", failed)
	return results
}

// PresignedURL returns a read URL for objectKey. A non-positive expiration
// falls back to the client default.
func (c *Client) PresignedURL(ctx context.Context, objectKey string, expiration time.Duration) (string, error) {
	if expiration <= 0 {
		expiration = c.presignExpiration
	}

	start := time.Now()
	url, err := c.blobs.PresignGet(ctx, objectKey, expiration)
	c.observer.RecordPresign(time.Since(start), err)

	if err != nil {
		c.logger.Error("Unable to presign object", "backend", c.blobs.Name(), "object_key", objectKey, "err", err)
		return "", &simpleasset.StorageError{Backend: c.blobs.Name(), Key: objectKey, Op: "presign", Err: err}
	}
	return url, nil
}

// BulkPresignedURL presigns objectKeys concurrently. The first failure fails
// the whole batch.
func (c *Client) BulkPresignedURL(ctx context.Context, objectKeys []string, expiration time.Duration) ([]string, error) {
	urls := make([]string, len(objectKeys))

	g, gctx := errgroup.WithContext(ctx)
	if c.maxConcurrency > 0 {
		g.SetLimit(c.maxConcurrency)
	}
	for i, key := range objectKeys {
		g.Go(func() error {
			url, err := c.PresignedURL(gctx, key, expiration)
			if err != nil {
				return err
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("bulk presign of %d keys failed: %w", len(objectKeys), err)
	}
	return urls, nil
}

var _ simpleasset.ObjectStore = (*Client)(nil)
