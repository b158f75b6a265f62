package memory

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/tendant/simple-asset/pkg/simpleasset"
)

// ErrObjectNotFound is returned for keys the backend does not hold
var ErrObjectNotFound = errors.New("object not found")

type object struct {
	data        []byte
	contentType string
	updatedAt   time.Time
}

// Backend is an in-memory implementation of the simpleasset.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object

	// FailPut, when set, is consulted before every Put; a non-nil error fails
	// the upload for that key.
	FailPut func(objectKey string) error

	// FailPresign, when set, is consulted before every PresignGet.
	FailPresign func(objectKey string) error
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string]object),
	}
}

func (b *Backend) Name() string {
	return "memory"
}

// Put stores the full content of reader under objectKey
func (b *Backend) Put(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	if b.FailPut != nil {
		if err := b.FailPut(objectKey); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[objectKey] = object{data: data, contentType: contentType, updatedAt: time.Now().UTC()}
	return nil
}

// PresignGet returns a memory:// URL carrying the expiry; it does not check
// that the object exists, matching S3 presigning.
func (b *Backend) PresignGet(ctx context.Context, objectKey string, expiration time.Duration) (string, error) {
	if b.FailPresign != nil {
		if err := b.FailPresign(objectKey); err != nil {
			return "", err
		}
	}
	if expiration <= 0 {
		return "", fmt.Errorf("invalid expiration %s", expiration)
	}

	u := url.URL{
		Scheme:   "memory",
		Path:     "/" + objectKey,
		RawQuery: url.Values{"expires": []string{strconv.FormatInt(int64(expiration.Seconds()), 10)}}.Encode(),
	}
	return u.String(), nil
}

// Head returns metadata for an object held in memory
func (b *Backend) Head(ctx context.Context, objectKey string) (*simpleasset.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, ErrObjectNotFound
	}

	sum := md5.Sum(obj.data)
	return &simpleasset.ObjectMeta{
		Key:         objectKey,
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
		ETag:        hex.EncodeToString(sum[:]),
		UpdatedAt:   obj.updatedAt,
	}, nil
}

// Bytes returns a copy of the stored content, for tests.
func (b *Backend) Bytes(objectKey string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// Len returns the number of stored objects
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

var _ simpleasset.BlobStore = (*Backend)(nil)
