package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/simple-asset/pkg/simpleasset"
	"github.com/tendant/simple-asset/pkg/simpleasset/presigned"
)

var (
	// ErrObjectNotFound is returned for keys with no file behind them
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidKey is returned for keys that would resolve outside BaseDir
	ErrInvalidKey = errors.New("invalid object key")
)

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Directory objects are stored under
	BaseURL string // Public origin presigned paths are joined to, e.g. "http://localhost:8080"
	Signer  *presigned.Signer
}

// Backend is a filesystem implementation of the simpleasset.BlobStore
// interface. Read URLs are HMAC-signed paths served by the API's file route.
type Backend struct {
	baseDir string
	baseURL string
	signer  *presigned.Signer
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if config.Signer == nil {
		return nil, errors.New("signer is required")
	}

	baseDir, err := filepath.Abs(config.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{
		baseDir: baseDir,
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		signer:  config.Signer,
	}, nil
}

func (b *Backend) Name() string {
	return "fs"
}

// Signer returns the signer that validates this backend's URLs
func (b *Backend) Signer() *presigned.Signer {
	return b.signer
}

func (b *Backend) filePath(objectKey string) (string, error) {
	clean := path.Clean("/" + objectKey)
	if clean == "/" || strings.Contains(objectKey, "\x00") {
		return "", ErrInvalidKey
	}
	return filepath.Join(b.baseDir, filepath.FromSlash(clean)), nil
}

// Put writes reader to a temporary file and renames it into place, so
// readers never see a partial object.
func (b *Backend) Put(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	filePath, err := b.filePath(objectKey)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, reader)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if size > 0 && written != size {
		return fmt.Errorf("short write: expected %d bytes, wrote %d", size, written)
	}

	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// PresignGet signs a path under the signer's prefix. Like S3 it does not
// check that the object exists.
func (b *Backend) PresignGet(ctx context.Context, objectKey string, expiration time.Duration) (string, error) {
	if _, err := b.filePath(objectKey); err != nil {
		return "", err
	}
	signed, err := b.signer.Sign(objectKey, expiration)
	if err != nil {
		return "", err
	}
	return b.baseURL + signed, nil
}

// Head returns metadata for an object on disk
func (b *Backend) Head(ctx context.Context, objectKey string) (*simpleasset.ObjectMeta, error) {
	f, meta, err := b.Open(ctx, objectKey)
	if err != nil {
		return nil, err
	}
	_ = f.Close()
	return meta, nil
}

// Open returns the object's file and metadata. The caller closes the file.
func (b *Backend) Open(ctx context.Context, objectKey string) (*os.File, *simpleasset.ObjectMeta, error) {
	filePath, err := b.filePath(objectKey)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrObjectNotFound
	} else if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("failed to get file info: %w", err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, nil, ErrObjectNotFound
	}

	contentType, err := detectContentType(f, objectKey)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}

	return f, &simpleasset.ObjectMeta{
		Key:         objectKey,
		Size:        info.Size(),
		ContentType: contentType,
		ETag:        strconv.FormatInt(info.ModTime().UnixNano(), 36) + "-" + strconv.FormatInt(info.Size(), 36),
		UpdatedAt:   info.ModTime().UTC(),
	}, nil
}

// detectContentType prefers the key's extension and falls back to sniffing
// the first 512 bytes. f is rewound afterwards.
func detectContentType(f *os.File, objectKey string) (string, error) {
	if ct := mime.TypeByExtension(path.Ext(objectKey)); ct != "" {
		return ct, nil
	}

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind file: %w", err)
	}
	if n == 0 {
		return "application/octet-stream", nil
	}
	return http.DetectContentType(buf[:n]), nil
}

var _ simpleasset.BlobStore = (*Backend)(nil)
