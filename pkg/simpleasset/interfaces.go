package simpleasset

import (
	"context"
	"io"
	"time"
)

// BlobStore defines the primitives a storage backend provides
type BlobStore interface {
	// Name identifies the backend in logs and errors
	Name() string

	// Put streams content to the store under objectKey. An empty contentType
	// leaves the object's content type to the backend default.
	Put(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error

	// PresignGet returns a time-limited, credential-free read URL
	PresignGet(ctx context.Context, objectKey string, expiration time.Duration) (string, error)

	// Head returns metadata for an object
	Head(ctx context.Context, objectKey string) (*ObjectMeta, error)
}

// ObjectStore moves bytes to and from a single bucket and mints access URLs.
// It never touches the catalog.
type ObjectStore interface {
	// Upload never returns an error; a failed upload is reported through the
	// result so callers can decide per item whether to abort or retry.
	Upload(ctx context.Context, pathPrefix string, file File) UploadResult

	// BulkUpload uploads files concurrently. Result i corresponds to files[i].
	BulkUpload(ctx context.Context, pathPrefix string, files []File) []UploadResult

	// PresignedURL returns a read URL valid for expiration. Failures propagate.
	PresignedURL(ctx context.Context, objectKey string, expiration time.Duration) (string, error)

	// BulkPresignedURL presigns keys concurrently, failing the whole batch if
	// any single presign fails.
	BulkPresignedURL(ctx context.Context, objectKeys []string, expiration time.Duration) ([]string, error)
}

// UnitOfWork is a transaction boundary owned by the caller. Catalogs write
// through it but never commit or roll it back.
type UnitOfWork interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UnitOfWorkFactory opens units of work for a catalog
type UnitOfWorkFactory interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// Catalog persists asset metadata and ownership relations
type Catalog interface {
	UnitOfWorkFactory

	// CreateAsset inserts the asset, assigns asset.ID and inserts the
	// ownership relation for (ownerID, asset.ID).
	CreateAsset(ctx context.Context, uow UnitOfWork, asset *Asset, ownerID int64) error

	// GetVisibleAsset returns the asset only when it is public and not soft-deleted
	GetVisibleAsset(ctx context.Context, uow UnitOfWork, id int64) (*Asset, error)

	// GetAnyAsset returns the asset regardless of visibility or deletion
	GetAnyAsset(ctx context.Context, uow UnitOfWork, id int64) (*Asset, error)

	GetOwnershipRelation(ctx context.Context, uow UnitOfWork, assetID, ownerID int64) (*OwnershipRelation, error)

	// ListOwnerAssets returns one page of the owner's non-deleted assets and
	// the total count under the same filter.
	ListOwnerAssets(ctx context.Context, uow UnitOfWork, ownerID int64, skip, limit int) ([]*Asset, int64, error)

	ToggleSoftDelete(ctx context.Context, uow UnitOfWork, id int64, deleting bool) error

	// HardDeleteAsset removes the ownership relations and then the asset row.
	HardDeleteAsset(ctx context.Context, uow UnitOfWork, id int64) error
}
