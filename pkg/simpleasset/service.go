package simpleasset

import (
	"context"
	"time"
)

// Service defines the asset lifecycle operations. Every operation runs inside
// a unit of work opened by the caller (see WithUnitOfWork).
type Service interface {
	// Creation
	CreateAsset(ctx context.Context, uow UnitOfWork, req CreateAssetRequest, ownerID int64) (*AssetView, error)
	CreateAssets(ctx context.Context, uow UnitOfWork, reqs []CreateAssetRequest, ownerID int64) ([]CreateResult, error)

	// Reads
	GetAssetByID(ctx context.Context, uow UnitOfWork, id int64) (*AssetView, error)
	GetAssetURL(ctx context.Context, uow UnitOfWork, id int64, expiration time.Duration) (string, error)
	ListOwnerAssets(ctx context.Context, uow UnitOfWork, ownerID int64, skip, limit int, withURLs bool) (*Page, error)

	// Lifecycle
	ToggleSoftDelete(ctx context.Context, uow UnitOfWork, id int64, deleting bool, ownerID int64) error
	HardDelete(ctx context.Context, uow UnitOfWork, id int64, ownerID int64) error
}
