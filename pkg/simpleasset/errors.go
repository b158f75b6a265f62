package simpleasset

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrAssetNotFound indicates an asset is absent or invisible to the requester
	ErrAssetNotFound = errors.New("asset not found")

	// ErrRelationNotFound indicates no ownership relation exists for an (asset, owner) pair
	ErrRelationNotFound = errors.New("ownership relation not found")

	// ErrForbidden indicates the asset exists but does not belong to the requester
	ErrForbidden = errors.New("asset does not belong to the user")

	// ErrUploadFailed indicates the object store did not accept the content
	ErrUploadFailed = errors.New("upload failed")

	// ErrInvalidRequest indicates request validation failed
	ErrInvalidRequest = errors.New("invalid request")
)

// AssetError represents an error related to an asset operation
type AssetError struct {
	AssetID int64
	Op      string
	Err     error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("asset operation %s failed for asset %d: %v", e.Op, e.AssetID, e.Err)
}

func (e *AssetError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to object store operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
