package simpleasset

import (
	"io"
	"time"
)

// AssetKind distinguishes the media types the catalog holds.
type AssetKind string

const (
	AssetKindPhoto AssetKind = "photo"
	AssetKindVideo AssetKind = "video"
)

// Asset is a catalog record describing one stored photo or video.
//
// ObjectKey is set once at creation and never updated. Soft-deleted assets
// stay in the catalog with IsDeleted set until they are hard deleted.
type Asset struct {
	ID              int64     `json:"id"`
	Kind            AssetKind `json:"kind"`
	Filename        string    `json:"filename"`
	ContentType     string    `json:"content_type"`
	Size            int64     `json:"size"`
	DurationSeconds int       `json:"duration_seconds,omitempty"`
	DateTaken       time.Time `json:"date_taken"`
	IsPublic        bool      `json:"is_public"`
	IsDeleted       bool      `json:"is_deleted"`
	ObjectKey       string    `json:"object_key"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Visible reports whether normal readers may see the asset.
func (a *Asset) Visible() bool {
	return a.IsPublic && !a.IsDeleted
}

// OwnershipRelation binds an asset to the user that owns it.
type OwnershipRelation struct {
	ID      int64 `json:"id"`
	OwnerID int64 `json:"owner_id"`
	AssetID int64 `json:"asset_id"`
}

// AssetView is the public representation of an asset. It never exposes the
// object key; URL is only populated when a presigned URL was requested.
type AssetView struct {
	ID              int64     `json:"id"`
	Kind            AssetKind `json:"kind"`
	Filename        string    `json:"filename"`
	ContentType     string    `json:"content_type"`
	Size            int64     `json:"size"`
	DurationSeconds int       `json:"duration_seconds,omitempty"`
	DateTaken       time.Time `json:"date_taken"`
	IsPublic        bool      `json:"is_public"`
	URL             string    `json:"url,omitempty"`
}

// NewAssetView maps a catalog row to its public representation.
func NewAssetView(a *Asset) *AssetView {
	return &AssetView{
		ID:              a.ID,
		Kind:            a.Kind,
		Filename:        a.Filename,
		ContentType:     a.ContentType,
		Size:            a.Size,
		DurationSeconds: a.DurationSeconds,
		DateTaken:       a.DateTaken,
		IsPublic:        a.IsPublic,
	}
}

// Page is one page of an owner's assets plus the total under the same filter.
type Page struct {
	Assets []*AssetView `json:"assets"`
	Total  int64        `json:"total"`
	Skip   int          `json:"skip"`
	Limit  int          `json:"limit"`
}

// File is binary content handed to the object store.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadResult is the outcome of uploading one file. Key is empty exactly
// when Err is set.
type UploadResult struct {
	Key string
	Err error
}

// Ok reports whether the upload succeeded.
func (r UploadResult) Ok() bool {
	return r.Err == nil && r.Key != ""
}

// ObjectMeta describes an object held by a BlobStore.
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	ETag        string
	UpdatedAt   time.Time
}
