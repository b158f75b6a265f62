package simpleasset

import (
	"io"
	"time"
)

// CreateAssetRequest carries the metadata and content for a new asset.
type CreateAssetRequest struct {
	Kind            AssetKind `validate:"omitempty,oneof=photo video"`
	Filename        string    `validate:"required,max=128,excludesall=/\\"`
	ContentType     string    `validate:"required,max=128"`
	Size            int64     `validate:"gt=0"`
	DurationSeconds int       `validate:"gte=0,required_if=Kind video,excluded_unless=Kind video"`
	DateTaken       time.Time `validate:"required"`
	IsPublic        bool

	// PathPrefix is a sub-path placed under the owner's prefix, e.g.
	// "albums/summer" stores under "user/42/albums/summer".
	PathPrefix string `validate:"max=512,excludesall=\\"`

	Body io.Reader `validate:"-"`
}

// CreateResult is the per-item outcome of CreateAssets.
type CreateResult struct {
	Asset *AssetView
	Err   error
}
