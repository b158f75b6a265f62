package simpleasset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultPresignExpiration is the validity window for presigned URLs
	DefaultPresignExpiration = 3600 * time.Second

	// DefaultPageLimit is used when a listing asks for a non-positive limit
	DefaultPageLimit = 10
)

// service implements the Service interface
type service struct {
	catalog           Catalog
	store             ObjectStore
	logger            *slog.Logger
	validate          *validator.Validate
	pathPrefix        func(ownerID int64) string
	presignExpiration time.Duration
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithCatalog sets the catalog for the service
func WithCatalog(catalog Catalog) Option {
	return func(s *service) {
		s.catalog = catalog
	}
}

// WithObjectStore sets the object store client for the service
func WithObjectStore(store ObjectStore) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPathPrefixFunc overrides how the object key prefix is derived from the owner
func WithPathPrefixFunc(fn func(ownerID int64) string) Option {
	return func(s *service) {
		if fn != nil {
			s.pathPrefix = fn
		}
	}
}

// WithPresignExpiration sets the default validity window for presigned URLs
func WithPresignExpiration(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.presignExpiration = d
		}
	}
}

// OwnerPathPrefix is the default object key prefix: "user/{ownerID}".
func OwnerPathPrefix(ownerID int64) string {
	return fmt.Sprintf("user/%d", ownerID)
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		logger:            slog.Default(),
		validate:          validator.New(),
		pathPrefix:        OwnerPathPrefix,
		presignExpiration: DefaultPresignExpiration,
	}

	for _, option := range options {
		option(s)
	}

	if s.catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if s.store == nil {
		return nil, fmt.Errorf("object store is required")
	}

	return s, nil
}

// Creation

func (s *service) CreateAsset(ctx context.Context, uow UnitOfWork, req CreateAssetRequest, ownerID int64) (*AssetView, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	result := s.store.Upload(ctx, s.prefixFor(req, ownerID), fileFromRequest(req))
	if !result.Ok() {
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, result.Err)
	}

	return s.persist(ctx, uow, req, result.Key, ownerID)
}

func (s *service) CreateAssets(ctx context.Context, uow UnitOfWork, reqs []CreateAssetRequest, ownerID int64) ([]CreateResult, error) {
	results := make([]CreateResult, len(reqs))

	// Group valid requests by prefix, keeping first-seen order so each group
	// is a single bulk upload.
	var prefixes []string
	groups := make(map[string][]int)
	keys := make(map[string]int)
	for i, req := range reqs {
		if err := s.validateRequest(req); err != nil {
			results[i].Err = err
			continue
		}
		prefix := s.prefixFor(req, ownerID)

		// Two files with one key would race on the same object.
		key := prefix + "/" + req.Filename
		if first, dup := keys[key]; dup {
			results[i].Err = fmt.Errorf("%w: filename %q duplicates request %d", ErrInvalidRequest, req.Filename, first)
			continue
		}
		keys[key] = i

		if _, seen := groups[prefix]; !seen {
			prefixes = append(prefixes, prefix)
		}
		groups[prefix] = append(groups[prefix], i)
	}

	for _, prefix := range prefixes {
		indexes := groups[prefix]
		files := make([]File, len(indexes))
		for j, i := range indexes {
			files[j] = fileFromRequest(reqs[i])
		}

		uploads := s.store.BulkUpload(ctx, prefix, files)
		for j, i := range indexes {
			if !uploads[j].Ok() {
				results[i].Err = fmt.Errorf("%w: %w", ErrUploadFailed, uploads[j].Err)
				continue
			}
			view, err := s.persist(ctx, uow, reqs[i], uploads[j].Key, ownerID)
			if err != nil {
				// A failed catalog write poisons the unit of work; the
				// caller has to roll back the whole batch.
				results[i].Err = err
				return results, err
			}
			results[i].Asset = view
		}
	}

	return results, nil
}

func (s *service) persist(ctx context.Context, uow UnitOfWork, req CreateAssetRequest, objectKey string, ownerID int64) (*AssetView, error) {
	kind := req.Kind
	if kind == "" {
		kind = AssetKindPhoto
	}

	now := time.Now().UTC()
	asset := &Asset{
		Kind:            kind,
		Filename:        req.Filename,
		ContentType:     req.ContentType,
		Size:            req.Size,
		DurationSeconds: req.DurationSeconds,
		DateTaken:       req.DateTaken.UTC(),
		IsPublic:        req.IsPublic,
		ObjectKey:       objectKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.catalog.CreateAsset(ctx, uow, asset, ownerID); err != nil {
		// The stored object stays behind without an asset referencing it.
		s.logger.Warn("Stored object left without catalog row", "object_key", objectKey, "owner_id", ownerID, "err", err)
		return nil, &AssetError{Op: "create", Err: err}
	}

	s.logger.Info("Asset created", "asset_id", asset.ID, "owner_id", ownerID, "object_key", objectKey)
	return NewAssetView(asset), nil
}

// Reads

func (s *service) GetAssetByID(ctx context.Context, uow UnitOfWork, id int64) (*AssetView, error) {
	asset, err := s.catalog.GetVisibleAsset(ctx, uow, id)
	if err != nil {
		return nil, &AssetError{AssetID: id, Op: "get", Err: err}
	}
	return NewAssetView(asset), nil
}

func (s *service) GetAssetURL(ctx context.Context, uow UnitOfWork, id int64, expiration time.Duration) (string, error) {
	asset, err := s.catalog.GetVisibleAsset(ctx, uow, id)
	if err != nil {
		return "", &AssetError{AssetID: id, Op: "get_url", Err: err}
	}

	url, err := s.store.PresignedURL(ctx, asset.ObjectKey, s.expiration(expiration))
	if err != nil {
		return "", &AssetError{AssetID: id, Op: "get_url", Err: err}
	}
	return url, nil
}

func (s *service) ListOwnerAssets(ctx context.Context, uow UnitOfWork, ownerID int64, skip, limit int, withURLs bool) (*Page, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}

	assets, total, err := s.catalog.ListOwnerAssets(ctx, uow, ownerID, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets for owner %d: %w", ownerID, err)
	}

	// An empty page is reported as not found rather than as a valid result.
	if len(assets) == 0 {
		return nil, fmt.Errorf("no assets were found for owner %d: %w", ownerID, ErrAssetNotFound)
	}

	views := make([]*AssetView, len(assets))
	for i, asset := range assets {
		views[i] = NewAssetView(asset)
	}

	if withURLs {
		keys := make([]string, len(assets))
		for i, asset := range assets {
			keys[i] = asset.ObjectKey
		}
		urls, err := s.store.BulkPresignedURL(ctx, keys, s.presignExpiration)
		if err != nil {
			return nil, fmt.Errorf("failed to presign assets for owner %d: %w", ownerID, err)
		}
		for i := range views {
			views[i].URL = urls[i]
		}
	}

	return &Page{Assets: views, Total: total, Skip: skip, Limit: limit}, nil
}

// Lifecycle

func (s *service) ToggleSoftDelete(ctx context.Context, uow UnitOfWork, id int64, deleting bool, ownerID int64) error {
	asset, err := s.catalog.GetAnyAsset(ctx, uow, id)
	if err != nil {
		return &AssetError{AssetID: id, Op: "soft_delete", Err: err}
	}

	// Already in the requested state: succeed without checking ownership.
	if asset.IsDeleted == deleting {
		return nil
	}

	if err := s.checkOwnership(ctx, uow, id, ownerID, "soft_delete"); err != nil {
		return err
	}

	if err := s.catalog.ToggleSoftDelete(ctx, uow, id, deleting); err != nil {
		return &AssetError{AssetID: id, Op: "soft_delete", Err: err}
	}

	s.logger.Info("Asset soft delete toggled", "asset_id", id, "deleting", deleting, "owner_id", ownerID)
	return nil
}

func (s *service) HardDelete(ctx context.Context, uow UnitOfWork, id int64, ownerID int64) error {
	asset, err := s.catalog.GetAnyAsset(ctx, uow, id)
	if err != nil {
		return &AssetError{AssetID: id, Op: "hard_delete", Err: err}
	}

	if err := s.checkOwnership(ctx, uow, id, ownerID, "hard_delete"); err != nil {
		return err
	}

	if err := s.catalog.HardDeleteAsset(ctx, uow, id); err != nil {
		return &AssetError{AssetID: id, Op: "hard_delete", Err: err}
	}

	// The stored object is intentionally kept.
	s.logger.Info("Asset hard deleted", "asset_id", id, "owner_id", ownerID, "object_key", asset.ObjectKey)
	return nil
}

// Helpers

func (s *service) checkOwnership(ctx context.Context, uow UnitOfWork, assetID, ownerID int64, op string) error {
	_, err := s.catalog.GetOwnershipRelation(ctx, uow, assetID, ownerID)
	if errors.Is(err, ErrRelationNotFound) {
		return &AssetError{AssetID: assetID, Op: op, Err: ErrForbidden}
	}
	if err != nil {
		return &AssetError{AssetID: assetID, Op: op, Err: err}
	}
	return nil
}

func (s *service) validateRequest(req CreateAssetRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if req.Body == nil {
		return fmt.Errorf("%w: body is required", ErrInvalidRequest)
	}
	if sub := strings.Trim(req.PathPrefix, "/"); sub != "" {
		for _, segment := range strings.Split(sub, "/") {
			if segment == "" || segment == "." || segment == ".." {
				return fmt.Errorf("%w: invalid path prefix %q", ErrInvalidRequest, req.PathPrefix)
			}
		}
	}
	return nil
}

// prefixFor always roots the key under the owner's prefix so one owner can
// never write into another owner's keys.
func (s *service) prefixFor(req CreateAssetRequest, ownerID int64) string {
	base := strings.Trim(s.pathPrefix(ownerID), "/")
	sub := strings.Trim(req.PathPrefix, "/")
	switch {
	case sub == "":
		return base
	case base == "":
		return sub
	default:
		return base + "/" + sub
	}
}

func (s *service) expiration(d time.Duration) time.Duration {
	if d <= 0 {
		return s.presignExpiration
	}
	return d
}

func fileFromRequest(req CreateAssetRequest) File {
	return File{
		Name:        req.Filename,
		ContentType: req.ContentType,
		Size:        req.Size,
		Body:        req.Body,
	}
}
