package api

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-asset/pkg/simpleasset"
)

// OwnerHeader carries the id of the user making the request. Identity is
// established upstream of this service.
const OwnerHeader = "X-Owner-ID"

const (
	maxMultipartMemory = 32 << 20
	maxFilesPerRequest = 50
)

// AssetHandler handles HTTP requests for assets
type AssetHandler struct {
	service simpleasset.Service
	uow     simpleasset.UnitOfWorkFactory
	logger  *slog.Logger
}

// NewAssetHandler creates a new asset handler. Every request runs in its own
// unit of work opened from uow.
func NewAssetHandler(service simpleasset.Service, uow simpleasset.UnitOfWorkFactory, logger *slog.Logger) *AssetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetHandler{
		service: service,
		uow:     uow,
		logger:  logger,
	}
}

// Routes returns the routes for assets, to be mounted under /api/v1
func (h *AssetHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/assets", h.CreateAsset)
	r.Post("/assets/bulk", h.CreateAssets)
	r.Get("/assets/{id}", h.GetAsset)
	r.Get("/assets/{id}/url", h.GetAssetURL)
	r.Patch("/assets/{id}/deleted", h.ToggleSoftDelete)
	r.Delete("/assets/{id}", h.HardDelete)

	r.Get("/owners/{ownerID}/assets", h.ListOwnerAssets)

	return r
}

// URLResponse is the response body for a presigned URL
type URLResponse struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in,omitempty"`
}

// BulkItemResponse is the per-file outcome of a bulk create
type BulkItemResponse struct {
	Index    int                    `json:"index"`
	Filename string                 `json:"filename"`
	Asset    *simpleasset.AssetView `json:"asset,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// ToggleSoftDeleteRequest is the request body for PATCH /assets/{id}/deleted
type ToggleSoftDeleteRequest struct {
	Deleting *bool `json:"deleting"`
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateAsset uploads one file from a multipart form and catalogs it
func (h *AssetHandler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		h.badRequest(w, r, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.badRequest(w, r, "Missing file")
		return
	}
	defer file.Close()

	req, err := requestFromForm(r, header, file)
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}

	var view *simpleasset.AssetView
	err = simpleasset.WithUnitOfWork(r.Context(), h.uow, func(uow simpleasset.UnitOfWork) error {
		var err error
		view, err = h.service.CreateAsset(r.Context(), uow, req, ownerID)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, view)
}

// CreateAssets uploads every "files" part of a multipart form. Form fields
// other than the files apply to all of them.
func (h *AssetHandler) CreateAssets(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		h.badRequest(w, r, "Invalid multipart form")
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		h.badRequest(w, r, "Missing files")
		return
	}
	if len(headers) > maxFilesPerRequest {
		h.badRequest(w, r, "Too many files")
		return
	}

	reqs := make([]simpleasset.CreateAssetRequest, len(headers))
	for i, header := range headers {
		file, err := header.Open()
		if err != nil {
			h.badRequest(w, r, "Unreadable file "+header.Filename)
			return
		}
		defer file.Close()

		reqs[i], err = requestFromForm(r, header, file)
		if err != nil {
			h.badRequest(w, r, err.Error())
			return
		}
	}

	var results []simpleasset.CreateResult
	err := simpleasset.WithUnitOfWork(r.Context(), h.uow, func(uow simpleasset.UnitOfWork) error {
		var err error
		results, err = h.service.CreateAssets(r.Context(), uow, reqs, ownerID)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]BulkItemResponse, len(results))
	for i, result := range results {
		resp[i] = BulkItemResponse{Index: i, Filename: reqs[i].Filename, Asset: result.Asset}
		if result.Err != nil {
			resp[i].Error = result.Err.Error()
		}
	}

	render.JSON(w, r, resp)
}

// GetAsset retrieves a visible asset by ID
func (h *AssetHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}

	var view *simpleasset.AssetView
	err := simpleasset.WithUnitOfWork(r.Context(), h.uow, func(uow simpleasset.UnitOfWork) error {
		var err error
		view, err = h.service.GetAssetByID(r.Context(), uow, id)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, view)
}

// GetAssetURL returns a presigned download URL for a visible asset.
// Query parameters:
//   - expires: validity in seconds (default: server setting)
func (h *AssetHandler) GetAssetURL(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}

	expires, err := queryInt(r, "expires", 0)
	if err != nil || expires < 0 {
		h.badRequest(w, r, "Invalid expires")
		return
	}

	var url string
	err = simpleasset.WithUnitOfWork(r.Context(), h.uow, func(uow simpleasset.UnitOfWork) error {
		var err error
		url, err = h.service.GetAssetURL(r.Context(), uow, id, time.Duration(expires)*time.Second)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, URLResponse{URL: url, ExpiresIn: expires})
}

// ListOwnerAssets lists an owner's assets that are not soft deleted.
// Query parameters:
//   - skip: offset (default: 0)
//   - limit: page size (default: 10)
//   - urls=true: include presigned URLs
func (h *AssetHandler) ListOwnerAssets(w http.ResponseWriter, r *http.Request) {
	ownerIDStr := chi.URLParam(r, "ownerID")
	ownerID, err := strconv.ParseInt(ownerIDStr, 10, 64)
	if err != nil {
		h.badRequest(w, r, "Invalid owner ID")
		return
	}

	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		h.badRequest(w, r, "Invalid skip")
		return
	}
	limit, err := queryInt(r, "limit", simpleasset.DefaultPageLimit)
	if err != nil {
		h.badRequest(w, r, "Invalid limit")
		return
	}
	withURLs := r.URL.Query().Get("urls") == "true"

	var page *simpleasset.Page
	err = simpleasset.WithUnitOfWork(r.Context(), h.uow, func(uow simpleasset.UnitOfWork) error {
		var err error
		page, err = h.service.ListOwnerAssets(r.Context(), uow, ownerID, skip, limit, withURLs)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, page)
}

// ToggleSoftDelete sets or clears the soft delete flag of an owned asset
func (h *AssetHandler) ToggleSoftDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}

	var req ToggleSoftDeleteRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil || req.Deleting == nil {
		h.badRequest(w, r, "Body must be {\"deleting\": bool}")
		return
	}

	err := simpleasset.WithUnitOfWork(r.Context(), h.uow, func(uow simpleasset.UnitOfWork) error {
		return h.service.ToggleSoftDelete(r.Context(), uow, id, *req.Deleting, ownerID)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HardDelete permanently removes an owned asset from the catalog
func (h *AssetHandler) HardDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}

	err := simpleasset.WithUnitOfWork(r.Context(), h.uow, func(uow simpleasset.UnitOfWork) error {
		return h.service.HardDelete(r.Context(), uow, id, ownerID)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Helpers

func (h *AssetHandler) requireOwner(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get(OwnerHeader)
	ownerID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ownerID <= 0 {
		h.logger.Warn("Missing or invalid owner header", "owner_id", raw)
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Error: "Missing or invalid " + OwnerHeader + " header"})
		return 0, false
	}
	return ownerID, true
}

func (h *AssetHandler) assetID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.logger.Error("Invalid asset ID", "asset_id", idStr, "err", err)
		h.badRequest(w, r, "Invalid asset ID")
		return 0, false
	}
	return id, true
}

func (h *AssetHandler) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Error: msg})
}

// writeError maps service errors to HTTP status codes
func (h *AssetHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Asset request failed", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: err.Error()})
}

// StatusFor returns the HTTP status code for an error returned by the service.
func StatusFor(err error) int {
	var storageErr *simpleasset.StorageError
	switch {
	case errors.Is(err, simpleasset.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, simpleasset.ErrAssetNotFound):
		return http.StatusNotFound
	case errors.Is(err, simpleasset.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, simpleasset.ErrUploadFailed), errors.As(err, &storageErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func requestFromForm(r *http.Request, header *multipart.FileHeader, body multipart.File) (simpleasset.CreateAssetRequest, error) {
	req := simpleasset.CreateAssetRequest{
		Kind:        simpleasset.AssetKind(r.FormValue("kind")),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		PathPrefix:  r.FormValue("path_prefix"),
		Body:        body,
	}

	if v := r.FormValue("date_taken"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return req, errors.New("date_taken must be RFC3339")
		}
		req.DateTaken = t
	}
	if v := r.FormValue("is_public"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, errors.New("is_public must be a boolean")
		}
		req.IsPublic = b
	}
	if v := r.FormValue("duration_seconds"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			return req, errors.New("duration_seconds must be an integer")
		}
		req.DurationSeconds = d
	}

	return req, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
