package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path"

	"github.com/go-chi/render"
	"github.com/tendant/simple-asset/pkg/simpleasset"
	"github.com/tendant/simple-asset/pkg/simpleasset/presigned"
	"github.com/tendant/simple-asset/pkg/simpleasset/storage/fs"
)

// FileSource is a blob store whose presigned URLs are served by this API
type FileSource interface {
	Signer() *presigned.Signer
	Open(ctx context.Context, objectKey string) (*os.File, *simpleasset.ObjectMeta, error)
}

// FilesHandler serves objects behind signed URLs minted by the filesystem
// backend.
type FilesHandler struct {
	source FileSource
	logger *slog.Logger
}

// NewFilesHandler creates a new files handler
func NewFilesHandler(source FileSource, logger *slog.Logger) *FilesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilesHandler{source: source, logger: logger}
}

// Prefix is the route the handler must be mounted under
func (h *FilesHandler) Prefix() string {
	return h.source.Signer().Prefix()
}

func (h *FilesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		render.Status(r, http.StatusMethodNotAllowed)
		render.JSON(w, r, ErrorResponse{Error: "Method not allowed"})
		return
	}

	key, err := h.source.Signer().Verify(r)
	if err != nil {
		h.logger.Debug("rejected file request", "path", r.URL.Path, "err", err)
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, ErrorResponse{Error: err.Error()})
		return
	}

	f, meta, err := h.source.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, fs.ErrObjectNotFound) || errors.Is(err, fs.ErrInvalidKey) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, ErrorResponse{Error: "Object not found"})
			return
		}
		h.logger.Error("failed to open object", "key", key, "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "Failed to read object"})
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("ETag", `"`+meta.ETag+`"`)
	w.Header().Set("Cache-Control", "private")
	http.ServeContent(w, r, path.Base(key), meta.UpdatedAt, f)
}
