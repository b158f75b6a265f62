package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-asset/pkg/simpleasset"
	"github.com/tendant/simple-asset/pkg/simpleasset/objectstore"
	"github.com/tendant/simple-asset/pkg/simpleasset/presigned"
	"github.com/tendant/simple-asset/pkg/simpleasset/repo/memory"
	"github.com/tendant/simple-asset/pkg/simpleasset/storage/fs"
)

func setupFilesTest(t *testing.T) *handlerTestEnv {
	t.Helper()
	signer, err := presigned.New("test-secret")
	require.NoError(t, err)
	blobs, err := fs.New(fs.Config{BaseDir: t.TempDir(), BaseURL: "http://assets.test", Signer: signer})
	require.NoError(t, err)

	catalog := memory.New()
	store, err := objectstore.New(blobs)
	require.NoError(t, err)
	service, err := simpleasset.New(
		simpleasset.WithCatalog(catalog),
		simpleasset.WithObjectStore(store),
	)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	router := NewRouter(NewAssetHandler(service, catalog, nil), reg, nil,
		WithFiles(NewFilesHandler(blobs, nil)))
	return &handlerTestEnv{router: router, reg: reg}
}

func TestFilesHandler_ServesSignedURL(t *testing.T) {
	env := setupFilesTest(t)
	view := env.upload(t, "beach.jpg", true, 42)

	w := env.do(t, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/assets/%d/url?expires=60", view.ID), nil), 0)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp URLResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	u, err := url.Parse(resp.URL)
	require.NoError(t, err)
	assert.Equal(t, "assets.test", u.Host)
	assert.Equal(t, "/files/user/42/beach.jpg", u.Path)

	w = env.do(t, httptest.NewRequest(http.MethodGet, u.RequestURI(), nil), 0)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "bytes of beach.jpg", w.Body.String())
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("ETag"))

	w = env.do(t, httptest.NewRequest(http.MethodHead, u.RequestURI(), nil), 0)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFilesHandler_Rejections(t *testing.T) {
	env := setupFilesTest(t)
	view := env.upload(t, "beach.jpg", true, 42)

	w := env.do(t, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/assets/%d/url", view.ID), nil), 0)
	require.Equal(t, http.StatusOK, w.Code)
	var resp URLResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	u, err := url.Parse(resp.URL)
	require.NoError(t, err)

	t.Run("Unsigned", func(t *testing.T) {
		w := env.do(t, httptest.NewRequest(http.MethodGet, "/files/user/42/beach.jpg", nil), 0)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("TamperedSignature", func(t *testing.T) {
		q := u.Query()
		q.Set("signature", "deadbeef")
		w := env.do(t, httptest.NewRequest(http.MethodGet, u.Path+"?"+q.Encode(), nil), 0)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("WrongMethod", func(t *testing.T) {
		w := env.do(t, httptest.NewRequest(http.MethodPut, u.RequestURI(), nil), 0)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("MissingObject", func(t *testing.T) {
		signer, err := presigned.New("test-secret")
		require.NoError(t, err)
		path, err := signer.Sign("user/42/never-uploaded.jpg", time.Minute)
		require.NoError(t, err)

		w := env.do(t, httptest.NewRequest(http.MethodGet, path, nil), 0)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
