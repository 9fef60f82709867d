package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apkhub/apkhub-server/pkg/apk"
	"github.com/apkhub/apkhub-server/pkg/catalog"
	"github.com/apkhub/apkhub-server/pkg/storage"
	"github.com/apkhub/apkhub-server/pkg/upload"
)

type scriptedInspector struct {
	meta apk.Metadata
}

func (f *scriptedInspector) Inspect(ctx context.Context, apkPath string) (*apk.Metadata, error) {
	m := f.meta
	return &m, nil
}

type testEnv struct {
	router    http.Handler
	store     *storage.Store
	db        *catalog.Store
	inspector *scriptedInspector
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.New(filepath.Join(dir, "storage"))
	require.NoError(t, err)
	db, err := catalog.Open(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	inspector := &scriptedInspector{meta: apk.Metadata{
		PackageName: "com.acme.tool",
		VersionCode: 7,
		VersionName: "1.2",
		MinSDK:      24,
		AppName:     "Acme Tool",
	}}

	uploads := upload.NewService(store, db, inspector, nil, 1<<20, nil)
	server := NewServer(store, db, uploads, 1<<20, Options{}, nil)

	return &testEnv{router: server.Router(), store: store, db: db, inspector: inspector}
}

func apkBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("AndroidManifest.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte("<manifest/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func multipartUpload(t *testing.T, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/apps", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) uploadOK(t *testing.T, data []byte) {
	t.Helper()
	rec := e.do(multipartUpload(t, "app.apk", data, nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadAndList(t *testing.T) {
	env := newTestEnv(t)
	env.uploadOK(t, apkBytes(t))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/apps", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var apps []appSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apps))
	require.Len(t, apps, 1)
	assert.Equal(t, "com.acme.tool", apps[0].PackageName)
	assert.Equal(t, "Acme Tool", apps[0].Name)
	assert.False(t, apps[0].HasIcon)
	require.NotNil(t, apps[0].Latest)
	assert.Equal(t, int64(7), apps[0].Latest.VersionCode)
}

func TestUploadWithOverrides(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(multipartUpload(t, "app.apk", apkBytes(t), map[string]string{
		"name":        "Custom",
		"description": "desc",
	}))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Custom", resp.Name)
	assert.True(t, resp.IsNewApp)
}

func TestGetAppDetail(t *testing.T) {
	env := newTestEnv(t)
	env.uploadOK(t, apkBytes(t))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/apps/com.acme.tool", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var detail appDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "com.acme.tool", detail.PackageName)
	require.Len(t, detail.Versions, 1)
	assert.Equal(t, "1.2", detail.Versions[0].VersionName)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/apps/com.missing.app", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDuplicateUploadConflict(t *testing.T) {
	env := newTestEnv(t)
	env.uploadOK(t, apkBytes(t))

	rec := env.do(multipartUpload(t, "app.apk", apkBytes(t), nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "version_exists", body.Error)
}

func TestUploadInvalidFileType(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(multipartUpload(t, "app.exe", []byte("MZ garbage"), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadAPKWithRange(t *testing.T) {
	env := newTestEnv(t)
	data := apkBytes(t)
	env.uploadOK(t, data)

	url := "/api/apps/com.acme.tool/versions/7/apk"

	rec := env.do(httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, data, rec.Body.Bytes())
	assert.Equal(t, "application/vnd.android.package-archive", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="com.acme.tool-1.2.apk"`, rec.Header().Get("Content-Disposition"))

	// Resume from byte 10.
	req := httptest.NewRequest(http.MethodGet, url, nil)
	req.Header.Set("Range", "bytes=10-")
	rec = env.do(req)
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, data[10:], rec.Body.Bytes())
	assert.Equal(t, fmt.Sprintf("bytes 10-%d/%d", len(data)-1, len(data)), rec.Header().Get("Content-Range"))

	req = httptest.NewRequest(http.MethodGet, url, nil)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", len(data)))
	rec = env.do(req)
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/apps/com.acme.tool/versions/99/apk", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetIconMissing(t *testing.T) {
	env := newTestEnv(t)
	env.uploadOK(t, apkBytes(t))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/apps/com.acme.tool/icon", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateApp(t *testing.T) {
	env := newTestEnv(t)
	env.uploadOK(t, apkBytes(t))

	body := bytes.NewBufferString(`{"name": "Renamed", "description": "new desc"}`)
	req := httptest.NewRequest(http.MethodPut, "/api/admin/apps/com.acme.tool", body)
	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary appSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "Renamed", summary.Name)

	req = httptest.NewRequest(http.MethodPut, "/api/admin/apps/com.missing.app",
		bytes.NewBufferString(`{"name": "x"}`))
	rec = env.do(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteVersionCascades(t *testing.T) {
	env := newTestEnv(t)
	env.uploadOK(t, apkBytes(t))

	env.inspector.meta.VersionCode = 8
	env.uploadOK(t, apkBytes(t))

	rec := env.do(httptest.NewRequest(http.MethodDelete, "/api/admin/apps/com.acme.tool/versions/8", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	app, err := env.db.GetApp(context.Background(), "com.acme.tool")
	require.NoError(t, err, "app survives while a version remains")
	assert.Equal(t, "Acme Tool", app.Name)

	// Deleting the last version removes the package entirely.
	rec = env.do(httptest.NewRequest(http.MethodDelete, "/api/admin/apps/com.acme.tool/versions/7", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err = env.db.GetApp(context.Background(), "com.acme.tool")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.NoFileExists(t, env.store.APKPath("com.acme.tool", 7))

	rec = env.do(httptest.NewRequest(http.MethodDelete, "/api/admin/apps/com.acme.tool/versions/7", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteApp(t *testing.T) {
	env := newTestEnv(t)
	env.uploadOK(t, apkBytes(t))

	rec := env.do(httptest.NewRequest(http.MethodDelete, "/api/admin/apps/com.acme.tool", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.NoFileExists(t, env.store.APKPath("com.acme.tool", 7))
	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/apps/com.acme.tool", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodDelete, "/api/admin/apps/com.acme.tool", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
