package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/apkhub/apkhub-server/pkg/catalog"
	"github.com/apkhub/apkhub-server/pkg/storage"
	"github.com/apkhub/apkhub-server/pkg/upload"
)

type versionInfo struct {
	VersionCode int64  `json:"version_code"`
	VersionName string `json:"version_name"`
	Size        int64  `json:"size"`
	SHA256      string `json:"sha256"`
	MinSDK      int64  `json:"min_sdk"`
	UploadedAt  string `json:"uploaded_at"`
}

type appSummary struct {
	PackageName string       `json:"package_name"`
	Name        string       `json:"name"`
	Description *string      `json:"description,omitempty"`
	HasIcon     bool         `json:"has_icon"`
	CreatedAt   string       `json:"created_at"`
	UpdatedAt   string       `json:"updated_at"`
	Latest      *versionInfo `json:"latest_version,omitempty"`
}

type appDetail struct {
	appSummary
	Versions []versionInfo `json:"versions"`
}

type uploadResponse struct {
	PackageName string `json:"package_name"`
	VersionCode int64  `json:"version_code"`
	VersionName string `json:"version_name"`
	Name        string `json:"name"`
	IsNewApp    bool   `json:"is_new_app"`
}

func toVersionInfo(v *catalog.Version) *versionInfo {
	return &versionInfo{
		VersionCode: v.VersionCode,
		VersionName: v.VersionName,
		Size:        v.Size,
		SHA256:      v.SHA256,
		MinSDK:      v.MinSDK,
		UploadedAt:  v.UploadedAt,
	}
}

func toSummary(a *catalog.App, latest *catalog.Version) appSummary {
	s := appSummary{
		PackageName: a.PackageName,
		Name:        a.Name,
		Description: a.Description,
		HasIcon:     a.IconKey != nil,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	if latest != nil {
		s.Latest = toVersionInfo(latest)
	}
	return s
}

func (s *Server) handleListApps(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	apps, err := s.db.ListApps(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	summaries := make([]appSummary, 0, len(apps))
	for i := range apps {
		latest, err := s.db.GetLatestVersion(ctx, apps[i].PackageName)
		if err != nil && !errors.Is(err, catalog.ErrNotFound) {
			s.writeError(w, r, err)
			return
		}
		summaries = append(summaries, toSummary(&apps[i], latest))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetApp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	packageName := chi.URLParam(r, "package")

	app, err := s.db.GetApp(ctx, packageName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	versions, err := s.db.GetVersions(ctx, packageName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	detail := appDetail{Versions: make([]versionInfo, 0, len(versions))}
	for i := range versions {
		detail.Versions = append(detail.Versions, *toVersionInfo(&versions[i]))
	}
	var latest *catalog.Version
	if len(versions) > 0 {
		latest = &versions[0]
	}
	detail.appSummary = toSummary(app, latest)
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleGetIcon(w http.ResponseWriter, r *http.Request) {
	app, err := s.db.GetApp(r.Context(), chi.URLParam(r, "package"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if app.IconKey == nil {
		s.writeError(w, r, storage.ErrNotFound)
		return
	}

	if err := storage.ServeFile(w, r, s.store.AbsPath(*app.IconKey), "image/png", ""); err != nil {
		s.writeError(w, r, err)
	}
}

func (s *Server) handleDownloadAPK(w http.ResponseWriter, r *http.Request) {
	packageName := chi.URLParam(r, "package")
	code, err := strconv.ParseInt(chi.URLParam(r, "code"), 10, 64)
	if err != nil {
		badRequest(w, "invalid version code")
		return
	}

	versions, err := s.db.GetVersions(r.Context(), packageName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	for i := range versions {
		if versions[i].VersionCode != code {
			continue
		}
		filename := fmt.Sprintf("%s-%s.apk", packageName, versions[i].VersionName)
		err := storage.ServeFile(w, r, s.store.AbsPath(versions[i].APKKey),
			"application/vnd.android.package-archive", filename)
		if err != nil {
			s.writeError(w, r, err)
		}
		return
	}

	s.writeError(w, r, catalog.ErrNotFound)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Multipart overhead on top of the artifact ceiling.
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		badRequest(w, "invalid multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "missing file field")
		return
	}
	defer file.Close()

	// Read one byte past the ceiling so the pipeline's size gate fires on
	// oversized bodies without buffering them whole.
	data, err := io.ReadAll(io.LimitReader(file, s.maxUpload+1))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	opts := upload.Options{}
	if v := r.FormValue("name"); v != "" {
		opts.NameOverride = &v
	}
	if v := r.FormValue("description"); v != "" {
		opts.DescriptionOverride = &v
	}

	result, err := s.uploads.ProcessUpload(r.Context(), header.Filename, data, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{
		PackageName: result.PackageName,
		VersionCode: result.VersionCode,
		VersionName: result.VersionName,
		Name:        result.AppName,
		IsNewApp:    result.IsNewApp,
	})
}

type updateAppRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// handleUpdateApp changes display metadata only; icons come exclusively
// from uploads.
func (s *Server) handleUpdateApp(w http.ResponseWriter, r *http.Request) {
	var req updateAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	packageName := chi.URLParam(r, "package")
	if err := s.db.UpdateApp(r.Context(), packageName, req.Name, req.Description, nil); err != nil {
		s.writeError(w, r, err)
		return
	}

	app, err := s.db.GetApp(r.Context(), packageName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummary(app, nil))
}

func (s *Server) handleDeleteApp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	packageName := chi.URLParam(r, "package")

	if _, err := s.db.GetApp(ctx, packageName); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.store.DeletePackage(packageName); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.db.DeleteApp(ctx, packageName); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	packageName := chi.URLParam(r, "package")
	code, err := strconv.ParseInt(chi.URLParam(r, "code"), 10, 64)
	if err != nil {
		badRequest(w, "invalid version code")
		return
	}

	exists, err := s.db.VersionExists(ctx, packageName, code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !exists {
		s.writeError(w, r, catalog.ErrNotFound)
		return
	}

	if err := s.store.DeleteAPK(packageName, code); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.db.DeleteVersion(ctx, packageName, code); err != nil {
		s.writeError(w, r, err)
		return
	}

	// Removing the last version removes the package and its icon too.
	remaining, err := s.db.GetVersions(ctx, packageName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(remaining) == 0 {
		if err := s.store.DeleteIcon(packageName); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.db.DeleteApp(ctx, packageName); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
