package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/apkhub/apkhub-server/pkg/apk"
	"github.com/apkhub/apkhub-server/pkg/bundle"
	"github.com/apkhub/apkhub-server/pkg/catalog"
	"github.com/apkhub/apkhub-server/pkg/storage"
	"github.com/apkhub/apkhub-server/pkg/upload"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError maps a core error to its HTTP status. 4xx bodies carry the
// error text; 5xx bodies are redacted and the detail is logged with a
// correlation identifier instead.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalidName *storage.InvalidPackageNameError
		tooLarge    *upload.FileTooLargeError
		verExists   *upload.VersionExistsError
		inspErr     *apk.InspectionError
		convErr     *bundle.ConversionError
	)

	switch {
	case errors.Is(err, storage.ErrNotFound) || errors.Is(err, catalog.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: err.Error()})
	case errors.Is(err, upload.ErrInvalidFileType):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_file_type", Message: err.Error()})
	case errors.Is(err, upload.ErrAABNotSupported):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "aab_not_supported", Message: err.Error()})
	case errors.Is(err, bundle.ErrInvalidBundle):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_bundle", Message: err.Error()})
	case errors.As(err, &invalidName):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_package_name", Message: err.Error()})
	case errors.As(err, &tooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "file_too_large", Message: err.Error()})
	case errors.As(err, &verExists):
		writeJSON(w, http.StatusConflict, errorBody{Error: "version_exists", Message: err.Error()})
	case errors.As(err, &inspErr), errors.As(err, &convErr):
		s.internalError(w, r, err)
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	id := uuid.NewString()
	s.log.Error("internal error", "id", id, "method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{
		Error:   "internal",
		Message: "internal server error (id " + id + ")",
	})
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
