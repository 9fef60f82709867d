package upload

import (
	"errors"
	"fmt"
)

// ErrInvalidFileType is returned when the uploaded bytes are neither an APK
// nor an AAB.
var ErrInvalidFileType = errors.New("invalid file type: expected APK or AAB")

// ErrAABNotSupported is returned for AAB uploads when no bundle converter
// is configured.
var ErrAABNotSupported = errors.New("AAB uploads not supported: bundletool is not configured")

// FileTooLargeError is returned when the upload exceeds the size ceiling.
type FileTooLargeError struct {
	Max    int64
	Actual int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file too large: %d bytes exceeds limit of %d", e.Actual, e.Max)
}

// VersionExistsError is returned when (package, version code) is already in
// the catalog.
type VersionExistsError struct {
	PackageName string
	VersionCode int64
}

func (e *VersionExistsError) Error() string {
	return fmt.Sprintf("version %d of %s already exists", e.VersionCode, e.PackageName)
}
