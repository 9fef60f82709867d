package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested artifact does not exist on disk.
var ErrNotFound = errors.New("file not found")

// InvalidPackageNameError is returned when a package name fails validation.
// The name is never interpolated into a filesystem path before this check.
type InvalidPackageNameError struct {
	Name   string
	Reason string
}

func (e *InvalidPackageNameError) Error() string {
	return fmt.Sprintf("invalid package name %q: %s", e.Name, e.Reason)
}
