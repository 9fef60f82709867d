package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// TempDir is a working directory scoped to a single upload. Close removes
// it recursively; callers defer Close immediately after creation so cleanup
// runs on success, error return, and request cancellation alike.
type TempDir struct {
	path string
}

// NewTempDir allocates a fresh directory under temp/. The v4 UUID name makes
// collisions across concurrent uploads impossible.
func (s *Store) NewTempDir() (*TempDir, error) {
	path := filepath.Join(s.root, "temp", uuid.NewString())
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &TempDir{path: path}, nil
}

// Path returns the absolute path of the temp directory.
func (t *TempDir) Path() string {
	return t.path
}

// Close removes the directory and everything in it.
func (t *TempDir) Close() error {
	return os.RemoveAll(t.path)
}
