// Package storage owns the on-disk layout for APK artifacts and icons:
// apks/<package>/<version_code>.apk, icons/<package>.png, and a temp/
// area for scoped working directories.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
)

// Store manages the artifact tree under a single root directory. It holds
// no mutable state; concurrent callers are isolated by unique paths.
type Store struct {
	root string
}

// New creates a store rooted at the given directory, creating the fixed
// subtrees if they do not exist.
func New(root string) (*Store, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}

	for _, dir := range []string{absRoot, filepath.Join(absRoot, "apks"), filepath.Join(absRoot, "icons"), filepath.Join(absRoot, "temp")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return &Store{root: absRoot}, nil
}

// Root returns the absolute storage root directory.
func (s *Store) Root() string {
	return s.root
}

// ValidatePackageName checks that a package name is safe to use as a path
// component. Android package names are dotted identifiers; anything that
// could escape the storage tree is rejected.
func ValidatePackageName(name string) error {
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return &InvalidPackageNameError{Name: name, Reason: "contains path separators or traversal sequences"}
	}
	if strings.ContainsRune(name, 0) {
		return &InvalidPackageNameError{Name: name, Reason: "contains null bytes"}
	}
	if len(name) == 0 || len(name) > 255 {
		return &InvalidPackageNameError{Name: name, Reason: "must be 1-255 characters"}
	}
	if !strings.Contains(name, ".") {
		return &InvalidPackageNameError{Name: name, Reason: "must contain at least one dot (e.g. com.example)"}
	}
	return nil
}

// APKPath returns the absolute path of a stored APK.
func (s *Store) APKPath(packageName string, versionCode int64) string {
	return filepath.Join(s.root, "apks", packageName, fmt.Sprintf("%d.apk", versionCode))
}

// IconPath returns the absolute path of a stored icon.
func (s *Store) IconPath(packageName string) string {
	return filepath.Join(s.root, "icons", packageName+".png")
}

// AbsPath resolves a relative key (as stored in the catalog) against the root.
func (s *Store) AbsPath(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// SaveAPK writes APK bytes to the canonical location and returns the
// relative key recorded in the catalog.
func (s *Store) SaveAPK(packageName string, versionCode int64, data []byte) (string, error) {
	if err := ValidatePackageName(packageName); err != nil {
		return "", err
	}

	dir := filepath.Join(s.root, "apks", packageName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create package directory: %w", err)
	}

	fileName := fmt.Sprintf("%d.apk", versionCode)
	if err := os.WriteFile(filepath.Join(dir, fileName), data, 0644); err != nil {
		return "", fmt.Errorf("failed to write APK: %w", err)
	}

	return fmt.Sprintf("apks/%s/%s", packageName, fileName), nil
}

// SaveIcon writes a normalized PNG icon and returns its relative key.
func (s *Store) SaveIcon(packageName string, data []byte) (string, error) {
	if err := ValidatePackageName(packageName); err != nil {
		return "", err
	}

	dir := filepath.Join(s.root, "icons")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create icons directory: %w", err)
	}

	fileName := packageName + ".png"
	if err := os.WriteFile(filepath.Join(dir, fileName), data, 0644); err != nil {
		return "", fmt.Errorf("failed to write icon: %w", err)
	}

	return "icons/" + fileName, nil
}

// DeleteAPK removes the APK file if present. When the containing package
// directory becomes empty it is removed too.
func (s *Store) DeleteAPK(packageName string, versionCode int64) error {
	if err := ValidatePackageName(packageName); err != nil {
		return err
	}

	path := s.APKPath(packageName, versionCode)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove APK: %w", err)
	}

	dir := filepath.Join(s.root, "apks", packageName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read package directory: %w", err)
	}
	if len(entries) == 0 {
		if err := os.Remove(dir); err != nil {
			return fmt.Errorf("failed to remove empty package directory: %w", err)
		}
	}

	return nil
}

// DeleteIcon removes the icon file if present.
func (s *Store) DeleteIcon(packageName string) error {
	if err := ValidatePackageName(packageName); err != nil {
		return err
	}

	if err := os.Remove(s.IconPath(packageName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove icon: %w", err)
	}
	return nil
}

// DeletePackage removes every APK for the package plus its icon. Parts that
// are already absent are not an error.
func (s *Store) DeletePackage(packageName string) error {
	if err := ValidatePackageName(packageName); err != nil {
		return err
	}

	var errs error
	if err := os.RemoveAll(filepath.Join(s.root, "apks", packageName)); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to remove APK directory: %w", err))
	}
	if err := s.DeleteIcon(packageName); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

// SHA256Hex returns the lowercase hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
