// Package upload orchestrates the ingest pipeline: size gate, type
// detection, optional AAB conversion, metadata inspection, uniqueness
// check, hashing and the coupled filesystem-plus-database persist.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/apkhub/apkhub-server/pkg/apk"
	"github.com/apkhub/apkhub-server/pkg/catalog"
	"github.com/apkhub/apkhub-server/pkg/storage"
)

// Inspector extracts package metadata from an APK on disk.
type Inspector interface {
	Inspect(ctx context.Context, apkPath string) (*apk.Metadata, error)
}

// Converter turns an AAB into a universal APK inside workDir and returns
// the APK path.
type Converter interface {
	Convert(ctx context.Context, aabPath, workDir string) (string, error)
}

// Result describes a completed upload.
type Result struct {
	PackageName string
	VersionCode int64
	VersionName string
	AppName     string
	IsNewApp    bool
}

// Options carries per-upload admin overrides. Nil fields fall back to the
// inspector's values.
type Options struct {
	NameOverride        *string
	DescriptionOverride *string
}

// Service runs the ingest pipeline. Converter may be nil, in which case AAB
// uploads fail with ErrAABNotSupported.
type Service struct {
	store     *storage.Store
	db        *catalog.Store
	inspector Inspector
	converter Converter
	maxSize   int64
	log       *slog.Logger
}

// NewService assembles the pipeline from its collaborators.
func NewService(store *storage.Store, db *catalog.Store, inspector Inspector, converter Converter, maxSize int64, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:     store,
		db:        db,
		inspector: inspector,
		converter: converter,
		maxSize:   maxSize,
		log:       log,
	}
}

// ProcessUpload ingests one artifact. The steps run strictly in order; any
// failure returns a typed error and leaves no orphan file or dangling row.
// Concurrent uploads of the same (package, version code) are serialized by
// the catalog's uniqueness constraint, never by an in-process lock.
func (s *Service) ProcessUpload(ctx context.Context, filename string, data []byte, opts Options) (*Result, error) {
	if int64(len(data)) > s.maxSize {
		return nil, &FileTooLargeError{Max: s.maxSize, Actual: int64(len(data))}
	}

	fileType := DetectFileType(filename, data)
	if fileType == FileTypeUnknown {
		return nil, ErrInvalidFileType
	}

	temp, err := s.store.NewTempDir()
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer temp.Close()

	apkBytes := data
	if fileType == FileTypeAAB {
		if s.converter == nil {
			return nil, ErrAABNotSupported
		}
		apkBytes, err = s.convertAAB(ctx, data, temp.Path())
		if err != nil {
			return nil, err
		}
	}

	// The inspector opens the APK by path.
	apkPath := filepath.Join(temp.Path(), "app.apk")
	if err := os.WriteFile(apkPath, apkBytes, 0644); err != nil {
		return nil, fmt.Errorf("failed to write temp APK: %w", err)
	}

	meta, err := s.inspector.Inspect(ctx, apkPath)
	if err != nil {
		return nil, err
	}

	exists, err := s.db.VersionExists(ctx, meta.PackageName, meta.VersionCode)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &VersionExistsError{PackageName: meta.PackageName, VersionCode: meta.VersionCode}
	}

	sha256Hex := storage.SHA256Hex(apkBytes)

	isNewApp := false
	if _, err := s.db.GetApp(ctx, meta.PackageName); err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			return nil, err
		}
		isNewApp = true
	}

	apkKey, err := s.store.SaveAPK(meta.PackageName, meta.VersionCode, apkBytes)
	if err != nil {
		return nil, err
	}

	var iconKey *string
	if len(meta.IconData) > 0 {
		key, err := s.store.SaveIcon(meta.PackageName, meta.IconData)
		if err != nil {
			s.log.Warn("failed to save icon", "package", meta.PackageName, "error", err)
		} else {
			iconKey = &key
		}
	}

	displayName := meta.AppName
	if opts.NameOverride != nil {
		displayName = *opts.NameOverride
	}

	err = s.db.WithTx(ctx, func(tx *catalog.Tx) error {
		if isNewApp {
			if err := tx.InsertApp(ctx, meta.PackageName, displayName, opts.DescriptionOverride, iconKey); err != nil {
				return err
			}
		} else {
			if err := tx.UpdateApp(ctx, meta.PackageName, opts.NameOverride, opts.DescriptionOverride, iconKey); err != nil {
				return err
			}
		}
		return tx.InsertVersion(ctx, &catalog.Version{
			PackageName: meta.PackageName,
			VersionCode: meta.VersionCode,
			VersionName: meta.VersionName,
			APKKey:      apkKey,
			Size:        int64(len(apkBytes)),
			SHA256:      sha256Hex,
			MinSDK:      meta.MinSDK,
		})
	})
	if err != nil {
		s.cleanupOnFailure(meta.PackageName, meta.VersionCode, isNewApp, iconKey != nil)
		if catalog.IsUniqueViolation(err) {
			return nil, &VersionExistsError{PackageName: meta.PackageName, VersionCode: meta.VersionCode}
		}
		return nil, err
	}

	return &Result{
		PackageName: meta.PackageName,
		VersionCode: meta.VersionCode,
		VersionName: meta.VersionName,
		AppName:     displayName,
		IsNewApp:    isNewApp,
	}, nil
}

// convertAAB writes the bundle into the temp dir, runs the converter and
// reads the resulting universal APK back.
func (s *Service) convertAAB(ctx context.Context, data []byte, workDir string) ([]byte, error) {
	aabPath := filepath.Join(workDir, "input.aab")
	if err := os.WriteFile(aabPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write temp AAB: %w", err)
	}

	apkPath, err := s.converter.Convert(ctx, aabPath, workDir)
	if err != nil {
		return nil, err
	}

	apkBytes, err := os.ReadFile(apkPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read converted APK: %w", err)
	}
	return apkBytes, nil
}

// cleanupOnFailure undoes the filesystem writes after a failed catalog
// transaction. The icon is only removed for a new package; an existing
// package's icon belongs to an earlier successful upload.
func (s *Service) cleanupOnFailure(packageName string, versionCode int64, isNewApp, iconSaved bool) {
	if err := s.store.DeleteAPK(packageName, versionCode); err != nil {
		s.log.Error("failed to clean up APK after aborted upload", "package", packageName, "version", versionCode, "error", err)
	}
	if isNewApp && iconSaved {
		if err := s.store.DeleteIcon(packageName); err != nil {
			s.log.Error("failed to clean up icon after aborted upload", "package", packageName, "error", err)
		}
	}
}
