package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/apkhub/apkhub-server/pkg/catalog"
	"github.com/apkhub/apkhub-server/pkg/storage"
)

// SweepOrphans removes APK files left behind by a crash between the file
// write and the catalog commit. Files with no matching catalog row are
// deleted; rows are never created from files. Returns the number of files
// removed.
func SweepOrphans(ctx context.Context, store *storage.Store, db *catalog.Store, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.Default()
	}

	apksRoot := filepath.Join(store.Root(), "apks")
	packages, err := os.ReadDir(apksRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read apks directory: %w", err)
	}

	removed := 0
	for _, pkg := range packages {
		if !pkg.IsDir() {
			continue
		}
		packageName := pkg.Name()

		files, err := os.ReadDir(filepath.Join(apksRoot, packageName))
		if err != nil {
			return removed, fmt.Errorf("failed to read package directory %s: %w", packageName, err)
		}
		for _, f := range files {
			versionCode, ok := parseVersionFile(f.Name())
			if !ok {
				continue
			}

			exists, err := db.VersionExists(ctx, packageName, versionCode)
			if err != nil {
				return removed, err
			}
			if exists {
				continue
			}

			log.Warn("removing orphan APK", "package", packageName, "version", versionCode)
			if err := store.DeleteAPK(packageName, versionCode); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// parseVersionFile extracts the version code from a "<code>.apk" filename.
func parseVersionFile(name string) (int64, bool) {
	base, ok := strings.CutSuffix(name, ".apk")
	if !ok {
		return 0, false
	}
	code, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return 0, false
	}
	return code, true
}
