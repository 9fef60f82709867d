// Package apk inspects Android packages by invoking aapt2 and parsing its
// badging output, and normalizes launcher icons to a fixed-size PNG.
package apk

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// InspectionError is returned when the external inspection tool fails or
// its output cannot be parsed.
type InspectionError struct {
	Detail string
}

func (e *InspectionError) Error() string {
	return fmt.Sprintf("apk inspection failed: %s", e.Detail)
}

// Metadata is the parsed result of inspecting one APK.
type Metadata struct {
	PackageName string
	VersionCode int64
	VersionName string
	MinSDK      int64
	AppName     string
	// IconData is the normalized 192x192 PNG, or nil when the APK carries
	// no usable launcher icon. Icon failures are never fatal.
	IconData []byte
}

// Inspector wraps the aapt2 command line tool. A zero tool path is valid:
// the inspector constructs but every Inspect call fails.
type Inspector struct {
	aapt2Path string
	log       *slog.Logger
}

// NewInspector creates an inspector using the given aapt2 binary path.
// An empty path means the tool is unavailable.
func NewInspector(aapt2Path string, log *slog.Logger) *Inspector {
	if log == nil {
		log = slog.Default()
	}
	return &Inspector{aapt2Path: aapt2Path, log: log}
}

// Available reports whether an aapt2 path is configured.
func (p *Inspector) Available() bool {
	return p.aapt2Path != ""
}

// DetectAapt2 probes well-known SDK install locations, ANDROID_HOME
// build-tools (newest version first) and finally the PATH.
func DetectAapt2() (string, error) {
	commonPaths := []string{
		"/usr/local/lib/android/sdk/build-tools/34.0.0/aapt2",
		"/usr/local/lib/android/sdk/build-tools/33.0.0/aapt2",
		"/opt/android-sdk/build-tools/34.0.0/aapt2",
		"/opt/android-sdk/build-tools/33.0.0/aapt2",
		"/opt/homebrew/bin/aapt2",
		"/usr/bin/aapt2",
		"/usr/bin/aapt",
	}
	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	if androidHome := os.Getenv("ANDROID_HOME"); androidHome != "" {
		buildTools := filepath.Join(androidHome, "build-tools")
		if entries, err := os.ReadDir(buildTools); err == nil {
			var versions []string
			for _, e := range entries {
				if e.IsDir() {
					versions = append(versions, e.Name())
				}
			}
			sort.Sort(sort.Reverse(sort.StringSlice(versions)))
			for _, v := range versions {
				candidate := filepath.Join(buildTools, v, "aapt2")
				if _, err := os.Stat(candidate); err == nil {
					return candidate, nil
				}
			}
		}
	}

	if path, err := exec.LookPath("aapt2"); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("aapt2 not found in common locations, ANDROID_HOME or PATH")
}

// Inspect runs `aapt2 dump badging` against the APK at path and parses the
// result. The context bounds the subprocess; exceeding its deadline fails
// the same way a non-zero exit does.
func (p *Inspector) Inspect(ctx context.Context, apkPath string) (*Metadata, error) {
	if p.aapt2Path == "" {
		return nil, &InspectionError{Detail: "aapt2 not configured"}
	}

	cmd := exec.CommandContext(ctx, p.aapt2Path, "dump", "badging", apkPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, &InspectionError{Detail: detail}
	}

	parsed, err := parseBadging(stdout.String())
	if err != nil {
		return nil, &InspectionError{Detail: err.Error()}
	}

	meta := &Metadata{
		PackageName: parsed.PackageName,
		VersionCode: parsed.VersionCode,
		VersionName: parsed.VersionName,
		MinSDK:      parsed.MinSDK,
		AppName:     parsed.AppName,
	}

	if iconPath, ok := safeIconPath(parsed.IconPath); ok {
		icon, err := extractIcon(apkPath, iconPath)
		if err != nil {
			p.log.Warn("failed to extract icon", "package", meta.PackageName, "error", err)
		} else {
			meta.IconData = icon
		}
	} else if parsed.IconPath != "" {
		p.log.Warn("ignoring suspicious icon path", "package", meta.PackageName, "path", parsed.IconPath)
	}

	return meta, nil
}

// safeIconPath rejects icon paths that could escape the archive root.
func safeIconPath(path string) (string, bool) {
	if path == "" || strings.Contains(path, "..") || strings.HasPrefix(path, "/") {
		return "", false
	}
	return path, true
}
