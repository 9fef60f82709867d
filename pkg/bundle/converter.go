// Package bundle converts Android App Bundles to universal APKs by
// invoking bundletool through a JVM launcher. The converter is constructed
// only when both tool paths are configured; callers treat absence as a
// typed upload-time error for AAB inputs.
package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrInvalidBundle is returned when the input is not a valid Android App
// Bundle (a zip containing BundleConfig.pb).
var ErrInvalidBundle = errors.New("invalid AAB: not a valid Android App Bundle")

// ConversionError is returned when bundletool fails or produces an
// unusable container.
type ConversionError struct {
	Detail string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("AAB conversion failed: %s", e.Detail)
}

// Converter runs bundletool via java.
type Converter struct {
	bundletoolPath string
	javaPath       string
}

// New creates a converter with explicit tool paths.
func New(bundletoolPath, javaPath string) *Converter {
	return &Converter{bundletoolPath: bundletoolPath, javaPath: javaPath}
}

// DetectJava looks for a java binary via JAVA_HOME, common install
// locations and finally the PATH.
func DetectJava() (string, error) {
	if javaHome := os.Getenv("JAVA_HOME"); javaHome != "" {
		candidate := filepath.Join(javaHome, "bin", "java")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	for _, p := range []string{"/usr/bin/java", "/usr/local/bin/java", "/opt/java/bin/java", "/opt/homebrew/bin/java"} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	if path, err := exec.LookPath("java"); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("java not found; bundletool requires Java 11+")
}

// Convert turns the AAB at aabPath into a universal APK inside workDir and
// returns the APK path. The intermediate .apks container is removed on
// both success and failure. The context bounds the bundletool subprocess.
func (c *Converter) Convert(ctx context.Context, aabPath, workDir string) (string, error) {
	valid, err := isValidBundle(aabPath)
	if err != nil {
		return "", err
	}
	if !valid {
		return "", ErrInvalidBundle
	}

	apksPath := filepath.Join(workDir, "output.apks")
	apkPath := filepath.Join(workDir, "universal.apk")
	defer os.Remove(apksPath)

	cmd := exec.CommandContext(ctx, c.javaPath,
		"-jar", c.bundletoolPath,
		"build-apks",
		"--bundle="+aabPath,
		"--output="+apksPath,
		"--mode=universal")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", &ConversionError{Detail: detail}
	}

	if err := extractUniversalAPK(apksPath, apkPath); err != nil {
		return "", err
	}

	return apkPath, nil
}

// isValidBundle checks that the file is a zip containing BundleConfig.pb.
func isValidBundle(path string) (bool, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		// Not a zip at all.
		return false, nil
	}
	defer reader.Close()

	for _, f := range reader.File {
		if f.Name == "BundleConfig.pb" {
			return true, nil
		}
	}
	return false, nil
}

// extractUniversalAPK copies the universal.apk entry out of the .apks
// container (itself a zip).
func extractUniversalAPK(apksPath, outPath string) error {
	reader, err := zip.OpenReader(apksPath)
	if err != nil {
		return &ConversionError{Detail: fmt.Sprintf("invalid .apks container: %v", err)}
	}
	defer reader.Close()

	for _, f := range reader.File {
		if f.Name != "universal.apk" {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return &ConversionError{Detail: fmt.Sprintf("failed to open universal.apk: %v", err)}
		}
		defer rc.Close()

		out, err := os.Create(outPath)
		if err != nil {
			return &ConversionError{Detail: fmt.Sprintf("failed to create output APK: %v", err)}
		}
		defer out.Close()

		if _, err := io.Copy(out, rc); err != nil {
			return &ConversionError{Detail: fmt.Sprintf("failed to extract universal.apk: %v", err)}
		}
		return nil
	}

	return &ConversionError{Detail: "universal.apk not found in .apks container"}
}
