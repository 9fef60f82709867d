package apk

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // decoder registration
	"image/png"
	"io"
	"strings"

	"github.com/nfnt/resize"
	"golang.org/x/image/webp"
)

// IconSize is the edge length of the normalized launcher icon.
const IconSize = 192

// extractIcon reads the icon entry out of the APK (a zip archive) and
// normalizes it to a 192x192 PNG.
func extractIcon(apkPath, iconPath string) ([]byte, error) {
	reader, err := zip.OpenReader(apkPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open APK: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.Name != iconPath {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open icon entry: %w", err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read icon entry: %w", err)
		}

		return ProcessIcon(data, iconPath)
	}

	return nil, fmt.Errorf("icon %s not found in APK", iconPath)
}

// ProcessIcon decodes an icon image (PNG, JPEG or WebP) and re-encodes it
// as a 192x192 PNG using Lanczos3 resampling.
func ProcessIcon(data []byte, name string) ([]byte, error) {
	var img image.Image
	var err error

	if strings.HasSuffix(strings.ToLower(name), ".webp") {
		img, err = webp.Decode(bytes.NewReader(data))
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode icon: %w", err)
	}

	resized := resize.Resize(IconSize, IconSize, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
