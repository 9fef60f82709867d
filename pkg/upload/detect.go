package upload

import (
	"archive/zip"
	"bytes"
	"strings"
)

// FileType classifies an uploaded artifact.
type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeAPK
	FileTypeAAB
)

func (t FileType) String() string {
	switch t {
	case FileTypeAPK:
		return "apk"
	case FileTypeAAB:
		return "aab"
	default:
		return "unknown"
	}
}

// DetectFileType classifies the bytes by zip content, falling back to the
// filename suffix when the archive contains neither marker entry.
func DetectFileType(filename string, data []byte) FileType {
	if len(data) < 2 || data[0] != 'P' || data[1] != 'K' {
		return FileTypeUnknown
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return FileTypeUnknown
	}

	hasManifest := false
	for _, f := range reader.File {
		if f.Name == "BundleConfig.pb" {
			return FileTypeAAB
		}
		if f.Name == "AndroidManifest.xml" {
			hasManifest = true
		}
	}
	if hasManifest {
		return FileTypeAPK
	}

	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".apk"):
		return FileTypeAPK
	case strings.HasSuffix(lower, ".aab"):
		return FileTypeAAB
	default:
		return FileTypeUnknown
	}
}
