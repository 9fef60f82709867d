package apk

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcessIconResizesToStandardSize(t *testing.T) {
	data, err := ProcessIcon(encodeTestPNG(t, 512, 512), "ic_launcher.png")
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, IconSize, img.Bounds().Dx())
	assert.Equal(t, IconSize, img.Bounds().Dy())
}

func TestProcessIconUpscalesSmallImages(t *testing.T) {
	data, err := ProcessIcon(encodeTestPNG(t, 48, 48), "ic_launcher.png")
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, IconSize, img.Bounds().Dx())
}

func TestProcessIconRejectsGarbage(t *testing.T) {
	_, err := ProcessIcon([]byte("not an image"), "ic_launcher.png")
	assert.Error(t, err)
}

func TestExtractIcon(t *testing.T) {
	iconData := encodeTestPNG(t, 96, 96)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("res/mipmap-xxxhdpi/ic_launcher.png")
	require.NoError(t, err)
	_, err = f.Write(iconData)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	apkPath := filepath.Join(t.TempDir(), "app.apk")
	require.NoError(t, os.WriteFile(apkPath, buf.Bytes(), 0644))

	out, err := extractIcon(apkPath, "res/mipmap-xxxhdpi/ic_launcher.png")
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, IconSize, img.Bounds().Dx())

	_, err = extractIcon(apkPath, "res/missing.png")
	assert.Error(t, err)
}
