package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range entries {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = f.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func TestIsValidBundle(t *testing.T) {
	dir := t.TempDir()

	aab := filepath.Join(dir, "app.aab")
	writeZip(t, aab, map[string][]byte{
		"BundleConfig.pb":                   {0x0a, 0x02},
		"base/manifest/AndroidManifest.xml": []byte("<manifest/>"),
	})
	ok, err := isValidBundle(aab)
	require.NoError(t, err)
	assert.True(t, ok)

	apk := filepath.Join(dir, "app.apk")
	writeZip(t, apk, map[string][]byte{
		"AndroidManifest.xml": []byte("<manifest/>"),
	})
	ok, err = isValidBundle(apk)
	require.NoError(t, err)
	assert.False(t, ok)

	junk := filepath.Join(dir, "junk.bin")
	require.NoError(t, os.WriteFile(junk, []byte("not a zip"), 0644))
	ok, err = isValidBundle(junk)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtractUniversalAPK(t *testing.T) {
	dir := t.TempDir()
	apkBody := []byte("fake apk contents")

	apks := filepath.Join(dir, "output.apks")
	writeZip(t, apks, map[string][]byte{
		"universal.apk": apkBody,
		"toc.pb":        {0x01},
	})

	out := filepath.Join(dir, "universal.apk")
	require.NoError(t, extractUniversalAPK(apks, out))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, apkBody, got)
}

func TestExtractUniversalAPKMissingEntry(t *testing.T) {
	dir := t.TempDir()

	apks := filepath.Join(dir, "output.apks")
	writeZip(t, apks, map[string][]byte{"toc.pb": {0x01}})

	err := extractUniversalAPK(apks, filepath.Join(dir, "universal.apk"))
	require.Error(t, err)

	var convErr *ConversionError
	assert.ErrorAs(t, err, &convErr)
}

func TestConvertRejectsInvalidBundle(t *testing.T) {
	dir := t.TempDir()

	notAAB := filepath.Join(dir, "app.aab")
	writeZip(t, notAAB, map[string][]byte{
		"AndroidManifest.xml": []byte("<manifest/>"),
	})

	c := New("/nonexistent/bundletool.jar", "/nonexistent/java")
	_, err := c.Convert(context.Background(), notAAB, dir)
	assert.ErrorIs(t, err, ErrInvalidBundle)
}
