package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestValidatePackageName(t *testing.T) {
	valid := []string{"com.example", "com.example.app", "org.test.myapp", "a.b"}
	for _, name := range valid {
		assert.NoError(t, ValidatePackageName(name), name)
	}

	invalid := []string{
		"",
		"nodot",
		"../etc",
		"com.example/../etc",
		"a/b.c",
		"a\\b.c",
		"a\x00.b",
		strings.Repeat("a", 254) + ".a", // 256 bytes
	}
	for _, name := range invalid {
		err := ValidatePackageName(name)
		require.Error(t, err, "expected %q to be rejected", name)
		var invalidName *InvalidPackageNameError
		assert.True(t, errors.As(err, &invalidName), "expected InvalidPackageNameError for %q", name)
	}
}

func TestSHA256Hex(t *testing.T) {
	assert.Equal(t,
		"b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		SHA256Hex([]byte("hello world")))
}

func TestSaveAPK(t *testing.T) {
	s := newTestStore(t)

	key, err := s.SaveAPK("com.example.app", 1, []byte("fake apk data"))
	require.NoError(t, err)
	assert.Equal(t, "apks/com.example.app/1.apk", key)

	data, err := os.ReadFile(s.APKPath("com.example.app", 1))
	require.NoError(t, err)
	assert.Equal(t, []byte("fake apk data"), data)
}

func TestSaveAPKRejectsInvalidPackage(t *testing.T) {
	s := newTestStore(t)

	_, err := s.SaveAPK("../etc/passwd", 1, []byte("data"))
	var invalidName *InvalidPackageNameError
	require.True(t, errors.As(err, &invalidName))
}

func TestSaveIcon(t *testing.T) {
	s := newTestStore(t)

	key, err := s.SaveIcon("com.example.app", []byte("fake icon"))
	require.NoError(t, err)
	assert.Equal(t, "icons/com.example.app.png", key)

	_, err = os.Stat(s.IconPath("com.example.app"))
	require.NoError(t, err)
}

func TestDeleteAPKCleansEmptyDirectory(t *testing.T) {
	s := newTestStore(t)

	_, err := s.SaveAPK("com.example.app", 1, []byte("data"))
	require.NoError(t, err)
	_, err = s.SaveAPK("com.example.app", 2, []byte("data"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteAPK("com.example.app", 1))
	assert.NoFileExists(t, s.APKPath("com.example.app", 1))
	assert.FileExists(t, s.APKPath("com.example.app", 2))

	require.NoError(t, s.DeleteAPK("com.example.app", 2))
	assert.NoDirExists(t, filepath.Join(s.Root(), "apks", "com.example.app"))
}

func TestDeleteAPKMissingFile(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.DeleteAPK("com.example.app", 99))
}

func TestDeletePackage(t *testing.T) {
	s := newTestStore(t)

	_, err := s.SaveAPK("com.example.app", 1, []byte("data"))
	require.NoError(t, err)
	_, err = s.SaveAPK("com.example.app", 2, []byte("data"))
	require.NoError(t, err)
	_, err = s.SaveIcon("com.example.app", []byte("icon"))
	require.NoError(t, err)

	require.NoError(t, s.DeletePackage("com.example.app"))

	assert.NoDirExists(t, filepath.Join(s.Root(), "apks", "com.example.app"))
	assert.NoFileExists(t, s.IconPath("com.example.app"))

	// Deleting again is safe.
	assert.NoError(t, s.DeletePackage("com.example.app"))
}

func TestTempDirCleanup(t *testing.T) {
	s := newTestStore(t)

	td, err := s.NewTempDir()
	require.NoError(t, err)
	require.DirExists(t, td.Path())

	require.NoError(t, os.WriteFile(filepath.Join(td.Path(), "scratch.bin"), []byte("x"), 0644))
	require.NoError(t, td.Close())
	assert.NoDirExists(t, td.Path())
}

func TestTempDirsAreUnique(t *testing.T) {
	s := newTestStore(t)

	a, err := s.NewTempDir()
	require.NoError(t, err)
	defer a.Close()
	b, err := s.NewTempDir()
	require.NoError(t, err)
	defer b.Close()

	assert.NotEqual(t, a.Path(), b.Path())
}
