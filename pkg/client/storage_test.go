package client

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	storage := NewFileStorage(path)

	verified := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	state := &CachedState{
		UserID:       "u-42",
		Tier:         "pro",
		LicenseKey:   testKey,
		LastVerified: &verified,
	}
	require.NoError(t, storage.Save(state))

	loaded, err := storage.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "u-42", loaded.UserID)
	assert.Equal(t, testKey, loaded.LicenseKey)
	require.NotNil(t, loaded.LastVerified)
	assert.True(t, verified.Equal(*loaded.LastVerified))
}

func TestFileStorageMissingFileIsNotAnError(t *testing.T) {
	storage := NewFileStorage(filepath.Join(t.TempDir(), "absent.json"))

	loaded, err := storage.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestFileStoragePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}

	path := filepath.Join(t.TempDir(), "state.json")
	storage := NewFileStorage(path)
	require.NoError(t, storage.Save(&CachedState{UserID: "u-1", Tier: "free"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStorageCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")
	storage := NewFileStorage(path)

	require.NoError(t, storage.Save(&CachedState{UserID: "u-1", Tier: "free"}))

	loaded, err := storage.Load()
	require.NoError(t, err)
	assert.Equal(t, "u-1", loaded.UserID)
}

func TestFileStorageCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))

	_, err := NewFileStorage(path).Load()
	assert.Error(t, err)
}
