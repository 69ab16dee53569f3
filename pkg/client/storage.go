package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CachedState is the session state persisted between runs.
type CachedState struct {
	UserID       string     `json:"userId"`
	Tier         string     `json:"tier"`
	LicenseKey   string     `json:"licenseKey,omitempty"`
	LastVerified *time.Time `json:"lastVerified,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// Storage persists the cached session state. Load returns (nil, nil)
// when no state has been saved yet.
type Storage interface {
	Load() (*CachedState, error)
	Save(state *CachedState) error
}

// FileStorage keeps the state as a JSON file, created with 0600 since it
// contains the license key.
type FileStorage struct {
	path string
}

// NewFileStorage creates file-backed storage at path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Load reads the persisted state.
func (f *FileStorage) Load() (*CachedState, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var state CachedState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	return &state, nil
}

// Save writes the state atomically via a temp file in the same directory.
func (f *FileStorage) Save(state *CachedState) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod state file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
