package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"laundry-locker/internal/model"
)

// FileStore keeps the state in a single JSON document. Writes go to a
// temporary file in the same directory which is synced and renamed over the
// target, so readers never see a partial document.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the document path.
func (f *FileStore) Path() string {
	return f.path
}

// Load implements Store.
func (f *FileStore) Load(ctx context.Context) (*model.State, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", f.path, err)
	}

	var s model.State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, f.path, err)
	}
	if s.ActiveCards == nil {
		s.ActiveCards = make(map[string]model.Assignment)
	}
	if s.Transactions == nil {
		s.Transactions = []model.Transaction{}
	}
	if s.AvailableLockers == nil {
		s.AvailableLockers = []string{}
	}
	return &s, nil
}

// Save implements Store.
func (f *FileStore) Save(ctx context.Context, s *model.State) error {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".locker-state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Quarantine moves an unreadable state file aside so a fresh state can be
// written without destroying the evidence. It returns the new path.
func (f *FileStore) Quarantine(now time.Time) (string, error) {
	dst := fmt.Sprintf("%s.corrupt-%d", f.path, now.Unix())
	if err := os.Rename(f.path, dst); err != nil {
		return "", err
	}
	return dst, nil
}
