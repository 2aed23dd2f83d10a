package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"travelchat/internal/model"
)

// LocalStore keeps uploads in a directory served under /uploads/.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

func (s *LocalStore) Dir() string {
	return s.dir
}

// Save writes data under name, creating the directory if needed, and returns the file path.
func (s *LocalStore) Save(name string, data []byte) (string, error) {
	if !validLocalName(name) {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidReference, name)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	full := filepath.Join(s.dir, name)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return full, nil
}

// Delete removes name. A missing file is not an error.
func (s *LocalStore) Delete(name string) error {
	if !validLocalName(name) {
		return fmt.Errorf("%w: %q", model.ErrInvalidReference, name)
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}

// Exists reports whether name is present in the directory.
func (s *LocalStore) Exists(name string) bool {
	if !validLocalName(name) {
		return false
	}
	_, err := os.Stat(filepath.Join(s.dir, name))
	return err == nil
}
