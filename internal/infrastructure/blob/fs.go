package blob

import (
	"fmt"
	"os"
	"path/filepath"

	"chatguard-lab/pkg/logger"
)

// FSStore is a filesystem-backed temp-file store for in-flight uploads.
// It supports positional writes into pre-allocated files so chunks can
// arrive out of order without truncating earlier writes.
type FSStore struct {
	dir    string
	logger *logger.Logger
}

// NewFSStore creates the store, ensuring the backing directory exists
func NewFSStore(dir string, log *logger.Logger) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	return &FSStore{
		dir:    dir,
		logger: log.WithComponent("blob-store"),
	}, nil
}

// Dir returns the backing directory
func (s *FSStore) Dir() string {
	return s.dir
}

// Path returns the absolute path for a stored name
func (s *FSStore) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Preallocate creates an empty file of the given size
func (s *FSStore) Preallocate(name string, size int64) error {
	f, err := os.OpenFile(s.Path(name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer f.Close()

	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("failed to preallocate %d bytes: %w", size, err)
	}
	return nil
}

// WriteAt writes data at the given byte offset without truncating the file
func (s *FSStore) WriteAt(name string, offset int64, data []byte) error {
	f, err := os.OpenFile(s.Path(name), os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("temp file missing: %w", err)
		}
		return fmt.Errorf("failed to open temp file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteAt(data, offset); err != nil {
		return fmt.Errorf("failed to write %d bytes at offset %d: %w", len(data), offset, err)
	}
	return nil
}

// ReadAll reads back the whole assembled file
func (s *FSStore) ReadAll(name string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read temp file: %w", err)
	}
	return data, nil
}

// Remove deletes a stored file; missing files are not an error
func (s *FSStore) Remove(name string) error {
	if err := os.Remove(s.Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove temp file: %w", err)
	}
	return nil
}
