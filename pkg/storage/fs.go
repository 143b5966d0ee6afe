package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FS is a filesystem-backed blob store rooted at a single directory.
// Keys are slash-separated relative paths under the root.
type FS struct {
	root string
}

// NewFS creates a filesystem backend rooted at dir, creating it if needed.
func NewFS(dir string) (*FS, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage: root directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root %s: %w", dir, err)
	}
	return &FS{root: dir}, nil
}

// Root returns the backing directory.
func (f *FS) Root() string {
	return f.root
}

// Save writes data under key and returns a locator for it.
func (f *FS) Save(key string, data []byte) (Locator, error) {
	path, err := f.resolve(key)
	if err != nil {
		return Locator{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Locator{}, fmt.Errorf("storage: create dir for %s: %w", key, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Locator{}, fmt.Errorf("storage: write %s: %w", key, err)
	}
	return Locator{key: key}, nil
}

// Open returns a reader over the blob a locator references.
func (f *FS) Open(loc Locator) (io.ReadCloser, error) {
	path, err := f.resolve(loc.Key())
	if err != nil {
		return nil, err
	}
	rc, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", loc.Key(), err)
	}
	return rc, nil
}

// Delete removes the blob a locator references.
func (f *FS) Delete(loc Locator) error {
	path, err := f.resolve(loc.Key())
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w", loc.Key(), err)
	}
	return nil
}

// resolve maps a key to an absolute path, rejecting escapes from the root.
func (f *FS) resolve(key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return filepath.Join(f.root, clean), nil
}

// Verify FS implements Backend at compile time.
var _ Backend = (*FS)(nil)
