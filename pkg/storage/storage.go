// Package storage provides typed references to stored blobs and a small
// backend interface over them. The frame store and query pipeline only
// ever see Locators, so the backing medium (filesystem, in-memory) can
// change without touching orchestration code.
package storage

import (
	"errors"
	"io"
)

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a locator has no backing blob.
	ErrNotFound = errors.New("storage: blob not found")

	// ErrEmptyKey is returned when a save is attempted with no key.
	ErrEmptyKey = errors.New("storage: key must not be empty")
)

// Locator is an opaque reference to one stored blob.
// The zero value references nothing.
type Locator struct {
	key string
}

// NewLocator builds a locator for a backend key.
// Callers normally receive locators from Backend.Save instead.
func NewLocator(key string) Locator {
	return Locator{key: key}
}

// Key returns the backend key this locator references.
func (l Locator) Key() string {
	return l.key
}

// IsZero reports whether the locator references nothing.
func (l Locator) IsZero() bool {
	return l.key == ""
}

// String implements fmt.Stringer.
func (l Locator) String() string {
	if l.IsZero() {
		return "<none>"
	}
	return l.key
}

// Backend stores and retrieves blobs by key.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Save writes data under key and returns a locator for it.
	// An existing blob under the same key is overwritten.
	Save(key string, data []byte) (Locator, error)

	// Open returns a reader over the blob a locator references.
	// Returns ErrNotFound if the blob does not exist.
	Open(loc Locator) (io.ReadCloser, error)

	// Delete removes the blob a locator references.
	// Deleting an absent blob is not an error.
	Delete(loc Locator) error
}

// ReadAll reads the full contents of the blob a locator references.
func ReadAll(b Backend, loc Locator) ([]byte, error) {
	rc, err := b.Open(loc)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
