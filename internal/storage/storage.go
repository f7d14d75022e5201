// Package storage abstracts the object store holding source documents and
// published output. The pipeline only ever sees opaque locators of the form
// store://<bucket>/<key>.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound indicates a locator that resolves to no object.
var ErrNotFound = errors.New("object not found")

// ObjectStore is the storage collaborator consumed by the pipeline.
type ObjectStore interface {
	// Get reads the object at bucket/key.
	Get(bucket, key string) ([]byte, error)

	// Put writes the object at bucket/key, creating or replacing it.
	Put(bucket, key string, data []byte) error

	// Download copies the object to a local file.
	Download(bucket, key, dest string) error

	// Upload copies a local file to bucket/key.
	Upload(src, bucket, key string) error
}

// ParseLocator splits store://bucket/key into its parts.
func ParseLocator(locator string) (bucket, key string, err error) {
	trimmed := strings.TrimSpace(locator)
	rest, ok := strings.CutPrefix(trimmed, "store://")
	if !ok {
		return "", "", fmt.Errorf("cannot parse bucket/key from %q", locator)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("cannot parse bucket/key from %q", locator)
	}
	return bucket, key, nil
}

// Locator builds a store:// locator from bucket and key.
func Locator(bucket, key string) string {
	return "store://" + bucket + "/" + key
}

// DirStore implements ObjectStore over a local directory tree. Buckets are
// directories under the root; keys are relative paths below them.
type DirStore struct {
	root string
}

// NewDirStore creates a DirStore rooted at root.
func NewDirStore(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &DirStore{root: root}, nil
}

func (s *DirStore) objectPath(bucket, key string) string {
	return filepath.Join(s.root, bucket, filepath.FromSlash(key))
}

// Get reads the object at bucket/key.
func (s *DirStore) Get(bucket, key string) ([]byte, error) {
	data, err := os.ReadFile(s.objectPath(bucket, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
		}
		return nil, err
	}
	return data, nil
}

// Put writes the object at bucket/key.
func (s *DirStore) Put(bucket, key string, data []byte) error {
	path := s.objectPath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Download copies the object to a local file.
func (s *DirStore) Download(bucket, key, dest string) error {
	src, err := os.Open(s.objectPath(bucket, key))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
		}
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return err
	}
	return out.Sync()
}

// Upload copies a local file to bucket/key.
func (s *DirStore) Upload(src, bucket, key string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return s.Put(bucket, key, data)
}
