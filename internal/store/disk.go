package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DiskStore writes variants to a directory on the local filesystem. The
// content type is recovered from the key's format rather than persisted
// alongside the bytes.
type DiskStore struct {
	baseDir string
}

// NewDiskStore creates a DiskStore rooted at baseDir. The directory is
// created if it does not already exist.
func NewDiskStore(baseDir string) (*DiskStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: failed to create base directory %q: %w", baseDir, err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("store: failed to resolve absolute path for %q: %w", baseDir, err)
	}
	return &DiskStore{baseDir: abs}, nil
}

// Get reads the variant from disk, or ErrNotExist.
func (s *DiskStore) Get(_ context.Context, key Key) (*Object, error) {
	body, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("store: failed to read %q: %w", key.ObjectName(), err)
	}
	return &Object{Body: body, ContentType: contentTypeFor(key)}, nil
}

// Put writes the variant, creating intermediate directories as needed. The
// write goes through a temporary file and rename so concurrent readers
// never observe a partial variant.
func (s *DiskStore) Put(_ context.Context, key Key, obj *Object) error {
	dest := s.path(key)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("store: failed to create directory for %q: %w", key.ObjectName(), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".variant-*")
	if err != nil {
		return fmt.Errorf("store: failed to create temp file for %q: %w", key.ObjectName(), err)
	}

	if _, err := tmp.Write(obj.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("store: failed to write %q: %w", key.ObjectName(), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("store: failed to close %q: %w", key.ObjectName(), err)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("store: failed to move %q into place: %w", key.ObjectName(), err)
	}

	return nil
}

func (s *DiskStore) path(key Key) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(key.ObjectName()))
}

// contentTypeFor derives the media type from the variant's format
// extension.
func contentTypeFor(key Key) string {
	switch key.Format {
	case "avif":
		return "image/avif"
	case "webp":
		return "image/webp"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
