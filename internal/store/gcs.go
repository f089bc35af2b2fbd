package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore persists variants in a Google Cloud Storage bucket, allowing
// multiple proxy instances to share one variant cache.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a GCSStore for the given bucket. opts are passed
// through to the underlying GCS client, allowing credential injection.
func NewGCSStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("store: failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Get reads the variant object, or ErrNotExist.
func (s *GCSStore) Get(ctx context.Context, key Key) (*Object, error) {
	obj := s.client.Bucket(s.bucket).Object(key.ObjectName())

	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("store: failed to open %q: %w", key.ObjectName(), err)
	}
	defer r.Close()

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("store: failed to read %q: %w", key.ObjectName(), err)
	}

	contentType := r.Attrs.ContentType
	if contentType == "" {
		contentType = contentTypeFor(key)
	}

	return &Object{Body: body, ContentType: contentType}, nil
}

// Put writes the variant object with its content type.
func (s *GCSStore) Put(ctx context.Context, key Key, o *Object) error {
	obj := s.client.Bucket(s.bucket).Object(key.ObjectName())

	w := obj.NewWriter(ctx)
	w.ContentType = o.ContentType

	if _, err := w.Write(o.Body); err != nil {
		_ = w.Close()
		return fmt.Errorf("store: upload write failed for %q: %w", key.ObjectName(), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("store: upload close failed for %q: %w", key.ObjectName(), err)
	}

	return nil
}
