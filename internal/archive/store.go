package archive

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// Store persists archive objects by key.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
}

type GCSStore struct {
	bucket *storage.BucketHandle
	name   string
}

func NewGCSStore(client *storage.Client, bucket string) *GCSStore {
	return &GCSStore{bucket: client.Bucket(bucket), name: bucket}
}

func (s *GCSStore) Put(ctx context.Context, key string, data []byte) error {
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-cache"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", s.name, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gs://%s/%s: %w", s.name, key, err)
	}
	return nil
}
