// Package storage uploads product images to a Firebase Storage bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

type GCSImageStore struct {
	client *storage.Client
	bucket string
}

func NewGCSImageStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSImageStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage bucket is not set")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &GCSImageStore{client: client, bucket: bucket}, nil
}

// Upload writes r to objectName with a download token and returns the
// token-bearing public URL.
func (s *GCSImageStore) Upload(ctx context.Context, objectName, contentType string, r io.Reader) (string, error) {
	token := uuid.NewString()
	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{
		"firebaseStorageDownloadTokens": token,
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return DownloadURL(s.bucket, objectName, token), nil
}

func (s *GCSImageStore) Close() error {
	return s.client.Close()
}

func DownloadURL(bucket, objectName, token string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket, url.PathEscape(objectName), token)
}
