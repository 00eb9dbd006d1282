// Package gcs provides a ContentSink backed by Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/sitegen/internal/site"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
}

// Sink writes objects to a configured GCS bucket.
type Sink struct {
	client *storage.Client
	bucket string
}

// New creates a GCS-backed sink.
func New(client *storage.Client, cfg Config) (*Sink, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Sink{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// Put uploads body to key, replacing any existing object.
func (s *Sink) Put(
	ctx context.Context,
	key string,
	body []byte,
	contentType string,
	disposition site.Disposition,
) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("key is required")
	}
	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if disposition != "" {
		writer.ContentDisposition = string(disposition)
	}
	if _, err := io.Copy(writer, bytes.NewReader(body)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// URI returns the gs:// URI for key.
func (s *Sink) URI(key string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, key)
}
