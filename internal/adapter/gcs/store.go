// Package gcs downloads NWM forecast files from the public
// "national-water-model" Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/observability"
	"google.golang.org/api/option"
)

// Store reads objects from a single public bucket.
type Store struct {
	client  *storage.Client
	bucket  string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewStore creates an unauthenticated client for bucket. endpoint is
// optional and points the client at an emulator.
func NewStore(ctx context.Context, bucket, endpoint string, metrics *observability.Metrics, logger *slog.Logger) (*Store, error) {
	opts := []option.ClientOption{option.WithoutAuthentication()}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &Store{client: client, bucket: bucket, metrics: metrics, logger: logger}, nil
}

// Download writes the object to dest. Missing objects yield
// domain.ErrObjectNotFound and leave no file behind.
func (s *Store) Download(ctx context.Context, object, dest string) error {
	r, err := s.client.Bucket(s.bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("gs://%s/%s: %w", s.bucket, object, domain.ErrObjectNotFound)
		}
		s.metrics.ObjectDownloads.WithLabelValues("gcs", "error").Inc()
		return fmt.Errorf("open gs://%s/%s: %w", s.bucket, object, err)
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		s.metrics.ObjectDownloads.WithLabelValues("gcs", "error").Inc()
		return fmt.Errorf("copy gs://%s/%s: %w", s.bucket, object, err)
	}
	s.metrics.ObjectDownloads.WithLabelValues("gcs", "downloaded").Inc()
	s.metrics.DownloadBytes.Add(float64(n))
	s.logger.Debug("gcs object downloaded", "object", object, "bytes", n)
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
