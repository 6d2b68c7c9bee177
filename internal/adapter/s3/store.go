// Package s3 reads public buckets anonymously: the benchmark catalog and
// assets, HAND tables and NWM retrospective output.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/ubuntu/decorate"
	"golang.org/x/sync/errgroup"
)

const maxAttempts = 3

// API is the subset of the S3 client used by Store.
type API interface {
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	awss3.ListObjectsV2APIClient
}

// NewClient builds an unsigned S3 client. endpoint is optional and switches
// the client to path-style addressing for S3-compatible servers.
func NewClient(ctx context.Context, region, endpoint string) (*awss3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Object is a listed key and its size in bytes.
type Object struct {
	Key  string
	Size int64
}

// SyncResult counts the outcome of a prefix sync.
type SyncResult struct {
	Downloaded int
	Skipped    int
}

// Store reads objects from a single bucket.
type Store struct {
	api     API
	bucket  string
	workers int
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewStore creates a Store. workers bounds concurrent downloads during Sync.
func NewStore(api API, bucket string, workers int, metrics *observability.Metrics, logger *slog.Logger) *Store {
	if workers <= 0 {
		workers = 1
	}
	return &Store{api: api, bucket: bucket, workers: workers, metrics: metrics, logger: logger}
}

// Get returns the full object body. Missing keys yield domain.ErrObjectNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &awss3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, s.wrap(key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}

// List returns every object under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]Object, error) {
	p := awss3.NewListObjectsV2Paginator(s.api, &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	var objs []Object
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, prefix, err)
		}
		for _, o := range page.Contents {
			objs = append(objs, Object{Key: aws.ToString(o.Key), Size: aws.ToInt64(o.Size)})
		}
	}
	return objs, nil
}

// Download writes key to dest, creating parent directories. The file is
// written under a temporary name and renamed into place. Transient failures
// are retried with exponential backoff.
func (s *Store) Download(ctx context.Context, key, dest string) (err error) {
	defer decorate.OnError(&err, "download s3://%s/%s", s.bucket, key)

	backoff := 200 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err = s.download(ctx, key, dest)
		if err == nil || errors.Is(err, domain.ErrObjectNotFound) || attempt == maxAttempts || ctx.Err() != nil {
			break
		}
		s.logger.Warn("s3 download failed, retrying", "key", key, "attempt", attempt, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, 5*time.Second)
	}
	outcome := "downloaded"
	if err != nil {
		outcome = "error"
	}
	s.metrics.ObjectDownloads.WithLabelValues("s3", outcome).Inc()
	return err
}

func (s *Store) download(ctx context.Context, key, dest string) error {
	out, err := s.api.GetObject(ctx, &awss3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return s.wrap(key, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return err
	}
	n, err := io.Copy(tmp, out.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	s.metrics.DownloadBytes.Add(float64(n))
	return nil
}

// Sync mirrors every object under prefix into destDir, keeping the key path
// relative to prefix. Files already present with the same size are skipped.
func (s *Store) Sync(ctx context.Context, prefix, destDir string) (SyncResult, error) {
	objs, err := s.List(ctx, prefix)
	if err != nil {
		return SyncResult{}, err
	}

	var downloaded, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, obj := range objs {
		rel := strings.TrimPrefix(strings.TrimPrefix(obj.Key, prefix), "/")
		if rel == "" || strings.HasSuffix(obj.Key, "/") {
			continue
		}
		dest := filepath.Join(destDir, filepath.FromSlash(rel))
		if fi, err := os.Stat(dest); err == nil && fi.Size() == obj.Size {
			skipped.Add(1)
			s.metrics.ObjectDownloads.WithLabelValues("s3", "skipped").Inc()
			continue
		}
		g.Go(func() error {
			if err := s.Download(gctx, obj.Key, dest); err != nil {
				return err
			}
			downloaded.Add(1)
			return nil
		})
	}
	err = g.Wait()
	res := SyncResult{Downloaded: int(downloaded.Load()), Skipped: int(skipped.Load())}
	if err != nil {
		return res, fmt.Errorf("sync s3://%s/%s: %w", s.bucket, prefix, err)
	}
	s.logger.Info("s3 sync complete", "bucket", s.bucket, "prefix", prefix, "dest", destDir,
		"downloaded", res.Downloaded, "skipped", res.Skipped)
	return res, nil
}

func (s *Store) wrap(key string, err error) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("s3://%s/%s: %w", s.bucket, key, domain.ErrObjectNotFound)
	}
	return fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
}
