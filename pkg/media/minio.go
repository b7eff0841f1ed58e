package media

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"courierdb/pkg/logger"
	"courierdb/pkg/models"
)

// MinIOConfig carries the object store connection settings.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	// PublicBaseURL is prepended to object paths in returned media
	// URLs. Defaults to the endpoint.
	PublicBaseURL string `yaml:"public_base_url"`
}

// MinIO stores attachments in an S3-compatible bucket.
type MinIO struct {
	cli    *minio.Client
	bucket string
	base   string
}

// NewMinIO connects and ensures the bucket exists.
func NewMinIO(ctx context.Context, cfg MinIOConfig) (*MinIO, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("media: endpoint and bucket are required")
	}
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("media: connect %s: %w", cfg.Endpoint, err)
	}
	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("media: check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("media: create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info("media_bucket_created", "bucket", cfg.Bucket)
	}
	base := cfg.PublicBaseURL
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}
	return &MinIO{cli: cli, bucket: cfg.Bucket, base: strings.TrimRight(base, "/")}, nil
}

func (s *MinIO) Put(ctx context.Context, originalName, contentType string, r io.Reader, size int64) (models.Media, error) {
	name := objectName(originalName)
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.cli.PutObject(ctx, s.bucket, name, r, size, opts); err != nil {
		return models.Media{}, fmt.Errorf("media: put %s: %w", name, err)
	}
	logger.Debug("media_stored", "bucket", s.bucket, "object", name, "size", size)
	return models.Media{
		URL:          s.base + "/" + s.bucket + "/" + name,
		OriginalName: originalName,
		Type:         kind(contentType),
	}, nil
}
