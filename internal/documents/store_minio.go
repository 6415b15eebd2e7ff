package documents

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig locates the bucket documents are written to.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
	UseSSL          bool
	// PublicBaseURL prefixes object paths in returned URLs. Defaults to the endpoint.
	PublicBaseURL string
}

// MinIOStore writes documents to an S3-compatible bucket.
type MinIOStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewMinIO connects to the endpoint and creates the bucket if it is missing.
func NewMinIO(ctx context.Context, cfg MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	base := cfg.PublicBaseURL
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}
	return &MinIOStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: strings.TrimRight(base, "/"),
	}, nil
}

func (s *MinIOStore) Put(ctx context.Context, path string, body io.Reader, size int64, contentType string) (string, error) {
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("invalid object path %q", path)
	}
	_, err := s.client.PutObject(ctx, s.bucket, path, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", path, err)
	}
	return s.PublicURL(path), nil
}

func (s *MinIOStore) PublicURL(path string) string {
	return s.baseURL + "/" + s.bucket + "/" + path
}
