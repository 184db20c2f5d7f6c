package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

const (
	pdfContentType = "application/pdf"
	pingTimeout    = 5 * time.Second
)

type objectClient interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
}

// MinioStore uploads rendered documents to an S3-compatible bucket.
type MinioStore struct {
	client    objectClient
	bucket    string
	publicURL string
}

// NewMinioStore connects to the configured endpoint and checks the bucket exists.
func NewMinioStore(ctx context.Context, cfg config.StorageConfig, logg *logger.Logger) (*MinioStore, error) {
	if !cfg.Enabled() {
		return nil, errors.New("storage endpoint and access key are required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("storage bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		publicURL = strings.TrimRight(client.EndpointURL().String(), "/") + "/" + cfg.Bucket
	}

	store := &MinioStore{client: client, bucket: cfg.Bucket, publicURL: publicURL}
	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("minio health check failed: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", cfg.Bucket), "minio store initialized")
	}
	return store, nil
}

// Store uploads data under path and returns its public URL.
func (s *MinioStore) Store(ctx context.Context, path string, data []byte) (string, error) {
	key, err := cleanKey(path)
	if err != nil {
		return "", err
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: pdfContentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return s.publicURL + "/" + key, nil
}

// Ping verifies the bucket is reachable.
func (s *MinioStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("minio store not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}
