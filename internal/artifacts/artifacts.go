// Package artifacts offloads oversized Tez context content to S3-compatible
// object storage (Garage, MinIO, AWS S3, and other minio-go-compatible
// backends). A context layer's content normally lives inline in Postgres;
// once it crosses the configured inline threshold, Store.Put writes it to
// the bucket instead and the caller persists the returned reference in its
// place.
package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tezrelay/relay/internal/config"
	"github.com/tezrelay/relay/internal/models"
)

// refPrefix marks a context layer's content as a pointer into object
// storage rather than inline text.
const refPrefix = "artifact://"

// Store wraps an S3-compatible object storage bucket.
type Store struct {
	client    *minio.Client
	bucket    string
	threshold int
}

// New connects to the configured S3-compatible endpoint and ensures the
// target bucket exists.
func New(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("artifacts: connecting to %q: %w", cfg.Endpoint, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("artifacts: checking bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("artifacts: creating bucket %q: %w", cfg.Bucket, err)
		}
	}

	threshold := cfg.InlineThreshold
	if threshold <= 0 {
		threshold = 8192
	}
	return &Store{client: client, bucket: cfg.Bucket, threshold: threshold}, nil
}

// ShouldOffload reports whether content exceeds the configured inline
// threshold and belongs in object storage rather than Postgres.
func (s *Store) ShouldOffload(content string) bool {
	return len(content) > s.threshold
}

// IsReference reports whether content is a storage pointer rather than
// inline text.
func IsReference(content string) bool {
	return strings.HasPrefix(content, refPrefix)
}

// Put writes raw to object storage under a key scoped to tezID and
// returns the reference to store in the context layer's content column.
func (s *Store) Put(ctx context.Context, tezID models.ID, raw string) (string, error) {
	key := tezID.String() + "/" + models.NewID().String()
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader([]byte(raw)), int64(len(raw)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		return "", fmt.Errorf("artifacts: uploading %s: %w", key, err)
	}
	return refPrefix + key, nil
}

// Get resolves a reference produced by Put back to its raw content.
func (s *Store) Get(ctx context.Context, ref string) (string, error) {
	key := strings.TrimPrefix(ref, refPrefix)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("artifacts: fetching %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("artifacts: reading %s: %w", key, err)
	}
	return string(data), nil
}
