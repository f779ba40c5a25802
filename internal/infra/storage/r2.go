package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	domain "github.com/yanqian/qa-trainer/internal/domain/training"
)

// multipartThreshold is the size above which checkpoints upload in parts.
const multipartThreshold = 16 << 20

// R2Storage stores objects in Cloudflare R2 (or any S3 compatible store)
// through minio. Keys are cleaned and stripped of a leading slash.
type R2Storage struct {
	client *minio.Client
	bucket string
	logger *slog.Logger

	// bucketMu guards bucketReady; only a successful check is remembered.
	bucketMu    sync.Mutex
	bucketReady bool
	makeBucket  func(ctx context.Context) error
}

// NewR2Storage constructs the storage adapter.
func NewR2Storage(endpoint, accessKey, secretKey, bucket, region string, logger *slog.Logger) (*R2Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := minio.New(sanitizeEndpoint(endpoint), &minio.Options{
		Creds:        credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure:       strings.HasPrefix(strings.ToLower(strings.TrimSpace(endpoint)), "https"),
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init r2 client: %w", err)
	}
	s := &R2Storage{client: client, bucket: bucket, logger: logger.With("component", "storage.r2")}
	s.makeBucket = s.createBucket
	return s, nil
}

// ensureBucket creates the bucket on first use. A failed attempt is
// retried by the next call.
func (s *R2Storage) ensureBucket(ctx context.Context) error {
	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()
	if s.bucketReady {
		return nil
	}
	if err := s.makeBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket %s: %w", s.bucket, err)
	}
	s.bucketReady = true
	return nil
}

func (s *R2Storage) createBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err == nil && exists {
		return nil
	}
	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
		return err
	}
	s.logger.Info("created bucket", "bucket", s.bucket)
	return nil
}

// Put uploads data under the object key derived from key.
func (s *R2Storage) Put(ctx context.Context, key string, data []byte, mimeType string) (domain.StoredObject, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return domain.StoredObject{}, err
	}
	info, err := s.client.PutObject(ctx, s.bucket, objectKey(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:      mimeType,
		DisableMultipart: len(data) < multipartThreshold,
	})
	if err != nil {
		return domain.StoredObject{}, err
	}
	return domain.StoredObject{
		Key:      key,
		Size:     info.Size,
		MimeType: mimeType,
		ETag:     info.ETag,
	}, nil
}

// Get fetches an object for reading; missing keys map to ErrNotFound.
func (s *R2Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return obj, nil
}

// Delete removes an object.
func (s *R2Storage) Delete(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, objectKey(key), minio.RemoveObjectOptions{})
}

var _ domain.ObjectStorage = (*R2Storage)(nil)

// objectKey maps filesystem style keys ("/models/bidaf_weights.ckpt",
// "./runs/x") onto bucket keys.
func objectKey(key string) string {
	cleaned := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	return strings.TrimPrefix(cleaned, "/")
}

// sanitizeEndpoint removes schemes and paths to satisfy minio.New expectations.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	host, _, _ := strings.Cut(raw, "/")
	return host
}
