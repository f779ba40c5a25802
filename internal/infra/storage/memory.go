package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	domain "github.com/yanqian/qa-trainer/internal/domain/training"
)

// MemoryStorage keeps blobs in memory. Useful for tests and local dev.
type MemoryStorage struct {
	mu    sync.RWMutex
	blobs map[string]storedBlob
}

type storedBlob struct {
	data     []byte
	mimeType string
	etag     string
}

// NewMemoryStorage constructs storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{blobs: make(map[string]storedBlob)}
}

// Put stores a copy of the blob and returns metadata.
func (s *MemoryStorage) Put(_ context.Context, key string, data []byte, mimeType string) (domain.StoredObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	etag := etagOf(data)
	s.blobs[key] = storedBlob{data: append([]byte(nil), data...), mimeType: mimeType, etag: etag}
	return domain.StoredObject{
		Key:      key,
		Size:     int64(len(data)),
		MimeType: mimeType,
		ETag:     etag,
	}, nil
}

// Get returns a reader for the stored blob.
func (s *MemoryStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(blob.data)), nil
}

// Delete removes the blob.
func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

// Keys lists stored keys with the given prefix in sorted order.
func (s *MemoryStorage) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.blobs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func etagOf(data []byte) string {
	hash := md5.Sum(data)
	return hex.EncodeToString(hash[:])
}

var _ domain.ObjectStorage = (*MemoryStorage)(nil)
