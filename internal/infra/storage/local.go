package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	domain "github.com/yanqian/qa-trainer/internal/domain/training"
)

// LocalStorage writes objects as files under a root directory. Absolute
// keys are written as is, so a serialization prefix such as
// /models/bidaf lands where the configuration says.
type LocalStorage struct {
	root string
}

// NewLocalStorage constructs the storage adapter.
func NewLocalStorage(root string) *LocalStorage {
	if root == "" {
		root = "."
	}
	return &LocalStorage{root: root}
}

func (s *LocalStorage) path(key string) string {
	if filepath.IsAbs(key) {
		return filepath.Clean(key)
	}
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Put writes data atomically via a temp file in the target directory.
func (s *LocalStorage) Put(_ context.Context, key string, data []byte, mimeType string) (domain.StoredObject, error) {
	target := s.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return domain.StoredObject{}, fmt.Errorf("create directory for %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return domain.StoredObject{}, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return domain.StoredObject{}, err
	}
	if err := tmp.Close(); err != nil {
		return domain.StoredObject{}, err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return domain.StoredObject{}, err
	}
	return domain.StoredObject{
		Key:      key,
		Size:     int64(len(data)),
		MimeType: mimeType,
		ETag:     etagOf(data),
	}, nil
}

// Get opens the file stored under key.
func (s *LocalStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return f, nil
}

// Delete removes the file; a missing file is not an error.
func (s *LocalStorage) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

var _ domain.ObjectStorage = (*LocalStorage)(nil)
