package training

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/yanqian/qa-trainer/internal/domain/embedding"
)

// RunRepository persists runs.
type RunRepository interface {
	Create(ctx context.Context, run Run) error
	Update(ctx context.Context, run Run) error
	Get(ctx context.Context, id uuid.UUID) (Run, bool, error)
	List(ctx context.Context, filter RunFilter) ([]Run, error)
}

// ObjectStorage abstracts blob storage for config snapshots and checkpoints.
type ObjectStorage interface {
	Put(ctx context.Context, key string, data []byte, mimeType string) (StoredObject, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// StoredObject captures persisted blob metadata.
type StoredObject struct {
	Key      string
	Size     int64
	MimeType string
	ETag     string
}

// JobQueue enqueues processing tasks.
type JobQueue interface {
	Enqueue(ctx context.Context, name string, payload any) error
}

// EmbeddingLoader returns pretrained vectors of a file for a vocabulary.
type EmbeddingLoader interface {
	Load(ctx context.Context, path string, words []string) (*embedding.Vectors, error)
}

var _ EmbeddingLoader = (*embedding.Loader)(nil)
