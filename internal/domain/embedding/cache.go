package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	apperrors "github.com/yanqian/qa-trainer/pkg/errors"
)

// SourceKey identifies one version of a pretrained file.
type SourceKey struct {
	Path    string
	Size    int64
	ModTime time.Time
}

func (k SourceKey) String() string {
	return fmt.Sprintf("%s:%d:%d", k.Path, k.Size, k.ModTime.UnixNano())
}

// KeyFor stats path to build its cache key.
func KeyFor(path string) (SourceKey, error) {
	info, err := os.Stat(path)
	if err != nil {
		return SourceKey{}, apperrors.Wrap(apperrors.CodeMissingDependency, "pretrained file "+path, err)
	}
	return SourceKey{Path: path, Size: info.Size(), ModTime: info.ModTime().UTC()}, nil
}

// Cache stores parsed pretrained files so repeated runs skip the parse.
type Cache interface {
	// Get returns the cached vectors of key restricted to words; ok is
	// false when the source has never been stored.
	Get(ctx context.Context, key SourceKey, words []string) (vectors *Vectors, ok bool, err error)
	// Put stores every vector of a fully parsed source.
	Put(ctx context.Context, key SourceKey, vectors *Vectors) error
}

// Loader reads pretrained files through an optional cache.
type Loader struct {
	cache  Cache
	logger *slog.Logger
}

// NewLoader constructs a Loader; cache may be nil.
func NewLoader(cache Cache, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{cache: cache, logger: logger.With("component", "embedding.loader")}
}

// Load returns the vectors of path for the given words.
func (l *Loader) Load(ctx context.Context, path string, words []string) (*Vectors, error) {
	if l.cache == nil {
		keep := wordSet(words)
		return LoadPretrained(ctx, path, func(w string) bool { _, ok := keep[w]; return ok })
	}
	key, err := KeyFor(path)
	if err != nil {
		return nil, err
	}
	if cached, ok, err := l.cache.Get(ctx, key, words); err != nil {
		l.logger.Warn("embedding cache read failed", "path", path, "error", err)
	} else if ok {
		l.logger.Debug("embedding cache hit", "path", path, "words", cached.Len())
		return cached, nil
	}
	all, err := LoadPretrained(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	if err := l.cache.Put(ctx, key, all); err != nil {
		l.logger.Warn("embedding cache write failed", "path", path, "error", err)
	}
	return all.Filter(words), nil
}

func wordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
