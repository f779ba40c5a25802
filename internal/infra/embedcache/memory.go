package embedcache

import (
	"context"
	"sync"

	"github.com/yanqian/qa-trainer/internal/domain/embedding"
)

// MemoryCache keeps parsed sources for the life of the process.
type MemoryCache struct {
	mu      sync.RWMutex
	sources map[string]*embedding.Vectors
}

// NewMemoryCache constructs the cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{sources: make(map[string]*embedding.Vectors)}
}

func (c *MemoryCache) Get(_ context.Context, key embedding.SourceKey, words []string) (*embedding.Vectors, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vectors, ok := c.sources[key.String()]
	if !ok {
		return nil, false, nil
	}
	return vectors.Filter(words), true, nil
}

func (c *MemoryCache) Put(_ context.Context, key embedding.SourceKey, vectors *embedding.Vectors) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[key.String()] = vectors
	return nil
}

var _ embedding.Cache = (*MemoryCache)(nil)
