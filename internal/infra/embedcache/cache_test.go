package embedcache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/qa-trainer/internal/domain/embedding"
)

func exerciseCache(t *testing.T, cache embedding.Cache) {
	t.Helper()
	ctx := context.Background()
	key := embedding.SourceKey{Path: "glove.6B.100d.txt.gz", Size: 42, ModTime: time.Unix(1700000000, 0).UTC()}

	_, ok, err := cache.Get(ctx, key, []string{"cat"})
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cache.Put(ctx, key, &embedding.Vectors{Dim: 2, Words: map[string][]float32{
		"cat": {1, 2},
		"dog": {3, 4},
	}}))

	got, ok, err := cache.Get(ctx, key, []string{"cat", "zebra"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, got.Dim)
	require.Equal(t, map[string][]float32{"cat": {1, 2}}, got.Words)

	changed := key
	changed.Size = 43
	_, ok, err = cache.Get(ctx, changed, []string{"cat"})
	require.NoError(t, err)
	require.False(t, ok, "a modified file is a different source")
}

func TestMemoryCache(t *testing.T) {
	exerciseCache(t, NewMemoryCache())
}

func TestPostgresCache(t *testing.T) {
	dsn := os.Getenv("EMBED_CACHE_TEST_DSN")
	if dsn == "" {
		t.Skip("EMBED_CACHE_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	cache := NewPostgresCache(pool)
	require.NoError(t, cache.Migrate(ctx))
	_, err = pool.Exec(ctx, `TRUNCATE pretrained_sources, pretrained_vectors`)
	require.NoError(t, err)
	exerciseCache(t, cache)
}

func TestLoaderWithMemoryCache(t *testing.T) {
	path := t.TempDir() + "/vectors.txt"
	require.NoError(t, os.WriteFile(path, []byte("cat 1 2\ndog 3 4\n"), 0o644))
	cache := NewMemoryCache()
	loader := embedding.NewLoader(cache, nil)

	first, err := loader.Load(context.Background(), path, []string{"cat"})
	require.NoError(t, err)
	require.Equal(t, 1, first.Len())

	key, err := embedding.KeyFor(path)
	require.NoError(t, err)
	cached, ok, err := cache.Get(context.Background(), key, []string{"dog"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []float32{3, 4}, cached.Words["dog"])
}
