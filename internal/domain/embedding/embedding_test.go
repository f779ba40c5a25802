package embedding

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/qa-trainer/internal/domain/dataset"
	"github.com/yanqian/qa-trainer/internal/domain/experiment"
	apperrors "github.com/yanqian/qa-trainer/pkg/errors"
)

const glove = "the 0.1 0.2 0.3\ncat 1 2 3\ndog -1 -2 -3\n"

func writeGzip(t *testing.T, content string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	path := filepath.Join(t.TempDir(), "vectors.txt.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestLoadPretrained_Gzip(t *testing.T) {
	path := writeGzip(t, glove)
	vectors, err := LoadPretrained(context.Background(), path, func(w string) bool { return w != "dog" })
	require.NoError(t, err)
	require.Equal(t, 3, vectors.Dim)
	require.Equal(t, 2, vectors.Len())
	require.Equal(t, []float32{1, 2, 3}, vectors.Words["cat"])
}

func TestReadPretrained(t *testing.T) {
	vectors, err := ReadPretrained(context.Background(), strings.NewReader("3 2\na 1 2\n\nb 3 4\nc 5 6\n"), nil)
	require.NoError(t, err)
	require.Equal(t, 2, vectors.Dim)
	require.Equal(t, 3, vectors.Len())

	tests := map[string]string{
		"ragged rows": "a 1 2\nb 1 2 3\n",
		"bad value":   "a 1 x\n",
		"no vector":   "a\n",
		"empty":       "\n\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadPretrained(context.Background(), strings.NewReader(input), nil)
			require.True(t, apperrors.IsCode(err, apperrors.CodeMalformedEmbeddings), err)
		})
	}
}

func TestLoadPretrained_Missing(t *testing.T) {
	_, err := LoadPretrained(context.Background(), filepath.Join(t.TempDir(), "none.gz"), nil)
	require.True(t, apperrors.IsCode(err, apperrors.CodeMissingDependency))
}

func TestCheckDimension(t *testing.T) {
	spec := experiment.EmbeddingSpec{Dimension: 100, PretrainedFile: "glove.6B.100d.txt.gz"}
	require.NoError(t, CheckDimension("words", spec, 100))

	err := CheckDimension("words", spec, 300)
	require.True(t, apperrors.IsCode(err, apperrors.CodeEmbeddingMismatch))
	require.ErrorContains(t, err, "embeddings.words.dimension")

	spec.Project = true
	require.NoError(t, CheckDimension("words", spec, 300))
}

func TestNewMatrix(t *testing.T) {
	indexer := dataset.NewDataIndexer()
	indexer.AddWord("cat", dataset.NamespaceWords)
	indexer.AddWord("zebra", dataset.NamespaceWords)
	vectors := &Vectors{Dim: 3, Words: map[string][]float32{"cat": {1, 2, 3}}}

	m := NewMatrix(indexer, dataset.NamespaceWords, 100, vectors, 7)
	require.Equal(t, 4, m.Rows())
	require.Equal(t, 3, m.Dim())
	require.Equal(t, 1, m.Pretrained())
	require.Equal(t, []float32{0, 0, 0}, m.Vector(dataset.PaddingIndex))
	require.Equal(t, []float32{1, 2, 3}, m.Vector(indexer.WordIndex("cat", dataset.NamespaceWords)))
	for _, v := range m.Vector(indexer.WordIndex("zebra", dataset.NamespaceWords)) {
		require.LessOrEqual(t, v, float32(initScale))
		require.GreaterOrEqual(t, v, float32(-initScale))
	}
	require.Nil(t, m.Vector(10))

	again := NewMatrix(indexer, dataset.NamespaceWords, 100, vectors, 7)
	require.Equal(t, m.Vector(3), again.Vector(3), "same seed, same init")

	random := NewMatrix(indexer, dataset.NamespaceWords, 8, nil, 1)
	require.Equal(t, 8, random.Dim())
}

type stubCache struct {
	getFn func(ctx context.Context, key SourceKey, words []string) (*Vectors, bool, error)
	putFn func(ctx context.Context, key SourceKey, vectors *Vectors) error
}

func (s *stubCache) Get(ctx context.Context, key SourceKey, words []string) (*Vectors, bool, error) {
	return s.getFn(ctx, key, words)
}

func (s *stubCache) Put(ctx context.Context, key SourceKey, vectors *Vectors) error {
	return s.putFn(ctx, key, vectors)
}

func TestLoader_UsesCache(t *testing.T) {
	path := writeGzip(t, glove)
	var stored *Vectors
	cache := &stubCache{
		getFn: func(_ context.Context, key SourceKey, words []string) (*Vectors, bool, error) {
			require.Equal(t, path, key.Path)
			if stored == nil {
				return nil, false, nil
			}
			return stored.Filter(words), true, nil
		},
		putFn: func(_ context.Context, _ SourceKey, vectors *Vectors) error {
			stored = vectors
			return nil
		},
	}
	loader := NewLoader(cache, nil)

	first, err := loader.Load(context.Background(), path, []string{"cat"})
	require.NoError(t, err)
	require.Equal(t, 1, first.Len())
	require.Equal(t, 3, stored.Len(), "the whole file is cached")

	require.NoError(t, os.Remove(path))
	_, err = loader.Load(context.Background(), path, []string{"dog"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeMissingDependency), "cache is keyed on the file's stat")
}

func TestLoader_WithoutCache(t *testing.T) {
	path := writeGzip(t, glove)
	vectors, err := NewLoader(nil, nil).Load(context.Background(), path, []string{"the", "unknown"})
	require.NoError(t, err)
	require.Equal(t, 1, vectors.Len())
}
