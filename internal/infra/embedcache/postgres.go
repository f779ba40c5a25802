package embedcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/yanqian/qa-trainer/internal/domain/embedding"
)

// Schema creates the vector cache tables. A source row is written last,
// so its presence means every vector of the file is stored.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS pretrained_sources (
	source_key TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	dimension INTEGER NOT NULL,
	word_count INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS pretrained_vectors (
	source_key TEXT NOT NULL,
	word TEXT NOT NULL,
	embedding vector NOT NULL,
	PRIMARY KEY (source_key, word)
);
`

const insertBatchSize = 1000

// PostgresCache stores pretrained vectors in Postgres with pgvector.
type PostgresCache struct {
	pool *pgxpool.Pool
}

// NewPostgresCache constructs the cache.
func NewPostgresCache(pool *pgxpool.Pool) *PostgresCache {
	return &PostgresCache{pool: pool}
}

// Migrate applies Schema.
func (c *PostgresCache) Migrate(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, Schema)
	return err
}

func (c *PostgresCache) Get(ctx context.Context, key embedding.SourceKey, words []string) (*embedding.Vectors, bool, error) {
	var dim int
	err := c.pool.QueryRow(ctx, `SELECT dimension FROM pretrained_sources WHERE source_key = $1`, key.String()).Scan(&dim)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	out := &embedding.Vectors{Dim: dim, Words: make(map[string][]float32, len(words))}
	if len(words) == 0 {
		return out, true, nil
	}
	rows, err := c.pool.Query(ctx, `
		SELECT word, embedding
		FROM pretrained_vectors
		WHERE source_key = $1 AND word = ANY($2)
	`, key.String(), words)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			word string
			vec  pgvector.Vector
		)
		if err := rows.Scan(&word, &vec); err != nil {
			return nil, false, err
		}
		out.Words[word] = vec.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Put replaces any stored vectors of the source in one transaction.
func (c *PostgresCache) Put(ctx context.Context, key embedding.SourceKey, vectors *embedding.Vectors) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM pretrained_sources WHERE source_key = $1`, key.String()); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM pretrained_vectors WHERE source_key = $1`, key.String()); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		err := tx.SendBatch(ctx, batch).Close()
		batch = &pgx.Batch{}
		return err
	}
	for word, vec := range vectors.Words {
		batch.Queue(`
			INSERT INTO pretrained_vectors (source_key, word, embedding)
			VALUES ($1, $2, $3)
		`, key.String(), word, pgvector.NewVector(vec))
		if batch.Len() >= insertBatchSize {
			if err := flush(); err != nil {
				return fmt.Errorf("insert vectors: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		return fmt.Errorf("insert vectors: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO pretrained_sources (source_key, path, dimension, word_count)
		VALUES ($1, $2, $3, $4)
	`, key.String(), key.Path, vectors.Dim, len(vectors.Words)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

var _ embedding.Cache = (*PostgresCache)(nil)
