package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/qa-trainer/internal/domain/embedding"
	"github.com/yanqian/qa-trainer/internal/domain/training"
	"github.com/yanqian/qa-trainer/internal/infra/config"
	"github.com/yanqian/qa-trainer/internal/infra/embedcache"
	"github.com/yanqian/qa-trainer/internal/infra/queue"
	"github.com/yanqian/qa-trainer/internal/infra/runrepo"
	"github.com/yanqian/qa-trainer/internal/infra/storage"
	httpiface "github.com/yanqian/qa-trainer/internal/interface/http"
	"github.com/yanqian/qa-trainer/pkg/logger"
)

func provideLogger(cfg *config.Config) *slog.Logger {
	return logger.New(cfg.Log.Level)
}

func provideTrainingConfig(cfg *config.Config) training.Config {
	return training.Config{
		Seed:         cfg.Training.Seed,
		MinWordCount: cfg.Training.MinWordCount,
		ListLimit:    cfg.Training.ListLimit,
	}
}

// providePostgresPool returns nil when nothing is configured to use
// Postgres or the database is unreachable.
func providePostgresPool(cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, func()) {
	noop := func() {}
	if cfg.Runs.Driver != "postgres" && cfg.EmbedCache.Driver != "postgres" {
		return nil, noop
	}
	dsn := strings.TrimSpace(cfg.Postgres.DSN)
	if dsn == "" {
		logger.Info("postgres dsn not set, using memory backends")
		return nil, noop
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error("invalid postgres dsn, using memory backends", "error", err)
		return nil, noop
	}
	if cfg.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Postgres.MaxConns
	}
	if cfg.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.Postgres.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("failed to initialize postgres pool, using memory backends", "error", err)
		return nil, noop
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed, using memory backends", "error", err)
		pool.Close()
		return nil, noop
	}
	return pool, pool.Close
}

func provideRunRepository(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (training.RunRepository, func()) {
	noop := func() {}
	switch cfg.Runs.Driver {
	case "sqlite":
		repo, err := runrepo.OpenSQLite(cfg.Runs.SQLitePath)
		if err != nil {
			logger.Error("failed to open sqlite run registry, using memory repository", "path", cfg.Runs.SQLitePath, "error", err)
			return runrepo.NewMemoryRepository(), noop
		}
		logger.Info("sqlite run registry enabled", "path", cfg.Runs.SQLitePath)
		return repo, func() { _ = repo.Close() }
	case "postgres":
		if pool == nil {
			return runrepo.NewMemoryRepository(), noop
		}
		repo := runrepo.NewPostgresRepository(pool)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := repo.Migrate(ctx); err != nil {
			logger.Error("run registry migration failed, using memory repository", "error", err)
			return runrepo.NewMemoryRepository(), noop
		}
		logger.Info("postgres run registry enabled")
		return repo, noop
	}
	return runrepo.NewMemoryRepository(), noop
}

func provideObjectStorage(cfg *config.Config, logger *slog.Logger) training.ObjectStorage {
	switch cfg.Storage.Driver {
	case "memory":
		return storage.NewMemoryStorage()
	case "r2":
		r2 := cfg.Storage.R2
		store, err := storage.NewR2Storage(r2.Endpoint, r2.AccessKey, r2.SecretKey, r2.Bucket, r2.Region, logger)
		if err != nil {
			logger.Error("failed to initialize r2 storage, using local storage", "error", err)
			return storage.NewLocalStorage(cfg.Storage.LocalRoot)
		}
		logger.Info("r2 storage enabled", "bucket", r2.Bucket)
		return store
	}
	return storage.NewLocalStorage(cfg.Storage.LocalRoot)
}

func provideJobQueue(cfg *config.Config, logger *slog.Logger) (queue.HandlerQueue, func()) {
	fallback := func() (queue.HandlerQueue, func()) {
		q := queue.NewImmediateQueue(nil, logger)
		return q, func() { _ = q.Close() }
	}
	if cfg.Queue.Driver != "valkey" {
		return fallback()
	}
	opt, err := buildValkeyOptions(cfg)
	if err != nil {
		logger.Error("invalid valkey configuration, falling back to immediate queue", "error", err)
		return fallback()
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		logger.Error("failed to create valkey client, falling back to immediate queue", "error", err)
		return fallback()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		logger.Error("valkey ping failed, falling back to immediate queue", "error", err)
		client.Close()
		return fallback()
	}
	logger.Info("valkey job queue enabled", "addr", cfg.Valkey.Addr, "key", cfg.Queue.Key)
	q := queue.NewValkeyQueue(client, cfg.Queue.Key, logger)
	return q, func() {
		_ = q.Close()
		client.Close()
	}
}

func provideTrainingQueue(q queue.HandlerQueue) training.JobQueue {
	return q
}

func provideEmbeddingCache(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) embedding.Cache {
	switch cfg.EmbedCache.Driver {
	case "none":
		return nil
	case "postgres":
		if pool == nil {
			return embedcache.NewMemoryCache()
		}
		cache := embedcache.NewPostgresCache(pool)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := cache.Migrate(ctx); err != nil {
			logger.Error("embedding cache migration failed, using memory cache", "error", err)
			return embedcache.NewMemoryCache()
		}
		logger.Info("postgres embedding cache enabled")
		return cache
	}
	return embedcache.NewMemoryCache()
}

func provideRunHandler(cfg *config.Config, svc *training.Service, logger *slog.Logger) *httpiface.RunHandler {
	return httpiface.NewRunHandler(svc, cfg.HTTP.MaxBodyBytes, logger)
}

func buildValkeyOptions(cfg *config.Config) (valkey.ClientOption, error) {
	if strings.Contains(cfg.Valkey.Addr, "://") {
		return valkey.ParseURL(cfg.Valkey.Addr)
	}
	return valkey.ClientOption{InitAddress: []string{cfg.Valkey.Addr}}, nil
}
