package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when neither an explicit path nor CONFIG_PATH is set.
const DefaultPath = "configs/config.yaml"

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
	Training   TrainingConfig   `yaml:"training"`
	Runs       RunsConfig       `yaml:"runs"`
	Storage    StorageConfig    `yaml:"storage"`
	Queue      QueueConfig      `yaml:"queue"`
	EmbedCache EmbedCacheConfig `yaml:"embedCache"`
	Valkey     ValkeyConfig     `yaml:"valkey"`
	Postgres   PostgresConfig   `yaml:"postgres"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxBodyBytes int64         `yaml:"maxBodyBytes"`
	// AllowedOrigins lists CORS origins; empty allows any.
	AllowedOrigins []string        `yaml:"allowedOrigins"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
	Retry          RetryConfig     `yaml:"retry"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// RetryConfig configures best-effort retries for idempotent requests.
type RetryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseBackoff time.Duration `yaml:"baseBackoff"`
	Exclude     []string      `yaml:"exclude"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// TrainingConfig tunes the run service.
type TrainingConfig struct {
	Seed         int64 `yaml:"seed"`
	MinWordCount int   `yaml:"minWordCount"`
	ListLimit    int   `yaml:"listLimit"`
}

// RunsConfig selects the run registry: memory, sqlite or postgres.
type RunsConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlitePath"`
}

// StorageConfig selects checkpoint storage: memory, local or r2.
type StorageConfig struct {
	Driver    string   `yaml:"driver"`
	LocalRoot string   `yaml:"localRoot"`
	R2        R2Config `yaml:"r2"`
}

// R2Config holds S3 compatible credentials.
type R2Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
}

// QueueConfig selects the job queue: immediate or valkey.
type QueueConfig struct {
	Driver string `yaml:"driver"`
	Key    string `yaml:"key"`
}

// EmbedCacheConfig selects the pretrained vector cache: none, memory or postgres.
type EmbedCacheConfig struct {
	Driver string `yaml:"driver"`
}

// ValkeyConfig contains connection information for the queue.
type ValkeyConfig struct {
	Addr string `yaml:"addr"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// Load reads configuration from a YAML file and environment variables.
// An empty path falls back to CONFIG_PATH, then DefaultPath if present.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat(DefaultPath); err == nil {
		if err := hydrateFromFile(cfg, DefaultPath); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "1" || strings.EqualFold(v, "true")
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				*dst = parsed
			}
		}
	}

	setString("HTTP_ADDRESS", &cfg.HTTP.Address)
	if v := os.Getenv("HTTP_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = splitList(v)
	}
	setBool("HTTP_RATE_LIMIT_ENABLED", &cfg.HTTP.RateLimit.Enabled)
	setInt("HTTP_RATE_LIMIT_RPM", &cfg.HTTP.RateLimit.RequestsPerMinute)
	setInt("HTTP_RATE_LIMIT_BURST", &cfg.HTTP.RateLimit.Burst)
	setBool("HTTP_RETRY_ENABLED", &cfg.HTTP.Retry.Enabled)
	setInt("HTTP_RETRY_MAX_ATTEMPTS", &cfg.HTTP.Retry.MaxAttempts)
	if v := os.Getenv("HTTP_RETRY_BASE_BACKOFF"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.Retry.BaseBackoff = parsed
		}
	}
	setString("LOG_LEVEL", &cfg.Log.Level)

	if v := os.Getenv("TRAINING_SEED"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Training.Seed = parsed
		}
	}
	setInt("TRAINING_MIN_WORD_COUNT", &cfg.Training.MinWordCount)

	setString("RUNS_DRIVER", &cfg.Runs.Driver)
	setString("RUNS_SQLITE_PATH", &cfg.Runs.SQLitePath)
	setString("RUNS_POSTGRES_DSN", &cfg.Postgres.DSN)

	setString("STORAGE_DRIVER", &cfg.Storage.Driver)
	setString("STORAGE_LOCAL_ROOT", &cfg.Storage.LocalRoot)
	setString("R2_ENDPOINT", &cfg.Storage.R2.Endpoint)
	setString("R2_ACCESS_KEY", &cfg.Storage.R2.AccessKey)
	setString("R2_SECRET_KEY", &cfg.Storage.R2.SecretKey)
	setString("R2_BUCKET", &cfg.Storage.R2.Bucket)
	setString("R2_REGION", &cfg.Storage.R2.Region)

	setString("QUEUE_DRIVER", &cfg.Queue.Driver)
	setString("QUEUE_KEY", &cfg.Queue.Key)
	setString("VALKEY_ADDR", &cfg.Valkey.Addr)

	setString("EMBED_CACHE_DRIVER", &cfg.EmbedCache.Driver)

	setString("POSTGRES_DSN", &cfg.Postgres.DSN)
	if v := os.Getenv("POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.MaxConns = int32(parsed)
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
			MaxBodyBytes: 1 << 20,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             20,
			},
			Retry: RetryConfig{
				Enabled:     true,
				MaxAttempts: 3,
				BaseBackoff: 150 * time.Millisecond,
				Exclude:     []string{"/api/v1/runs"},
			},
		},
		Log:      LogConfig{Level: "info"},
		Training: TrainingConfig{Seed: 1337, MinWordCount: 1, ListLimit: 100},
		Runs:     RunsConfig{Driver: "memory", SQLitePath: "qa-trainer.db"},
		Storage:  StorageConfig{Driver: "local", LocalRoot: "."},
		Queue:    QueueConfig{Driver: "immediate", Key: "qa-trainer:jobs"},
		EmbedCache: EmbedCacheConfig{
			Driver: "memory",
		},
		Postgres: PostgresConfig{MaxConns: 4},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return errors.New("http.maxBodyBytes must be positive")
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	if c.HTTP.Retry.Enabled {
		if c.HTTP.Retry.MaxAttempts <= 0 {
			return errors.New("http.retry.maxAttempts must be positive")
		}
		if c.HTTP.Retry.BaseBackoff <= 0 {
			return errors.New("http.retry.baseBackoff must be positive")
		}
	}
	if c.Training.MinWordCount < 0 {
		return errors.New("training.minWordCount cannot be negative")
	}
	switch c.Runs.Driver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Runs.SQLitePath) == "" {
			return errors.New("runs.sqlitePath cannot be empty when runs.driver is sqlite")
		}
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			return errors.New("postgres.dsn cannot be empty when runs.driver is postgres")
		}
	default:
		return fmt.Errorf("runs.driver %q is not supported", c.Runs.Driver)
	}
	switch c.Storage.Driver {
	case "memory":
	case "local":
		if strings.TrimSpace(c.Storage.LocalRoot) == "" {
			return errors.New("storage.localRoot cannot be empty when storage.driver is local")
		}
	case "r2":
		if c.Storage.R2.Endpoint == "" || c.Storage.R2.Bucket == "" {
			return errors.New("storage.r2.endpoint and storage.r2.bucket are required when storage.driver is r2")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	switch c.Queue.Driver {
	case "immediate":
	case "valkey":
		if strings.TrimSpace(c.Valkey.Addr) == "" {
			return errors.New("valkey.addr cannot be empty when queue.driver is valkey")
		}
	default:
		return fmt.Errorf("queue.driver %q is not supported", c.Queue.Driver)
	}
	switch c.EmbedCache.Driver {
	case "none", "memory":
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			return errors.New("postgres.dsn cannot be empty when embedCache.driver is postgres")
		}
	default:
		return fmt.Errorf("embedCache.driver %q is not supported", c.EmbedCache.Driver)
	}
	return nil
}
