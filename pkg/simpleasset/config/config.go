package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Port string `env:"PORT" env-default:"8080"`

	// DatabaseURL selects the catalog. Empty or "memory" uses the in-memory
	// catalog, postgres:// and postgresql:// URLs use PostgreSQL.
	DatabaseURL    string `env:"DATABASE_URL"`
	DBMaxConns     int32  `env:"DB_MAX_CONNS" env-default:"10"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" env-default:"false"`

	// StorageBackend is one of "memory", "fs", "s3" or "minio".
	StorageBackend string `env:"STORAGE_BACKEND" env-default:"memory"`

	// The fs backend serves objects itself through signed /files/ URLs.
	FSBaseDir       string `env:"FS_BASE_DIR" env-default:"./data"`
	FSBaseURL       string `env:"FS_BASE_URL" env-default:"http://localhost:8080"`
	FSSigningSecret string `env:"FS_SIGNING_SECRET"`

	S3Bucket             string `env:"S3_BUCKET"`
	S3Region             string `env:"S3_REGION" env-default:"us-east-1"`
	S3Endpoint           string `env:"S3_ENDPOINT"`
	S3AccessKeyID        string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey    string `env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle       bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
	S3UseSSL             bool   `env:"S3_USE_SSL" env-default:"true"`
	S3TimeoutSeconds     int    `env:"S3_TIMEOUT_SECONDS" env-default:"30"`
	S3MaxAttempts        int    `env:"S3_MAX_ATTEMPTS" env-default:"3"`
	S3CreateBucket       bool   `env:"S3_CREATE_BUCKET" env-default:"false"`
	S3EnableSSE          bool   `env:"S3_ENABLE_SSE" env-default:"false"`
	S3SSEAlgorithm       string `env:"S3_SSE_ALGORITHM" env-default:"AES256"`
	S3SSEKMSKeyID        string `env:"S3_SSE_KMS_KEY_ID"`
	PresignExpirySeconds int    `env:"PRESIGN_EXPIRATION_SECONDS" env-default:"3600"`
	UploadConcurrency    int    `env:"UPLOAD_CONCURRENCY" env-default:"0"`

	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"LOG_FORMAT" env-default:"text"`
}

// Option applies a programmatic override after the environment was read.
type Option func(*Config) error

// Load reads the environment into a Config, applies opts and validates the result.
func Load(opts ...Option) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads variables from the given files (".env" when none are
// given) without overriding variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// WithDatabaseURL overrides DATABASE_URL
func WithDatabaseURL(url string) Option {
	return func(c *Config) error {
		c.DatabaseURL = url
		return nil
	}
}

// WithStorageBackend overrides STORAGE_BACKEND
func WithStorageBackend(backend string) Option {
	return func(c *Config) error {
		c.StorageBackend = backend
		return nil
	}
}

// UsesPostgres reports whether the catalog is backed by PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// PresignExpiration is the default validity window of presigned URLs.
func (c *Config) PresignExpiration() time.Duration {
	return time.Duration(c.PresignExpirySeconds) * time.Second
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseURL != "" && c.DatabaseURL != "memory" && !c.UsesPostgres() {
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", c.DatabaseURL)
	}

	switch c.StorageBackend {
	case "memory":
	case "fs":
		if c.FSSigningSecret == "" {
			return errors.New("FS_SIGNING_SECRET is required for storage backend fs")
		}
	case "s3", "minio":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for storage backend %s", c.StorageBackend)
		}
		if c.StorageBackend == "minio" && c.S3Endpoint == "" {
			return errors.New("S3_ENDPOINT is required for storage backend minio")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.StorageBackend)
	}

	if c.PresignExpirySeconds <= 0 {
		return errors.New("PRESIGN_EXPIRATION_SECONDS must be positive")
	}
	if c.UploadConcurrency < 0 {
		return errors.New("UPLOAD_CONCURRENCY must not be negative")
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported LOG_FORMAT: %s", c.LogFormat)
	}

	return nil
}
