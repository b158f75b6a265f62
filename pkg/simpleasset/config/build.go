package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/simple-asset/pkg/simpleasset"
	"github.com/tendant/simple-asset/pkg/simpleasset/objectstore"
	"github.com/tendant/simple-asset/pkg/simpleasset/presigned"
	memoryrepo "github.com/tendant/simple-asset/pkg/simpleasset/repo/memory"
	repopg "github.com/tendant/simple-asset/pkg/simpleasset/repo/postgres"
	fsstorage "github.com/tendant/simple-asset/pkg/simpleasset/storage/fs"
	memorystorage "github.com/tendant/simple-asset/pkg/simpleasset/storage/memory"
	miniostorage "github.com/tendant/simple-asset/pkg/simpleasset/storage/minio"
	s3storage "github.com/tendant/simple-asset/pkg/simpleasset/storage/s3"
)

// App bundles the assembled components.
type App struct {
	Service simpleasset.Service
	Catalog simpleasset.Catalog
	Store   *objectstore.Client
	Blobs   simpleasset.BlobStore

	// Files is set for the fs backend, whose URLs the API must serve.
	Files *fsstorage.Backend

	pool *pgxpool.Pool
}

// Build assembles catalog, blob store, object store client and service
// from cfg. Metrics are registered on reg, or the default registerer when
// reg is nil.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger, reg prometheus.Registerer) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	app := &App{}

	catalog, err := app.buildCatalog(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog: %w", err)
	}
	app.Catalog = catalog

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to build storage backend %s: %w", cfg.StorageBackend, err)
	}
	app.Blobs = blobs
	if files, ok := blobs.(*fsstorage.Backend); ok {
		app.Files = files
	}

	observer, err := objectstore.NewPrometheusObserver("", reg)
	if err != nil {
		app.Close()
		return nil, err
	}

	store, err := objectstore.New(blobs,
		objectstore.WithLogger(logger),
		objectstore.WithObserver(observer),
		objectstore.WithPresignExpiration(cfg.PresignExpiration()),
		objectstore.WithMaxConcurrency(cfg.UploadConcurrency),
	)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Store = store

	svc, err := simpleasset.New(
		simpleasset.WithCatalog(catalog),
		simpleasset.WithObjectStore(store),
		simpleasset.WithLogger(logger),
		simpleasset.WithPresignExpiration(cfg.PresignExpiration()),
	)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Service = svc

	if cfg.MigrateOnStart {
		if err := app.Migrate(ctx); err != nil {
			app.Close()
			return nil, err
		}
	}

	return app, nil
}

// Migrate applies the catalog schema. It is a no-op for the memory catalog.
func (a *App) Migrate(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	return repopg.Migrate(ctx, a.pool)
}

// Ping checks catalog connectivity.
func (a *App) Ping(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	return a.pool.Ping(ctx)
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *App) buildCatalog(ctx context.Context, cfg *Config) (simpleasset.Catalog, error) {
	if !cfg.UsesPostgres() {
		return memoryrepo.New(), nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if cfg.DBMaxConns > 0 {
		poolCfg.MaxConns = cfg.DBMaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	a.pool = pool
	return repopg.New(pool), nil
}

func buildBlobStore(ctx context.Context, cfg *Config) (simpleasset.BlobStore, error) {
	timeout := time.Duration(cfg.S3TimeoutSeconds) * time.Second

	switch cfg.StorageBackend {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		signer, err := presigned.New(cfg.FSSigningSecret)
		if err != nil {
			return nil, err
		}
		return fsstorage.New(fsstorage.Config{
			BaseDir: cfg.FSBaseDir,
			BaseURL: cfg.FSBaseURL,
			Signer:  signer,
		})

	case "s3":
		return s3storage.New(ctx, s3storage.Config{
			Region:                 cfg.S3Region,
			Bucket:                 cfg.S3Bucket,
			AccessKeyID:            cfg.S3AccessKeyID,
			SecretAccessKey:        cfg.S3SecretAccessKey,
			Endpoint:               cfg.S3Endpoint,
			UsePathStyle:           cfg.S3UsePathStyle,
			Timeout:                timeout,
			MaxAttempts:            cfg.S3MaxAttempts,
			EnableSSE:              cfg.S3EnableSSE,
			SSEAlgorithm:           cfg.S3SSEAlgorithm,
			SSEKMSKeyID:            cfg.S3SSEKMSKeyID,
			CreateBucketIfNotExist: cfg.S3CreateBucket,
		})

	case "minio":
		endpoint, useSSL, err := minioEndpoint(cfg.S3Endpoint, cfg.S3UseSSL)
		if err != nil {
			return nil, err
		}
		return miniostorage.New(miniostorage.Config{
			Endpoint:        endpoint,
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UseSSL:          useSSL,
			Timeout:         timeout,
			MaxRetries:      cfg.S3MaxAttempts,
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", cfg.StorageBackend)
	}
}

// minioEndpoint accepts either host[:port] or a URL; a URL scheme decides SSL.
func minioEndpoint(endpoint string, useSSL bool) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, useSSL, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid S3_ENDPOINT: %w", err)
	}
	if u.Host == "" {
		return "", false, errors.New("invalid S3_ENDPOINT: missing host")
	}
	return u.Host, u.Scheme == "https", nil
}
