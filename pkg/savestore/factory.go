package savestore

import (
	"context"
	"fmt"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Backend names a Store implementation.
type Backend string

const (
	BackendFS       Backend = "fs"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
	BackendS3       Backend = "s3"
	BackendGCS      Backend = "gcs"
)

// Config selects and configures a backend.
type Config struct {
	Backend     Backend
	DataDir     string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	S3  S3Config
	GCS GCSConfig
}

// GCSConfig holds configuration for GCSStore. It is declared in every build so that
// configuration parses the same with or without the gcp tag.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// NewFromConfig builds the configured store. SQL stores are initialized before they
// are returned. Stores that hold connections implement io.Closer.
func NewFromConfig(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendFS, "":
		dir := cfg.DataDir
		if dir == "" {
			dir = "data"
		}
		return NewFileStore(filepath.Join(dir, "saves"))
	case BackendSQLite, BackendPostgres:
		return newSQLStoreFromConfig(ctx, cfg)
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis address is required for redis storage")
		}
		return NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), nil
	case BackendS3:
		region := cfg.S3.Region
		if region == "" {
			region = "us-east-1"
		}
		s3cfg := cfg.S3
		s3cfg.Region = region
		return NewS3Store(ctx, s3cfg)
	case BackendGCS:
		return newGCSStoreFromConfig(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unsupported save storage backend: %s", cfg.Backend)
	}
}

func newSQLStoreFromConfig(ctx context.Context, cfg Config) (Store, error) {
	dialect := Dialect(cfg.Backend)
	dsn := cfg.DatabaseURL
	if dsn == "" {
		if dialect == Postgres {
			return nil, fmt.Errorf("database url is required for postgres storage")
		}
		dir := cfg.DataDir
		if dir == "" {
			dir = "data"
		}
		dsn = filepath.Join(dir, "cisosim.db")
	}
	db, err := OpenSQL(dialect, dsn)
	if err != nil {
		return nil, err
	}
	store, err := NewSQLStore(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init %s save store: %w", dialect, err)
	}
	return store, nil
}
