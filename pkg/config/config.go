// Package config reads process configuration from the environment and gameplay
// tuning from YAML profiles.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/Guivernoir/CISO-sim/pkg/savestore"
)

// Config holds process configuration.
type Config struct {
	DataDir    string
	LogLevel   string
	Profile    string // path to a tuning profile, empty for the shipped tuning
	CatalogDir string // empty for the embedded scenario

	Storage savestore.Config

	TelemetryEnabled bool
	OTLPEndpoint     string
}

// Load loads configuration from environment variables.
func Load() *Config {
	dataDir := os.Getenv("CISOSIM_DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	backend := savestore.Backend(strings.ToLower(os.Getenv("CISOSIM_STORAGE")))
	if backend == "" {
		backend = savestore.BackendFS
	}

	redisDB, err := strconv.Atoi(os.Getenv("REDIS_DB"))
	if err != nil {
		redisDB = 0
	}

	s3Region := os.Getenv("CISOSIM_S3_REGION")
	if s3Region == "" {
		s3Region = os.Getenv("AWS_REGION")
	}

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	return &Config{
		DataDir:    dataDir,
		LogLevel:   logLevel,
		Profile:    os.Getenv("CISOSIM_PROFILE"),
		CatalogDir: os.Getenv("CISOSIM_CATALOG_DIR"),
		Storage: savestore.Config{
			Backend:       backend,
			DataDir:       dataDir,
			DatabaseURL:   os.Getenv("DATABASE_URL"),
			RedisAddr:     os.Getenv("REDIS_ADDR"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       redisDB,
			S3: savestore.S3Config{
				Bucket:   os.Getenv("CISOSIM_S3_BUCKET"),
				Region:   s3Region,
				Endpoint: os.Getenv("CISOSIM_S3_ENDPOINT"),
				Prefix:   os.Getenv("CISOSIM_S3_PREFIX"),
			},
			GCS: savestore.GCSConfig{
				Bucket: os.Getenv("CISOSIM_GCS_BUCKET"),
				Prefix: os.Getenv("CISOSIM_GCS_PREFIX"),
			},
		},
		TelemetryEnabled: os.Getenv("CISOSIM_TELEMETRY") == "true",
		OTLPEndpoint:     endpoint,
	}
}
