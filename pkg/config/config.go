// Package config loads runtime settings shared by the lvfs services.
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// FileEnv names the variable pointing at an optional YAML overlay file.
const FileEnv = "LVFS_CONFIG_FILE"

// Storage backends.
const (
	StorageFS = "fs"
	StorageS3 = "s3"
)

// Config holds runtime configuration for the lvfs services.
//
// Values are read from an optional YAML file first and then from the
// environment; a set environment variable always wins.
type Config struct {
	Addr           string   `yaml:"addr" env:"LVFS_ADDR,overwrite,default=:8080"`
	DBDSN          string   `yaml:"db_dsn" env:"LVFS_DB_DSN,overwrite"`
	AutoMigrate    bool     `yaml:"auto_migrate" env:"LVFS_AUTO_MIGRATE,overwrite,default=true"`
	SigningContact string   `yaml:"signing_contact" env:"LVFS_SIGNING_CONTACT,overwrite,default=sign@fwupd.org"`
	LogLevel       string   `yaml:"log_level" env:"LVFS_LOG_LEVEL,overwrite,default=info"`
	LogFormat      string   `yaml:"log_format" env:"LVFS_LOG_FORMAT,overwrite,default=json"`
	AllowedOrigins []string `yaml:"cors_allowed_origins" env:"LVFS_CORS_ALLOWED_ORIGINS,overwrite"`
	RateLimit      int      `yaml:"rate_limit" env:"LVFS_RATE_LIMIT,overwrite,default=60"`
	OTLPEndpoint   string   `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT,overwrite"`
	NATSURL        string   `yaml:"nats_url" env:"LVFS_NATS_URL,overwrite"`

	Storage Storage `yaml:"storage"`
}

// Storage selects and configures the blob backend.
type Storage struct {
	Backend string `yaml:"backend" env:"LVFS_STORAGE_BACKEND,overwrite,default=fs"`
	Dir     string `yaml:"dir" env:"LVFS_STORAGE_DIR,overwrite,default=/var/lib/lvfs/downloads"`
	S3      S3     `yaml:"s3"`
}

// S3 configures the S3-compatible blob backend.
type S3 struct {
	Endpoint       string        `yaml:"endpoint" env:"S3_ENDPOINT,overwrite"`
	AccessKey      string        `yaml:"access_key" env:"S3_ACCESS_KEY,overwrite"`
	SecretKey      string        `yaml:"secret_key" env:"S3_SECRET_KEY,overwrite"`
	Region         string        `yaml:"region" env:"S3_REGION,overwrite,default=us-east-1"`
	Bucket         string        `yaml:"bucket" env:"S3_BUCKET,overwrite"`
	Prefix         string        `yaml:"prefix" env:"S3_PREFIX,overwrite,default=downloads/"`
	ForcePathStyle bool          `yaml:"force_path_style" env:"S3_FORCE_PATH_STYLE,overwrite,default=true"`
	Timeout        time.Duration `yaml:"timeout" env:"S3_TIMEOUT,overwrite,default=30s"`
}

// Load returns a Config populated from the optional overlay file and the process environment.
func Load(ctx context.Context) (Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper(), os.Getenv(FileEnv))
}

// LoadWith is Load with an explicit lookuper and overlay path.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper, file string) (Config, error) {
	var cfg Config
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements that env tags cannot express.
func (c Config) Validate() error {
	if c.DBDSN == "" {
		return fmt.Errorf("LVFS_DB_DSN is required")
	}
	switch c.Storage.Backend {
	case StorageFS:
		if c.Storage.Dir == "" {
			return fmt.Errorf("LVFS_STORAGE_DIR is required for the %q backend", StorageFS)
		}
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the %q backend", StorageS3)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.SigningContact == "" {
		return fmt.Errorf("LVFS_SIGNING_CONTACT must not be empty")
	}
	return nil
}
