// Package config provides configuration for the xcat map-task worker.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Storage types.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
	StorageGCS   = "gs"
)

// Config holds the worker configuration.
type Config struct {
	// Storage configures where checkpoints and scheme-less context blobs live
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Checkpoint configuration
	Checkpoint CheckpointConfig `json:"checkpoint" yaml:"checkpoint"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Metrics configuration
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// StorageConfig holds blob storage configuration.
type StorageConfig struct {
	// Type is the default backend for scheme-less locations: local, s3, gs
	Type string `json:"type" yaml:"type"`

	// Path is the base directory relative local locations resolve against
	Path string `json:"path" yaml:"path"`

	// MaxRetries bounds retries inside remote backends (0 = no retry)
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// S3 configuration (for s3 type and s3:// locations)
	S3 S3Config `json:"s3" yaml:"s3"`

	// GCS configuration (for gs type and gs:// locations)
	GCS GCSConfig `json:"gcs" yaml:"gcs"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the default S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle forces path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// GCSConfig holds Google Cloud Storage configuration.
type GCSConfig struct {
	// Bucket is the default GCS bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// CredentialsFile is a service account key; empty uses ambient credentials
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
}

// CheckpointConfig holds checkpoint writer configuration.
type CheckpointConfig struct {
	// Suffix is appended to checkpoint names to form object names
	Suffix string `json:"suffix" yaml:"suffix"`

	// LedgerPath is the SQLite ledger path; ":memory:" keeps it in-process
	LedgerPath string `json:"ledger_path" yaml:"ledger_path"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level" yaml:"level"`

	// Encoding is json or console
	Encoding string `json:"encoding" yaml:"encoding"`
}

// MetricsConfig holds metrics export configuration.
type MetricsConfig struct {
	// Textfile receives the metrics at exit; empty disables export
	Textfile string `json:"textfile" yaml:"textfile"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Type:       StorageLocal,
			Path:       "",
			MaxRetries: 0,
		},
		Checkpoint: CheckpointConfig{
			Suffix:     ".pb.sz",
			LedgerPath: ":memory:",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// DefaultBucket returns the bucket scheme-less locations resolve into.
func (c *Config) DefaultBucket() string {
	switch c.Storage.Type {
	case StorageS3:
		return c.Storage.S3.Bucket
	case StorageGCS:
		return c.Storage.GCS.Bucket
	default:
		return ""
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case StorageLocal, StorageS3, StorageGCS:
		// Valid types
	default:
		return fmt.Errorf("invalid storage type: %s (must be local, s3 or gs)", c.Storage.Type)
	}

	if c.Storage.Type == StorageS3 && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required when storage type is s3")
	}

	if c.Storage.Type == StorageGCS && c.Storage.GCS.Bucket == "" {
		return fmt.Errorf("storage.gcs.bucket is required when storage type is gs")
	}

	if c.Storage.MaxRetries < 0 {
		return fmt.Errorf("storage.max_retries must be non-negative, got %d", c.Storage.MaxRetries)
	}

	if c.Checkpoint.LedgerPath == "" {
		return fmt.Errorf("checkpoint.ledger_path is required")
	}

	if strings.ContainsAny(c.Checkpoint.Suffix, "/\\") {
		return fmt.Errorf("checkpoint.suffix must not contain path separators: %q", c.Checkpoint.Suffix)
	}

	switch c.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging encoding: %s (must be json or console)", c.Logging.Encoding)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the XCAT_ prefix.
func LoadFromEnv(cfg *Config) error {
	// Storage configuration
	if v := os.Getenv("XCAT_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("XCAT_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("XCAT_STORAGE_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("XCAT_STORAGE_MAX_RETRIES: %w", err)
		}
		cfg.Storage.MaxRetries = n
	}
	if v := os.Getenv("XCAT_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("XCAT_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("XCAT_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("XCAT_S3_USE_PATH_STYLE"); v != "" {
		cfg.Storage.S3.UsePathStyle = v == "true" || v == "1"
	}
	if v := os.Getenv("XCAT_GCS_BUCKET"); v != "" {
		cfg.Storage.GCS.Bucket = v
	}
	if v := os.Getenv("XCAT_GCS_CREDENTIALS_FILE"); v != "" {
		cfg.Storage.GCS.CredentialsFile = v
	}

	// Checkpoint configuration
	if v, ok := os.LookupEnv("XCAT_CHECKPOINT_SUFFIX"); ok {
		cfg.Checkpoint.Suffix = v
	}
	if v := os.Getenv("XCAT_CHECKPOINT_LEDGER_PATH"); v != "" {
		cfg.Checkpoint.LedgerPath = v
	}

	// Logging configuration
	if v := os.Getenv("XCAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("XCAT_LOG_ENCODING"); v != "" {
		cfg.Logging.Encoding = v
	}

	// Metrics configuration
	if v := os.Getenv("XCAT_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}

	return nil
}

// Load builds the effective configuration: defaults, then the optional
// file, then the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
