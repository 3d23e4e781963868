package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Checkpoint.LedgerPath != ":memory:" {
		t.Errorf("ledger path = %q, want :memory:", cfg.Checkpoint.LedgerPath)
	}
	if cfg.Storage.MaxRetries != 0 {
		t.Errorf("max retries = %d, want 0", cfg.Storage.MaxRetries)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad storage type", func(c *Config) { c.Storage.Type = "ftp" }, "invalid storage type"},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = StorageS3 }, "s3.bucket"},
		{"gcs without bucket", func(c *Config) { c.Storage.Type = StorageGCS }, "gcs.bucket"},
		{"negative retries", func(c *Config) { c.Storage.MaxRetries = -1 }, "max_retries"},
		{"empty ledger", func(c *Config) { c.Checkpoint.LedgerPath = "" }, "ledger_path"},
		{"suffix with slash", func(c *Config) { c.Checkpoint.Suffix = "a/b" }, "suffix"},
		{"bad encoding", func(c *Config) { c.Logging.Encoding = "xml" }, "encoding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xcat.yaml")
	data := `
storage:
  type: s3
  max_retries: 3
  s3:
    bucket: chunks
    region: us-east-1
checkpoint:
  suffix: .ckpt
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Storage.Type != StorageS3 || cfg.Storage.S3.Bucket != "chunks" || cfg.Storage.MaxRetries != 3 {
		t.Errorf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.DefaultBucket() != "chunks" {
		t.Errorf("DefaultBucket() = %q", cfg.DefaultBucket())
	}
	if cfg.Checkpoint.Suffix != ".ckpt" {
		t.Errorf("suffix = %q", cfg.Checkpoint.Suffix)
	}
	// Unset keys keep their defaults.
	if cfg.Checkpoint.LedgerPath != ":memory:" || cfg.Logging.Encoding != "json" {
		t.Errorf("defaults lost: %+v %+v", cfg.Checkpoint, cfg.Logging)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xcat.json")
	if err := os.WriteFile(path, []byte(`{"storage":{"type":"gs","gcs":{"bucket":"b"}}}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.DefaultBucket() != "b" {
		t.Errorf("DefaultBucket() = %q, want b", cfg.DefaultBucket())
	}
}

func TestLoadFromFile_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xcat.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected error for .toml")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("XCAT_STORAGE_PATH", "/data/chunks")
	t.Setenv("XCAT_STORAGE_MAX_RETRIES", "2")
	t.Setenv("XCAT_LOG_LEVEL", "warn")
	t.Setenv("XCAT_CHECKPOINT_SUFFIX", "")

	cfg := DefaultConfig()
	if err := LoadFromEnv(cfg); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Storage.Path != "/data/chunks" || cfg.Storage.MaxRetries != 2 {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
	if cfg.Checkpoint.Suffix != "" {
		t.Errorf("suffix = %q, want empty", cfg.Checkpoint.Suffix)
	}

	t.Setenv("XCAT_STORAGE_MAX_RETRIES", "many")
	if err := LoadFromEnv(cfg); err == nil {
		t.Error("expected error for non-numeric retries")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xcat.yml")
	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("XCAT_LOG_LEVEL", "error")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("level = %q, want error", cfg.Logging.Level)
	}
}
