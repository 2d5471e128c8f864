// Package config loads the application configuration.
//
// Settings live in config.yaml under the data directory; a missing file is
// created with defaults on first run. Secrets are not stored there: they
// come from the environment, optionally seeded from a .env file next to the
// config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"conceptarium/internal/remote"
)

// Duration is a time.Duration that YAML-encodes as a string like "2s".
// yaml.v3 has no native duration support.
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(v)
	default:
		return fmt.Errorf("invalid duration: %v", raw)
	}
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	// Debounce is the quiet window local edits are coalesced within before
	// an upload starts.
	Debounce Duration `yaml:"debounce"`
	// MaxMergeRounds bounds re-merging when a merged upload races another
	// writer.
	MaxMergeRounds int `yaml:"max_merge_rounds"`
}

// RetryConfig mirrors the remote retry schedule in the config file.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BackoffBase Duration `yaml:"backoff_base"`
	BackoffCap  Duration `yaml:"backoff_cap"`
	RatePerSec  float64  `yaml:"rate_per_sec"`
	Burst       int      `yaml:"burst"`
}

// RemoteConfig selects and configures the remote backend.
type RemoteConfig struct {
	// Kind is "s3" or "memory". The in-memory backend is for development;
	// its content does not survive a restart.
	Kind string `yaml:"kind"`
	// Dir is the collection folder on the remote.
	Dir string          `yaml:"dir"`
	S3  remote.S3Config `yaml:"s3"`
}

// Config is the full application configuration.
type Config struct {
	HTTP     string       `yaml:"http"`
	LogLevel string       `yaml:"log_level"`
	Sync     SyncConfig   `yaml:"sync"`
	Retry    RetryConfig  `yaml:"retry"`
	Remote   RemoteConfig `yaml:"remote"`
}

// Default returns the built-in configuration.
func Default() Config {
	rc := remote.DefaultRetryConfig()
	return Config{
		HTTP:     "localhost:8080",
		LogLevel: "info",
		Sync: SyncConfig{
			Debounce:       Duration(2 * time.Second),
			MaxMergeRounds: 3,
		},
		Retry: RetryConfig{
			MaxAttempts: rc.MaxAttempts,
			BackoffBase: Duration(rc.BackoffBase),
			BackoffCap:  Duration(rc.BackoffCap),
			RatePerSec:  rc.RatePerSec,
			Burst:       rc.Burst,
		},
		Remote: RemoteConfig{
			Kind: "memory",
			Dir:  "collection",
		},
	}
}

// Load reads config.yaml from dataDir, creating it with defaults when
// missing, then overlays environment variables. A .env file in dataDir is
// loaded into the environment first when present.
func Load(dataDir string) (Config, error) {
	if err := godotenv.Load(filepath.Join(dataDir, ".env")); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	path := filepath.Join(dataDir, "config.yaml")
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		out, merr := yaml.Marshal(&cfg)
		if merr != nil {
			return Config{}, merr
		}
		if werr := os.WriteFile(path, out, 0o644); werr != nil {
			return Config{}, fmt.Errorf("write default config: %w", werr)
		}
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if uerr := yaml.Unmarshal(data, &cfg); uerr != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, uerr)
		}
	}

	// Secrets and deployment-specific values come from the environment.
	if v := os.Getenv("HTTP"); v != "" {
		cfg.HTTP = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		cfg.Remote.S3.Endpoint = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.Remote.S3.Bucket = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		cfg.Remote.S3.AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		cfg.Remote.S3.SecretKey = v
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Remote.Kind {
	case "memory":
	case "s3":
		if c.Remote.S3.Endpoint == "" || c.Remote.S3.Bucket == "" {
			return fmt.Errorf("remote kind s3 requires endpoint and bucket")
		}
	default:
		return fmt.Errorf("unknown remote kind: %q", c.Remote.Kind)
	}
	if c.Remote.Dir == "" {
		return fmt.Errorf("remote dir is required")
	}
	if c.Sync.Debounce <= 0 {
		return fmt.Errorf("sync debounce must be positive")
	}
	return nil
}

// RetryConfigFor converts the file representation to the remote package's.
func (c *Config) RetryConfigFor() remote.RetryConfig {
	return remote.RetryConfig{
		MaxAttempts: c.Retry.MaxAttempts,
		BackoffBase: c.Retry.BackoffBase.Std(),
		BackoffCap:  c.Retry.BackoffCap.Std(),
		RatePerSec:  c.Retry.RatePerSec,
		Burst:       c.Retry.Burst,
	}
}
