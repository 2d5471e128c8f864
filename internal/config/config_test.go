package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP != "localhost:8080" || cfg.Remote.Kind != "memory" {
		t.Fatalf("cfg = %+v", cfg)
	}

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if !strings.Contains(string(data), "max_merge_rounds") {
		t.Fatalf("written config missing fields:\n%s", data)
	}
}

func TestLoadParsesExistingConfig(t *testing.T) {
	dir := t.TempDir()
	raw := `
http: ":9999"
log_level: debug
sync:
  debounce: 5s
  max_merge_rounds: 7
remote:
  kind: memory
  dir: notes
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP != ":9999" || cfg.LogLevel != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Sync.Debounce.Std() != 5*time.Second || cfg.Sync.MaxMergeRounds != 7 {
		t.Fatalf("sync = %+v", cfg.Sync)
	}
	if cfg.Remote.Dir != "notes" {
		t.Fatalf("remote = %+v", cfg.Remote)
	}
	// Unset fields keep their defaults.
	if cfg.Retry.MaxAttempts != Default().Retry.MaxAttempts {
		t.Fatalf("retry = %+v", cfg.Retry)
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HTTP", ":7070")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("S3_ENDPOINT", "s3.example.com")
	t.Setenv("S3_BUCKET", "notes")
	t.Setenv("S3_ACCESS_KEY", "AK")
	t.Setenv("S3_SECRET_KEY", "SK")

	raw := "remote:\n  kind: s3\n  dir: collection\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP != ":7070" || cfg.LogLevel != "warn" {
		t.Fatalf("cfg = %+v", cfg)
	}
	s3 := cfg.Remote.S3
	if s3.Endpoint != "s3.example.com" || s3.Bucket != "notes" || s3.AccessKey != "AK" || s3.SecretKey != "SK" {
		t.Fatalf("s3 = %+v", s3)
	}
}

func TestDotEnvSeedsEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HTTP", "") // registers restore on cleanup
	os.Unsetenv("HTTP")  // .env only seeds variables that are absent
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("HTTP=:6060\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP != ":6060" {
		t.Fatalf("HTTP = %q, want :6060", cfg.HTTP)
	}
}

func TestValidation(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		raw  string
	}{
		{"unknown kind", "remote:\n  kind: ftp\n  dir: collection\n"},
		{"s3 without endpoint", "remote:\n  kind: s3\n  dir: collection\n"},
		{"missing dir", "remote:\n  kind: memory\n  dir: \"\"\n"},
		{"zero debounce", "sync:\n  debounce: 0s\nremote:\n  kind: memory\n  dir: collection\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(tc.raw), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(dir); err == nil {
				t.Fatal("invalid config accepted")
			}
		})
	}
}
