package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func mapEnv(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := &Config{Version: 1, DataDir: "/from/file", IPFS: IPFS{Headers: map[string]string{"X": "1"}}}
	err := ApplyEnv(cfg, mapEnv(map[string]string{
		"PKGRELAY_DATA_DIR":           "/from/env",
		"PKGRELAY_WRITE_SCHEME":       "s3",
		"PKGRELAY_CACHE_SIZE":         "-1",
		"PKGRELAY_IPFS_TIMEOUT":       "2m",
		"PKGRELAY_IPFS_AUTHORIZATION": "Basic abc",
		"PKGRELAY_S3_ENDPOINT":        "minio:9000",
		"PKGRELAY_S3_BUCKET":          "b",
		"PKGRELAY_S3_USE_SSL":         "false",
		"PKGRELAY_POSTGRES_DSN":       "postgres://x",
		"PKGRELAY_LOG_LEVEL":          " debug ",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != "/from/env" || cfg.WriteScheme != SchemeS3 || cfg.CacheSize != -1 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.IPFS.Timeout != 2*time.Minute || cfg.IPFS.Headers["Authorization"] != "Basic abc" || cfg.IPFS.Headers["X"] != "1" {
		t.Errorf("ipfs = %+v", cfg.IPFS)
	}
	if cfg.S3.SSL() || cfg.S3.Bucket != "b" {
		t.Errorf("s3 = %+v", cfg.S3)
	}
	if cfg.Registry.PostgresDSN != "postgres://x" || cfg.Log.Level != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestApplyEnvEmptyValuesIgnored(t *testing.T) {
	cfg := &Config{DataDir: "/keep"}
	if err := ApplyEnv(cfg, mapEnv(map[string]string{"PKGRELAY_DATA_DIR": "  "})); err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != "/keep" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
}

func TestApplyEnvErrors(t *testing.T) {
	err := ApplyEnv(&Config{}, mapEnv(map[string]string{
		"PKGRELAY_CACHE_SIZE":   "lots",
		"PKGRELAY_IPFS_TIMEOUT": "soon",
		"PKGRELAY_S3_USE_SSL":   "maybe",
	}))
	var verr *ValidationError
	if !errors.As(err, &verr) || len(verr.Errors) != 3 {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PKGRELAY_TEST_DOTENV=loaded\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PKGRELAY_TEST_DOTENV", "")
	os.Unsetenv("PKGRELAY_TEST_DOTENV")

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("PKGRELAY_TEST_DOTENV"); got != "loaded" {
		t.Errorf("PKGRELAY_TEST_DOTENV = %q", got)
	}
}

func TestLoadDotEnvKeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PKGRELAY_TEST_DOTENV=file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PKGRELAY_TEST_DOTENV", "process")

	if err := LoadDotEnv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("PKGRELAY_TEST_DOTENV"); got != "process" {
		t.Errorf("PKGRELAY_TEST_DOTENV = %q", got)
	}
}
