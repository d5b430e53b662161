package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PKGRELAY_"

// LoadDotEnv loads dotenv files into the process environment without
// overriding variables already set. With no arguments it loads .env
// from the working directory. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overlays PKGRELAY_* variables onto cfg.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []string
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(name string, dst *int) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s%s: %q is not an integer", EnvPrefix, name, v))
			return
		}
		*dst = n
	}

	str("DATA_DIR", &cfg.DataDir)
	str("WRITE_SCHEME", &cfg.WriteScheme)
	num("CACHE_SIZE", &cfg.CacheSize)

	str("IPFS_API_URL", &cfg.IPFS.APIURL)
	str("IPFS_GATEWAY_URL", &cfg.IPFS.GatewayURL)
	if v, ok := lookup(EnvPrefix + "IPFS_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%sIPFS_TIMEOUT: %v", EnvPrefix, err))
		} else {
			cfg.IPFS.Timeout = d
		}
	}
	if v, ok := lookup(EnvPrefix + "IPFS_AUTHORIZATION"); ok && v != "" {
		if cfg.IPFS.Headers == nil {
			cfg.IPFS.Headers = make(map[string]string)
		}
		cfg.IPFS.Headers["Authorization"] = v
	}

	str("S3_ENDPOINT", &cfg.S3.Endpoint)
	str("S3_REGION", &cfg.S3.Region)
	str("S3_ACCESS_KEY", &cfg.S3.AccessKey)
	str("S3_SECRET_KEY", &cfg.S3.SecretKey)
	str("S3_BUCKET", &cfg.S3.Bucket)
	if v, ok := lookup(EnvPrefix + "S3_USE_SSL"); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%sS3_USE_SSL: %q is not a boolean", EnvPrefix, v))
		} else {
			cfg.S3.UseSSL = &b
		}
	}

	str("REGISTRY_PRIORITY", &cfg.Registry.Priority)
	str("POSTGRES_DSN", &cfg.Registry.PostgresDSN)
	num("REGISTRY_CACHE_SIZE", &cfg.Registry.CacheSize)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
