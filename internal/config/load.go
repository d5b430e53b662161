package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse reads a settings file without applying defaults or validating.
func Parse(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// Load reads, completes and validates a single settings file.
func Load(path string) (*Config, error) {
	cfg, err := Parse(path)
	if err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if errs := Validate(cfg); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return cfg, nil
}

// ResolveOptions controls Resolve.
type ResolveOptions struct {
	DiscoverOptions

	// NoInherit skips the system and user levels.
	NoInherit bool

	// EnvFiles are dotenv files loaded before the environment is read.
	// Missing files are ignored.
	EnvFiles []string

	// Lookup reads environment variables. Defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

// Resolve loads every discovered settings file, merges them, overlays
// PKGRELAY_* environment variables, fills defaults and validates the
// result. Missing files are skipped; with no files at all the defaults
// are used.
func Resolve(opts ResolveOptions) (*Config, []LayerInfo, error) {
	if err := LoadDotEnv(opts.EnvFiles...); err != nil {
		return nil, nil, err
	}

	layers := DiscoverPaths(opts.DiscoverOptions)
	if opts.NoInherit {
		layers = projectOnly(layers)
	}

	var configs []*Config
	for i := range layers {
		cfg, err := Parse(layers[i].Path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			layers[i].Err = err
			return nil, layers, err
		}
		layers[i].Loaded = true
		configs = append(configs, cfg)
	}

	merged := &Config{Version: 1}
	if len(configs) > 0 {
		var err error
		if merged, err = MergeAll(configs); err != nil {
			return nil, layers, err
		}
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := ApplyEnv(merged, lookup); err != nil {
		return nil, layers, err
	}

	ApplyDefaults(merged)
	if errs := Validate(merged); len(errs) > 0 {
		return nil, layers, &ValidationError{Errors: errs}
	}
	return merged, layers, nil
}

func projectOnly(layers []LayerInfo) []LayerInfo {
	var out []LayerInfo
	for _, l := range layers {
		if l.Level == LevelProject {
			out = append(out, l)
		}
	}
	return out
}

// ApplyDefaults fills unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	if strings.HasPrefix(cfg.DataDir, "~"+string(filepath.Separator)) {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.DataDir = filepath.Join(home, cfg.DataDir[2:])
		}
	}
	if cfg.WriteScheme == "" {
		cfg.WriteScheme = SchemeFile
	}
	if cfg.Registry.Priority == "" {
		cfg.Registry.Priority = PriorityLocal
	}
	if cfg.S3.Region == "" && cfg.S3.Enabled() {
		cfg.S3.Region = "us-east-1"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = FormatText
	}
}

// ValidationError holds multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

var logLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "warning": true,
	"error": true, "fatal": true, "panic": true,
}

// Validate checks a Config for semantic correctness and returns every
// problem found.
func Validate(cfg *Config) []string {
	var errs []string

	if cfg.Version != 1 {
		errs = append(errs, fmt.Sprintf("unsupported version %d: only version 1 is supported", cfg.Version))
	}
	if cfg.DataDir == "" {
		errs = append(errs, "'data_dir' is required")
	}

	switch cfg.WriteScheme {
	case SchemeFile:
	case SchemeIPFS:
		if cfg.IPFS.APIURL == "" {
			errs = append(errs, "write_scheme 'ipfs' requires 'ipfs.api_url': a gateway is read-only")
		}
	case SchemeS3:
		if !cfg.S3.Enabled() {
			errs = append(errs, "write_scheme 's3' requires the 's3' section")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid write_scheme '%s': must be one of: file, ipfs, s3", cfg.WriteScheme))
	}

	errs = append(errs, validateURL("ipfs.api_url", cfg.IPFS.APIURL)...)
	errs = append(errs, validateURL("ipfs.gateway_url", cfg.IPFS.GatewayURL)...)
	if cfg.IPFS.Timeout < 0 {
		errs = append(errs, "'ipfs.timeout' must not be negative")
	}

	if cfg.S3.Enabled() {
		if cfg.S3.Endpoint == "" {
			errs = append(errs, "s3: 'endpoint' is required")
		}
		if cfg.S3.Bucket == "" {
			errs = append(errs, "s3: 'bucket' is required")
		}
		if (cfg.S3.AccessKey == "") != (cfg.S3.SecretKey == "") {
			errs = append(errs, "s3: 'access_key' and 'secret_key' must be set together")
		}
	}

	switch cfg.Registry.Priority {
	case PriorityLocal, PriorityRemote:
	default:
		errs = append(errs, fmt.Sprintf("invalid registry.priority '%s': must be one of: local, remote", cfg.Registry.Priority))
	}
	if cfg.Registry.Priority == PriorityRemote && cfg.Registry.PostgresDSN == "" {
		errs = append(errs, "registry.priority 'remote' requires 'registry.postgres_dsn'")
	}

	if !logLevels[strings.ToLower(cfg.Log.Level)] {
		errs = append(errs, fmt.Sprintf("invalid log.level '%s'", cfg.Log.Level))
	}
	switch cfg.Log.Format {
	case FormatText, FormatJSON:
	default:
		errs = append(errs, fmt.Sprintf("invalid log.format '%s': must be one of: text, json", cfg.Log.Format))
	}

	return errs
}

func validateURL(field, raw string) []string {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return []string{fmt.Sprintf("'%s' must be an http(s) url, got '%s'", field, raw)}
	}
	return nil
}
