package config

import "time"

// Config represents the pkgrelay.yaml settings file.
type Config struct {
	Version int `yaml:"version"`

	// DataDir holds local blobs, the local registry index and step
	// caches.
	DataDir string `yaml:"data_dir,omitempty"`

	// WriteScheme selects the backend new blobs are written to: file,
	// ipfs or s3.
	WriteScheme string `yaml:"write_scheme,omitempty"`

	IPFS     IPFS     `yaml:"ipfs,omitempty"`
	S3       S3       `yaml:"s3,omitempty"`
	Registry Registry `yaml:"registry,omitempty"`
	Log      Log      `yaml:"log,omitempty"`

	// CacheSize bounds the in-memory blob read cache. Negative disables
	// it; zero uses the default.
	CacheSize int `yaml:"cache_size,omitempty"`
}

// IPFS configures the IPFS backend. With only GatewayURL set the
// backend is read-only.
type IPFS struct {
	APIURL     string            `yaml:"api_url,omitempty"`
	GatewayURL string            `yaml:"gateway_url,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
	Timeout    time.Duration     `yaml:"timeout,omitempty"`
	MaxSize    int64             `yaml:"max_size,omitempty"`
}

// S3 configures an S3-compatible backend.
type S3 struct {
	Endpoint  string `yaml:"endpoint,omitempty"`
	Region    string `yaml:"region,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	UseSSL    *bool  `yaml:"use_ssl,omitempty"`
}

// Enabled reports whether any S3 setting is present.
func (s S3) Enabled() bool {
	return s.Endpoint != "" || s.Bucket != ""
}

// SSL returns UseSSL, defaulting to true.
func (s S3) SSL() bool {
	return s.UseSSL == nil || *s.UseSSL
}

// Registry configures name resolution.
type Registry struct {
	// Priority is "local" to consult the local index before postgres,
	// or "remote" for the reverse.
	Priority    string `yaml:"priority,omitempty"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
	CacheSize   int    `yaml:"cache_size,omitempty"`
}

// Log configures logging.
type Log struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Write schemes.
const (
	SchemeFile = "file"
	SchemeIPFS = "ipfs"
	SchemeS3   = "s3"
)

// Registry priorities.
const (
	PriorityLocal  = "local"
	PriorityRemote = "remote"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)
