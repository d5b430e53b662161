// Package pkgrelay is the Go library API for pkgrelay.
//
// A Client holds two views over the configured backends. The local
// view resolves names through the index in the data directory and
// writes blobs there. The remote view resolves through the configured
// registries in priority order and writes to the configured write
// scheme. Publishing moves a package tree from the local view to the
// remote one; copying moves it back.
//
// # Basic Usage
//
//	client, err := pkgrelay.New(ctx, pkgrelay.Options{ConfigPath: "pkgrelay.yaml"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	res, err := client.Publish(ctx, pkgrelay.PublishOptions{
//	    Ref:     "greeter:1.0.0@main",
//	    ChainID: 10,
//	    Tags:    []string{"latest"},
//	})
package pkgrelay

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"

	"github.com/bianoble/pkgrelay/internal/blob"
	"github.com/bianoble/pkgrelay/internal/config"
	"github.com/bianoble/pkgrelay/internal/engine"
	"github.com/bianoble/pkgrelay/internal/pkgref"
	"github.com/bianoble/pkgrelay/internal/registry"
	"github.com/bianoble/pkgrelay/internal/storage"
)

// Options configures a Client.
type Options struct {
	// ConfigPath is the project settings file. Default: "pkgrelay.yaml".
	ConfigPath string

	// Config, when set, is used as is instead of resolving settings
	// files and the environment.
	Config *config.Config

	// RemoteRegistry replaces the postgres registry.
	RemoteRegistry registry.Registry

	// Backends replace the configured backend for their scheme.
	Backends []blob.Backend
}

// Client is the main entry point for the pkgrelay library.
type Client struct {
	cfg        *config.Config
	configPath string
	local      *storage.Storage
	remote     *storage.Storage
	closers    []func() error
}

// New builds a Client from settings. It connects to postgres when a DSN
// is configured.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.ConfigPath == "" {
		opts.ConfigPath = config.FileName
	}
	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, _, err = config.Resolve(config.ResolveOptions{
			DiscoverOptions: config.DiscoverOptions{ProjectPath: opts.ConfigPath},
			NoInherit:       config.NoInherit(),
		})
		if err != nil {
			return nil, err
		}
	}

	c := &Client{cfg: cfg, configPath: opts.ConfigPath}
	backends, err := buildBackends(cfg, opts.Backends)
	if err != nil {
		return nil, err
	}

	localReg := registry.NewLocal(filepath.Join(cfg.DataDir, registry.IndexFile))
	remoteReg, err := c.remoteRegistry(ctx, cfg, localReg, opts.RemoteRegistry)
	if err != nil {
		return nil, err
	}

	sopts := storage.Options{CacheSize: cfg.CacheSize}
	if c.local, err = storage.New(localReg, backends, blob.LocalScheme, sopts); err != nil {
		_ = c.Close()
		return nil, err
	}
	if c.remote, err = storage.New(remoteReg, backends, cfg.WriteScheme+"://", sopts); err != nil {
		_ = c.Close()
		return nil, err
	}

	log.G(ctx).WithFields(log.Fields{
		"local":  c.local.Label(),
		"remote": c.remote.Label(),
	}).Debug("client ready")
	return c, nil
}

func buildBackends(cfg *config.Config, extra []blob.Backend) ([]blob.Backend, error) {
	backends := []blob.Backend{blob.NewLocal(filepath.Join(cfg.DataDir, "blobs"))}

	ipfsOpts := blob.IPFSOptions{
		Headers: cfg.IPFS.Headers,
		MaxSize: cfg.IPFS.MaxSize,
		Timeout: cfg.IPFS.Timeout,
	}
	switch {
	case cfg.IPFS.APIURL != "":
		backends = append(backends, blob.NewIPFS(cfg.IPFS.APIURL, ipfsOpts))
	case cfg.IPFS.GatewayURL != "":
		backends = append(backends, blob.NewGateway(cfg.IPFS.GatewayURL, ipfsOpts))
	}

	if cfg.S3.Enabled() {
		s3, err := blob.NewS3(blob.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			UseSSL:    cfg.S3.SSL(),
		})
		if err != nil {
			return nil, fmt.Errorf("configuring s3: %w", err)
		}
		backends = append(backends, s3)
	}
	return append(backends, extra...), nil
}

func (c *Client) remoteRegistry(ctx context.Context, cfg *config.Config, local *registry.Local, override registry.Registry) (registry.Registry, error) {
	remote := override
	if remote == nil && cfg.Registry.PostgresDSN != "" {
		pg, err := registry.NewPostgres(ctx, cfg.Registry.PostgresDSN, cfg.Registry.CacheSize)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, pg.Close)
		remote = pg
	}
	if remote == nil {
		return registry.NewFallback(local), nil
	}
	if cfg.Registry.Priority == config.PriorityRemote {
		return registry.NewFallback(remote, local), nil
	}
	return registry.NewFallback(local, remote).WithWriteTarget(remote), nil
}

// Close releases registry connections.
func (c *Client) Close() error {
	var first error
	for _, fn := range c.closers {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}

// Config returns the settings the client was built from.
func (c *Client) Config() *config.Config { return c.cfg }

// Local returns the data-directory view.
func (c *Client) Local() *storage.Storage { return c.local }

// Remote returns the configured-registry view.
func (c *Client) Remote() *storage.Storage { return c.remote }

// PublishOptions configures Publish.
type PublishOptions struct {
	Ref                string
	ChainID            int64
	Tags               []string
	IncludeProvisioned bool
}

// Publish copies a locally built package tree to the remote view and
// registers it there.
func (c *Client) Publish(ctx context.Context, opts PublishOptions) (*PublishResult, error) {
	return engine.PublishPackage(ctx, engine.PublishOptions{
		PackageRef:         opts.Ref,
		ChainID:            opts.ChainID,
		Tags:               opts.Tags,
		From:               c.local,
		To:                 c.remote,
		IncludeProvisioned: opts.IncludeProvisioned,
	})
}

// CopyOptions configures Copy.
type CopyOptions struct {
	Ref       string
	Variant   string
	Tags      []string
	Recursive bool
}

// Copy fetches a package from the remote view into the local one.
func (c *Client) Copy(ctx context.Context, opts CopyOptions) (*PublishResult, error) {
	return engine.CopyPackage(ctx, engine.CopyOptions{
		PackageRef: opts.Ref,
		Variant:    opts.Variant,
		Tags:       opts.Tags,
		From:       c.remote,
		To:         c.local,
		Recursive:  opts.Recursive,
	})
}

// Pin copies the tree at url into the remote write backend without
// registering it.
func (c *Client) Pin(ctx context.Context, url string) (*PinResult, error) {
	return engine.PinTree(ctx, url, c.remote, c.remote)
}

// Resolve looks a package up in the remote view.
func (c *Client) Resolve(ctx context.Context, ref string, chainID int64) (*Resolution, error) {
	return engine.Resolve(ctx, ref, chainID, c.remote)
}

// Inspect resolves and reads a package, optionally writing its
// contracts to writeDir.
func (c *Client) Inspect(ctx context.Context, ref string, chainID int64, writeDir string) (*InspectResult, error) {
	return engine.Inspect(ctx, engine.InspectOptions{Ref: ref, ChainID: chainID, Storage: c.remote, WriteDir: writeDir})
}

// Provisioned lists the registry calls a publish of ref would make.
func (c *Client) Provisioned(ctx context.Context, ref string, chainID int64, tags []string) ([]PublishCall, error) {
	return engine.ProvisionedPackages(ctx, ref, chainID, tags, c.local)
}

// PruneOptions configures Prune.
type PruneOptions struct {
	Filter   string
	Variants []string
	KeepAge  time.Duration
	DryRun   bool
}

// Prune removes local blobs no kept registry entry reaches.
func (c *Client) Prune(ctx context.Context, opts PruneOptions) (*PruneResult, error) {
	e := &engine.PruneEngine{Storage: c.local}
	return e.Prune(ctx, engine.PruneOptions{
		Filter:   opts.Filter,
		Variants: opts.Variants,
		KeepAge:  opts.KeepAge,
		DryRun:   opts.DryRun,
	})
}

// Info describes the remote view.
func (c *Client) Info(ctx context.Context, version string) (*InfoResult, error) {
	return engine.Info(ctx, version, c.configPath, c.remote)
}

// AlterOptions configures Alter.
type AlterOptions struct {
	Ref     string
	ChainID int64
	Command AlterCommand
	Args    []string
}

// Alter edits a locally built package's record and repoints its name.
func (c *Client) Alter(ctx context.Context, opts AlterOptions) (*AlterResult, error) {
	return engine.Alter(ctx, engine.AlterOptions{
		PackageRef: opts.Ref,
		ChainID:    opts.ChainID,
		Command:    opts.Command,
		Args:       opts.Args,
		Storage:    c.local,
	})
}

// StepDir is where the step cache for ref lives under the data
// directory.
func (c *Client) StepDir(ref string) (string, error) {
	r, err := pkgref.Parse(ref)
	if err != nil {
		return "", err
	}
	for _, part := range []string{r.Version(), r.Preset()} {
		if part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("%s cannot name a step cache directory: %w", ref, errdefs.ErrInvalidArgument)
		}
	}
	return filepath.Join(c.cfg.DataDir, "steps", r.Name(), r.Version(), r.Preset()), nil
}

// StepRunner returns a runner caching the script steps of ref. Set
// BaseDir, Executor and Signers on it before running steps that are
// not cached yet.
func (c *Client) StepRunner(ref string, bctx BuildContext) (*StepRunner, error) {
	dir, err := c.StepDir(ref)
	if err != nil {
		return nil, err
	}
	return &StepRunner{PackageDir: dir, Context: bctx}, nil
}
