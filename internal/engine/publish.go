package engine

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"

	"github.com/bianoble/pkgrelay/internal/deploy"
	"github.com/bianoble/pkgrelay/internal/pkgref"
	"github.com/bianoble/pkgrelay/internal/pkgtree"
	"github.com/bianoble/pkgrelay/internal/registry"
	"github.com/bianoble/pkgrelay/internal/storage"
)

// PublishOptions configures a publish.
type PublishOptions struct {
	// PackageRef names the package in the source registry.
	PackageRef string
	ChainID    int64

	// Tags are registered alongside the package version. Provisioned
	// imports use their own recorded tags instead.
	Tags []string

	From *storage.Storage
	To   *storage.Storage

	// IncludeProvisioned registers every provisioned import as its own
	// entry. Otherwise only the root is registered; every record in the
	// tree is copied either way.
	IncludeProvisioned bool
}

// PublishPackage copies the package tree named by opts.PackageRef from
// one storage to another and registers it at the destination.
func PublishPackage(ctx context.Context, opts PublishOptions) (*PublishResult, error) {
	presetRef := pkgref.DefaultPreset
	fullRef := opts.PackageRef
	if ref, err := pkgref.Parse(opts.PackageRef); err == nil {
		presetRef = ref.Preset()
		if fullRef, err = ref.FullPackageRef(); err != nil {
			return nil, &Error{Op: "publish", Ref: opts.PackageRef, Err: err}
		}
	}

	log.G(ctx).WithFields(log.Fields{
		"package": fullRef,
		"chainId": opts.ChainID,
		"from":    opts.From.Registry().Label(),
		"to":      opts.To.Registry().Label(),
	}).Debug("publishing package")

	deployURL, err := opts.From.Registry().GetURL(ctx, fullRef, opts.ChainID)
	if err != nil {
		return nil, &Error{Op: "publish", Ref: fullRef, ChainID: opts.ChainID, Err: err}
	}
	if deployURL == "" {
		return nil, notFound("publish", fullRef, opts.ChainID)
	}

	metaURL, err := copyMeta(ctx, fullRef, opts.ChainID, opts.From, opts.To)
	if err != nil {
		return nil, &Error{Op: "publish", Ref: fullRef, ChainID: opts.ChainID, Err: err}
	}

	c := &copier{
		from:      opts.From,
		to:        opts.To,
		chainID:   opts.ChainID,
		tags:      opts.Tags,
		presetRef: presetRef,
		metaURL:   metaURL,
	}
	calls, err := pkgtree.ForPackageTree(ctx, opts.From, deployURL, c.copyNode, pkgtree.Options{
		OnlyProvisioned: true,
		RefreshFrom:     opts.To,
	})
	if err != nil {
		return nil, &Error{Op: "publish", Ref: fullRef, ChainID: opts.ChainID, Err: err}
	}

	result := &PublishResult{Copied: c.copied}
	if opts.IncludeProvisioned {
		if len(calls) == 0 {
			result.NoOp = true
			return result, nil
		}
		published, err := opts.To.Registry().PublishMany(ctx, calls)
		if err != nil {
			return nil, &Error{Op: "publish", Ref: fullRef, ChainID: opts.ChainID, Err: err}
		}
		result.Calls, result.Published = calls, published
		return result, nil
	}

	if c.root == nil {
		result.NoOp = true
		return result, nil
	}
	call := *c.root
	published, err := opts.To.Registry().Publish(ctx, call.PackagesNames, call.ChainID, call.URL, call.MetaURL)
	if err != nil {
		return nil, &Error{Op: "publish", Ref: fullRef, ChainID: opts.ChainID, Err: err}
	}
	result.Calls, result.Published = []registry.PublishCall{call}, published
	return result, nil
}

func notFound(op, ref string, chainID int64) error {
	return &Error{
		Op:      op,
		Ref:     ref,
		ChainID: chainID,
		Err:     fmt.Errorf("could not find deployment artifact for %s with chain id %d: %w", ref, chainID, errdefs.ErrNotFound),
		Hint:    "check the reference and chain id, and that the package was built",
	}
}

// copyMeta copies the package metadata blob, if the source registry has
// one, and returns its destination URL.
func copyMeta(ctx context.Context, fullRef string, chainID int64, from, to *storage.Storage) (string, error) {
	metaURL, err := from.Registry().GetMetaURL(ctx, fullRef, chainID)
	if err != nil || metaURL == "" {
		return "", err
	}
	data, err := from.ReadBlob(ctx, metaURL)
	if err != nil {
		return "", fmt.Errorf("reading meta blob %s: %w", metaURL, err)
	}
	newURL, err := to.PutBlob(ctx, data)
	if err != nil {
		return "", fmt.Errorf("writing meta blob: %w", err)
	}
	if newURL == "" {
		return "", fmt.Errorf("error while writing new meta blob: %w", errdefs.ErrDataLoss)
	}
	return newURL, nil
}

// copier holds the state shared by every node of one publish.
type copier struct {
	from, to  *storage.Storage
	chainID   int64
	tags      []string
	presetRef string
	metaURL   string

	root   *registry.PublishCall
	copied []string
}

// copyNode copies one record and its misc blob and proposes the
// registry call that would name it.
func (c *copier) copyNode(ctx context.Context, info *deploy.Info, parent *deploy.ChainArtifacts) (pkgtree.Result[registry.PublishCall], error) {
	var res pkgtree.Result[registry.PublishCall]

	url, err := copyRecord(ctx, info, c.from, c.to)
	if err != nil {
		return res, err
	}
	c.copied = append(c.copied, url)
	res.URL = url

	names, err := PackageNames(info, parent, c.tags, c.presetRef)
	if err != nil {
		return res, err
	}

	existing, err := c.to.Registry().GetURL(ctx, names[0], info.ChainID)
	if err != nil {
		return res, err
	}
	if existing == url {
		log.G(ctx).WithField("package", names[0]).WithField("url", url).Debug("already published, skipping registration")
		res.Skip = true
		return res, nil
	}

	res.Value = registry.PublishCall{
		PackagesNames: names,
		ChainID:       c.chainID,
		URL:           url,
		MetaURL:       c.metaURL,
	}
	if parent == nil {
		root := res.Value
		c.root = &root
	}
	return res, nil
}

// copyRecord copies the misc blob, points info at the copy and writes
// info to the destination. It returns the destination URL of info.
func copyRecord(ctx context.Context, info *deploy.Info, from, to *storage.Storage) (string, error) {
	if info.MiscURL != "" {
		misc, err := from.ReadBlob(ctx, info.MiscURL)
		if err != nil {
			return "", fmt.Errorf("reading misc blob %s: %w", info.MiscURL, err)
		}
		newMisc, err := to.PutBlob(ctx, misc)
		if err != nil {
			return "", fmt.Errorf("writing misc blob: %w", err)
		}
		// An empty URL means the destination already holds it.
		if newMisc != "" {
			info.MiscURL = newMisc
		}
	}

	url, err := to.PutBlob(ctx, info)
	if err != nil {
		return "", fmt.Errorf("writing deployment: %w", err)
	}
	if url == "" {
		return "", fmt.Errorf("uploaded url is invalid: %w", errdefs.ErrDataLoss)
	}
	return url, nil
}

// PackageNames derives the registry names of a record: its version and
// each tag, all under the same name and preset. Provisioned imports
// carry their own tags and preset; everything else uses tags and
// presetRef.
func PackageNames(info *deploy.Info, parent *deploy.ChainArtifacts, tags []string, presetRef string) ([]string, error) {
	tctx := deploy.InitialContext(info)
	name, err := info.Def.Name(tctx)
	if err != nil {
		return nil, err
	}
	version, err := info.Def.Version(tctx)
	if err != nil {
		return nil, err
	}
	if version == "" {
		version = pkgref.DefaultVersion
	}

	if parent != nil && len(parent.Tags) > 0 {
		tags = parent.Tags
	}
	preset := presetRef
	if parent != nil && parent.Preset != "" {
		preset = parent.Preset
	}
	if preset == "" {
		preset = pkgref.DefaultPreset
	}

	seen := make(map[string]bool, len(tags)+1)
	var names []string
	for _, t := range append([]string{version}, tags...) {
		if seen[t] {
			continue
		}
		seen[t] = true
		names = append(names, fmt.Sprintf("%s:%s@%s", name, t, preset))
	}
	return names, nil
}
