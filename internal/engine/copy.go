package engine

import (
	"context"

	"github.com/containerd/log"

	"github.com/bianoble/pkgrelay/internal/pkgref"
	"github.com/bianoble/pkgrelay/internal/registry"
	"github.com/bianoble/pkgrelay/internal/storage"
)

// CopyOptions configures a variant-keyed copy.
type CopyOptions struct {
	// PackageRef is name or name:version; the preset comes from Variant.
	PackageRef string

	// Variant is "<chainId>-<preset>".
	Variant string

	Tags []string
	From *storage.Storage
	To   *storage.Storage

	// Recursive copies and registers every provisioned import. Without
	// it only the root record is copied and no traversal happens.
	Recursive bool
}

// CopyPackage copies a package identified by reference and variant.
func CopyPackage(ctx context.Context, opts CopyOptions) (*PublishResult, error) {
	chainID, preset, err := pkgref.ParseVariant(opts.Variant)
	if err != nil {
		return nil, &Error{Op: "copy", Ref: opts.PackageRef, Err: err}
	}
	partial, err := pkgref.ParsePartial(opts.PackageRef)
	if err != nil {
		return nil, &Error{Op: "copy", Ref: opts.PackageRef, Err: err}
	}
	ref, err := pkgref.From(partial.Name, partial.Version, preset)
	if err != nil {
		return nil, &Error{Op: "copy", Ref: opts.PackageRef, Err: err}
	}
	fullRef := ref.String()

	if opts.Recursive {
		return PublishPackage(ctx, PublishOptions{
			PackageRef:         fullRef,
			ChainID:            chainID,
			Tags:               opts.Tags,
			From:               opts.From,
			To:                 opts.To,
			IncludeProvisioned: true,
		})
	}

	log.G(ctx).WithField("package", fullRef).WithField("variant", opts.Variant).Debug("copying root record only")

	deployURL, err := opts.From.Registry().GetURL(ctx, fullRef, chainID)
	if err != nil {
		return nil, &Error{Op: "copy", Ref: fullRef, ChainID: chainID, Err: err}
	}
	if deployURL == "" {
		return nil, notFound("copy", fullRef, chainID)
	}
	info, err := opts.From.ReadDeployment(ctx, deployURL)
	if err != nil {
		return nil, &Error{Op: "copy", Ref: fullRef, ChainID: chainID, Err: err}
	}
	metaURL, err := copyMeta(ctx, fullRef, chainID, opts.From, opts.To)
	if err != nil {
		return nil, &Error{Op: "copy", Ref: fullRef, ChainID: chainID, Err: err}
	}

	url, err := copyRecord(ctx, info, opts.From, opts.To)
	if err != nil {
		return nil, &Error{Op: "copy", Ref: fullRef, ChainID: chainID, Err: err}
	}
	result := &PublishResult{Copied: []string{url}}

	names, err := PackageNames(info, nil, opts.Tags, ref.Preset())
	if err != nil {
		return nil, &Error{Op: "copy", Ref: fullRef, ChainID: chainID, Err: err}
	}
	existing, err := opts.To.Registry().GetURL(ctx, names[0], info.ChainID)
	if err != nil {
		return nil, &Error{Op: "copy", Ref: fullRef, ChainID: chainID, Err: err}
	}
	if existing == url {
		result.NoOp = true
		return result, nil
	}

	call := registry.PublishCall{PackagesNames: names, ChainID: chainID, URL: url, MetaURL: metaURL}
	published, err := opts.To.Registry().Publish(ctx, call.PackagesNames, call.ChainID, call.URL, call.MetaURL)
	if err != nil {
		return nil, &Error{Op: "copy", Ref: fullRef, ChainID: chainID, Err: err}
	}
	result.Calls, result.Published = []registry.PublishCall{call}, published
	return result, nil
}
