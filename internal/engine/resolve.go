package engine

import (
	"context"

	"github.com/containerd/log"

	"github.com/bianoble/pkgrelay/internal/deploy"
	"github.com/bianoble/pkgrelay/internal/pkgref"
	"github.com/bianoble/pkgrelay/internal/pkgtree"
	"github.com/bianoble/pkgrelay/internal/registry"
	"github.com/bianoble/pkgrelay/internal/storage"
)

// Resolve looks up the record and metadata URLs registered for ref.
func Resolve(ctx context.Context, ref string, chainID int64, st *storage.Storage) (*Resolution, error) {
	parsed, err := pkgref.Parse(ref)
	if err != nil {
		return nil, &Error{Op: "resolve", Ref: ref, Err: err}
	}
	fullRef, err := parsed.FullPackageRef()
	if err != nil {
		return nil, &Error{Op: "resolve", Ref: ref, Err: err}
	}

	url, err := st.Registry().GetURL(ctx, fullRef, chainID)
	if err != nil {
		return nil, &Error{Op: "resolve", Ref: fullRef, ChainID: chainID, Err: err}
	}
	if url == "" {
		return nil, notFound("resolve", fullRef, chainID)
	}
	metaURL, err := st.Registry().GetMetaURL(ctx, fullRef, chainID)
	if err != nil {
		return nil, &Error{Op: "resolve", Ref: fullRef, ChainID: chainID, Err: err}
	}
	return &Resolution{Ref: fullRef, ChainID: chainID, URL: url, MetaURL: metaURL}, nil
}

// ProvisionedPackages returns the registry call that would name each
// provisioned package in the tree of ref, root last. Nothing is written.
func ProvisionedPackages(ctx context.Context, ref string, chainID int64, tags []string, st *storage.Storage) ([]registry.PublishCall, error) {
	res, err := Resolve(ctx, ref, chainID, st)
	if err != nil {
		return nil, err
	}
	preset := pkgref.MustParse(res.Ref).Preset()

	action := func(ctx context.Context, info *deploy.Info, parent *deploy.ChainArtifacts) (pkgtree.Result[registry.PublishCall], error) {
		var out pkgtree.Result[registry.PublishCall]
		names, err := PackageNames(info, parent, tags, preset)
		if err != nil {
			return out, err
		}
		url := res.URL
		if parent != nil {
			url = parent.URL
		}
		out.Value = registry.PublishCall{PackagesNames: names, ChainID: chainID, URL: url}
		return out, nil
	}

	calls, err := pkgtree.ForPackageTree(ctx, st, res.URL, action, pkgtree.Options{OnlyProvisioned: true})
	if err != nil {
		return nil, &Error{Op: "provisioned", Ref: res.Ref, ChainID: chainID, Err: err}
	}
	log.G(ctx).WithField("package", res.Ref).WithField("count", len(calls)).Debug("listed provisioned packages")
	return calls, nil
}

// PinTree copies every record reachable from url, with its misc blob,
// to another storage without registering anything.
func PinTree(ctx context.Context, url string, from, to *storage.Storage) (*PinResult, error) {
	result := &PinResult{}
	action := func(ctx context.Context, info *deploy.Info, _ *deploy.ChainArtifacts) (pkgtree.Result[string], error) {
		newURL, err := copyRecord(ctx, info, from, to)
		if err != nil {
			return pkgtree.Result[string]{}, err
		}
		result.Copied = append(result.Copied, newURL)
		return pkgtree.Result[string]{Value: newURL, URL: newURL}, nil
	}

	urls, err := pkgtree.ForPackageTree(ctx, from, url, action, pkgtree.Options{RefreshFrom: to})
	if err != nil {
		return nil, &Error{Op: "pin", Ref: url, Err: err}
	}
	if len(urls) > 0 {
		result.URL = urls[len(urls)-1]
	}
	return result, nil
}
