package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/bianoble/pkgrelay/internal/blob"
	"github.com/bianoble/pkgrelay/internal/deploy"
	"github.com/bianoble/pkgrelay/internal/pkgref"
	"github.com/bianoble/pkgrelay/internal/pkgtree"
	"github.com/bianoble/pkgrelay/internal/registry"
	"github.com/bianoble/pkgrelay/internal/storage"
)

// DefaultKeepAge is how old an unreferenced blob must be before prune
// removes it.
const DefaultKeepAge = 30 * 24 * time.Hour

// PruneEngine removes blobs that no kept registry entry reaches.
type PruneEngine struct {
	Storage *storage.Storage

	// Scheme selects the backend to prune. Defaults to local files.
	Scheme string

	Now func() time.Time
}

// PruneOptions configures a prune.
type PruneOptions struct {
	// Filter keeps only entries for this package name.
	Filter string

	// Variants keeps only entries matching one of these
	// "<chainId>-<preset>" selectors.
	Variants []string

	KeepAge time.Duration
	DryRun  bool
}

// Prune drops registry entries that do not match the filters, then
// removes every blob on the pruned backend that no remaining entry
// reaches and that is older than KeepAge.
func (e *PruneEngine) Prune(ctx context.Context, opts PruneOptions) (*PruneResult, error) {
	scheme := e.Scheme
	if scheme == "" {
		scheme = blob.LocalScheme
	}
	backend, ok := e.Storage.Backend(scheme)
	if !ok {
		return nil, fmt.Errorf("no %s backend to prune: %w", scheme, storage.ErrUnknownScheme)
	}
	lister, ok := e.Storage.Registry().(registry.Lister)
	if !ok {
		return nil, fmt.Errorf("registry %s cannot list entries: %w", e.Storage.Registry().Label(), errdefs.ErrNotImplemented)
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	entries, err := lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing registry: %w", err)
	}

	result := &PruneResult{}
	variants := mapset.NewSet(opts.Variants...)
	var kept []registry.Entry
	for _, entry := range entries {
		if keepEntry(entry, opts.Filter, variants) {
			kept = append(kept, entry)
			continue
		}
		if opts.DryRun {
			continue
		}
		if rm, ok := e.Storage.Registry().(registry.Remover); ok {
			if err := rm.Remove(ctx, entry.Package, entry.ChainID); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("removing %s: %w", registry.Receipt(entry.Package, entry.ChainID), err))
			}
		}
	}

	reachable := mapset.NewSet[string]()
	visited := mapset.NewSet[string]()
	for _, entry := range kept {
		root := entry.URL
		reachable.Add(root)
		reachable.Add(entry.MetaURL)
		if !strings.HasPrefix(root, scheme) {
			continue
		}
		action := func(_ context.Context, info *deploy.Info, parent *deploy.ChainArtifacts) (pkgtree.Result[struct{}], error) {
			url := root
			if parent != nil {
				url = parent.URL
			}
			reachable.Add(url)
			reachable.Add(info.MiscURL)
			return pkgtree.Result[struct{}]{Skip: true}, nil
		}
		unreadable := func(ctx context.Context, url string, err error) error {
			if errdefs.IsNotFound(err) || errdefs.IsInvalidArgument(err) {
				log.G(ctx).WithError(err).WithFields(log.Fields{
					"package": entry.Package,
					"url":     url,
				}).Warn("skipping unreadable record")
				return nil
			}
			return err
		}
		walkOpts := pkgtree.Options{Visited: visited, Unreadable: unreadable}
		if _, err := pkgtree.ForPackageTree(ctx, e.Storage, root, action, walkOpts); err != nil {
			return nil, fmt.Errorf("walking %s: %w", entry.Package, err)
		}
	}

	urls, err := backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", backend.Label(), err)
	}
	stater, _ := backend.(blob.Stater)
	for _, url := range urls {
		if reachable.Contains(url) {
			result.Kept = append(result.Kept, PruneAction{URL: url, Action: "kept", Reason: "referenced"})
			continue
		}
		if stater != nil && opts.KeepAge > 0 {
			st, err := stater.Stat(ctx, url)
			if err != nil {
				result.Errors = append(result.Errors, err)
				continue
			}
			if now().Sub(st.ModTime) < opts.KeepAge {
				result.Kept = append(result.Kept, PruneAction{URL: url, Action: "too-young", Reason: "newer than keep age"})
				continue
			}
		}
		if opts.DryRun {
			result.Removed = append(result.Removed, PruneAction{URL: url, Action: "would-remove", Reason: "unreferenced"})
			continue
		}
		if err := backend.Remove(ctx, url); err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		e.Storage.Forget(url)
		result.Removed = append(result.Removed, PruneAction{URL: url, Action: "removed", Reason: "unreferenced"})
	}
	return result, nil
}

func keepEntry(entry registry.Entry, filter string, variants mapset.Set[string]) bool {
	ref, err := pkgref.Parse(entry.Package)
	if err != nil {
		return false
	}
	if filter != "" && ref.Name() != filter {
		return false
	}
	if variants.Cardinality() > 0 && !variants.Contains(pkgref.Variant(entry.ChainID, ref.Preset())) {
		return false
	}
	return true
}
