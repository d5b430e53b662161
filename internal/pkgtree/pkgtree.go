// Package pkgtree walks a package and every package it imports,
// depth first, running an action on each node after its imports.
package pkgtree

import (
	"context"
	"fmt"

	"github.com/containerd/log"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/bianoble/pkgrelay/internal/deploy"
)

// Reader loads deployment records by URL.
type Reader interface {
	ReadDeployment(ctx context.Context, url string) (*deploy.Info, error)
}

// Result is what an action reports for one node.
type Result[T any] struct {
	Value T

	// URL is where the node's record lives after the action ran. When it
	// differs from the URL the node was read from, the parent's import is
	// repointed to it. Empty means unchanged.
	URL string

	// Skip leaves Value out of the returned results.
	Skip bool
}

// Action runs once per distinct URL. parent is the import artifact
// that led to info, or nil for the root.
type Action[T any] func(ctx context.Context, info *deploy.Info, parent *deploy.ChainArtifacts) (Result[T], error)

// Options controls a traversal.
type Options struct {
	// OnlyProvisioned keeps only results that come from tagged imports
	// (and the root). Actions still run on every node.
	OnlyProvisioned bool

	// RefreshFrom is read when a repointed import's nested imports are
	// refreshed. Defaults to the traversal source.
	RefreshFrom Reader

	// Visited holds URLs already processed. Passing the same set to
	// several traversals processes each URL once across all of them.
	Visited mapset.Set[string]

	// Unreadable is called when a record cannot be read. Returning nil
	// treats the node as a leaf with nothing to process; returning an
	// error aborts the traversal. When unset every read error aborts.
	Unreadable func(ctx context.Context, url string, err error) error
}

type walker[T any] struct {
	src     Reader
	refresh Reader
	action  Action[T]
	only    bool
	visited mapset.Set[string]
	onErr   func(ctx context.Context, url string, err error) error

	// moved maps a processed URL to the URL its action produced.
	moved map[string]string
}

// ForPackageTree runs action over the tree rooted at url in postfix
// order and returns the collected results, root last. Nodes are
// processed one at a time; an action may rely on its imports being
// finished and repointed before it runs.
func ForPackageTree[T any](ctx context.Context, src Reader, url string, action Action[T], opts Options) ([]T, error) {
	w := &walker[T]{
		src:     src,
		refresh: opts.RefreshFrom,
		action:  action,
		only:    opts.OnlyProvisioned,
		visited: opts.Visited,
		onErr:   opts.Unreadable,
		moved:   make(map[string]string),
	}
	if w.refresh == nil {
		w.refresh = src
	}
	if w.visited == nil {
		w.visited = mapset.NewSet[string]()
	}
	results, _, err := w.walk(ctx, url, nil)
	return results, err
}

// walk processes the subtree at url and returns its results together
// with the URL the node lives at afterwards. The caller patches its own
// import from that URL; children never see the parent's record.
func (w *walker[T]) walk(ctx context.Context, url string, parent *deploy.ChainArtifacts) ([]T, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if !w.visited.Add(url) {
		log.G(ctx).WithField("url", url).Debug("already processed, skipping")
		return nil, w.terminal(url), nil
	}

	info, err := w.src.ReadDeployment(ctx, url)
	if err != nil {
		err = fmt.Errorf("reading deployment %s: %w", url, err)
		if w.onErr == nil {
			return nil, "", err
		}
		if err := w.onErr(ctx, url, err); err != nil {
			return nil, "", err
		}
		return nil, url, nil
	}

	var results []T
	for _, imp := range info.Imports() {
		if imp.URL == "" {
			log.G(ctx).WithField("parent", url).Debug("import has no url, nothing to traverse")
			continue
		}
		sub, terminal, err := w.walk(ctx, imp.URL, detach(imp))
		if err != nil {
			return nil, "", err
		}

		if terminal != imp.URL {
			if err := w.repoint(ctx, imp, terminal); err != nil {
				return nil, "", err
			}
		}

		if !w.only || imp.Provisioned() {
			results = append(results, sub...)
		}
	}

	res, err := w.action(ctx, info, parent)
	if err != nil {
		return nil, "", err
	}
	if res.URL != "" {
		w.moved[url] = res.URL
	}
	if !res.Skip {
		results = append(results, res.Value)
	}
	return results, w.terminal(url), nil
}

// terminal returns where url ended up after its action ran.
func (w *walker[T]) terminal(url string) string {
	if moved, ok := w.moved[url]; ok {
		return moved
	}
	return url
}

// detach copies the fields an action may inspect so it cannot rewrite
// the parent's import in place.
func detach(imp *deploy.ChainArtifacts) *deploy.ChainArtifacts {
	c := *imp
	c.Tags = append([]string(nil), imp.Tags...)
	return &c
}

// repoint makes imp reference the record at url and replaces its nested
// imports with the ones recorded there.
func (w *walker[T]) repoint(ctx context.Context, imp *deploy.ChainArtifacts, url string) error {
	updated, err := w.refresh.ReadDeployment(ctx, url)
	if err != nil {
		return fmt.Errorf("refreshing import %s: %w", url, err)
	}
	log.G(ctx).WithField("from", imp.URL).WithField("to", url).Debug("repointed import")
	imp.URL = url
	imp.Imports = updated.Artifacts().Imports
	return nil
}
