package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
)

// Fallback consults an ordered list of registries. The first non-empty
// answer wins; a registry is skipped only when it has no data. Any
// other failure stops the lookup.
type Fallback struct {
	registries []Registry
	target     Registry
}

// NewFallback returns a registry over regs. Writes go to the first
// registry unless WithWriteTarget picks another.
func NewFallback(regs ...Registry) *Fallback {
	f := &Fallback{registries: regs}
	if len(regs) > 0 {
		f.target = regs[0]
	}
	return f
}

// WithWriteTarget sets the registry that receives publishes.
func (f *Fallback) WithWriteTarget(r Registry) *Fallback {
	f.target = r
	return f
}

// Registries returns the lookup order.
func (f *Fallback) Registries() []Registry {
	return append([]Registry(nil), f.registries...)
}

func (f *Fallback) Label() string {
	labels := make([]string, 0, len(f.registries))
	for _, r := range f.registries {
		labels = append(labels, r.Label())
	}
	return "fallback [" + strings.Join(labels, ", ") + "]"
}

func (f *Fallback) GetURL(ctx context.Context, fullRef string, chainID int64) (string, error) {
	return f.lookup(ctx, fullRef, chainID, Registry.GetURL)
}

func (f *Fallback) GetMetaURL(ctx context.Context, fullRef string, chainID int64) (string, error) {
	return f.lookup(ctx, fullRef, chainID, Registry.GetMetaURL)
}

type lookupFunc func(r Registry, ctx context.Context, fullRef string, chainID int64) (string, error)

func (f *Fallback) lookup(ctx context.Context, ref string, chainID int64, get lookupFunc) (string, error) {
	for _, r := range f.registries {
		url, err := get(r, ctx, ref, chainID)
		if errdefs.IsNotFound(err) {
			log.G(ctx).WithField("registry", r.Label()).WithField("package", ref).Debug("not found, trying next registry")
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%s: %w", r.Label(), err)
		}
		if url != "" {
			return url, nil
		}
	}
	return "", nil
}

func (f *Fallback) Publish(ctx context.Context, names []string, chainID int64, url, metaURL string) ([]string, error) {
	if f.target == nil {
		return nil, fmt.Errorf("fallback registry has no write target: %w", errdefs.ErrNotImplemented)
	}
	return f.target.Publish(ctx, names, chainID, url, metaURL)
}

func (f *Fallback) PublishMany(ctx context.Context, calls []PublishCall) ([]string, error) {
	if f.target == nil {
		return nil, fmt.Errorf("fallback registry has no write target: %w", errdefs.ErrNotImplemented)
	}
	return f.target.PublishMany(ctx, calls)
}

// List merges the entries of every member that can list. Earlier
// registries win when two hold the same package and chain.
func (f *Fallback) List(ctx context.Context) ([]Entry, error) {
	seen := make(map[entryKey]bool)
	var out []Entry
	for _, r := range f.registries {
		l, ok := r.(Lister)
		if !ok {
			continue
		}
		entries, err := l.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.Label(), err)
		}
		for _, e := range entries {
			k := entryKey{e.Package, e.ChainID}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}
