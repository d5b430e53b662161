package engine

import (
	"context"

	"github.com/bianoble/pkgrelay/internal/blob"
	"github.com/bianoble/pkgrelay/internal/registry"
	"github.com/bianoble/pkgrelay/internal/storage"
)

// InfoResult describes the configured storage for the info command.
type InfoResult struct {
	Version    string
	ConfigPath string
	Registry   string
	Registries []string
	Default    string
	Backends   []BackendInfo
	Entries    int
}

// BackendInfo describes one blob backend.
type BackendInfo struct {
	Scheme string
	Label  string

	// Blobs and Size are only filled for backends that can list and
	// stat their content.
	Blobs int
	Size  int64
}

// Info gathers what the storage is made of. Listing failures on remote
// backends are not fatal; those backends are reported without counts.
func Info(ctx context.Context, version, configPath string, st *storage.Storage) (*InfoResult, error) {
	r := &InfoResult{
		Version:    version,
		ConfigPath: configPath,
		Registry:   st.Registry().Label(),
		Default:    st.Default().Label(),
	}

	if fb, ok := st.Registry().(*registry.Fallback); ok {
		for _, member := range fb.Registries() {
			r.Registries = append(r.Registries, member.Label())
		}
	}
	if l, ok := st.Registry().(registry.Lister); ok {
		entries, err := l.List(ctx)
		if err != nil {
			return nil, err
		}
		r.Entries = len(entries)
	}

	for _, scheme := range st.Schemes() {
		b, ok := st.Backend(scheme)
		if !ok {
			continue
		}
		bi := BackendInfo{Scheme: scheme, Label: b.Label()}
		if stater, ok := b.(blob.Stater); ok {
			if urls, err := b.List(ctx); err == nil {
				bi.Blobs = len(urls)
				for _, u := range urls {
					if s, err := stater.Stat(ctx, u); err == nil {
						bi.Size += s.Size
					}
				}
			}
		}
		r.Backends = append(r.Backends, bi)
	}
	return r, nil
}
