// Package registry maps package references to the URL of their
// deployment record, per chain.
package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/containerd/errdefs"

	"github.com/bianoble/pkgrelay/internal/pkgref"
)

// Registry resolves and records package URLs. Lookups that find nothing
// return an empty string and a nil error.
type Registry interface {
	GetURL(ctx context.Context, fullRef string, chainID int64) (string, error)
	GetMetaURL(ctx context.Context, fullRef string, chainID int64) (string, error)

	// Publish points every name in names at url for chainID. The returned
	// strings identify the writes that were made.
	Publish(ctx context.Context, names []string, chainID int64, url, metaURL string) ([]string, error)
	PublishMany(ctx context.Context, calls []PublishCall) ([]string, error)

	Label() string
}

// PublishCall is one registry write: a set of names pointing at the same
// deployment on one chain.
type PublishCall struct {
	PackagesNames []string `json:"packagesNames"`
	ChainID       int64    `json:"chainId"`
	URL           string   `json:"url"`
	MetaURL       string   `json:"metaUrl,omitempty"`
}

// Entry is a single stored mapping.
type Entry struct {
	Package   string    `yaml:"package" json:"package"`
	ChainID   int64     `yaml:"chainId" json:"chainId"`
	URL       string    `yaml:"url" json:"url"`
	MetaURL   string    `yaml:"metaUrl,omitempty" json:"metaUrl,omitempty"`
	Published time.Time `yaml:"published" json:"published"`
}

// Lister is implemented by registries that can enumerate their entries.
type Lister interface {
	List(ctx context.Context) ([]Entry, error)
}

// Remover is implemented by registries that can drop entries.
type Remover interface {
	Remove(ctx context.Context, fullRef string, chainID int64) error
}

// Key normalizes ref to its full name:version@preset form so that
// "greeter" and "greeter:latest@main" address the same entry.
func Key(ref string) (string, error) {
	r, err := pkgref.Parse(ref)
	if err != nil {
		return "", err
	}
	return r.FullPackageRef()
}

// Receipt formats the identifier returned for one written name.
func Receipt(key string, chainID int64) string {
	return fmt.Sprintf("%s#%d", key, chainID)
}

func validateCall(c PublishCall) ([]string, error) {
	if len(c.PackagesNames) == 0 {
		return nil, fmt.Errorf("publish call has no package names: %w", errdefs.ErrInvalidArgument)
	}
	if c.URL == "" {
		return nil, fmt.Errorf("publish call for %s has no url: %w", c.PackagesNames[0], errdefs.ErrInvalidArgument)
	}
	keys := make([]string, 0, len(c.PackagesNames))
	for _, name := range c.PackagesNames {
		key, err := Key(name)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Package != entries[j].Package {
			return entries[i].Package < entries[j].Package
		}
		return entries[i].ChainID < entries[j].ChainID
	})
}
