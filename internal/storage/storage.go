// Package storage pairs a registry with the blob backends its URLs point
// into. It is the unit that publish and copy operations move packages
// between.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/bianoble/pkgrelay/internal/blob"
	"github.com/bianoble/pkgrelay/internal/deploy"
	"github.com/bianoble/pkgrelay/internal/registry"
)

// ErrUnknownScheme is returned for URLs no backend serves.
var ErrUnknownScheme = fmt.Errorf("unknown url scheme: %w", errdefs.ErrInvalidArgument)

// Options tunes a Storage.
type Options struct {
	// CacheSize bounds the number of documents kept in memory. Zero uses
	// the default; negative disables caching.
	CacheSize int
}

const defaultCacheSize = 256

// Storage reads and writes package documents and the registry entries
// that name them.
type Storage struct {
	registry      registry.Registry
	backends      map[string]blob.Backend
	defaultScheme string

	cache *lru.Cache[string, []byte]
	group singleflight.Group
}

// New builds a Storage. Each backend is keyed by its scheme; a later
// backend with the same scheme replaces an earlier one. defaultScheme
// selects where PutBlob writes.
func New(reg registry.Registry, backends []blob.Backend, defaultScheme string, opts Options) (*Storage, error) {
	if reg == nil {
		return nil, fmt.Errorf("storage requires a registry: %w", errdefs.ErrInvalidArgument)
	}
	s := &Storage{
		registry:      reg,
		backends:      make(map[string]blob.Backend, len(backends)),
		defaultScheme: defaultScheme,
	}
	for _, b := range backends {
		s.backends[b.Scheme()] = b
	}
	if _, ok := s.backends[defaultScheme]; !ok {
		return nil, fmt.Errorf("default scheme %q has no backend (have %s): %w", defaultScheme, s.schemes(), ErrUnknownScheme)
	}

	size := opts.CacheSize
	if size == 0 {
		size = defaultCacheSize
	}
	if size > 0 {
		cache, err := lru.New[string, []byte](size)
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}
	return s, nil
}

// Registry returns the registry this storage resolves names through.
func (s *Storage) Registry() registry.Registry { return s.registry }

// Backend returns the backend serving scheme.
func (s *Storage) Backend(scheme string) (blob.Backend, bool) {
	b, ok := s.backends[scheme]
	return b, ok
}

// Default returns the backend PutBlob writes to.
func (s *Storage) Default() blob.Backend { return s.backends[s.defaultScheme] }

// Label describes the registry and default backend.
func (s *Storage) Label() string {
	return fmt.Sprintf("%s + %s", s.registry.Label(), s.Default().Label())
}

// Schemes returns the served URL schemes in sorted order.
func (s *Storage) Schemes() []string {
	out := make([]string, 0, len(s.backends))
	for scheme := range s.backends {
		out = append(out, scheme)
	}
	sort.Strings(out)
	return out
}

func (s *Storage) schemes() string {
	if len(s.backends) == 0 {
		return "none"
	}
	return strings.Join(s.Schemes(), ", ")
}

// BackendFor returns the backend whose scheme prefixes url.
func (s *Storage) BackendFor(url string) (blob.Backend, error) {
	for scheme, b := range s.backends {
		if strings.HasPrefix(url, scheme) {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%q (supported: %s): %w", url, s.schemes(), ErrUnknownScheme)
}

// ReadBlob returns the document at url. Documents are immutable once
// written, so results are cached by url and concurrent reads of the
// same url share one backend request.
func (s *Storage) ReadBlob(ctx context.Context, url string) (json.RawMessage, error) {
	if s.cache != nil {
		if data, ok := s.cache.Get(url); ok {
			return data, nil
		}
	}
	b, err := s.BackendFor(url)
	if err != nil {
		return nil, err
	}

	v, err, _ := s.group.Do(url, func() (any, error) {
		data, err := b.Read(ctx, url)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("blob %s is empty: %w", url, errdefs.ErrNotFound)
		}
		if s.cache != nil {
			s.cache.Add(url, data)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(v.([]byte)), nil
}

// ReadDeployment reads and decodes the deployment record at url.
func (s *Storage) ReadDeployment(ctx context.Context, url string) (*deploy.Info, error) {
	data, err := s.ReadBlob(ctx, url)
	if err != nil {
		return nil, err
	}
	var info deploy.Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decoding deployment %s: %v: %w", url, err, errdefs.ErrDataLoss)
	}
	return &info, nil
}

// PutBlob marshals v and writes it to the default backend. An empty URL
// means nothing new was written.
func (s *Storage) PutBlob(ctx context.Context, v any) (string, error) {
	var data []byte
	switch t := v.(type) {
	case json.RawMessage:
		data = t
	case []byte:
		data = t
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return "", fmt.Errorf("encoding blob: %w", err)
		}
	}
	url, err := s.Default().Put(ctx, data)
	if err != nil {
		return "", err
	}
	if url != "" && s.cache != nil {
		s.cache.Add(url, data)
	}
	log.G(ctx).WithField("url", url).WithField("backend", s.Default().Label()).Debug("put blob")
	return url, nil
}

// Forget drops url from the read cache, e.g. after the blob is removed.
func (s *Storage) Forget(url string) {
	if s.cache != nil {
		s.cache.Remove(url)
	}
}
