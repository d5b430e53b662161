package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/containerd/log"
	"gopkg.in/yaml.v3"

	"github.com/bianoble/pkgrelay/internal/pkgref"
	"github.com/bianoble/pkgrelay/internal/sandbox"
)

// IndexFile is the default file name of a local registry index.
const IndexFile = "registry.yaml"

// Index is the on-disk form of a local registry.
type Index struct {
	Version  int     `yaml:"version"`
	Packages []Entry `yaml:"packages"`
}

// LoadIndex reads and validates an index file. A missing file yields an
// empty index.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Index{Version: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading registry index %s: %w", path, err)
	}

	var idx Index
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parsing registry index %s: %w", path, err)
	}
	if errs := ValidateIndex(&idx); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return &idx, nil
}

// SaveIndex writes idx atomically.
func SaveIndex(path string, idx *Index) error {
	sortEntries(idx.Packages)
	data, err := yaml.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshaling registry index: %w", err)
	}
	root, err := sandbox.Open(filepath.Dir(path))
	if err != nil {
		return err
	}
	if err := root.WriteFile(filepath.Base(path), data, 0644); err != nil {
		return fmt.Errorf("writing registry index %s: %w", path, err)
	}
	return nil
}

// ValidationError holds multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("registry index validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ValidateIndex checks an index for semantic correctness and returns one
// message per problem.
func ValidateIndex(idx *Index) []string {
	var errs []string

	if idx.Version != 1 {
		errs = append(errs, fmt.Sprintf("unsupported version %d, only version 1 is supported", idx.Version))
	}

	seen := make(map[entryKey]bool)
	for i, e := range idx.Packages {
		prefix := fmt.Sprintf("packages[%d]", i)
		if e.Package != "" {
			prefix = fmt.Sprintf("package '%s'", e.Package)
		}

		if e.Package == "" {
			errs = append(errs, fmt.Sprintf("%s: 'package' is required", prefix))
		} else if !pkgref.IsValid(e.Package) {
			errs = append(errs, fmt.Sprintf("%s: invalid package reference", prefix))
		} else if seen[entryKey{e.Package, e.ChainID}] {
			errs = append(errs, fmt.Sprintf("%s: duplicate entry for chain %d", prefix, e.ChainID))
		} else {
			seen[entryKey{e.Package, e.ChainID}] = true
		}

		if e.URL == "" {
			errs = append(errs, fmt.Sprintf("%s: 'url' is required", prefix))
		}
	}
	return errs
}

// Local is a registry kept in a yaml index file.
type Local struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewLocal returns a registry backed by the index file at path.
func NewLocal(path string) *Local {
	return &Local{path: path, now: time.Now}
}

func (l *Local) Label() string { return fmt.Sprintf("local (%s)", l.path) }

// Path returns the index file location.
func (l *Local) Path() string { return l.path }

func (l *Local) GetURL(ctx context.Context, fullRef string, chainID int64) (string, error) {
	e, ok, err := l.get(fullRef, chainID)
	if err != nil || !ok {
		return "", err
	}
	return e.URL, nil
}

func (l *Local) GetMetaURL(ctx context.Context, fullRef string, chainID int64) (string, error) {
	e, ok, err := l.get(fullRef, chainID)
	if err != nil || !ok {
		return "", err
	}
	return e.MetaURL, nil
}

func (l *Local) get(ref string, chainID int64) (Entry, bool, error) {
	key, err := Key(ref)
	if err != nil {
		return Entry{}, false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, err := LoadIndex(l.path)
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range idx.Packages {
		if e.Package == key && e.ChainID == chainID {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

func (l *Local) Publish(ctx context.Context, names []string, chainID int64, url, metaURL string) ([]string, error) {
	return l.PublishMany(ctx, []PublishCall{{PackagesNames: names, ChainID: chainID, URL: url, MetaURL: metaURL}})
}

// PublishMany applies every call and saves the index once.
func (l *Local) PublishMany(ctx context.Context, calls []PublishCall) ([]string, error) {
	keys := make([][]string, len(calls))
	for i, c := range calls {
		k, err := validateCall(c)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	idx, err := LoadIndex(l.path)
	if err != nil {
		return nil, err
	}

	pos := make(map[entryKey]int, len(idx.Packages))
	for i, e := range idx.Packages {
		pos[entryKey{e.Package, e.ChainID}] = i
	}

	now := l.now().UTC().Truncate(time.Second)
	var receipts []string
	for i, c := range calls {
		for _, key := range keys[i] {
			e := Entry{Package: key, ChainID: c.ChainID, URL: c.URL, MetaURL: c.MetaURL, Published: now}
			if p, ok := pos[entryKey{key, c.ChainID}]; ok {
				idx.Packages[p] = e
			} else {
				pos[entryKey{key, c.ChainID}] = len(idx.Packages)
				idx.Packages = append(idx.Packages, e)
			}
			receipts = append(receipts, Receipt(key, c.ChainID))
		}
	}

	if err := SaveIndex(l.path, idx); err != nil {
		return nil, err
	}
	log.G(ctx).WithField("entries", len(receipts)).Debug("updated local registry")
	return receipts, nil
}

func (l *Local) List(ctx context.Context) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, err := LoadIndex(l.path)
	if err != nil {
		return nil, err
	}
	sortEntries(idx.Packages)
	return idx.Packages, nil
}

func (l *Local) Remove(ctx context.Context, fullRef string, chainID int64) error {
	key, err := Key(fullRef)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, err := LoadIndex(l.path)
	if err != nil {
		return err
	}
	kept := idx.Packages[:0]
	for _, e := range idx.Packages {
		if e.Package == key && e.ChainID == chainID {
			continue
		}
		kept = append(kept, e)
	}
	idx.Packages = kept
	return SaveIndex(l.path, idx)
}
