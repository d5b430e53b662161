package blob

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/opencontainers/go-digest"

	"github.com/bianoble/pkgrelay/internal/sandbox"
)

// LocalScheme prefixes URLs served by Local.
const LocalScheme = "file://"

var localName = regexp.MustCompile(`^[0-9a-f]+\.json$`)

// Local stores documents as files in a directory, named by the sha256
// digest of their bytes. Writes are atomic, so a document is either
// absent or complete.
type Local struct {
	dir string
}

// NewLocal returns a Local rooted at dir. The directory is created on
// first write.
func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

func (l *Local) Scheme() string { return LocalScheme }

func (l *Local) Label() string { return fmt.Sprintf("local (%s)", l.dir) }

// Dir returns the directory documents are stored in.
func (l *Local) Dir() string { return l.dir }

func (l *Local) Read(ctx context.Context, url string) ([]byte, error) {
	name, err := l.name("read", url)
	if err != nil {
		return nil, err
	}
	root, err := sandbox.Open(l.dir)
	if err != nil {
		return nil, &Error{Backend: l.Label(), Operation: "read", URL: url, Err: err}
	}
	data, err := root.ReadFile(name)
	if err != nil {
		return nil, &Error{Backend: l.Label(), Operation: "read", URL: url, Err: err}
	}
	return data, nil
}

// Put writes data under its digest. Identical content maps to the same
// URL and is not rewritten.
func (l *Local) Put(ctx context.Context, data []byte) (string, error) {
	name := digest.FromBytes(data).Encoded() + ".json"
	url := LocalScheme + name

	root, err := sandbox.Open(l.dir)
	if err != nil {
		return "", &Error{Backend: l.Label(), Operation: "put", Err: err}
	}
	if _, err := root.Stat(name); err == nil {
		return url, nil
	}
	if err := root.WriteFile(name, data, 0644); err != nil {
		return "", &Error{Backend: l.Label(), Operation: "put", URL: url, Err: err}
	}
	log.G(ctx).WithField("url", url).Debug("stored blob")
	return url, nil
}

func (l *Local) List(ctx context.Context) ([]string, error) {
	root, err := sandbox.Open(l.dir)
	if err != nil {
		return nil, &Error{Backend: l.Label(), Operation: "list", Err: err}
	}
	entries, err := root.ReadDir(".")
	if err != nil {
		return nil, &Error{Backend: l.Label(), Operation: "list", Err: err}
	}
	var urls []string
	for _, e := range entries {
		if e.IsDir() || !localName.MatchString(e.Name()) {
			continue
		}
		urls = append(urls, LocalScheme+e.Name())
	}
	sort.Strings(urls)
	return urls, nil
}

func (l *Local) Remove(ctx context.Context, url string) error {
	name, err := l.name("remove", url)
	if err != nil {
		return err
	}
	root, err := sandbox.Open(l.dir)
	if err != nil {
		return &Error{Backend: l.Label(), Operation: "remove", URL: url, Err: err}
	}
	if err := root.Remove(name); err != nil {
		return &Error{Backend: l.Label(), Operation: "remove", URL: url, Err: err}
	}
	log.G(ctx).WithField("url", url).Debug("removed blob")
	return nil
}

func (l *Local) Stat(ctx context.Context, url string) (Stat, error) {
	name, err := l.name("stat", url)
	if err != nil {
		return Stat{}, err
	}
	root, err := sandbox.Open(l.dir)
	if err != nil {
		return Stat{}, &Error{Backend: l.Label(), Operation: "stat", URL: url, Err: err}
	}
	fi, err := root.Stat(name)
	if err != nil {
		return Stat{}, &Error{Backend: l.Label(), Operation: "stat", URL: url, Err: err}
	}
	return Stat{Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

func (l *Local) name(op, url string) (string, error) {
	name, err := trimScheme(l.Label(), op, LocalScheme, url)
	if err != nil {
		return "", err
	}
	if !localName.MatchString(name) {
		return "", &Error{
			Backend:   l.Label(),
			Operation: op,
			URL:       url,
			Err:       fmt.Errorf("not a content address: %w", errdefs.ErrInvalidArgument),
		}
	}
	return name, nil
}
