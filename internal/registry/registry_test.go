package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/google/go-cmp/cmp"
)

// conformance runs the behaviour every writable registry shares.
func conformance(t *testing.T, r Registry) {
	t.Helper()
	ctx := context.Background()

	url, err := r.GetURL(ctx, "greeter:1.0.0@main", 10)
	if err != nil {
		t.Fatalf("GetURL before publish: %v", err)
	}
	if url != "" {
		t.Fatalf("GetURL before publish = %q, want empty", url)
	}

	receipts, err := r.Publish(ctx, []string{"greeter:1.0.0@main", "greeter:latest@main"}, 10, "ipfs://abc", "ipfs://meta")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	want := []string{"greeter:1.0.0@main#10", "greeter:latest@main#10"}
	if diff := cmp.Diff(want, receipts); diff != "" {
		t.Errorf("receipts (-want +got):\n%s", diff)
	}

	for _, ref := range []string{"greeter:1.0.0@main", "greeter:latest@main", "greeter", "greeter:latest"} {
		url, err := r.GetURL(ctx, ref, 10)
		if err != nil {
			t.Fatalf("GetURL(%s): %v", ref, err)
		}
		if url != "ipfs://abc" {
			t.Errorf("GetURL(%s) = %q", ref, url)
		}
	}
	meta, err := r.GetMetaURL(ctx, "greeter:1.0.0@main", 10)
	if err != nil || meta != "ipfs://meta" {
		t.Errorf("GetMetaURL = %q, %v", meta, err)
	}

	// Chain ids are independent.
	if url, _ := r.GetURL(ctx, "greeter:1.0.0@main", 11); url != "" {
		t.Errorf("chain 11 url = %q, want empty", url)
	}

	// Republishing replaces the mapping.
	if _, err := r.PublishMany(ctx, []PublishCall{
		{PackagesNames: []string{"greeter:latest@main"}, ChainID: 10, URL: "ipfs://def"},
		{PackagesNames: []string{"other:2.0.0@main"}, ChainID: 1, URL: "ipfs://other"},
	}); err != nil {
		t.Fatalf("PublishMany: %v", err)
	}
	if url, _ := r.GetURL(ctx, "greeter:latest@main", 10); url != "ipfs://def" {
		t.Errorf("latest after republish = %q", url)
	}
	if url, _ := r.GetURL(ctx, "greeter:1.0.0@main", 10); url != "ipfs://abc" {
		t.Errorf("1.0.0 after republish = %q", url)
	}
	if url, _ := r.GetURL(ctx, "other:2.0.0@main", 1); url != "ipfs://other" {
		t.Errorf("other = %q", url)
	}

	if _, err := r.GetURL(ctx, "Bad Ref", 10); !errdefs.IsInvalidArgument(err) {
		t.Errorf("invalid ref: err = %v, want invalid argument", err)
	}
	if _, err := r.Publish(ctx, []string{"greeter:1.0.0@main"}, 10, "", ""); !errdefs.IsInvalidArgument(err) {
		t.Errorf("empty url: err = %v, want invalid argument", err)
	}
	if _, err := r.Publish(ctx, nil, 10, "ipfs://x", ""); !errdefs.IsInvalidArgument(err) {
		t.Errorf("no names: err = %v, want invalid argument", err)
	}

	if l, ok := r.(Lister); ok {
		entries, err := l.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		var got []string
		for _, e := range entries {
			got = append(got, fmt.Sprintf("%s#%d=%s", e.Package, e.ChainID, e.URL))
		}
		want := []string{
			"greeter:1.0.0@main#10=ipfs://abc",
			"greeter:latest@main#10=ipfs://def",
			"other:2.0.0@main#1=ipfs://other",
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("List (-want +got):\n%s", diff)
		}
	}

	if rm, ok := r.(Remover); ok {
		if err := rm.Remove(ctx, "other:2.0.0@main", 1); err != nil {
			t.Fatalf("Remove: %v", err)
		}
		if url, _ := r.GetURL(ctx, "other:2.0.0@main", 1); url != "" {
			t.Errorf("after remove url = %q", url)
		}
	}
}

func TestMemoryRegistry(t *testing.T) {
	conformance(t, NewMemory())
}

func TestLocalRegistry(t *testing.T) {
	conformance(t, NewLocal(filepath.Join(t.TempDir(), "data", IndexFile)))
}

func TestPostgresRegistry(t *testing.T) {
	dsn := os.Getenv("PKGRELAY_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("PKGRELAY_TEST_PG_DSN not set")
	}
	p, err := NewPostgres(context.Background(), dsn, 16)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if _, err := p.db.Exec(`DROP TABLE IF EXISTS pkgrelay_packages`); err != nil {
		t.Fatal(err)
	}
	conformance(t, p)
}

func TestLocalIndexPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), IndexFile)
	ctx := context.Background()

	if _, err := NewLocal(path).Publish(ctx, []string{"greeter:1.0.0@main"}, 10, "file://a.json", ""); err != nil {
		t.Fatal(err)
	}

	idx, err := LoadIndex(path)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if idx.Version != 1 || len(idx.Packages) != 1 {
		t.Fatalf("index = %+v", idx)
	}
	if idx.Packages[0].Published.IsZero() {
		t.Error("published time not recorded")
	}

	url, err := NewLocal(path).GetURL(ctx, "greeter:1.0.0@main", 10)
	if err != nil || url != "file://a.json" {
		t.Errorf("reopened GetURL = %q, %v", url, err)
	}
}

func TestLoadIndexValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad version", "version: 2\npackages: []\n", "unsupported version 2"},
		{"missing package", "version: 1\npackages:\n  - chainId: 1\n    url: file://a.json\n", "'package' is required"},
		{"invalid package", "version: 1\npackages:\n  - package: 'Not Valid'\n    chainId: 1\n    url: file://a.json\n", "invalid package reference"},
		{"missing url", "version: 1\npackages:\n  - package: abc:1@main\n    chainId: 1\n", "'url' is required"},
		{"duplicate", "version: 1\npackages:\n  - package: abc:1@main\n    chainId: 1\n    url: file://a.json\n  - package: abc:1@main\n    chainId: 1\n    url: file://b.json\n", "duplicate entry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), IndexFile)
			if err := os.WriteFile(path, []byte(tt.yaml), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadIndex(path)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestLoadIndexMissingFile(t *testing.T) {
	idx, err := LoadIndex(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if idx.Version != 1 || len(idx.Packages) != 0 {
		t.Errorf("index = %+v", idx)
	}
}

// stubRegistry returns canned answers.
type stubRegistry struct {
	label     string
	url       string
	err       error
	calls     int
	published []PublishCall
}

func (s *stubRegistry) Label() string { return s.label }

func (s *stubRegistry) GetURL(context.Context, string, int64) (string, error) {
	s.calls++
	return s.url, s.err
}

func (s *stubRegistry) GetMetaURL(context.Context, string, int64) (string, error) {
	s.calls++
	return s.url, s.err
}

func (s *stubRegistry) Publish(ctx context.Context, names []string, chainID int64, url, metaURL string) ([]string, error) {
	return s.PublishMany(ctx, []PublishCall{{PackagesNames: names, ChainID: chainID, URL: url, MetaURL: metaURL}})
}

func (s *stubRegistry) PublishMany(_ context.Context, calls []PublishCall) ([]string, error) {
	s.published = append(s.published, calls...)
	return []string{s.label}, nil
}

func TestFallbackFirstNonEmptyWins(t *testing.T) {
	empty := &stubRegistry{label: "empty"}
	missing := &stubRegistry{label: "missing", err: fmt.Errorf("no such package: %w", errdefs.ErrNotFound)}
	hit := &stubRegistry{label: "hit", url: "ipfs://hit"}
	never := &stubRegistry{label: "never", url: "ipfs://never"}

	f := NewFallback(empty, missing, hit, never)
	url, err := f.GetURL(context.Background(), "greeter", 1)
	if err != nil {
		t.Fatalf("GetURL: %v", err)
	}
	if url != "ipfs://hit" {
		t.Errorf("url = %q", url)
	}
	if never.calls != 0 {
		t.Error("registry after a hit was consulted")
	}
}

func TestFallbackStopsOnTransportError(t *testing.T) {
	broken := &stubRegistry{label: "broken", err: errors.New("connection refused")}
	hit := &stubRegistry{label: "hit", url: "ipfs://hit"}

	_, err := NewFallback(broken, hit).GetMetaURL(context.Background(), "greeter", 1)
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("err = %v, want transport error", err)
	}
	if hit.calls != 0 {
		t.Error("fallback continued past a transport error")
	}
}

func TestFallbackAllEmpty(t *testing.T) {
	url, err := NewFallback(&stubRegistry{label: "a"}, &stubRegistry{label: "b"}).GetURL(context.Background(), "greeter", 1)
	if err != nil || url != "" {
		t.Errorf("GetURL = %q, %v", url, err)
	}
}

func TestFallbackWritesToTarget(t *testing.T) {
	first := &stubRegistry{label: "first"}
	second := &stubRegistry{label: "second"}
	ctx := context.Background()

	f := NewFallback(first, second)
	if _, err := f.Publish(ctx, []string{"greeter"}, 1, "ipfs://x", ""); err != nil {
		t.Fatal(err)
	}
	if len(first.published) != 1 || len(second.published) != 0 {
		t.Errorf("default target: first=%d second=%d", len(first.published), len(second.published))
	}

	f.WithWriteTarget(second)
	if _, err := f.PublishMany(ctx, []PublishCall{{PackagesNames: []string{"greeter"}, ChainID: 1, URL: "ipfs://y"}}); err != nil {
		t.Fatal(err)
	}
	if len(second.published) != 1 {
		t.Errorf("explicit target not used")
	}

	if _, err := NewFallback().Publish(ctx, []string{"greeter"}, 1, "ipfs://x", ""); !errdefs.IsNotImplemented(err) {
		t.Errorf("empty fallback publish: err = %v, want not implemented", err)
	}
}

func TestFallbackListMerges(t *testing.T) {
	ctx := context.Background()
	a, b := NewMemory(), NewMemory()
	if _, err := a.Publish(ctx, []string{"greeter:1.0.0@main"}, 1, "file://a.json", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Publish(ctx, []string{"greeter:1.0.0@main", "other:1.0.0@main"}, 1, "file://b.json", ""); err != nil {
		t.Fatal(err)
	}

	entries, err := NewFallback(a, b).List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].URL != "file://a.json" {
		t.Errorf("earlier registry should win: %+v", entries[0])
	}
	if !strings.Contains(NewFallback(a, b).Label(), "memory, memory") {
		t.Errorf("Label = %q", NewFallback(a, b).Label())
	}
}
