package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/containerd/errdefs"

	"github.com/bianoble/pkgrelay/internal/blob"
	"github.com/bianoble/pkgrelay/internal/deploy"
	"github.com/bianoble/pkgrelay/internal/registry"
)

// countingBackend serves canned documents and counts reads.
type countingBackend struct {
	scheme string
	docs   map[string][]byte
	reads  atomic.Int32
	gate   chan struct{}
}

func (c *countingBackend) Scheme() string { return c.scheme }
func (c *countingBackend) Label() string  { return "counting" }

func (c *countingBackend) Read(ctx context.Context, url string) ([]byte, error) {
	c.reads.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	data, ok := c.docs[url]
	if !ok {
		return nil, errdefs.ErrNotFound
	}
	return data, nil
}

func (c *countingBackend) Put(context.Context, []byte) (string, error) { return "", nil }
func (c *countingBackend) List(context.Context) ([]string, error)     { return nil, nil }
func (c *countingBackend) Remove(context.Context, string) error        { return nil }

func TestNewRequiresDefaultBackend(t *testing.T) {
	_, err := New(registry.NewMemory(), []blob.Backend{blob.NewLocal(t.TempDir())}, "ipfs://", Options{})
	if !errors.Is(err, ErrUnknownScheme) {
		t.Fatalf("err = %v, want ErrUnknownScheme", err)
	}
	if _, err := New(nil, nil, "file://", Options{}); !errdefs.IsInvalidArgument(err) {
		t.Fatalf("nil registry: err = %v", err)
	}
}

func TestPutReadDeployment(t *testing.T) {
	ctx := context.Background()
	s, err := New(registry.NewMemory(), []blob.Backend{blob.NewLocal(t.TempDir())}, "file://", Options{})
	if err != nil {
		t.Fatal(err)
	}

	def, _ := deploy.NewDefinition(map[string]any{"name": "greeter", "version": "1.0.0"})
	info := &deploy.Info{Def: def, ChainID: 10, MiscURL: "file://misc.json"}
	url, err := s.PutBlob(ctx, info)
	if err != nil {
		t.Fatalf("PutBlob: %v", err)
	}

	got, err := s.ReadDeployment(ctx, url)
	if err != nil {
		t.Fatalf("ReadDeployment: %v", err)
	}
	if got.ChainID != 10 || got.MiscURL != "file://misc.json" || got.Status != deploy.StatusComplete {
		t.Errorf("ReadDeployment = %+v", got)
	}
	if got.Def.RawName() != "greeter" {
		t.Errorf("name = %q", got.Def.RawName())
	}
}

func TestPutBlobRawBytes(t *testing.T) {
	ctx := context.Background()
	s, err := New(registry.NewMemory(), []blob.Backend{blob.NewLocal(t.TempDir())}, "file://", Options{CacheSize: -1})
	if err != nil {
		t.Fatal(err)
	}
	raw := json.RawMessage(`{"misc":true}`)
	url, err := s.PutBlob(ctx, raw)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.ReadBlob(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(raw) {
		t.Errorf("ReadBlob = %s", got)
	}
}

func TestReadBlobUnknownScheme(t *testing.T) {
	s, err := New(registry.NewMemory(), []blob.Backend{blob.NewLocal(t.TempDir())}, "file://", Options{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.ReadBlob(context.Background(), "ftp://nope")
	if !errors.Is(err, ErrUnknownScheme) || !errdefs.IsInvalidArgument(err) {
		t.Fatalf("err = %v, want ErrUnknownScheme", err)
	}
}

func TestReadBlobEmptyIsNotFound(t *testing.T) {
	b := &countingBackend{scheme: "mem://", docs: map[string][]byte{"mem://empty": {}}}
	s, err := New(registry.NewMemory(), []blob.Backend{b}, "mem://", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReadBlob(context.Background(), "mem://empty"); !errdefs.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
	if _, err := s.ReadBlob(context.Background(), "mem://missing"); !errdefs.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestReadDeploymentCorrupt(t *testing.T) {
	b := &countingBackend{scheme: "mem://", docs: map[string][]byte{"mem://bad": []byte(`[1,2,3]`)}}
	s, err := New(registry.NewMemory(), []blob.Backend{b}, "mem://", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReadDeployment(context.Background(), "mem://bad"); !errdefs.IsDataLoss(err) {
		t.Fatalf("err = %v, want data loss", err)
	}
}

func TestReadBlobCaches(t *testing.T) {
	b := &countingBackend{scheme: "mem://", docs: map[string][]byte{"mem://a": []byte(`{}`)}}
	s, err := New(registry.NewMemory(), []blob.Backend{b}, "mem://", Options{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := s.ReadBlob(ctx, "mem://a"); err != nil {
			t.Fatal(err)
		}
	}
	if n := b.reads.Load(); n != 1 {
		t.Errorf("backend reads = %d, want 1", n)
	}

	s.Forget("mem://a")
	if _, err := s.ReadBlob(ctx, "mem://a"); err != nil {
		t.Fatal(err)
	}
	if n := b.reads.Load(); n != 2 {
		t.Errorf("backend reads after Forget = %d, want 2", n)
	}
}

func TestReadBlobCollapsesConcurrentReads(t *testing.T) {
	b := &countingBackend{
		scheme: "mem://",
		docs:   map[string][]byte{"mem://a": []byte(`{}`)},
		gate:   make(chan struct{}),
	}
	s, err := New(registry.NewMemory(), []blob.Backend{b}, "mem://", Options{CacheSize: -1})
	if err != nil {
		t.Fatal(err)
	}

	const readers = 8
	var started, done sync.WaitGroup
	started.Add(readers)
	done.Add(readers)
	for i := 0; i < readers; i++ {
		go func() {
			defer done.Done()
			started.Done()
			if _, err := s.ReadBlob(context.Background(), "mem://a"); err != nil {
				t.Error(err)
			}
		}()
	}
	started.Wait()
	close(b.gate)
	done.Wait()

	if n := b.reads.Load(); n < 1 || n > readers {
		t.Errorf("backend reads = %d, want between 1 and %d", n, readers)
	}
}

func TestLabelAndAccessors(t *testing.T) {
	reg := registry.NewMemory()
	local := blob.NewLocal(t.TempDir())
	s, err := New(reg, []blob.Backend{local}, "file://", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if s.Registry() != reg {
		t.Error("Registry accessor mismatch")
	}
	if b, ok := s.Backend("file://"); !ok || b != local {
		t.Error("Backend accessor mismatch")
	}
	if s.Label() != "memory + "+local.Label() {
		t.Errorf("Label = %q", s.Label())
	}
}
