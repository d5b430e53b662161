package blob

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/containerd/errdefs"
)

func TestGatewayRead(t *testing.T) {
	doc := []byte(`{"def":{"name":"greeter"}}`)
	payload, err := deflate(doc)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/ipfs/QmDoc" {
			http.NotFound(w, r)
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	g := NewGateway(srv.URL+"/", IPFSOptions{})
	got, err := g.Read(context.Background(), "ipfs://QmDoc")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(doc) {
		t.Errorf("Read = %s", got)
	}

	if _, err := g.Read(context.Background(), "ipfs://QmOther"); !errdefs.IsNotFound(err) {
		t.Errorf("missing: err = %v, want not found", err)
	}
}

func TestGatewayIsReadOnly(t *testing.T) {
	g := NewGateway("https://gateway.example.com", IPFSOptions{})
	ctx := context.Background()

	if _, err := g.Put(ctx, []byte(`{}`)); !errdefs.IsNotImplemented(err) {
		t.Errorf("Put err = %v, want not implemented", err)
	}
	if _, err := g.List(ctx); !errdefs.IsNotImplemented(err) {
		t.Errorf("List err = %v, want not implemented", err)
	}
	if err := g.Remove(ctx, "ipfs://QmDoc"); !errdefs.IsNotImplemented(err) {
		t.Errorf("Remove err = %v, want not implemented", err)
	}
}

func TestGatewayServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewGateway(srv.URL, IPFSOptions{}).Read(context.Background(), "ipfs://QmDoc")
	if err == nil {
		t.Fatal("expected error")
	}
	if errdefs.IsNotFound(err) {
		t.Errorf("transport failure should not look like not found: %v", err)
	}
}
