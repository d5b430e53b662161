// Package blob stores and retrieves immutable JSON documents by URL.
// Each Backend owns one URL scheme; the storage facade dispatches on it.
package blob

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/containerd/errdefs"
)

// Backend is a content store addressed by URL.
type Backend interface {
	// Scheme is the URL prefix this backend serves, e.g. "file://".
	Scheme() string

	// Label describes the backend for log and CLI output.
	Label() string

	// Read returns the stored document. Missing content is reported as
	// errdefs.ErrNotFound.
	Read(ctx context.Context, url string) ([]byte, error)

	// Put stores data and returns its URL. An empty URL means nothing
	// new was persisted.
	Put(ctx context.Context, data []byte) (string, error)

	// List returns the URL of every stored document.
	List(ctx context.Context) ([]string, error)

	// Remove deletes the document at url.
	Remove(ctx context.Context, url string) error
}

// Stat describes a stored document.
type Stat struct {
	Size    int64
	ModTime time.Time
}

// Stater is implemented by backends that can report document age.
type Stater interface {
	Stat(ctx context.Context, url string) (Stat, error)
}

// Error reports a failed backend operation.
type Error struct {
	Backend   string
	Operation string
	URL       string
	Err       error
	Hint      string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s failed", e.Backend, e.Operation)
	if e.URL != "" {
		msg += " for " + e.URL
	}
	msg += ": " + e.Err.Error()
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrUnsupported marks a capability a backend does not offer.
var ErrUnsupported = fmt.Errorf("operation not supported: %w", errdefs.ErrNotImplemented)

func unsupported(backend, op string) error {
	return &Error{Backend: backend, Operation: op, Err: ErrUnsupported}
}

// HTTPClient abstracts HTTP operations for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultHTTPClient uses http.DefaultClient.
type DefaultHTTPClient struct{}

func (DefaultHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return http.DefaultClient.Do(req)
}

// trimScheme strips scheme from url, failing with an invalid argument
// error when the url belongs to another backend.
func trimScheme(backend, op, scheme, url string) (string, error) {
	if !strings.HasPrefix(url, scheme) {
		return "", &Error{
			Backend:   backend,
			Operation: op,
			URL:       url,
			Err:       fmt.Errorf("expected a %s url: %w", scheme, errdefs.ErrInvalidArgument),
		}
	}
	rest := strings.TrimPrefix(url, scheme)
	if rest == "" {
		return "", &Error{
			Backend:   backend,
			Operation: op,
			URL:       url,
			Err:       fmt.Errorf("url has no address: %w", errdefs.ErrInvalidArgument),
		}
	}
	return rest, nil
}
