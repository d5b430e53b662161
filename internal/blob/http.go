package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/containerd/errdefs"
)

// httpFetcher holds the request plumbing shared by the IPFS API and
// gateway backends.
type httpFetcher struct {
	client  HTTPClient
	headers map[string]string
	maxSize int64
	timeout time.Duration
}

// apiError is the body Kubo returns alongside non-2xx responses.
type apiError struct {
	Message string `json:"Message"`
}

// do sends the request and returns the response body, which must not
// exceed limit bytes when limit is positive. Non-2xx statuses are
// converted to errors; 404 and "not found" messages map to
// errdefs.ErrNotFound.
func (f *httpFetcher) do(ctx context.Context, method, url, contentType string, body io.Reader, limit int64) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	client := f.client
	if client == nil {
		client = DefaultHTTPClient{}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, redact(url), err)
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if limit > 0 {
		reader = io.LimitReader(resp.Body, limit+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("response exceeds max size %d bytes: %w", limit, errdefs.ErrOutOfRange)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		err := fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, redact(url), msg)
		if resp.StatusCode == http.StatusNotFound || strings.Contains(strings.ToLower(msg), "not found") {
			return nil, fmt.Errorf("%w: %w", err, errdefs.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

// redact drops userinfo and query so credentials never reach logs.
func redact(url string) string {
	if i := strings.Index(url, "?"); i >= 0 {
		url = url[:i]
	}
	if i := strings.Index(url, "://"); i >= 0 {
		if at := strings.Index(url[i+3:], "@"); at >= 0 {
			url = url[:i+3] + url[i+3+at+1:]
		}
	}
	return url
}
